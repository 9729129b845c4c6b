package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"copybot/storage"

	"go.uber.org/zap"
)

// StatusKeeper evaluates and mutates the trading status a user holds
// against a tracked wallet. Unknown pairs default to active.
type StatusKeeper struct {
	logger *zap.Logger
	store  storage.Store
}

// NewStatusKeeper creates a status keeper backed by the given store.
func NewStatusKeeper(logger *zap.Logger, store storage.Store) *StatusKeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusKeeper{
		logger: logger.Named("status"),
		store:  store,
	}
}

// IsActive reports whether replication is currently allowed for the pair.
// A paused status whose resume time has passed flips back to active and
// the transition is written through to the store. Paused without a resume
// time stays paused until an explicit resume.
func (k *StatusKeeper) IsActive(ctx context.Context, userID int64, sourceWallet string) (bool, error) {
	status, err := k.store.GetWalletStatus(ctx, userID, sourceWallet)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get wallet status: %w", err)
	}

	switch status.State {
	case storage.StateActive:
		return true, nil
	case storage.StateStopped:
		return false, nil
	case storage.StatePaused:
		if status.ResumeAt == nil || time.Now().Before(*status.ResumeAt) {
			return false, nil
		}
		// Pause has elapsed. Resume lazily.
		status.State = storage.StateActive
		status.ResumeAt = nil
		if err := k.store.SetWalletStatus(ctx, status); err != nil {
			return false, fmt.Errorf("resume wallet status: %w", err)
		}
		k.logger.Info("pause elapsed, resuming",
			zap.Int64("userID", userID),
			zap.String("wallet", shortID(sourceWallet)),
		)
		return true, nil
	default:
		return false, fmt.Errorf("unknown trading state %q", status.State)
	}
}

// Pause suspends replication. A nil until keeps the pair paused until an
// explicit Resume.
func (k *StatusKeeper) Pause(ctx context.Context, userID int64, sourceWallet string, until *time.Time) error {
	return k.set(ctx, userID, sourceWallet, storage.StatePaused, until)
}

// Resume re-enables replication.
func (k *StatusKeeper) Resume(ctx context.Context, userID int64, sourceWallet string) error {
	return k.set(ctx, userID, sourceWallet, storage.StateActive, nil)
}

// Stop disables replication until an explicit Resume.
func (k *StatusKeeper) Stop(ctx context.Context, userID int64, sourceWallet string) error {
	return k.set(ctx, userID, sourceWallet, storage.StateStopped, nil)
}

// Set writes an arbitrary status.
func (k *StatusKeeper) Set(ctx context.Context, status storage.WalletStatus) error {
	if status.State == storage.StatePaused {
		return k.set(ctx, status.UserID, status.SourceWallet, status.State, status.ResumeAt)
	}
	return k.set(ctx, status.UserID, status.SourceWallet, status.State, nil)
}

func (k *StatusKeeper) set(ctx context.Context, userID int64, sourceWallet string, state storage.TradingState, resumeAt *time.Time) error {
	status := storage.WalletStatus{
		UserID:       userID,
		SourceWallet: sourceWallet,
		State:        state,
		ResumeAt:     resumeAt,
	}
	if err := k.store.SetWalletStatus(ctx, status); err != nil {
		return fmt.Errorf("set wallet status: %w", err)
	}
	k.logger.Info("trading status changed",
		zap.Int64("userID", userID),
		zap.String("wallet", shortID(sourceWallet)),
		zap.String("state", string(state)),
	)
	return nil
}
