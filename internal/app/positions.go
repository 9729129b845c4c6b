package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"copybot/storage"

	"go.uber.org/zap"
)

// DustPositionAmount is the threshold below which a position is treated
// as fully closed and removed.
const DustPositionAmount = 0.001

// PositionBook maintains per-user token positions with volume-weighted
// average pricing.
type PositionBook struct {
	logger *zap.Logger
	store  storage.Store
}

// NewPositionBook creates a position book backed by the given store.
func NewPositionBook(logger *zap.Logger, store storage.Store) *PositionBook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionBook{
		logger: logger.Named("positions"),
		store:  store,
	}
}

// ApplyBuy folds a fill into the user's position, recomputing the
// average price across all buys.
func (b *PositionBook) ApplyBuy(ctx context.Context, userID int64, network, tokenAddress, sourceWallet string, tokens, price float64, txHash string) (storage.Position, error) {
	pos, err := b.store.GetPosition(ctx, userID, tokenAddress)
	if errors.Is(err, storage.ErrNotFound) {
		pos = storage.Position{
			UserID:       userID,
			TokenAddress: tokenAddress,
			Network:      network,
			SourceWallet: sourceWallet,
		}
	} else if err != nil {
		return storage.Position{}, fmt.Errorf("get position: %w", err)
	}

	newTotal := pos.TotalAmount + tokens
	if newTotal > 0 {
		pos.AvgPrice = (pos.TotalAmount*pos.AvgPrice + tokens*price) / newTotal
	}
	pos.TotalAmount = newTotal
	pos.Trades = append(pos.Trades, storage.PositionTrade{
		TxHash:    txHash,
		Side:      "buy",
		Amount:    tokens,
		Price:     price,
		Timestamp: time.Now(),
	})

	if err := b.store.SavePosition(ctx, pos); err != nil {
		return storage.Position{}, fmt.Errorf("save position: %w", err)
	}

	b.logger.Debug("position increased",
		zap.Int64("userID", userID),
		zap.String("token", shortID(tokenAddress)),
		zap.Float64("total", pos.TotalAmount),
		zap.Float64("avgPrice", pos.AvgPrice),
	)
	return pos, nil
}

// ApplySell reduces the position by a percentage of the held amount and
// returns the amount sold. Positions left below the dust threshold are
// removed entirely.
func (b *PositionBook) ApplySell(ctx context.Context, userID int64, tokenAddress string, percent, price float64, txHash string) (float64, error) {
	pos, err := b.store.GetPosition(ctx, userID, tokenAddress)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get position: %w", err)
	}

	if percent <= 0 {
		return 0, nil
	}
	if percent > 100 {
		percent = 100
	}
	sold := pos.TotalAmount * percent / 100
	pos.TotalAmount -= sold

	if pos.TotalAmount < DustPositionAmount {
		if err := b.store.DeletePosition(ctx, userID, tokenAddress); err != nil {
			return 0, fmt.Errorf("delete position: %w", err)
		}
		b.logger.Debug("position closed",
			zap.Int64("userID", userID),
			zap.String("token", shortID(tokenAddress)),
			zap.Float64("sold", sold),
		)
		return sold, nil
	}

	pos.Trades = append(pos.Trades, storage.PositionTrade{
		TxHash:    txHash,
		Side:      "sell",
		Amount:    sold,
		Price:     price,
		Timestamp: time.Now(),
	})
	if err := b.store.SavePosition(ctx, pos); err != nil {
		return 0, fmt.Errorf("save position: %w", err)
	}

	b.logger.Debug("position reduced",
		zap.Int64("userID", userID),
		zap.String("token", shortID(tokenAddress)),
		zap.Float64("sold", sold),
		zap.Float64("remaining", pos.TotalAmount),
	)
	return sold, nil
}

// Holding returns the current held amount, zero when no position exists.
func (b *PositionBook) Holding(ctx context.Context, userID int64, tokenAddress string) (float64, error) {
	pos, err := b.store.GetPosition(ctx, userID, tokenAddress)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return pos.TotalAmount, nil
}
