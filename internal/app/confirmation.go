package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TradeType distinguishes staged buys from staged sells.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// ReasonNotFoundOrExpired is returned when confirming or cancelling a
// trade that no longer exists, already executed, or whose window elapsed.
const ReasonNotFoundOrExpired = "not found or expired"

// ConfirmationConfig holds configuration for the confirmation workflow.
type ConfirmationConfig struct {
	Timeout time.Duration // How long a staged trade waits for confirmation
}

// DefaultConfirmationConfig returns sensible defaults.
func DefaultConfirmationConfig() ConfirmationConfig {
	return ConfirmationConfig{
		Timeout: 60 * time.Second,
	}
}

// StagedTrade is a trade waiting for explicit user confirmation.
type StagedTrade struct {
	TradeID   string
	UserID    int64
	TradeType TradeType
	Buy       *BuyRequest
	Sell      *SellRequest
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ConfirmationResult reports the outcome of a confirmation attempt.
type ConfirmationResult struct {
	Confirmed   bool
	Reason      string // Set when Confirmed is false
	ExecSuccess bool
	TxHash      string
	ExecError   error
}

// CancelResult reports the outcome of a cancellation attempt.
type CancelResult struct {
	Cancelled bool
	Reason    string // Set when Cancelled is false
}

type pendingTrade struct {
	trade StagedTrade
	timer *time.Timer
}

// ConfirmationWorkflow stages trades behind a confirmation deadline.
// Confirm, cancel and expiry race for a single map removal, so exactly
// one of them wins and the executor runs at most once per trade.
type ConfirmationWorkflow struct {
	logger   *zap.Logger
	config   ConfirmationConfig
	executor TradeExecutor

	// onExecuted runs after a confirmed trade executed successfully, for
	// position bookkeeping and notifications.
	onExecuted  func(trade StagedTrade, buyOut *BuyOutcome, sellOut *SellOutcome)
	onExpired   func(trade StagedTrade)
	onCancelled func(trade StagedTrade)

	mu      sync.Mutex
	pending map[string]*pendingTrade
}

// NewConfirmationWorkflow creates a confirmation workflow.
func NewConfirmationWorkflow(logger *zap.Logger, config ConfirmationConfig, executor TradeExecutor) *ConfirmationWorkflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfirmationConfig().Timeout
	}
	return &ConfirmationWorkflow{
		logger:   logger.Named("confirmation"),
		config:   config,
		executor: executor,
		pending:  make(map[string]*pendingTrade),
	}
}

// SetOnExecuted registers the post-execution callback.
func (w *ConfirmationWorkflow) SetOnExecuted(fn func(trade StagedTrade, buyOut *BuyOutcome, sellOut *SellOutcome)) {
	w.onExecuted = fn
}

// SetOnExpired registers the expiry callback.
func (w *ConfirmationWorkflow) SetOnExpired(fn func(trade StagedTrade)) {
	w.onExpired = fn
}

// SetOnCancelled registers the cancellation callback.
func (w *ConfirmationWorkflow) SetOnCancelled(fn func(trade StagedTrade)) {
	w.onCancelled = fn
}

// StageBuy stages a buy and returns its trade id.
func (w *ConfirmationWorkflow) StageBuy(req BuyRequest) StagedTrade {
	return w.stage(StagedTrade{
		UserID:    req.UserID,
		TradeType: TradeTypeBuy,
		Buy:       &req,
	})
}

// StageSell stages a sell and returns its trade id.
func (w *ConfirmationWorkflow) StageSell(req SellRequest) StagedTrade {
	return w.stage(StagedTrade{
		UserID:    req.UserID,
		TradeType: TradeTypeSell,
		Sell:      &req,
	})
}

func (w *ConfirmationWorkflow) stage(trade StagedTrade) StagedTrade {
	now := time.Now()
	trade.TradeID = uuid.NewString()
	trade.CreatedAt = now
	trade.ExpiresAt = now.Add(w.config.Timeout)

	p := &pendingTrade{trade: trade}
	p.timer = time.AfterFunc(w.config.Timeout, func() {
		w.expire(trade.TradeID)
	})

	w.mu.Lock()
	w.pending[trade.TradeID] = p
	w.mu.Unlock()

	w.logger.Info("trade staged",
		zap.String("tradeID", trade.TradeID),
		zap.Int64("userID", trade.UserID),
		zap.String("type", string(trade.TradeType)),
		zap.Duration("timeout", w.config.Timeout),
	)
	return trade
}

// take removes and returns the pending trade if it still exists. It is
// the single synchronization point between confirm, cancel and expiry.
func (w *ConfirmationWorkflow) take(tradeID string) (*pendingTrade, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[tradeID]
	if !ok {
		return nil, false
	}
	delete(w.pending, tradeID)
	return p, true
}

// takeFor is take with an ownership check done under the lock. A wrong
// user never lifts the entry out of the map, so the expiry timer always
// finds it and the deadline cannot be defeated by probing.
func (w *ConfirmationWorkflow) takeFor(tradeID string, userID int64) (*pendingTrade, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[tradeID]
	if !ok || p.trade.UserID != userID {
		return nil, false
	}
	delete(w.pending, tradeID)
	return p, true
}

// Confirm executes the staged trade if it is still pending. Confirming
// an unknown, expired or already-resolved trade returns a result with
// ReasonNotFoundOrExpired rather than an error.
func (w *ConfirmationWorkflow) Confirm(ctx context.Context, userID int64, tradeID string) ConfirmationResult {
	p, ok := w.takeFor(tradeID, userID)
	if !ok {
		return ConfirmationResult{Reason: ReasonNotFoundOrExpired}
	}
	p.timer.Stop()

	result := ConfirmationResult{Confirmed: true}
	switch p.trade.TradeType {
	case TradeTypeBuy:
		out, err := w.executor.ExecuteBuy(ctx, *p.trade.Buy)
		if err != nil {
			result.ExecError = err
			w.logger.Warn("confirmed buy failed",
				zap.String("tradeID", tradeID),
				zap.Error(err),
			)
			return result
		}
		result.ExecSuccess = true
		result.TxHash = out.TxHash
		if w.onExecuted != nil {
			w.onExecuted(p.trade, out, nil)
		}
	case TradeTypeSell:
		out, err := w.executor.ExecuteSell(ctx, *p.trade.Sell)
		if err != nil {
			result.ExecError = err
			w.logger.Warn("confirmed sell failed",
				zap.String("tradeID", tradeID),
				zap.Error(err),
			)
			return result
		}
		result.ExecSuccess = true
		result.TxHash = out.TxHash
		if w.onExecuted != nil {
			w.onExecuted(p.trade, nil, out)
		}
	}

	w.logger.Info("trade confirmed",
		zap.String("tradeID", tradeID),
		zap.Int64("userID", userID),
		zap.Bool("executed", result.ExecSuccess),
	)
	return result
}

// Cancel discards the staged trade if it is still pending.
func (w *ConfirmationWorkflow) Cancel(userID int64, tradeID string) CancelResult {
	p, ok := w.takeFor(tradeID, userID)
	if !ok {
		return CancelResult{Reason: ReasonNotFoundOrExpired}
	}
	p.timer.Stop()

	w.logger.Info("trade cancelled",
		zap.String("tradeID", tradeID),
		zap.Int64("userID", userID),
	)
	if w.onCancelled != nil {
		w.onCancelled(p.trade)
	}
	return CancelResult{Cancelled: true}
}

func (w *ConfirmationWorkflow) expire(tradeID string) {
	p, ok := w.take(tradeID)
	if !ok {
		return
	}

	w.logger.Info("trade expired",
		zap.String("tradeID", tradeID),
		zap.Int64("userID", p.trade.UserID),
	)
	if w.onExpired != nil {
		w.onExpired(p.trade)
	}
}

// Pending returns the staged trade for a trade id, if still pending.
func (w *ConfirmationWorkflow) Pending(tradeID string) (StagedTrade, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[tradeID]
	if !ok {
		return StagedTrade{}, false
	}
	return p.trade, true
}

// PendingCount returns the number of staged trades, for stats.
func (w *ConfirmationWorkflow) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Shutdown stops all expiry timers. Pending trades are dropped.
func (w *ConfirmationWorkflow) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, id)
	}
}
