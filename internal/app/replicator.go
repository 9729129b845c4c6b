package app

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"copybot/clients/notifier"
	"copybot/storage"

	"go.uber.org/zap"
)

// ReplicatorConfig holds configuration for the copy replicator.
type ReplicatorConfig struct {
	DustAmount       float64         // Minimum buy size in native units
	MaxMevRisk       float64         // Reject buys above this MEV risk score
	FrontrunNetworks map[string]bool // Networks where the priority queue is available
}

// DefaultReplicatorConfig returns sensible defaults.
func DefaultReplicatorConfig() ReplicatorConfig {
	return ReplicatorConfig{
		DustAmount: 0.001,
		MaxMevRisk: 0.7,
		FrontrunNetworks: map[string]bool{
			"solana": true,
		},
	}
}

// Rejection reasons reported in ReplicationResult.Reason.
const (
	ReasonTradingStopped    = "trading not active for this wallet"
	ReasonUnknownToken      = "token could not be identified"
	ReasonTokenDataMissing  = "token data unavailable"
	ReasonMempoolFlagged    = "token flagged in mempool"
	ReasonTokenNotVerified  = "token contract not verified"
	ReasonMevRiskTooHigh    = "mev risk too high"
	ReasonMarketCapTooLow   = "market cap below minimum"
	ReasonLiquidityTooLow   = "liquidity below minimum"
	ReasonTaxTooHigh        = "token tax above maximum"
	ReasonBelowDust         = "buy amount below dust threshold"
	ReasonDailyLimitReached = "daily buy limit reached"
	ReasonNoPosition        = "no position to sell"
	ReasonExecutionFailed   = "execution failed"
)

// ReplicationResult reports what happened to one copy attempt for one
// user. Business-rule rejections come back here, not as errors.
type ReplicationResult struct {
	Success   bool
	Reason    string // Set when Success is false
	Details   string
	TradeID   string // Set when the trade was staged for confirmation
	BuyAmount float64
	Queued    bool // Routed through the frontrun queue
	Staged    bool // Waiting for user confirmation
}

// queuedBuy is one entry in the frontrun priority queue.
type queuedBuy struct {
	req BuyRequest
	seq int
}

// buyQueue orders queued buys by bid premium, highest first. Ties go to
// the earlier arrival.
type buyQueue []*queuedBuy

func (q buyQueue) Len() int { return len(q) }
func (q buyQueue) Less(i, j int) bool {
	if q[i].req.BidPremium != q[j].req.BidPremium {
		return q[i].req.BidPremium > q[j].req.BidPremium
	}
	return q[i].seq < q[j].seq
}
func (q buyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *buyQueue) Push(x any)   { *q = append(*q, x.(*queuedBuy)) }
func (q *buyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Replicator copies classified trades for each owner of a tracked
// wallet, applying the owner's settings, safety checks and sizing.
type Replicator struct {
	logger    *zap.Logger
	config    ReplicatorConfig
	store     storage.Store
	tokens    TokenDataProvider
	executor  TradeExecutor
	status    *StatusKeeper
	positions *PositionBook
	confirm   *ConfirmationWorkflow
	trailing  *TrailingStopMonitor
	notify    notifier.Notifier

	// Daily native spend per user, keyed by userID|date.
	spendMu sync.Mutex
	spend   map[string]float64

	// Frontrun priority queue, drained one trade at a time.
	queueMu  sync.Mutex
	queue    buyQueue
	queueSeq int
	wake     chan struct{}
}

// NewReplicator creates a replicator. The confirmation workflow's
// post-execution hooks are wired here so confirmed trades share the same
// bookkeeping as direct ones.
func NewReplicator(
	logger *zap.Logger,
	config ReplicatorConfig,
	store storage.Store,
	tokens TokenDataProvider,
	executor TradeExecutor,
	status *StatusKeeper,
	positions *PositionBook,
	confirm *ConfirmationWorkflow,
	trailing *TrailingStopMonitor,
	notify notifier.Notifier,
) *Replicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Replicator{
		logger:    logger.Named("replicator"),
		config:    config,
		store:     store,
		tokens:    tokens,
		executor:  executor,
		status:    status,
		positions: positions,
		confirm:   confirm,
		trailing:  trailing,
		notify:    notify,
		spend:     make(map[string]float64),
		wake:      make(chan struct{}, 1),
	}
	if confirm != nil {
		confirm.SetOnExecuted(r.onConfirmedExecuted)
		confirm.SetOnExpired(r.onStagedExpired)
		confirm.SetOnCancelled(r.onStagedCancelled)
	}
	return r
}

// Replicate copies one classified trade for one user. Errors are only
// returned for infrastructure faults; every business rejection comes back
// as a ReplicationResult.
func (r *Replicator) Replicate(ctx context.Context, userID int64, intent TradeIntent) (ReplicationResult, error) {
	active, err := r.status.IsActive(ctx, userID, intent.SourceWallet)
	if err != nil {
		return ReplicationResult{}, fmt.Errorf("status check: %w", err)
	}
	if !active {
		return r.reject(userID, intent, ReasonTradingStopped, ""), nil
	}

	settings, err := r.store.GetSettings(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		settings = storage.DefaultSettings(userID)
	} else if err != nil {
		return ReplicationResult{}, fmt.Errorf("get settings: %w", err)
	}

	switch intent.Action {
	case ActionBuy:
		return r.replicateBuy(ctx, settings, intent)
	case ActionSell:
		return r.replicateSell(ctx, settings, intent)
	default:
		return r.reject(userID, intent, ReasonUnknownToken, "unclassified action"), nil
	}
}

func (r *Replicator) replicateBuy(ctx context.Context, settings storage.ReplicationSettings, intent TradeIntent) (ReplicationResult, error) {
	userID := settings.UserID

	if intent.TokenAddress == UnknownToken {
		return r.reject(userID, intent, ReasonUnknownToken, ""), nil
	}

	data, err := r.tokens.GetTokenData(ctx, intent.Network, intent.TokenAddress)
	if err != nil || data == nil {
		details := ""
		if err != nil {
			details = err.Error()
		}
		return r.reject(userID, intent, ReasonTokenDataMissing, details), nil
	}

	if !settings.BlindFollow {
		if data.MempoolFlagged {
			return r.reject(userID, intent, ReasonMempoolFlagged, ""), nil
		}
		if !data.Verified {
			return r.reject(userID, intent, ReasonTokenNotVerified, ""), nil
		}
		if data.MevRiskScore > r.config.MaxMevRisk {
			return r.reject(userID, intent, ReasonMevRiskTooHigh,
				fmt.Sprintf("score %.2f > %.2f", data.MevRiskScore, r.config.MaxMevRisk)), nil
		}
		if settings.MinMarketCap > 0 && data.MarketCap < settings.MinMarketCap {
			return r.reject(userID, intent, ReasonMarketCapTooLow,
				fmt.Sprintf("%.0f < %.0f", data.MarketCap, settings.MinMarketCap)), nil
		}
		if settings.MinLiquidity > 0 && data.Liquidity < settings.MinLiquidity {
			return r.reject(userID, intent, ReasonLiquidityTooLow,
				fmt.Sprintf("%.0f < %.0f", data.Liquidity, settings.MinLiquidity)), nil
		}
		if settings.MaxTaxPercent > 0 &&
			(data.BuyTaxPercent > settings.MaxTaxPercent || data.SellTaxPercent > settings.MaxTaxPercent) {
			return r.reject(userID, intent, ReasonTaxTooHigh,
				fmt.Sprintf("buy %.1f%% sell %.1f%% max %.1f%%", data.BuyTaxPercent, data.SellTaxPercent, settings.MaxTaxPercent)), nil
		}
	}

	amount := intent.NativeAmount * settings.BuyPercentage / 100
	if settings.MaxBuyAmount > 0 && amount > settings.MaxBuyAmount {
		amount = settings.MaxBuyAmount
	}
	if amount < r.config.DustAmount {
		return r.reject(userID, intent, ReasonBelowDust,
			fmt.Sprintf("%.6f < %.6f", amount, r.config.DustAmount)), nil
	}

	if settings.DailyLimit > 0 && r.spentToday(userID)+amount > settings.DailyLimit {
		return r.reject(userID, intent, ReasonDailyLimitReached,
			fmt.Sprintf("spent %.4f, limit %.4f", r.spentToday(userID), settings.DailyLimit)), nil
	}

	req := BuyRequest{
		UserID:       userID,
		Network:      intent.Network,
		TokenAddress: intent.TokenAddress,
		NativeAmount: amount,
		SourceWallet: intent.SourceWallet,
		BidPremium:   settings.BidPremium,
	}

	if settings.Frontrun && r.config.FrontrunNetworks[intent.Network] {
		r.enqueue(req)
		return ReplicationResult{Success: true, Queued: true, BuyAmount: amount}, nil
	}

	if settings.ConfirmBeforeTrade && r.confirm != nil {
		staged := r.confirm.StageBuy(req)
		r.sendEvent(userID, notifier.Event{
			Type:         notifier.EventTradeStaged,
			Network:      intent.Network,
			TokenAddress: intent.TokenAddress,
			SourceWallet: intent.SourceWallet,
			Side:         "buy",
			NativeAmount: amount,
			TradeID:      staged.TradeID,
		})
		return ReplicationResult{Success: true, Staged: true, TradeID: staged.TradeID, BuyAmount: amount}, nil
	}

	return r.executeBuy(ctx, req)
}

func (r *Replicator) replicateSell(ctx context.Context, settings storage.ReplicationSettings, intent TradeIntent) (ReplicationResult, error) {
	userID := settings.UserID

	holding, err := r.positions.Holding(ctx, userID, intent.TokenAddress)
	if err != nil {
		return ReplicationResult{}, fmt.Errorf("holding lookup: %w", err)
	}
	if holding < DustPositionAmount {
		return r.reject(userID, intent, ReasonNoPosition, ""), nil
	}

	percent := settings.SellPercentage
	if percent <= 0 || percent > 100 {
		percent = 100
	}
	tokens := holding * percent / 100

	req := SellRequest{
		UserID:       userID,
		Network:      intent.Network,
		TokenAddress: intent.TokenAddress,
		TokensAmount: tokens,
		SourceWallet: intent.SourceWallet,
	}

	if settings.ConfirmBeforeTrade && r.confirm != nil {
		staged := r.confirm.StageSell(req)
		r.sendEvent(userID, notifier.Event{
			Type:         notifier.EventTradeStaged,
			Network:      intent.Network,
			TokenAddress: intent.TokenAddress,
			SourceWallet: intent.SourceWallet,
			Side:         "sell",
			TokensAmount: tokens,
			TradeID:      staged.TradeID,
		})
		return ReplicationResult{Success: true, Staged: true, TradeID: staged.TradeID}, nil
	}

	return r.executeSell(ctx, req, percent)
}

// SellOnStopLoss exits the full position behind a breached trailing stop
// through the same sell path as copy and manual sells, including the
// user's ConfirmBeforeTrade setting.
func (r *Replicator) SellOnStopLoss(ctx context.Context, rec SellRecommendation) (ReplicationResult, error) {
	holding, err := r.positions.Holding(ctx, rec.UserID, rec.TokenAddress)
	if err != nil {
		return ReplicationResult{}, fmt.Errorf("holding lookup: %w", err)
	}
	if holding < DustPositionAmount {
		return ReplicationResult{Reason: ReasonNoPosition}, nil
	}

	settings, err := r.store.GetSettings(ctx, rec.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		settings = storage.DefaultSettings(rec.UserID)
	} else if err != nil {
		return ReplicationResult{}, fmt.Errorf("get settings: %w", err)
	}

	req := SellRequest{
		UserID:       rec.UserID,
		Network:      rec.Network,
		TokenAddress: rec.TokenAddress,
		TokensAmount: holding,
	}

	if settings.ConfirmBeforeTrade && r.confirm != nil {
		staged := r.confirm.StageSell(req)
		r.sendEvent(rec.UserID, notifier.Event{
			Type:         notifier.EventTradeStaged,
			Network:      rec.Network,
			TokenAddress: rec.TokenAddress,
			Side:         "sell",
			TokensAmount: holding,
			TradeID:      staged.TradeID,
			Reason:       rec.Reason,
		})
		return ReplicationResult{Success: true, Staged: true, TradeID: staged.TradeID}, nil
	}

	return r.executeSell(ctx, req, 100)
}

// executeBuy runs the executor and performs post-trade bookkeeping.
func (r *Replicator) executeBuy(ctx context.Context, req BuyRequest) (ReplicationResult, error) {
	out, err := r.executor.ExecuteBuy(ctx, req)
	if err != nil {
		r.sendEvent(req.UserID, notifier.Event{
			Type:         notifier.EventTradeFailed,
			Network:      req.Network,
			TokenAddress: req.TokenAddress,
			SourceWallet: req.SourceWallet,
			Side:         "buy",
			NativeAmount: req.NativeAmount,
			Reason:       err.Error(),
		})
		return ReplicationResult{Reason: ReasonExecutionFailed, Details: err.Error(), BuyAmount: req.NativeAmount}, nil
	}

	r.settleBuy(ctx, req, out)
	return ReplicationResult{Success: true, BuyAmount: req.NativeAmount}, nil
}

// settleBuy records spend, updates the position, arms the trailing stop
// and notifies. Only called after the executor reported success.
func (r *Replicator) settleBuy(ctx context.Context, req BuyRequest, out *BuyOutcome) {
	r.recordSpend(req.UserID, req.NativeAmount)

	if _, err := r.positions.ApplyBuy(ctx, req.UserID, req.Network, req.TokenAddress,
		req.SourceWallet, out.TokensBought, out.PricePaid, out.TxHash); err != nil {
		r.logger.Warn("buy bookkeeping failed",
			zap.Int64("userID", req.UserID),
			zap.String("token", shortID(req.TokenAddress)),
			zap.Error(err),
		)
	}

	settings, err := r.store.GetSettings(ctx, req.UserID)
	if err == nil && settings.TrailingStopPercent > 0 && r.trailing != nil && out.PricePaid > 0 {
		if err := r.trailing.Arm(ctx, req.UserID, req.Network, req.TokenAddress,
			out.PricePaid, settings.TrailingStopPercent); err != nil {
			r.logger.Warn("failed to arm trailing stop", zap.Error(err))
		}
	}

	r.sendEvent(req.UserID, notifier.Event{
		Type:         notifier.EventTradeExecuted,
		Network:      req.Network,
		TokenAddress: req.TokenAddress,
		SourceWallet: req.SourceWallet,
		Side:         "buy",
		NativeAmount: req.NativeAmount,
		TokensAmount: out.TokensBought,
		Price:        out.PricePaid,
		TxHash:       out.TxHash,
	})
}

func (r *Replicator) executeSell(ctx context.Context, req SellRequest, percent float64) (ReplicationResult, error) {
	out, err := r.executor.ExecuteSell(ctx, req)
	if err != nil {
		r.sendEvent(req.UserID, notifier.Event{
			Type:         notifier.EventTradeFailed,
			Network:      req.Network,
			TokenAddress: req.TokenAddress,
			SourceWallet: req.SourceWallet,
			Side:         "sell",
			TokensAmount: req.TokensAmount,
			Reason:       err.Error(),
		})
		return ReplicationResult{Reason: ReasonExecutionFailed, Details: err.Error()}, nil
	}

	r.settleSell(ctx, req, out, percent)
	return ReplicationResult{Success: true}, nil
}

func (r *Replicator) settleSell(ctx context.Context, req SellRequest, out *SellOutcome, percent float64) {
	if _, err := r.positions.ApplySell(ctx, req.UserID, req.TokenAddress,
		percent, out.PriceReceived, out.TxHash); err != nil {
		r.logger.Warn("sell bookkeeping failed",
			zap.Int64("userID", req.UserID),
			zap.String("token", shortID(req.TokenAddress)),
			zap.Error(err),
		)
	}

	// Full exits retire any trailing stop on the token.
	if percent >= 100 && r.trailing != nil {
		if err := r.trailing.Disarm(ctx, req.UserID, req.TokenAddress); err != nil {
			r.logger.Warn("failed to disarm trailing stop", zap.Error(err))
		}
	}

	r.sendEvent(req.UserID, notifier.Event{
		Type:         notifier.EventTradeExecuted,
		Network:      req.Network,
		TokenAddress: req.TokenAddress,
		SourceWallet: req.SourceWallet,
		Side:         "sell",
		NativeAmount: out.NativeReceived,
		TokensAmount: req.TokensAmount,
		Price:        out.PriceReceived,
		TxHash:       out.TxHash,
	})
}

// onConfirmedExecuted is the confirmation workflow's post-execution hook.
func (r *Replicator) onConfirmedExecuted(trade StagedTrade, buyOut *BuyOutcome, sellOut *SellOutcome) {
	ctx := context.Background()
	switch {
	case trade.Buy != nil && buyOut != nil:
		r.settleBuy(ctx, *trade.Buy, buyOut)
	case trade.Sell != nil && sellOut != nil:
		// Staged sells are sized in tokens up front; compute the percent
		// against the current holding for bookkeeping.
		holding, err := r.positions.Holding(ctx, trade.UserID, trade.Sell.TokenAddress)
		if err != nil || holding <= 0 {
			return
		}
		percent := trade.Sell.TokensAmount / holding * 100
		if percent > 100 {
			percent = 100
		}
		r.settleSell(ctx, *trade.Sell, sellOut, percent)
	}
}

// stagedTradeEvent fills the common fields for events about a staged
// trade that never executed.
func stagedTradeEvent(trade StagedTrade, eventType notifier.EventType) notifier.Event {
	event := notifier.Event{
		Type:    eventType,
		TradeID: trade.TradeID,
	}
	switch {
	case trade.Buy != nil:
		event.Network = trade.Buy.Network
		event.TokenAddress = trade.Buy.TokenAddress
		event.Side = "buy"
		event.NativeAmount = trade.Buy.NativeAmount
	case trade.Sell != nil:
		event.Network = trade.Sell.Network
		event.TokenAddress = trade.Sell.TokenAddress
		event.Side = "sell"
		event.TokensAmount = trade.Sell.TokensAmount
	}
	return event
}

// onStagedExpired notifies the user their staged trade lapsed.
func (r *Replicator) onStagedExpired(trade StagedTrade) {
	event := stagedTradeEvent(trade, notifier.EventTradeExpired)
	event.Reason = "confirmation window elapsed"
	r.sendEvent(trade.UserID, event)
}

// onStagedCancelled notifies the user their staged trade was discarded.
func (r *Replicator) onStagedCancelled(trade StagedTrade) {
	r.sendEvent(trade.UserID, stagedTradeEvent(trade, notifier.EventTradeCancelled))
}

func (r *Replicator) reject(userID int64, intent TradeIntent, reason, details string) ReplicationResult {
	r.logger.Info("replication skipped",
		zap.Int64("userID", userID),
		zap.String("wallet", shortID(intent.SourceWallet)),
		zap.String("token", shortID(intent.TokenAddress)),
		zap.String("reason", reason),
	)
	r.sendEvent(userID, notifier.Event{
		Type:         notifier.EventReplicationSkipped,
		Network:      intent.Network,
		TokenAddress: intent.TokenAddress,
		SourceWallet: intent.SourceWallet,
		Side:         string(intent.Action),
		NativeAmount: intent.NativeAmount,
		Reason:       reason,
	})
	return ReplicationResult{Reason: reason, Details: details}
}

func (r *Replicator) sendEvent(userID int64, event notifier.Event) {
	if r.notify == nil {
		return
	}
	event.Timestamp = time.Now()
	r.notify.Notify(userID, event)
}

func spendKey(userID int64, day time.Time) string {
	return fmt.Sprintf("%d|%s", userID, day.Format("2006-01-02"))
}

func (r *Replicator) spentToday(userID int64) float64 {
	r.spendMu.Lock()
	defer r.spendMu.Unlock()
	return r.spend[spendKey(userID, time.Now())]
}

func (r *Replicator) recordSpend(userID int64, amount float64) {
	r.spendMu.Lock()
	defer r.spendMu.Unlock()

	key := spendKey(userID, time.Now())
	r.spend[key] += amount

	// Yesterday's keys are dead weight once the date rolls over.
	if len(r.spend) > 1000 {
		today := time.Now().Format("2006-01-02")
		for k := range r.spend {
			if len(k) < len(today) || k[len(k)-len(today):] != today {
				delete(r.spend, k)
			}
		}
	}
}

func (r *Replicator) enqueue(req BuyRequest) {
	r.queueMu.Lock()
	r.queueSeq++
	heap.Push(&r.queue, &queuedBuy{req: req, seq: r.queueSeq})
	depth := r.queue.Len()
	r.queueMu.Unlock()

	r.logger.Info("buy queued for priority execution",
		zap.Int64("userID", req.UserID),
		zap.String("token", shortID(req.TokenAddress)),
		zap.Float64("bidPremium", req.BidPremium),
		zap.Int("queueDepth", depth),
	)

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Replicator) dequeue() (*queuedBuy, bool) {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	if r.queue.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&r.queue).(*queuedBuy), true
}

// QueueDepth returns the number of buys waiting in the frontrun queue.
func (r *Replicator) QueueDepth() int {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return r.queue.Len()
}

// RunQueueWorker drains the frontrun queue one trade at a time, highest
// bid premium first, until ctx is cancelled.
func (r *Replicator) RunQueueWorker(ctx context.Context) {
	r.logger.Info("frontrun queue worker started")

	for {
		item, ok := r.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				r.logger.Info("frontrun queue worker shutting down")
				return
			case <-r.wake:
				continue
			}
		}

		if _, err := r.executeBuy(ctx, item.req); err != nil {
			r.logger.Warn("queued buy failed",
				zap.Int64("userID", item.req.UserID),
				zap.String("token", shortID(item.req.TokenAddress)),
				zap.Error(err),
			)
		}

		if ctx.Err() != nil {
			return
		}
	}
}
