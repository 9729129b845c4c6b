package app

import (
	"context"
	"time"

	"copybot/storage"

	"go.uber.org/zap"
)

// TrailingStopConfig holds configuration for the trailing stop monitor.
type TrailingStopConfig struct {
	CheckInterval time.Duration // How often all entries are re-evaluated
}

// DefaultTrailingStopConfig returns sensible defaults.
func DefaultTrailingStopConfig() TrailingStopConfig {
	return TrailingStopConfig{
		CheckInterval: 15 * time.Second,
	}
}

// SellRecommendation is emitted when a trailing stop is breached. The
// monitor only recommends; it never executes the sell itself.
type SellRecommendation struct {
	UserID        int64
	TokenAddress  string
	Network       string
	Reason        string
	SellPrice     float64
	ProfitPercent float64 // Relative to the original buy price
}

// ReasonTrailingStopLoss is the recommendation reason for breached stops.
const ReasonTrailingStopLoss = "trailing_stop_loss"

// TrailingStopMonitor tracks the highest observed price per entry and
// recommends a sell once the price falls to the ratcheted stop level.
// The stop only ever moves up.
type TrailingStopMonitor struct {
	logger *zap.Logger
	config TrailingStopConfig
	store  storage.Store
	prices PriceSource

	onRecommend func(rec SellRecommendation)
}

// NewTrailingStopMonitor creates a trailing stop monitor.
func NewTrailingStopMonitor(logger *zap.Logger, config TrailingStopConfig, store storage.Store, prices PriceSource) *TrailingStopMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultTrailingStopConfig().CheckInterval
	}
	return &TrailingStopMonitor{
		logger: logger.Named("trailingstop"),
		config: config,
		store:  store,
		prices: prices,
	}
}

// SetOnRecommend registers the recommendation callback.
func (m *TrailingStopMonitor) SetOnRecommend(fn func(rec SellRecommendation)) {
	m.onRecommend = fn
}

// Arm creates a trailing stop for a fresh buy.
func (m *TrailingStopMonitor) Arm(ctx context.Context, userID int64, network, tokenAddress string, buyPrice, stopLossPercent float64) error {
	entry := storage.TrailingStopEntry{
		UserID:          userID,
		TokenAddress:    tokenAddress,
		Network:         network,
		BuyPrice:        buyPrice,
		HighestPrice:    buyPrice,
		StopLossPercent: stopLossPercent,
		StopLossPrice:   buyPrice * (1 - stopLossPercent/100),
	}
	if err := m.store.SaveTrailingStop(ctx, entry); err != nil {
		return err
	}
	m.logger.Info("trailing stop armed",
		zap.Int64("userID", userID),
		zap.String("token", shortID(tokenAddress)),
		zap.Float64("buyPrice", buyPrice),
		zap.Float64("stopLossPrice", entry.StopLossPrice),
	)
	return nil
}

// Disarm removes a trailing stop, e.g. after the position was sold.
func (m *TrailingStopMonitor) Disarm(ctx context.Context, userID int64, tokenAddress string) error {
	return m.store.DeleteTrailingStop(ctx, userID, tokenAddress)
}

// Run re-evaluates all entries on an interval until ctx is cancelled.
func (m *TrailingStopMonitor) Run(ctx context.Context) {
	m.logger.Info("trailing stop monitor started",
		zap.Duration("checkInterval", m.config.CheckInterval),
	)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("trailing stop monitor shutting down")
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *TrailingStopMonitor) checkAll(ctx context.Context) {
	entries, err := m.store.ListTrailingStops(ctx)
	if err != nil {
		m.logger.Warn("failed to list trailing stops", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		m.checkEntry(ctx, entry)
	}
}

func (m *TrailingStopMonitor) checkEntry(ctx context.Context, entry storage.TrailingStopEntry) {
	price, err := m.prices.TokenPrice(ctx, entry.Network, entry.TokenAddress)
	if err != nil {
		m.logger.Debug("price lookup failed",
			zap.String("token", shortID(entry.TokenAddress)),
			zap.Error(err),
		)
		return
	}
	if price <= 0 {
		return
	}

	if price > entry.HighestPrice {
		entry.HighestPrice = price
		entry.StopLossPrice = price * (1 - entry.StopLossPercent/100)
		if err := m.store.SaveTrailingStop(ctx, entry); err != nil {
			m.logger.Warn("failed to ratchet trailing stop", zap.Error(err))
			return
		}
		m.logger.Debug("trailing stop raised",
			zap.Int64("userID", entry.UserID),
			zap.String("token", shortID(entry.TokenAddress)),
			zap.Float64("highestPrice", entry.HighestPrice),
			zap.Float64("stopLossPrice", entry.StopLossPrice),
		)
		return
	}

	if price <= entry.StopLossPrice {
		profitPercent := 0.0
		if entry.BuyPrice > 0 {
			profitPercent = (price - entry.BuyPrice) / entry.BuyPrice * 100
		}
		rec := SellRecommendation{
			UserID:        entry.UserID,
			TokenAddress:  entry.TokenAddress,
			Network:       entry.Network,
			Reason:        ReasonTrailingStopLoss,
			SellPrice:     price,
			ProfitPercent: profitPercent,
		}

		// Retire the entry first so a slow callback cannot double-fire.
		if err := m.store.DeleteTrailingStop(ctx, entry.UserID, entry.TokenAddress); err != nil {
			m.logger.Warn("failed to retire trailing stop", zap.Error(err))
			return
		}

		m.logger.Info("trailing stop triggered",
			zap.Int64("userID", entry.UserID),
			zap.String("token", shortID(entry.TokenAddress)),
			zap.Float64("price", price),
			zap.Float64("stopLossPrice", entry.StopLossPrice),
			zap.Float64("profitPercent", profitPercent),
		)
		if m.onRecommend != nil {
			m.onRecommend(rec)
		}
	}
}
