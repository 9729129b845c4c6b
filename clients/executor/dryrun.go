package executor

import (
	"context"
	"fmt"
	"sync"

	"copybot/internal/app"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRunExecutor simulates trade execution at current market prices
// without touching a chain. Useful for paper trading and tests.
// Implements app.TradeExecutor.
type DryRunExecutor struct {
	logger *zap.Logger
	prices app.PriceSource

	mu    sync.Mutex
	buys  int
	sells int
}

var _ app.TradeExecutor = (*DryRunExecutor)(nil)

// NewDryRunExecutor creates a paper trading executor. Prices come from
// the given source; a nil source fails every trade.
func NewDryRunExecutor(logger *zap.Logger, prices app.PriceSource) *DryRunExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunExecutor{
		logger: logger.Named("dryrun"),
		prices: prices,
	}
}

// ExecuteBuy fills a buy at the current market price.
func (e *DryRunExecutor) ExecuteBuy(ctx context.Context, req app.BuyRequest) (*app.BuyOutcome, error) {
	if e.prices == nil {
		return nil, fmt.Errorf("dry run: no price source configured")
	}

	price, err := e.prices.TokenPrice(ctx, req.Network, req.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("dry run buy: %w", err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("dry run buy: non-positive price for %s", req.TokenAddress)
	}

	// Bid premium raises the effective fill price, same as paying up to
	// land ahead of the copied transaction.
	fillPrice := price * (1 + req.BidPremium/100)
	tokens := req.NativeAmount / fillPrice

	e.mu.Lock()
	e.buys++
	e.mu.Unlock()

	txHash := "dryrun-" + uuid.NewString()
	e.logger.Info("simulated buy",
		zap.Int64("userID", req.UserID),
		zap.String("token", req.TokenAddress),
		zap.Float64("nativeAmount", req.NativeAmount),
		zap.Float64("fillPrice", fillPrice),
		zap.Float64("tokens", tokens),
	)

	return &app.BuyOutcome{
		TxHash:       txHash,
		TokensBought: tokens,
		PricePaid:    fillPrice,
	}, nil
}

// ExecuteSell fills a sell at the current market price.
func (e *DryRunExecutor) ExecuteSell(ctx context.Context, req app.SellRequest) (*app.SellOutcome, error) {
	if e.prices == nil {
		return nil, fmt.Errorf("dry run: no price source configured")
	}

	price, err := e.prices.TokenPrice(ctx, req.Network, req.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("dry run sell: %w", err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("dry run sell: non-positive price for %s", req.TokenAddress)
	}

	e.mu.Lock()
	e.sells++
	e.mu.Unlock()

	txHash := "dryrun-" + uuid.NewString()
	e.logger.Info("simulated sell",
		zap.Int64("userID", req.UserID),
		zap.String("token", req.TokenAddress),
		zap.Float64("tokens", req.TokensAmount),
		zap.Float64("price", price),
	)

	return &app.SellOutcome{
		TxHash:         txHash,
		NativeReceived: req.TokensAmount * price,
		PriceReceived:  price,
	}, nil
}

// Counts returns how many simulated buys and sells have been filled.
func (e *DryRunExecutor) Counts() (buys, sells int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buys, e.sells
}
