package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"copybot/storage"

	"go.uber.org/zap"
)

// PollerConfig holds configuration for a wallet poller.
type PollerConfig struct {
	PollInterval time.Duration // How often the full wallet set is scanned
	BatchSize    int           // Wallets processed between batch pauses
	BatchPause   time.Duration // Pause between batches
	TxFetchLimit int           // Signatures requested per wallet per scan
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    5,
		BatchPause:   500 * time.Millisecond,
		TxFetchLimit: 1,
	}
}

// IntentHandler receives each freshly classified trade together with the
// users copying the source wallet.
type IntentHandler func(intent TradeIntent, owners []int64)

// WalletPoller scans one network's tracked wallets for new activity.
// All RPC traffic flows through the shared rate limiter; per-wallet
// failures are isolated so one bad wallet cannot stall the scan.
type WalletPoller struct {
	logger     *zap.Logger
	config     PollerConfig
	network    string
	chain      ChainDataSource
	limiter    *RateLimiter
	dedup      *TxDeduplicator
	classifier *TradeClassifier
	store      storage.Store
	handler    IntentHandler

	// Rate-limit errors repeat in bursts; log them at most once a minute.
	rateLimitLogMu   sync.Mutex
	lastRateLimitLog time.Time

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWalletPoller creates a poller for one network.
func NewWalletPoller(
	logger *zap.Logger,
	config PollerConfig,
	network string,
	chain ChainDataSource,
	limiter *RateLimiter,
	dedup *TxDeduplicator,
	classifier *TradeClassifier,
	store storage.Store,
	handler IntentHandler,
) *WalletPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollerConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultPollerConfig().BatchSize
	}
	if config.TxFetchLimit <= 0 {
		config.TxFetchLimit = DefaultPollerConfig().TxFetchLimit
	}
	return &WalletPoller{
		logger:     logger.Named("poller").With(zap.String("network", network)),
		config:     config,
		network:    network,
		chain:      chain,
		limiter:    limiter,
		dedup:      dedup,
		classifier: classifier,
		store:      store,
		handler:    handler,
		stopped:    make(chan struct{}),
	}
}

// Run polls until the context is cancelled or Stop is called.
func (p *WalletPoller) Run(ctx context.Context) {
	p.logger.Info("wallet poller started",
		zap.Duration("pollInterval", p.config.PollInterval),
		zap.Int("batchSize", p.config.BatchSize),
	)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("wallet poller shutting down")
			return
		case <-p.stopped:
			p.logger.Info("wallet poller stopped")
			return
		case <-ticker.C:
			p.scan(ctx)
		}
	}
}

// Stop halts the poller. Safe to call more than once.
func (p *WalletPoller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
}

func (p *WalletPoller) scan(ctx context.Context) {
	wallets, err := p.store.TrackedWallets(ctx, p.network)
	if err != nil {
		p.logger.Warn("failed to list tracked wallets", zap.Error(err))
		return
	}
	if len(wallets) == 0 {
		return
	}

	for i, wallet := range wallets {
		if ctx.Err() != nil {
			return
		}
		p.pollWallet(ctx, wallet)

		// Sequential batches keep bursts off the RPC endpoint.
		if p.config.BatchPause > 0 && (i+1)%p.config.BatchSize == 0 && i+1 < len(wallets) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.BatchPause):
			}
		}
	}
}

func (p *WalletPoller) pollWallet(ctx context.Context, wallet storage.TrackedWallet) {
	if err := p.limiter.Throttle(ctx, p.network); err != nil {
		return
	}

	refs, err := p.chain.ListRecentTransactions(ctx, wallet.Address, p.config.TxFetchLimit)
	if err != nil {
		p.handleChainError(wallet.Address, "list transactions", err)
		return
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			return
		}
		if p.dedup.Seen(ref.TxID) {
			continue
		}
		p.dedup.Remember(ref.TxID)

		if err := p.limiter.Throttle(ctx, p.network); err != nil {
			return
		}
		tx, err := p.chain.GetTransaction(ctx, ref.TxID)
		if err != nil {
			p.handleChainError(wallet.Address, "get transaction", err)
			continue
		}

		intent := p.classifier.Classify(tx, wallet.Address)
		if intent.Action == ActionUnknown {
			continue
		}

		p.logger.Info("trade observed",
			zap.String("wallet", shortID(wallet.Address)),
			zap.String("tx", shortID(intent.TxID)),
			zap.String("action", string(intent.Action)),
			zap.String("token", shortID(intent.TokenAddress)),
			zap.Float64("nativeAmount", intent.NativeAmount),
			zap.Int("owners", len(wallet.Owners)),
		)
		if p.handler != nil {
			p.handler(intent, wallet.Owners)
		}
	}
}

// handleChainError separates upstream rate limiting, which feeds back
// into the limiter, from ordinary per-wallet faults.
func (p *WalletPoller) handleChainError(wallet, op string, err error) {
	if errors.Is(err, ErrRateLimited) {
		p.limiter.Penalize(p.network)

		p.rateLimitLogMu.Lock()
		shouldLog := time.Since(p.lastRateLimitLog) > time.Minute
		if shouldLog {
			p.lastRateLimitLog = time.Now()
		}
		p.rateLimitLogMu.Unlock()

		if shouldLog {
			p.logger.Warn("upstream rate limited",
				zap.String("wallet", shortID(wallet)),
				zap.String("op", op),
			)
		}
		return
	}

	p.logger.Warn("chain request failed",
		zap.String("wallet", shortID(wallet)),
		zap.String("op", op),
		zap.Error(err),
	)
}
