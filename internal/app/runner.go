package app

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"copybot/clients/notifier"
	"copybot/storage"

	"go.uber.org/zap"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// RunnerConfig aggregates the per-component configs the runner wires up.
type RunnerConfig struct {
	Networks     []string
	RateLimiter  RateLimiterConfig
	Poller       PollerConfig
	Dedup        DedupConfig
	Classifier   ClassifierConfig
	Replicator   ReplicatorConfig
	Confirmation ConfirmationConfig
	TrailingStop TrailingStopConfig
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Networks:     []string{"solana"},
		RateLimiter:  DefaultRateLimiterConfig(),
		Poller:       DefaultPollerConfig(),
		Dedup:        DefaultDedupConfig(),
		Classifier:   DefaultClassifierConfig(),
		Replicator:   DefaultReplicatorConfig(),
		Confirmation: DefaultConfirmationConfig(),
		TrailingStop: DefaultTrailingStopConfig(),
	}
}

// ManualTradeParams describes a user-initiated trade to stage.
type ManualTradeParams struct {
	TradeType    TradeType
	Network      string
	TokenAddress string
	// Amount is native currency for buys, token units for sells.
	Amount float64
}

// Runner owns the full replication pipeline: per-network pollers feeding
// the replicator, the confirmation workflow, the trailing stop monitor
// and the frontrun queue worker.
type Runner struct {
	logger   *zap.Logger
	config   RunnerConfig
	store    storage.Store
	chains   map[string]ChainDataSource
	tokens   TokenDataProvider
	executor TradeExecutor
	prices   PriceSource
	notify   notifier.Notifier

	limiter    *RateLimiter
	dedup      *TxDeduplicator
	classifier *TradeClassifier
	status     *StatusKeeper
	positions  *PositionBook
	confirm    *ConfirmationWorkflow
	trailing   *TrailingStopMonitor
	replicator *Replicator
	pollers    map[string]*WalletPoller

	startTime time.Time

	statsMu           sync.Mutex
	intentsDispatched int
	tradesReplicated  int
	tradesRejected    int
	tradesStaged      int
	tradesQueued      int
	stopLossTriggers  int
	replicationErrors int
}

// ServiceStats holds a snapshot of pipeline statistics.
type ServiceStats struct {
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	Pipeline struct {
		Networks          []string `json:"networks"`
		IntentsDispatched int      `json:"intents_dispatched"`
		TradesReplicated  int      `json:"trades_replicated"`
		TradesRejected    int      `json:"trades_rejected"`
		TradesStaged      int      `json:"trades_staged"`
		TradesQueued      int      `json:"trades_queued"`
		StopLossTriggers  int      `json:"stop_loss_triggers"`
		ReplicationErrors int      `json:"replication_errors"`
		PendingTrades     int      `json:"pending_trades"`
		QueueDepth        int      `json:"queue_depth"`
		DedupCacheSize    int      `json:"dedup_cache_size"`
	} `json:"pipeline"`

	Backoff map[string]float64 `json:"backoff"`

	Runtime struct {
		Goroutines int    `json:"goroutines"`
		HeapAlloc  uint64 `json:"heap_alloc"`
		NumGC      uint32 `json:"num_gc"`
		GoVersion  string `json:"go_version"`
	} `json:"runtime"`
}

// NewRunner builds the pipeline. Chains maps network name to its data
// source; only networks present in both the config and the map are
// polled.
func NewRunner(
	logger *zap.Logger,
	config RunnerConfig,
	store storage.Store,
	chains map[string]ChainDataSource,
	tokens TokenDataProvider,
	executor TradeExecutor,
	prices PriceSource,
	notify notifier.Notifier,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		logger:   logger.Named("runner"),
		config:   config,
		store:    store,
		chains:   chains,
		tokens:   tokens,
		executor: executor,
		prices:   prices,
		notify:   notify,
		pollers:  make(map[string]*WalletPoller),
	}

	r.limiter = NewRateLimiter(logger, config.RateLimiter)
	r.dedup = NewTxDeduplicator(logger, config.Dedup)
	r.classifier = NewTradeClassifier(logger, config.Classifier)
	r.status = NewStatusKeeper(logger, store)
	r.positions = NewPositionBook(logger, store)
	r.confirm = NewConfirmationWorkflow(logger, config.Confirmation, executor)
	r.trailing = NewTrailingStopMonitor(logger, config.TrailingStop, store, prices)
	r.replicator = NewReplicator(logger, config.Replicator, store, tokens, executor,
		r.status, r.positions, r.confirm, r.trailing, notify)

	r.trailing.SetOnRecommend(r.onStopLoss)

	for _, network := range config.Networks {
		chain, ok := chains[network]
		if !ok {
			r.logger.Warn("no chain data source for configured network",
				zap.String("network", network))
			continue
		}
		r.pollers[network] = NewWalletPoller(logger, config.Poller, network,
			chain, r.limiter, r.dedup, r.classifier, store, r.OnTrackedActivity)
	}

	return r
}

// Run starts all background loops and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()

	if len(r.pollers) == 0 {
		return fmt.Errorf("no pollable networks configured")
	}

	r.logger.Info("starting replication pipeline",
		zap.Int("networks", len(r.pollers)),
		zap.Duration("pollInterval", r.config.Poller.PollInterval),
		zap.Duration("confirmationTimeout", r.config.Confirmation.Timeout),
	)

	go r.dedup.Run(ctx)
	go r.trailing.Run(ctx)
	go r.replicator.RunQueueWorker(ctx)
	for _, poller := range r.pollers {
		go poller.Run(ctx)
	}

	<-ctx.Done()
	r.logger.Info("runner shutting down")

	for _, poller := range r.pollers {
		poller.Stop()
	}
	r.confirm.Shutdown()

	return nil
}

// OnTrackedActivity fans one classified trade out to every user copying
// the source wallet. Each user's replication runs independently so one
// slow or rejected copy never blocks the others.
func (r *Runner) OnTrackedActivity(intent TradeIntent, owners []int64) {
	r.statsMu.Lock()
	r.intentsDispatched++
	r.statsMu.Unlock()

	for _, userID := range owners {
		go func(userID int64) {
			result, err := r.replicator.Replicate(context.Background(), userID, intent)
			if err != nil {
				r.logger.Warn("replication failed",
					zap.Int64("userID", userID),
					zap.String("tx", shortID(intent.TxID)),
					zap.Error(err),
				)
				r.statsMu.Lock()
				r.replicationErrors++
				r.statsMu.Unlock()
				return
			}
			r.recordResult(result)
		}(userID)
	}
}

func (r *Runner) recordResult(result ReplicationResult) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	switch {
	case !result.Success:
		r.tradesRejected++
	case result.Staged:
		r.tradesStaged++
	case result.Queued:
		r.tradesQueued++
	default:
		r.tradesReplicated++
	}
}

// onStopLoss routes a breached trailing stop through the replicator's
// sell path so the exit shares sizing, staging and bookkeeping with
// every other sell.
func (r *Runner) onStopLoss(rec SellRecommendation) {
	r.statsMu.Lock()
	r.stopLossTriggers++
	r.statsMu.Unlock()

	if r.notify != nil {
		r.notify.Notify(rec.UserID, notifier.Event{
			Type:          notifier.EventStopLossTriggered,
			Network:       rec.Network,
			TokenAddress:  rec.TokenAddress,
			Side:          "sell",
			Price:         rec.SellPrice,
			ProfitPercent: rec.ProfitPercent,
			Reason:        rec.Reason,
			Timestamp:     time.Now(),
		})
	}

	result, err := r.replicator.SellOnStopLoss(context.Background(), rec)
	if err != nil {
		r.logger.Warn("stop loss sell failed",
			zap.Int64("userID", rec.UserID),
			zap.String("token", shortID(rec.TokenAddress)),
			zap.Error(err),
		)
		r.statsMu.Lock()
		r.replicationErrors++
		r.statsMu.Unlock()
		return
	}
	r.recordResult(result)
}

// StageManualTrade validates and stages a user-initiated trade, returning
// the trade id the user confirms or cancels with.
func (r *Runner) StageManualTrade(ctx context.Context, userID int64, params ManualTradeParams) (string, error) {
	if params.Amount <= 0 {
		return "", fmt.Errorf("amount must be positive, got %f", params.Amount)
	}
	if params.TokenAddress == "" {
		return "", fmt.Errorf("token address is required")
	}
	if _, ok := r.chains[params.Network]; !ok {
		return "", fmt.Errorf("unsupported network %q", params.Network)
	}

	switch params.TradeType {
	case TradeTypeBuy:
		staged := r.confirm.StageBuy(BuyRequest{
			UserID:       userID,
			Network:      params.Network,
			TokenAddress: params.TokenAddress,
			NativeAmount: params.Amount,
		})
		return staged.TradeID, nil
	case TradeTypeSell:
		staged := r.confirm.StageSell(SellRequest{
			UserID:       userID,
			Network:      params.Network,
			TokenAddress: params.TokenAddress,
			TokensAmount: params.Amount,
		})
		return staged.TradeID, nil
	default:
		return "", fmt.Errorf("unknown trade type %q", params.TradeType)
	}
}

// ConfirmTrade executes a staged trade if its window is still open.
func (r *Runner) ConfirmTrade(ctx context.Context, userID int64, tradeID string) ConfirmationResult {
	return r.confirm.Confirm(ctx, userID, tradeID)
}

// CancelTrade discards a staged trade if its window is still open.
func (r *Runner) CancelTrade(userID int64, tradeID string) CancelResult {
	return r.confirm.Cancel(userID, tradeID)
}

// SetWalletStatus updates a user's trading status against a source wallet.
func (r *Runner) SetWalletStatus(ctx context.Context, status storage.WalletStatus) error {
	return r.status.Set(ctx, status)
}

// TrackWallet registers a source wallet for a user on a network.
func (r *Runner) TrackWallet(ctx context.Context, userID int64, network, address string) error {
	if _, ok := r.chains[network]; !ok {
		return fmt.Errorf("unsupported network %q", network)
	}
	return r.store.Track(ctx, storage.TrackedWallet{
		Address: address,
		Network: network,
		Owners:  []int64{userID},
	})
}

// UntrackWallet removes a user from a source wallet's followers.
func (r *Runner) UntrackWallet(ctx context.Context, userID int64, network, address string) error {
	return r.store.Untrack(ctx, network, address, userID)
}

// GetStats returns a snapshot of pipeline statistics.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	stats.StartTime = r.startTime.UTC().Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	r.statsMu.Lock()
	stats.Pipeline.IntentsDispatched = r.intentsDispatched
	stats.Pipeline.TradesReplicated = r.tradesReplicated
	stats.Pipeline.TradesRejected = r.tradesRejected
	stats.Pipeline.TradesStaged = r.tradesStaged
	stats.Pipeline.TradesQueued = r.tradesQueued
	stats.Pipeline.StopLossTriggers = r.stopLossTriggers
	stats.Pipeline.ReplicationErrors = r.replicationErrors
	r.statsMu.Unlock()

	for network := range r.pollers {
		stats.Pipeline.Networks = append(stats.Pipeline.Networks, network)
	}
	stats.Pipeline.PendingTrades = r.confirm.PendingCount()
	stats.Pipeline.QueueDepth = r.replicator.QueueDepth()
	stats.Pipeline.DedupCacheSize = r.dedup.Size()

	stats.Backoff = make(map[string]float64, len(r.pollers))
	for network := range r.pollers {
		stats.Backoff[network] = r.limiter.Backoff(network)
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats.Runtime.Goroutines = runtime.NumGoroutine()
	stats.Runtime.HeapAlloc = memStats.HeapAlloc
	stats.Runtime.NumGC = memStats.NumGC
	stats.Runtime.GoVersion = runtime.Version()

	return stats
}
