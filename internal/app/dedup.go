package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DedupConfig holds configuration for the transaction deduplicator.
type DedupConfig struct {
	TTL           time.Duration // How long a tx id stays in the cache
	SweepInterval time.Duration // How often expired entries are removed
}

// DefaultDedupConfig returns sensible defaults.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		TTL:           30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// TxDeduplicator remembers recently processed transaction ids so the
// poller does not dispatch the same trade twice. Entries expire after the
// TTL; a tx re-observed after expiry is processed again, so downstream
// consumers must tolerate at-least-once delivery.
type TxDeduplicator struct {
	logger *zap.Logger
	config DedupConfig

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewTxDeduplicator creates a deduplicator.
func NewTxDeduplicator(logger *zap.Logger, config DedupConfig) *TxDeduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = DefaultDedupConfig().TTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultDedupConfig().SweepInterval
	}
	return &TxDeduplicator{
		logger: logger.Named("dedup"),
		config: config,
		seen:   make(map[string]time.Time),
	}
}

// Seen reports whether the tx id is in the cache and not yet expired.
func (d *TxDeduplicator) Seen(txID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	insertedAt, ok := d.seen[txID]
	if !ok {
		return false
	}
	if time.Since(insertedAt) > d.config.TTL {
		delete(d.seen, txID)
		return false
	}
	return true
}

// Remember records the tx id with the current time.
func (d *TxDeduplicator) Remember(txID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[txID] = time.Now()
}

// Size returns the number of cached entries, for stats.
func (d *TxDeduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Run sweeps expired entries until the context is cancelled.
func (d *TxDeduplicator) Run(ctx context.Context) {
	ticker := time.NewTicker(d.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *TxDeduplicator) sweep() {
	cutoff := time.Now().Add(-d.config.TTL)

	d.mu.Lock()
	before := len(d.seen)
	for txID, insertedAt := range d.seen {
		if insertedAt.Before(cutoff) {
			delete(d.seen, txID)
		}
	}
	removed := before - len(d.seen)
	d.mu.Unlock()

	if removed > 0 {
		d.logger.Debug("swept expired tx ids", zap.Int("removed", removed))
	}
}
