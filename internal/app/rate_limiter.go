package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiterConfig holds configuration for the per-network rate limiter.
type RateLimiterConfig struct {
	MaxRequests int           // Requests allowed inside the window
	TimeWindow  time.Duration // Sliding window length
	FixedMargin time.Duration // Safety margin added to computed waits
	MaxWait     time.Duration // Hard cap on a single wait
	MaxBackoff  float64       // Upper bound for the adaptive multiplier
	BackoffStep float64       // Multiplier increase applied per saturation
	DecayStep   float64       // Multiplier decrease applied when under capacity
}

// DefaultRateLimiterConfig returns sensible defaults for public RPC nodes.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxRequests: 10,
		TimeWindow:  time.Second,
		FixedMargin: 50 * time.Millisecond,
		MaxWait:     30 * time.Second,
		MaxBackoff:  8.0,
		BackoffStep: 0.5,
		DecayStep:   0.25,
	}
}

// limiterState is the sliding window for one network.
type limiterState struct {
	mu         sync.Mutex
	timestamps []time.Time
	backoff    float64
}

// RateLimiter throttles outbound RPC requests per network using a sliding
// window with an adaptive backoff multiplier. Checking and recording a
// slot is atomic under the window lock, so a burst of goroutines cannot
// overrun it.
type RateLimiter struct {
	logger *zap.Logger
	config RateLimiterConfig

	mu       sync.Mutex
	networks map[string]*limiterState
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(logger *zap.Logger, config RateLimiterConfig) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	if config.MaxBackoff < 1 {
		config.MaxBackoff = 1
	}
	return &RateLimiter{
		logger:   logger.Named("ratelimiter"),
		config:   config,
		networks: make(map[string]*limiterState),
	}
}

func (rl *RateLimiter) state(network string) *limiterState {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.networks[network]
	if !ok {
		st = &limiterState{backoff: 1.0}
		rl.networks[network] = st
	}
	return st
}

// Throttle blocks until a request slot is available for the network, then
// records the request. It returns early with the context error if ctx is
// cancelled while waiting. The lock is released before sleeping so
// Penalize and Backoff never stall behind a throttled caller.
func (rl *RateLimiter) Throttle(ctx context.Context, network string) error {
	st := rl.state(network)

	for {
		st.mu.Lock()
		now := time.Now()
		st.timestamps = pruneBefore(st.timestamps, now.Add(-rl.config.TimeWindow))

		if len(st.timestamps) < rl.config.MaxRequests {
			// Under capacity. Relax the multiplier toward 1.
			if st.backoff > 1.0 {
				st.backoff -= rl.config.DecayStep
				if st.backoff < 1.0 {
					st.backoff = 1.0
				}
			}
			st.timestamps = append(st.timestamps, now)
			st.mu.Unlock()
			return nil
		}

		// Window is full. Wait for the oldest entry to age out, scaled by
		// the current backoff multiplier.
		oldest := st.timestamps[0]
		wait := rl.config.TimeWindow - now.Sub(oldest) + rl.config.FixedMargin
		if wait < 0 {
			wait = rl.config.FixedMargin
		}
		wait = time.Duration(float64(wait) * st.backoff)
		if wait > rl.config.MaxWait {
			wait = rl.config.MaxWait
		}

		if st.backoff < rl.config.MaxBackoff {
			st.backoff += rl.config.BackoffStep
			if st.backoff > rl.config.MaxBackoff {
				st.backoff = rl.config.MaxBackoff
			}
		}
		backoff := st.backoff
		st.mu.Unlock()

		rl.logger.Debug("throttling",
			zap.String("network", network),
			zap.Duration("wait", wait),
			zap.Float64("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Penalize bumps the backoff multiplier for a network. The poller calls
// this when the upstream endpoint itself reports rate limiting, which the
// local window cannot observe.
func (rl *RateLimiter) Penalize(network string) {
	st := rl.state(network)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.backoff += rl.config.BackoffStep * 2
	if st.backoff > rl.config.MaxBackoff {
		st.backoff = rl.config.MaxBackoff
	}
	rl.logger.Warn("upstream rate limit reported",
		zap.String("network", network),
		zap.Float64("backoff", st.backoff),
	)
}

// Backoff returns the current multiplier for a network, for stats.
func (rl *RateLimiter) Backoff(network string) float64 {
	st := rl.state(network)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.backoff
}

func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[idx:]...)
}
