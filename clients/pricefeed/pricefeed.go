package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"copybot/internal/app"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config holds price feed settings.
type Config struct {
	URL           string
	PingInterval  time.Duration
	ReconnectWait time.Duration
	// Cached ticks older than this are ignored.
	MaxStaleness time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:  10 * time.Second,
		ReconnectWait: 5 * time.Second,
		MaxStaleness:  2 * time.Minute,
	}
}

// tick is one inbound price update.
type tick struct {
	Network string  `json:"network"`
	Token   string  `json:"token"`
	Price   float64 `json:"price"`
}

type cachedPrice struct {
	price float64
	at    time.Time
}

// PriceFeed maintains a streaming price cache over a websocket feed.
// The cache is best effort; callers fall back to polling when a token
// has no fresh tick.
type PriceFeed struct {
	logger *zap.Logger
	config Config
	dialer *websocket.Dialer

	connMu  sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	cacheMu sync.RWMutex
	cache   map[string]cachedPrice

	tickCount uint64
}

// NewPriceFeed creates a price feed. An empty URL disables streaming;
// LatestPrice then always misses.
func NewPriceFeed(logger *zap.Logger, config Config) *PriceFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = def.ReconnectWait
	}
	if config.MaxStaleness <= 0 {
		config.MaxStaleness = def.MaxStaleness
	}
	return &PriceFeed{
		logger: logger.Named("pricefeed"),
		config: config,
		dialer: websocket.DefaultDialer,
		cache:  make(map[string]cachedPrice),
	}
}

// Run keeps the feed connected until the context is cancelled.
func (pf *PriceFeed) Run(ctx context.Context) {
	if pf.config.URL == "" {
		pf.logger.Info("price feed URL not set, streaming disabled")
		return
	}

	for {
		if err := pf.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			pf.logger.Warn("price feed disconnected", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			pf.logger.Info("price feed shutting down")
			return
		case <-time.After(pf.config.ReconnectWait):
		}
	}
}

func (pf *PriceFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := pf.dialer.DialContext(ctx, pf.config.URL, nil)
	if err != nil {
		return fmt.Errorf("dial price feed: %w", err)
	}
	defer conn.Close()

	pf.connMu.Lock()
	pf.conn = conn
	pf.connMu.Unlock()
	defer func() {
		pf.connMu.Lock()
		pf.conn = nil
		pf.connMu.Unlock()
	}()

	pf.logger.Info("price feed connected", zap.String("url", pf.config.URL))

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go pf.pingLoop(pingCtx)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read price feed: %w", err)
		}

		var t tick
		if err := json.Unmarshal(msg, &t); err != nil {
			pf.logger.Debug("unparseable price tick", zap.Error(err))
			continue
		}
		if t.Token == "" || t.Price <= 0 {
			continue
		}

		pf.cacheMu.Lock()
		pf.cache[priceKey(t.Network, t.Token)] = cachedPrice{price: t.Price, at: time.Now()}
		pf.cacheMu.Unlock()

		atomic.AddUint64(&pf.tickCount, 1)
	}
}

func (pf *PriceFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pf.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pf.connMu.Lock()
			conn := pf.conn
			pf.connMu.Unlock()
			if conn == nil {
				return
			}
			pf.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			pf.writeMu.Unlock()
			if err != nil {
				pf.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// LatestPrice returns the most recent streamed price for the token, if a
// fresh tick exists.
func (pf *PriceFeed) LatestPrice(network, token string) (float64, bool) {
	pf.cacheMu.RLock()
	cached, ok := pf.cache[priceKey(network, token)]
	pf.cacheMu.RUnlock()
	if !ok || time.Since(cached.at) > pf.config.MaxStaleness {
		return 0, false
	}
	return cached.price, true
}

// TickCount reports the total number of accepted ticks.
func (pf *PriceFeed) TickCount() uint64 {
	return atomic.LoadUint64(&pf.tickCount)
}

func priceKey(network, token string) string {
	return network + "|" + token
}

// CachedPriceSource serves token prices from the streaming cache and
// falls back to the token data provider on a miss.
// Implements app.PriceSource.
type CachedPriceSource struct {
	feed   *PriceFeed
	tokens app.TokenDataProvider
}

var _ app.PriceSource = (*CachedPriceSource)(nil)

// NewCachedPriceSource combines a streaming feed with a polling fallback.
// Either argument may be nil.
func NewCachedPriceSource(feed *PriceFeed, tokens app.TokenDataProvider) *CachedPriceSource {
	return &CachedPriceSource{feed: feed, tokens: tokens}
}

// TokenPrice returns the current native price for a token.
func (s *CachedPriceSource) TokenPrice(ctx context.Context, network, tokenAddress string) (float64, error) {
	if s.feed != nil {
		if price, ok := s.feed.LatestPrice(network, tokenAddress); ok {
			return price, nil
		}
	}
	if s.tokens == nil {
		return 0, fmt.Errorf("no price available for %s on %s", tokenAddress, network)
	}

	data, err := s.tokens.GetTokenData(ctx, network, tokenAddress)
	if err != nil {
		return 0, fmt.Errorf("token data fallback: %w", err)
	}
	if data.PriceNative <= 0 {
		return 0, fmt.Errorf("no price available for %s on %s", tokenAddress, network)
	}
	return data.PriceNative, nil
}
