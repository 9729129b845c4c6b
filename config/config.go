package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Networks to poll for tracked wallet activity
	Networks []string `json:"networks"`

	// Solana RPC
	Solana SolanaConfig `json:"solana"`

	// Postgres - excluded from settings (env var only)
	Postgres PostgresConfig `json:"-"`

	// Discord
	Discord DiscordConfig `json:"discord"`

	// Telegram
	Telegram TelegramConfig `json:"telegram"`

	// RPC rate limiting
	RateLimiter RateLimiterConfig `json:"rate_limiter"`

	// Wallet polling
	Poller PollerConfig `json:"poller"`

	// Transaction dedup cache
	Dedup DedupConfig `json:"dedup"`

	// Trade classification
	Classifier ClassifierConfig `json:"classifier"`

	// Trade replication
	Replicator ReplicatorConfig `json:"replicator"`

	// Confirmation workflow
	Confirmation ConfirmationConfig `json:"confirmation"`

	// Trailing stop monitoring
	TrailingStop TrailingStopConfig `json:"trailing_stop"`

	// Token market data
	TokenData TokenDataConfig `json:"token_data"`

	// Streaming price feed
	PriceFeed PriceFeedConfig `json:"price_feed"`

	// Stats server
	StatsServer StatsServerConfig `json:"stats_server"`
}

// SolanaConfig holds Solana RPC configuration.
type SolanaConfig struct {
	RPCURL     string `json:"rpc_url"`
	Commitment string `json:"commitment"`
}

// PostgresConfig holds database configuration.
type PostgresConfig struct {
	DSN string `json:"-"` // Excluded - env var only
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken string `json:"-"` // Excluded - env var only
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken string `json:"-"` // Excluded - env var only
}

// RateLimiterConfig holds RPC rate limiter configuration.
type RateLimiterConfig struct {
	MaxRequests int           `json:"max_requests"`
	TimeWindow  time.Duration `json:"time_window"`
	FixedMargin time.Duration `json:"fixed_margin"`
	MaxWait     time.Duration `json:"max_wait"`
	MaxBackoff  float64       `json:"max_backoff"`
	BackoffStep float64       `json:"backoff_step"`
	DecayStep   float64       `json:"decay_step"`
}

// PollerConfig holds wallet polling configuration.
type PollerConfig struct {
	PollInterval time.Duration `json:"poll_interval"`
	BatchSize    int           `json:"batch_size"`
	BatchPause   time.Duration `json:"batch_pause"`
	TxFetchLimit int           `json:"tx_fetch_limit"`
}

// DedupConfig holds transaction dedup cache configuration.
type DedupConfig struct {
	TTL           time.Duration `json:"ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// ClassifierConfig holds trade classification configuration.
type ClassifierConfig struct {
	MinNativeDelta float64 `json:"min_native_delta"` // Balance changes below this are treated as fees
}

// ReplicatorConfig holds trade replication configuration.
type ReplicatorConfig struct {
	DustAmount       float64  `json:"dust_amount"`
	MaxMevRisk       float64  `json:"max_mev_risk"`
	FrontrunNetworks []string `json:"frontrun_networks"`
}

// ConfirmationConfig holds trade confirmation configuration.
type ConfirmationConfig struct {
	Timeout time.Duration `json:"timeout"`
}

// TrailingStopConfig holds trailing stop monitor configuration.
type TrailingStopConfig struct {
	CheckInterval time.Duration `json:"check_interval"`
}

// TokenDataConfig holds token market data API configuration.
type TokenDataConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// PriceFeedConfig holds streaming price feed configuration.
type PriceFeedConfig struct {
	URL          string        `json:"url"`
	MaxStaleness time.Duration `json:"max_staleness"`
}

// StatsServerConfig holds the stats HTTP server configuration.
type StatsServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Networks: envStringSliceDefault("NETWORKS", []string{"solana"}),

		Solana: SolanaConfig{
			RPCURL:     envString("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			Commitment: envString("SOLANA_COMMITMENT", "confirmed"),
		},

		Postgres: PostgresConfig{
			DSN: envString("POSTGRES_DSN", ""),
		},

		Discord: DiscordConfig{
			BotToken: envString("DISCORD_BOT_TOKEN", ""),
		},

		Telegram: TelegramConfig{
			BotToken: envString("TELEGRAM_BOT_KEY", ""),
		},

		RateLimiter: RateLimiterConfig{
			MaxRequests: envInt("RATE_LIMIT_MAX_REQUESTS", 10),
			TimeWindow:  envDuration("RATE_LIMIT_TIME_WINDOW", 1*time.Second),
			FixedMargin: envDuration("RATE_LIMIT_FIXED_MARGIN", 50*time.Millisecond),
			MaxWait:     envDuration("RATE_LIMIT_MAX_WAIT", 30*time.Second),
			MaxBackoff:  envFloat("RATE_LIMIT_MAX_BACKOFF", 8.0),
			BackoffStep: envFloat("RATE_LIMIT_BACKOFF_STEP", 0.5),
			DecayStep:   envFloat("RATE_LIMIT_DECAY_STEP", 0.25),
		},

		Poller: PollerConfig{
			PollInterval: envDuration("POLL_INTERVAL", 10*time.Second),
			BatchSize:    envInt("POLL_BATCH_SIZE", 5),
			BatchPause:   envDuration("POLL_BATCH_PAUSE", 500*time.Millisecond),
			TxFetchLimit: envInt("POLL_TX_FETCH_LIMIT", 1),
		},

		Dedup: DedupConfig{
			TTL:           envDuration("DEDUP_TTL", 30*time.Minute),
			SweepInterval: envDuration("DEDUP_SWEEP_INTERVAL", 5*time.Minute),
		},

		Classifier: ClassifierConfig{
			MinNativeDelta: envFloat("CLASSIFIER_MIN_NATIVE_DELTA", 0.001),
		},

		Replicator: ReplicatorConfig{
			DustAmount:       envFloat("REPLICATOR_DUST_AMOUNT", 0.001),
			MaxMevRisk:       envFloat("REPLICATOR_MAX_MEV_RISK", 0.7),
			FrontrunNetworks: envStringSliceDefault("FRONTRUN_NETWORKS", []string{"solana"}),
		},

		Confirmation: ConfirmationConfig{
			Timeout: envDuration("CONFIRMATION_TIMEOUT", 60*time.Second),
		},

		TrailingStop: TrailingStopConfig{
			CheckInterval: envDuration("TRAILING_STOP_CHECK_INTERVAL", 15*time.Second),
		},

		TokenData: TokenDataConfig{
			BaseURL: envString("TOKEN_DATA_BASE_URL", "https://api.dexscreener.com"),
			Timeout: envDuration("TOKEN_DATA_TIMEOUT", 10*time.Second),
		},

		PriceFeed: PriceFeedConfig{
			URL:          envString("PRICE_FEED_URL", ""),
			MaxStaleness: envDuration("PRICE_FEED_MAX_STALENESS", 2*time.Minute),
		},

		StatsServer: StatsServerConfig{
			Enabled: envBoolDefault("STATS_SERVER_ENABLED", true),
			Port:    envInt("STATS_SERVER_PORT", 8080),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}

func envStringSliceDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
