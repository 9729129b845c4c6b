package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// TradingState is the replication state for a (user, source wallet) pair.
type TradingState string

const (
	StateActive  TradingState = "active"
	StatePaused  TradingState = "paused"
	StateStopped TradingState = "stopped"
)

// TrackedWallet is a source wallet watched on a network, together with the
// users who copy it.
type TrackedWallet struct {
	Address string
	Network string
	Owners  []int64
}

// WalletStatus gates replication for one user against one source wallet.
// ResumeAt is only meaningful while State is paused; nil means paused
// until an explicit resume.
type WalletStatus struct {
	UserID       int64
	SourceWallet string
	State        TradingState
	ResumeAt     *time.Time
}

// ReplicationSettings holds a user's per-account copy-trading parameters.
type ReplicationSettings struct {
	UserID              int64
	BuyPercentage       float64 // Percent of the source trade to mirror on buys
	MaxBuyAmount        float64 // Cap per buy, native units; 0 disables the cap
	SellPercentage      float64 // Percent of held position to sell on source sells
	BlindFollow         bool    // Skip token safety checks entirely
	ConfirmBeforeTrade  bool    // Stage trades for manual confirmation
	Frontrun            bool    // Route through the priority queue where supported
	BidPremium          float64 // Priority queue ordering key
	MinMarketCap        float64
	MinLiquidity        float64
	MaxTaxPercent       float64
	DailyLimit          float64 // Native units spent per day; 0 disables
	TrailingStopPercent float64 // 0 disables trailing stops on new buys
}

// DefaultSettings returns the settings applied to users who never
// configured anything.
func DefaultSettings(userID int64) ReplicationSettings {
	return ReplicationSettings{
		UserID:             userID,
		BuyPercentage:      100,
		SellPercentage:     100,
		ConfirmBeforeTrade: true,
	}
}

// PositionTrade is one fill that contributed to a position.
type PositionTrade struct {
	TxHash    string
	Side      string
	Amount    float64
	Price     float64
	Timestamp time.Time
}

// Position is a user's holding in one token, averaged across buys.
type Position struct {
	UserID       int64
	TokenAddress string
	Network      string
	TotalAmount  float64
	AvgPrice     float64
	SourceWallet string
	Trades       []PositionTrade
}

// TrailingStopEntry is one monitored position with a ratcheting stop.
type TrailingStopEntry struct {
	UserID          int64
	TokenAddress    string
	Network         string
	BuyPrice        float64
	HighestPrice    float64
	StopLossPercent float64
	StopLossPrice   float64
}

// Store persists tracked wallets, statuses, settings, positions and
// trailing stops. Implementations must be safe for concurrent use.
type Store interface {
	// Tracked wallets
	Track(ctx context.Context, wallet TrackedWallet) error
	Untrack(ctx context.Context, network, address string, userID int64) error
	TrackedWallets(ctx context.Context, network string) ([]TrackedWallet, error)

	// Wallet trading statuses
	GetWalletStatus(ctx context.Context, userID int64, sourceWallet string) (WalletStatus, error)
	SetWalletStatus(ctx context.Context, status WalletStatus) error

	// Replication settings
	GetSettings(ctx context.Context, userID int64) (ReplicationSettings, error)
	SetSettings(ctx context.Context, settings ReplicationSettings) error

	// Positions
	GetPosition(ctx context.Context, userID int64, tokenAddress string) (Position, error)
	SavePosition(ctx context.Context, position Position) error
	DeletePosition(ctx context.Context, userID int64, tokenAddress string) error
	ListPositions(ctx context.Context, userID int64) ([]Position, error)

	// Trailing stops
	ListTrailingStops(ctx context.Context) ([]TrailingStopEntry, error)
	SaveTrailingStop(ctx context.Context, entry TrailingStopEntry) error
	DeleteTrailingStop(ctx context.Context, userID int64, tokenAddress string) error

	Close() error
}

// Ensure both implementations satisfy the interface
var _ Store = (*MemoryStore)(nil)
var _ Store = (*PostgresStore)(nil)
