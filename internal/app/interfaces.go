package app

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited is returned (possibly wrapped) by chain data sources when
// the upstream RPC endpoint rejected the request for rate reasons. The
// poller treats it differently from other faults.
var ErrRateLimited = errors.New("rate limited by upstream")

// TxRef is a lightweight reference to an on-chain transaction.
type TxRef struct {
	TxID      string
	BlockTime time.Time
}

// TokenBalanceChange is one token account delta observed in a transaction.
type TokenBalanceChange struct {
	Owner        string
	TokenAddress string
	Delta        float64 // Token units, positive when the owner received tokens
}

// RawTx holds the pieces of a fetched transaction the classifier needs.
// Balances are in native units (e.g. SOL), indexed like Accounts.
type RawTx struct {
	TxID         string
	Network      string
	Failed       bool
	Accounts     []string
	PreBalances  []float64
	PostBalances []float64
	TokenChanges []TokenBalanceChange
	BlockTime    time.Time
}

// ChainDataSource reads wallet activity from one network.
type ChainDataSource interface {
	// ListRecentTransactions returns up to limit transaction references for
	// the address, newest first.
	ListRecentTransactions(ctx context.Context, address string, limit int) ([]TxRef, error)

	// GetTransaction fetches the full transaction for classification.
	GetTransaction(ctx context.Context, txID string) (*RawTx, error)

	// GetNativeBalance returns the address's native-currency balance.
	GetNativeBalance(ctx context.Context, address string) (float64, error)
}

// TokenData is the metadata used for eligibility and safety checks.
type TokenData struct {
	PriceUsd       float64
	PriceNative    float64
	MarketCap      float64
	Liquidity      float64
	BuyTaxPercent  float64
	SellTaxPercent float64
	AgeHours       float64
	MevRiskScore   float64 // 0 (none) .. 1 (certain)
	Verified       bool
	MempoolFlagged bool
}

// TokenDataProvider looks up token metadata on demand.
type TokenDataProvider interface {
	GetTokenData(ctx context.Context, network, tokenAddress string) (*TokenData, error)
}

// BuyRequest asks the executor to spend native currency on a token.
type BuyRequest struct {
	UserID       int64
	Network      string
	TokenAddress string
	NativeAmount float64
	SourceWallet string
	BidPremium   float64
}

// SellRequest asks the executor to sell a token amount back to native.
type SellRequest struct {
	UserID       int64
	Network      string
	TokenAddress string
	TokensAmount float64
	SourceWallet string
}

// BuyOutcome reports an executed buy.
type BuyOutcome struct {
	TxHash       string
	TokensBought float64
	PricePaid    float64
}

// SellOutcome reports an executed sell.
type SellOutcome struct {
	TxHash         string
	NativeReceived float64
	PriceReceived  float64
}

// TradeExecutor performs the actual swaps. Signing and broadcast live
// behind this interface.
type TradeExecutor interface {
	ExecuteBuy(ctx context.Context, req BuyRequest) (*BuyOutcome, error)
	ExecuteSell(ctx context.Context, req SellRequest) (*SellOutcome, error)
}

// PriceSource returns a current price for a token, used by the trailing
// stop monitor.
type PriceSource interface {
	TokenPrice(ctx context.Context, network, tokenAddress string) (float64, error)
}
