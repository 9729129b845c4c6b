package app

import (
	"time"

	"go.uber.org/zap"
)

// TradeAction is the classified direction of a wallet's transaction.
type TradeAction string

const (
	ActionBuy     TradeAction = "buy"
	ActionSell    TradeAction = "sell"
	ActionUnknown TradeAction = "unknown"
)

// UnknownToken is used when a transaction moved native currency but no
// token balance change could be attributed to the wallet.
const UnknownToken = "Unknown"

// TradeIntent is a classified trade observed on a tracked wallet.
type TradeIntent struct {
	SourceWallet string
	Network      string
	Action       TradeAction
	TokenAddress string
	NativeAmount float64 // Native units moved, always positive
	TxID         string
	ObservedAt   time.Time
}

// ClassifierConfig holds configuration for the trade classifier.
type ClassifierConfig struct {
	// MinNativeDelta filters out balance changes that are just fees.
	MinNativeDelta float64
}

// DefaultClassifierConfig returns sensible defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		MinNativeDelta: 0.001,
	}
}

// TradeClassifier infers trade direction from a wallet's native balance
// delta. It is a heuristic: anything it cannot attribute comes back as
// ActionUnknown rather than a guess.
type TradeClassifier struct {
	logger *zap.Logger
	config ClassifierConfig
}

// NewTradeClassifier creates a classifier.
func NewTradeClassifier(logger *zap.Logger, config ClassifierConfig) *TradeClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeClassifier{
		logger: logger.Named("classifier"),
		config: config,
	}
}

// Classify inspects the transaction from the wallet's point of view.
// A native balance decrease beyond the fee threshold is a buy, an
// increase is a sell. Failed transactions and transactions where the
// wallet's balance barely moved classify as unknown.
func (c *TradeClassifier) Classify(tx *RawTx, wallet string) TradeIntent {
	intent := TradeIntent{
		SourceWallet: wallet,
		Network:      tx.Network,
		Action:       ActionUnknown,
		TokenAddress: UnknownToken,
		TxID:         tx.TxID,
		ObservedAt:   tx.BlockTime,
	}
	if intent.ObservedAt.IsZero() {
		intent.ObservedAt = time.Now()
	}

	if tx.Failed {
		return intent
	}

	idx := -1
	for i, account := range tx.Accounts {
		if account == wallet {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.PreBalances) || idx >= len(tx.PostBalances) {
		return intent
	}

	delta := tx.PostBalances[idx] - tx.PreBalances[idx]
	if delta > -c.config.MinNativeDelta && delta < c.config.MinNativeDelta {
		return intent
	}

	if delta < 0 {
		intent.Action = ActionBuy
		intent.NativeAmount = -delta
	} else {
		intent.Action = ActionSell
		intent.NativeAmount = delta
	}

	// Attribute the token from the wallet's token balance changes. A buy
	// should show tokens arriving, a sell tokens leaving.
	for _, change := range tx.TokenChanges {
		if change.Owner != wallet {
			continue
		}
		if intent.Action == ActionBuy && change.Delta > 0 {
			intent.TokenAddress = change.TokenAddress
			break
		}
		if intent.Action == ActionSell && change.Delta < 0 {
			intent.TokenAddress = change.TokenAddress
			break
		}
	}

	c.logger.Debug("classified transaction",
		zap.String("tx", shortID(tx.TxID)),
		zap.String("wallet", shortID(wallet)),
		zap.String("action", string(intent.Action)),
		zap.String("token", intent.TokenAddress),
		zap.Float64("nativeAmount", intent.NativeAmount),
	)
	return intent
}
