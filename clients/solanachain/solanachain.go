package solanachain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"copybot/internal/app"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const lamportsPerSol = 1e9

// Config holds the Solana RPC client settings.
type Config struct {
	RPCURL     string
	Commitment rpc.CommitmentType
}

// DefaultConfig returns sensible defaults for the public mainnet endpoint.
func DefaultConfig() Config {
	return Config{
		RPCURL:     rpc.MainNetBeta_RPC,
		Commitment: rpc.CommitmentConfirmed,
	}
}

// Client reads wallet activity from a Solana RPC node.
// Implements app.ChainDataSource.
type Client struct {
	logger *zap.Logger
	rpc    *rpc.Client
	config Config
}

var _ app.ChainDataSource = (*Client)(nil)

// NewClient creates a Solana chain data source.
func NewClient(logger *zap.Logger, config Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RPCURL == "" {
		config.RPCURL = DefaultConfig().RPCURL
	}
	if config.Commitment == "" {
		config.Commitment = DefaultConfig().Commitment
	}

	logger.Info("solana RPC client initialized",
		zap.String("endpoint", config.RPCURL),
		zap.String("commitment", string(config.Commitment)),
	)

	return &Client{
		logger: logger.Named("solanachain"),
		rpc:    rpc.New(config.RPCURL),
		config: config,
	}
}

// ListRecentTransactions returns up to limit signature references for the
// address, newest first.
func (c *Client) ListRecentTransactions(ctx context.Context, address string, limit int) ([]app.TxRef, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}

	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, pubkey, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.config.Commitment,
	})
	if err != nil {
		return nil, wrapRPCError("get signatures", err)
	}

	refs := make([]app.TxRef, 0, len(sigs))
	for _, sig := range sigs {
		ref := app.TxRef{TxID: sig.Signature.String()}
		if sig.BlockTime != nil {
			ref.BlockTime = sig.BlockTime.Time()
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// GetTransaction fetches a transaction and flattens the balance data the
// classifier needs.
func (c *Client) GetTransaction(ctx context.Context, txID string) (*app.RawTx, error) {
	sig, err := solana.SignatureFromBase58(txID)
	if err != nil {
		return nil, fmt.Errorf("parse signature %q: %w", txID, err)
	}

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.config.Commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, wrapRPCError("get transaction", err)
	}
	if out == nil || out.Meta == nil {
		return nil, fmt.Errorf("transaction %s has no metadata", txID)
	}

	raw := &app.RawTx{
		TxID:    txID,
		Network: "solana",
		Failed:  out.Meta.Err != nil,
	}
	if out.BlockTime != nil {
		raw.BlockTime = out.BlockTime.Time()
	} else {
		raw.BlockTime = time.Now()
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", txID, err)
	}
	for _, key := range tx.Message.AccountKeys {
		raw.Accounts = append(raw.Accounts, key.String())
	}

	raw.PreBalances = lamportsToSol(out.Meta.PreBalances)
	raw.PostBalances = lamportsToSol(out.Meta.PostBalances)
	raw.TokenChanges = tokenChanges(out.Meta.PreTokenBalances, out.Meta.PostTokenBalances)

	return raw, nil
}

// GetNativeBalance returns the address's SOL balance.
func (c *Client) GetNativeBalance(ctx context.Context, address string) (float64, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", address, err)
	}

	out, err := c.rpc.GetBalance(ctx, pubkey, c.config.Commitment)
	if err != nil {
		return 0, wrapRPCError("get balance", err)
	}
	return float64(out.Value) / lamportsPerSol, nil
}

func lamportsToSol(lamports []uint64) []float64 {
	out := make([]float64, len(lamports))
	for i, l := range lamports {
		out[i] = float64(l) / lamportsPerSol
	}
	return out
}

// tokenChanges diffs pre and post token balances per (account, mint) and
// attributes each delta to the owning wallet.
func tokenChanges(pre, post []rpc.TokenBalance) []app.TokenBalanceChange {
	type key struct {
		accountIndex uint16
		mint         string
	}

	amounts := func(balances []rpc.TokenBalance) map[key]float64 {
		m := make(map[key]float64, len(balances))
		for _, tb := range balances {
			if tb.UiTokenAmount == nil || tb.UiTokenAmount.UiAmount == nil {
				continue
			}
			m[key{tb.AccountIndex, tb.Mint.String()}] = *tb.UiTokenAmount.UiAmount
		}
		return m
	}
	owners := make(map[key]string)
	for _, tb := range append(append([]rpc.TokenBalance{}, pre...), post...) {
		if tb.Owner != nil {
			owners[key{tb.AccountIndex, tb.Mint.String()}] = tb.Owner.String()
		}
	}

	preAmounts := amounts(pre)
	postAmounts := amounts(post)

	keys := make(map[key]struct{}, len(preAmounts)+len(postAmounts))
	for k := range preAmounts {
		keys[k] = struct{}{}
	}
	for k := range postAmounts {
		keys[k] = struct{}{}
	}

	var changes []app.TokenBalanceChange
	for k := range keys {
		delta := postAmounts[k] - preAmounts[k]
		if delta == 0 {
			continue
		}
		changes = append(changes, app.TokenBalanceChange{
			Owner:        owners[k],
			TokenAddress: k.mint,
			Delta:        delta,
		})
	}
	return changes
}

// wrapRPCError tags upstream rate-limit responses so the poller can feed
// them back into the limiter.
func wrapRPCError(op string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		return fmt.Errorf("%s: %s: %w", op, msg, app.ErrRateLimited)
	}
	return fmt.Errorf("%s: %w", op, err)
}
