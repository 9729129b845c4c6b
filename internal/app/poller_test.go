package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"copybot/storage"
)

type pollerFixture struct {
	poller  *WalletPoller
	chain   *fakeChain
	limiter *RateLimiter
	dedup   *TxDeduplicator
	store   storage.Store

	mu      sync.Mutex
	intents []TradeIntent
	owners  [][]int64
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()

	f := &pollerFixture{
		chain: newFakeChain(),
		store: storage.NewMemory(),
	}
	f.limiter = NewRateLimiter(nil, RateLimiterConfig{
		MaxRequests: 100,
		TimeWindow:  time.Second,
		MaxWait:     time.Second,
		MaxBackoff:  8,
		BackoffStep: 0.5,
	})
	f.dedup = NewTxDeduplicator(nil, DefaultDedupConfig())

	f.poller = NewWalletPoller(
		nil,
		PollerConfig{PollInterval: time.Hour, BatchSize: 5, TxFetchLimit: 5},
		"solana",
		f.chain,
		f.limiter,
		f.dedup,
		NewTradeClassifier(nil, DefaultClassifierConfig()),
		f.store,
		func(intent TradeIntent, owners []int64) {
			f.mu.Lock()
			f.intents = append(f.intents, intent)
			f.owners = append(f.owners, owners)
			f.mu.Unlock()
		},
	)
	return f
}

func (f *pollerFixture) trackWallet(owners ...int64) {
	f.store.Track(context.Background(), storage.TrackedWallet{
		Address: testWallet,
		Network: "solana",
		Owners:  owners,
	})
}

// addBuyTx installs a signature plus transaction showing testWallet
// spending 0.5 native on testToken.
func (f *pollerFixture) addBuyTx(txID string) {
	f.chain.mu.Lock()
	defer f.chain.mu.Unlock()
	f.chain.refs[testWallet] = append(f.chain.refs[testWallet], TxRef{TxID: txID, BlockTime: time.Now()})
	f.chain.txs[txID] = &RawTx{
		TxID:         txID,
		Network:      "solana",
		Accounts:     []string{testWallet},
		PreBalances:  []float64{10},
		PostBalances: []float64{9.5},
		TokenChanges: []TokenBalanceChange{
			{Owner: testWallet, TokenAddress: testToken, Delta: 1000},
		},
		BlockTime: time.Now(),
	}
}

func (f *pollerFixture) intentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

func TestPoller_DispatchesClassifiedTrade(t *testing.T) {
	f := newPollerFixture(t)
	f.trackWallet(1, 2)
	f.addBuyTx("tx-1")

	f.poller.scan(context.Background())

	if f.intentCount() != 1 {
		t.Fatalf("intents = %d, want 1", f.intentCount())
	}
	f.mu.Lock()
	intent := f.intents[0]
	owners := f.owners[0]
	f.mu.Unlock()

	if intent.Action != ActionBuy {
		t.Errorf("action = %s, want buy", intent.Action)
	}
	if intent.TokenAddress != testToken {
		t.Errorf("token = %s", intent.TokenAddress)
	}
	if len(owners) != 2 {
		t.Errorf("owners = %v, want both users", owners)
	}
}

func TestPoller_DuplicateTxDispatchedOnce(t *testing.T) {
	f := newPollerFixture(t)
	f.trackWallet(1)
	f.addBuyTx("tx-1")

	ctx := context.Background()
	f.poller.scan(ctx)
	f.poller.scan(ctx)
	f.poller.scan(ctx)

	if f.intentCount() != 1 {
		t.Errorf("intents = %d, want 1 despite repeat scans", f.intentCount())
	}
}

func TestPoller_RateLimitErrorRaisesBackoff(t *testing.T) {
	f := newPollerFixture(t)
	f.trackWallet(1)
	f.chain.err = fmt.Errorf("get signatures: %w", ErrRateLimited)

	f.poller.scan(context.Background())

	if got := f.limiter.Backoff("solana"); got <= 1.0 {
		t.Errorf("backoff = %v, want raised above 1.0", got)
	}
	if f.intentCount() != 0 {
		t.Errorf("intents = %d, want 0", f.intentCount())
	}
}

func TestPoller_OrdinaryErrorDoesNotPenalize(t *testing.T) {
	f := newPollerFixture(t)
	f.trackWallet(1)
	f.chain.err = fmt.Errorf("connection refused")

	f.poller.scan(context.Background())

	if got := f.limiter.Backoff("solana"); got != 1.0 {
		t.Errorf("backoff = %v, want unchanged 1.0", got)
	}
}

func TestPoller_UnknownActionNotDispatched(t *testing.T) {
	f := newPollerFixture(t)
	f.trackWallet(1)

	// Fee-only movement classifies as unknown.
	f.chain.mu.Lock()
	f.chain.refs[testWallet] = []TxRef{{TxID: "tx-fee"}}
	f.chain.txs["tx-fee"] = &RawTx{
		TxID:         "tx-fee",
		Network:      "solana",
		Accounts:     []string{testWallet},
		PreBalances:  []float64{10},
		PostBalances: []float64{9.99995},
	}
	f.chain.mu.Unlock()

	f.poller.scan(context.Background())

	if f.intentCount() != 0 {
		t.Errorf("intents = %d, want 0 for unknown action", f.intentCount())
	}
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	f := newPollerFixture(t)

	done := make(chan struct{})
	go func() {
		f.poller.Run(context.Background())
		close(done)
	}()

	f.poller.Stop()
	f.poller.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
