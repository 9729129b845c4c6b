package app

import (
	"context"
	"fmt"
	"sync"

	"copybot/clients/notifier"
)

// fakeChain is a scripted ChainDataSource.
type fakeChain struct {
	mu    sync.Mutex
	refs  map[string][]TxRef // keyed by wallet address
	txs   map[string]*RawTx  // keyed by tx id
	err   error
	calls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		refs: make(map[string][]TxRef),
		txs:  make(map[string]*RawTx),
	}
}

func (c *fakeChain) ListRecentTransactions(ctx context.Context, address string, limit int) ([]TxRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	refs := c.refs[address]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (c *fakeChain) GetTransaction(ctx context.Context, txID string) (*RawTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	tx, ok := c.txs[txID]
	if !ok {
		return nil, fmt.Errorf("tx %s not found", txID)
	}
	return tx, nil
}

func (c *fakeChain) GetNativeBalance(ctx context.Context, address string) (float64, error) {
	return 100, nil
}

// fakeTokenData serves canned token data.
type fakeTokenData struct {
	mu   sync.Mutex
	data map[string]*TokenData // keyed by token address
	err  error
}

func newFakeTokenData() *fakeTokenData {
	return &fakeTokenData{data: make(map[string]*TokenData)}
}

// set installs a healthy token that passes every default safety check.
func (f *fakeTokenData) set(token string, mutate func(*TokenData)) {
	d := &TokenData{
		PriceUsd:    1.0,
		PriceNative: 0.01,
		MarketCap:   1_000_000,
		Liquidity:   500_000,
		AgeHours:    720,
		Verified:    true,
	}
	if mutate != nil {
		mutate(d)
	}
	f.mu.Lock()
	f.data[token] = d
	f.mu.Unlock()
}

func (f *fakeTokenData) GetTokenData(ctx context.Context, network, tokenAddress string) (*TokenData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.data[tokenAddress]
	if !ok {
		return nil, fmt.Errorf("no data for %s", tokenAddress)
	}
	return d, nil
}

// fakeExecutor records requests and returns configurable fills.
type fakeExecutor struct {
	mu       sync.Mutex
	buys     []BuyRequest
	sells    []SellRequest
	buyErr   error
	sellErr  error
	fillRate float64 // tokens per native unit on buys
	price    float64
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{fillRate: 1000, price: 0.001}
}

func (e *fakeExecutor) ExecuteBuy(ctx context.Context, req BuyRequest) (*BuyOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buyErr != nil {
		return nil, e.buyErr
	}
	e.buys = append(e.buys, req)
	return &BuyOutcome{
		TxHash:       fmt.Sprintf("buy-%d", len(e.buys)),
		TokensBought: req.NativeAmount * e.fillRate,
		PricePaid:    e.price,
	}, nil
}

func (e *fakeExecutor) ExecuteSell(ctx context.Context, req SellRequest) (*SellOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sellErr != nil {
		return nil, e.sellErr
	}
	e.sells = append(e.sells, req)
	return &SellOutcome{
		TxHash:         fmt.Sprintf("sell-%d", len(e.sells)),
		NativeReceived: req.TokensAmount * e.price,
		PriceReceived:  e.price,
	}, nil
}

func (e *fakeExecutor) buyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buys)
}

func (e *fakeExecutor) sellCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sells)
}

// fakePriceSource serves one mutable price.
type fakePriceSource struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (p *fakePriceSource) setPrice(v float64) {
	p.mu.Lock()
	p.price = v
	p.mu.Unlock()
}

func (p *fakePriceSource) TokenPrice(ctx context.Context, network, tokenAddress string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	return p.price, nil
}

// fakeNotifier records delivered events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notifier.Event
	users  []int64
}

func (n *fakeNotifier) Notify(userID int64, event notifier.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, userID)
	n.events = append(n.events, event)
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) eventTypes() []notifier.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]notifier.EventType, len(n.events))
	for i, e := range n.events {
		types[i] = e.Type
	}
	return types
}
