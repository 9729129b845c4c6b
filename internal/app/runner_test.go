package app

import (
	"context"
	"testing"
	"time"

	"copybot/storage"
)

func newTestRunner() (*Runner, *fakeExecutor, storage.Store) {
	store := storage.NewMemory()
	exec := newFakeExecutor()
	tokens := newFakeTokenData()
	tokens.set(testToken, nil)

	runner := NewRunner(
		nil,
		DefaultRunnerConfig(),
		store,
		map[string]ChainDataSource{"solana": newFakeChain()},
		tokens,
		exec,
		&fakePriceSource{price: 0.001},
		&fakeNotifier{},
	)
	return runner, exec, store
}

func TestNewRunner_BuildsPollersForConfiguredNetworks(t *testing.T) {
	runner, _, _ := newTestRunner()

	if len(runner.pollers) != 1 {
		t.Fatalf("pollers = %d, want 1", len(runner.pollers))
	}
	if _, ok := runner.pollers["solana"]; !ok {
		t.Error("expected solana poller")
	}
}

func TestNewRunner_SkipsNetworksWithoutChainSource(t *testing.T) {
	config := DefaultRunnerConfig()
	config.Networks = []string{"solana", "ethereum"}

	runner := NewRunner(nil, config, storage.NewMemory(),
		map[string]ChainDataSource{"solana": newFakeChain()},
		newFakeTokenData(), newFakeExecutor(), &fakePriceSource{}, &fakeNotifier{})

	if len(runner.pollers) != 1 {
		t.Errorf("pollers = %d, want 1 (no ethereum source)", len(runner.pollers))
	}
}

func TestRunner_RunFailsWithoutPollableNetworks(t *testing.T) {
	config := DefaultRunnerConfig()
	config.Networks = nil

	runner := NewRunner(nil, config, storage.NewMemory(),
		map[string]ChainDataSource{}, newFakeTokenData(), newFakeExecutor(),
		&fakePriceSource{}, &fakeNotifier{})

	if err := runner.Run(context.Background()); err == nil {
		t.Error("expected error with no pollable networks")
	}
}

func TestRunner_StageManualTradeValidation(t *testing.T) {
	runner, _, _ := newTestRunner()
	ctx := context.Background()

	tests := []struct {
		name   string
		params ManualTradeParams
	}{
		{"zero amount", ManualTradeParams{TradeType: TradeTypeBuy, Network: "solana", TokenAddress: testToken}},
		{"missing token", ManualTradeParams{TradeType: TradeTypeBuy, Network: "solana", Amount: 1}},
		{"unknown network", ManualTradeParams{TradeType: TradeTypeBuy, Network: "base", TokenAddress: testToken, Amount: 1}},
		{"unknown trade type", ManualTradeParams{TradeType: TradeType("short"), Network: "solana", TokenAddress: testToken, Amount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runner.StageManualTrade(ctx, 1, tt.params); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRunner_ManualTradeLifecycle(t *testing.T) {
	runner, exec, _ := newTestRunner()
	ctx := context.Background()

	tradeID, err := runner.StageManualTrade(ctx, 1, ManualTradeParams{
		TradeType:    TradeTypeBuy,
		Network:      "solana",
		TokenAddress: testToken,
		Amount:       0.5,
	})
	if err != nil {
		t.Fatalf("StageManualTrade: %v", err)
	}

	result := runner.ConfirmTrade(ctx, 1, tradeID)
	if !result.Confirmed || !result.ExecSuccess {
		t.Fatalf("confirm failed: %+v", result)
	}
	if exec.buyCount() != 1 {
		t.Errorf("executor buys = %d, want 1", exec.buyCount())
	}
}

func TestRunner_CancelManualTrade(t *testing.T) {
	runner, exec, _ := newTestRunner()
	ctx := context.Background()

	tradeID, err := runner.StageManualTrade(ctx, 1, ManualTradeParams{
		TradeType:    TradeTypeSell,
		Network:      "solana",
		TokenAddress: testToken,
		Amount:       100,
	})
	if err != nil {
		t.Fatalf("StageManualTrade: %v", err)
	}

	cancel := runner.CancelTrade(1, tradeID)
	if !cancel.Cancelled {
		t.Fatalf("cancel failed: %+v", cancel)
	}
	if exec.sellCount() != 0 {
		t.Error("cancelled trade must not execute")
	}
}

func TestRunner_TrackWalletValidatesNetwork(t *testing.T) {
	runner, _, store := newTestRunner()
	ctx := context.Background()

	if err := runner.TrackWallet(ctx, 1, "base", testWallet); err == nil {
		t.Error("expected error for unsupported network")
	}

	if err := runner.TrackWallet(ctx, 1, "solana", testWallet); err != nil {
		t.Fatalf("TrackWallet: %v", err)
	}
	wallets, _ := store.TrackedWallets(ctx, "solana")
	if len(wallets) != 1 {
		t.Errorf("tracked wallets = %d, want 1", len(wallets))
	}

	if err := runner.UntrackWallet(ctx, 1, "solana", testWallet); err != nil {
		t.Fatalf("UntrackWallet: %v", err)
	}
	wallets, _ = store.TrackedWallets(ctx, "solana")
	if len(wallets) != 0 {
		t.Errorf("tracked wallets = %d, want 0 after untrack", len(wallets))
	}
}

func TestRunner_GetStats(t *testing.T) {
	runner, _, _ := newTestRunner()
	runner.startTime = time.Now().Add(-time.Minute)

	stats := runner.GetStats()

	if stats.Build.GoVersion == "" {
		t.Error("expected go version")
	}
	if stats.UptimeSec < 59 {
		t.Errorf("uptimeSec = %d, want about 60", stats.UptimeSec)
	}
	if len(stats.Pipeline.Networks) != 1 {
		t.Errorf("networks = %v, want one entry", stats.Pipeline.Networks)
	}
	if stats.Backoff["solana"] != 1.0 {
		t.Errorf("backoff = %v, want 1.0", stats.Backoff["solana"])
	}
	if stats.Runtime.Goroutines <= 0 {
		t.Error("expected goroutine count")
	}
}

func TestRunner_OnTrackedActivityCountsIntents(t *testing.T) {
	runner, exec, store := newTestRunner()
	ctx := context.Background()

	settings := storage.DefaultSettings(1)
	settings.ConfirmBeforeTrade = false
	store.SetSettings(ctx, settings)

	runner.OnTrackedActivity(TradeIntent{
		SourceWallet: testWallet,
		Network:      "solana",
		Action:       ActionBuy,
		TokenAddress: testToken,
		NativeAmount: 0.5,
		TxID:         "tx-1",
	}, []int64{1})

	// Replication runs on its own goroutine.
	deadline := time.Now().Add(time.Second)
	for exec.buyCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if exec.buyCount() != 1 {
		t.Fatalf("executor buys = %d, want 1", exec.buyCount())
	}

	runner.statsMu.Lock()
	dispatched := runner.intentsDispatched
	runner.statsMu.Unlock()
	if dispatched != 1 {
		t.Errorf("intentsDispatched = %d, want 1", dispatched)
	}
}

func TestRunner_StopLossSellEntersTradePath(t *testing.T) {
	store := storage.NewMemory()
	exec := newFakeExecutor()
	tokens := newFakeTokenData()
	tokens.set(testToken, nil)
	price := &fakePriceSource{price: 0.001}

	runner := NewRunner(nil, DefaultRunnerConfig(), store,
		map[string]ChainDataSource{"solana": newFakeChain()},
		tokens, exec, price, &fakeNotifier{})

	ctx := context.Background()
	settings := storage.DefaultSettings(1)
	settings.ConfirmBeforeTrade = false
	settings.TrailingStopPercent = 20
	store.SetSettings(ctx, settings)

	result, err := runner.replicator.Replicate(ctx, 1, TradeIntent{
		SourceWallet: testWallet,
		Network:      "solana",
		Action:       ActionBuy,
		TokenAddress: testToken,
		NativeAmount: 0.5,
		TxID:         "tx-sl",
	})
	if err != nil {
		t.Fatalf("Replicate: %v", err)
	}
	if !result.Success {
		t.Fatalf("buy rejected: %s", result.Reason)
	}

	// Price falls through the stop; the monitor's recommendation must
	// reach the executor, not just a notification.
	price.setPrice(0.0005)
	runner.trailing.checkAll(ctx)

	if exec.sellCount() != 1 {
		t.Fatalf("executor sells = %d, want 1 after stop loss", exec.sellCount())
	}
	holding, _ := runner.positions.Holding(ctx, 1, testToken)
	if holding != 0 {
		t.Errorf("holding = %v, want 0 after full exit", holding)
	}

	stats := runner.GetStats()
	if stats.Pipeline.StopLossTriggers != 1 {
		t.Errorf("stopLossTriggers = %d, want 1", stats.Pipeline.StopLossTriggers)
	}
	if stats.Pipeline.TradesReplicated != 1 {
		t.Errorf("tradesReplicated = %d, want 1 (the stop loss sell)", stats.Pipeline.TradesReplicated)
	}
}
