package app

import (
	"context"
	"math"
	"testing"

	"copybot/storage"
)

func TestPositionBook_ApplyBuyAveragesPrice(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(nil, storage.NewMemory())

	pos, err := book.ApplyBuy(ctx, 1, "solana", testToken, testWallet, 100, 1.0, "tx-1")
	if err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}
	if pos.TotalAmount != 100 || pos.AvgPrice != 1.0 {
		t.Errorf("after first buy: total=%v avg=%v", pos.TotalAmount, pos.AvgPrice)
	}

	pos, err = book.ApplyBuy(ctx, 1, "solana", testToken, testWallet, 100, 2.0, "tx-2")
	if err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}
	if pos.TotalAmount != 200 {
		t.Errorf("total = %v, want 200", pos.TotalAmount)
	}
	if math.Abs(pos.AvgPrice-1.5) > 1e-9 {
		t.Errorf("avg = %v, want 1.5", pos.AvgPrice)
	}
	if len(pos.Trades) != 2 {
		t.Errorf("trades = %d, want 2", len(pos.Trades))
	}
}

func TestPositionBook_ApplySellReducesPosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	book := NewPositionBook(nil, store)

	book.ApplyBuy(ctx, 1, "solana", testToken, testWallet, 200, 1.0, "tx-1")

	sold, err := book.ApplySell(ctx, 1, testToken, 50, 1.2, "tx-2")
	if err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if sold != 100 {
		t.Errorf("sold = %v, want 100", sold)
	}

	holding, _ := book.Holding(ctx, 1, testToken)
	if holding != 100 {
		t.Errorf("holding = %v, want 100", holding)
	}
}

func TestPositionBook_FullSellDeletesPosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	book := NewPositionBook(nil, store)

	book.ApplyBuy(ctx, 1, "solana", testToken, testWallet, 200, 1.0, "tx-1")

	sold, err := book.ApplySell(ctx, 1, testToken, 100, 1.2, "tx-2")
	if err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if sold != 200 {
		t.Errorf("sold = %v, want 200", sold)
	}

	if _, err := store.GetPosition(ctx, 1, testToken); err != storage.ErrNotFound {
		t.Errorf("expected position deleted, got err=%v", err)
	}
}

func TestPositionBook_DustRemainderDeletesPosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	book := NewPositionBook(nil, store)

	book.ApplyBuy(ctx, 1, "solana", testToken, testWallet, 0.01, 1.0, "tx-1")

	// Selling 99% leaves 0.0001, under the dust threshold.
	if _, err := book.ApplySell(ctx, 1, testToken, 99, 1.0, "tx-2"); err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if _, err := store.GetPosition(ctx, 1, testToken); err != storage.ErrNotFound {
		t.Errorf("dust remainder should delete the position, got err=%v", err)
	}
}

func TestPositionBook_SellWithoutPositionIsNoop(t *testing.T) {
	ctx := context.Background()
	book := NewPositionBook(nil, storage.NewMemory())

	sold, err := book.ApplySell(ctx, 1, testToken, 100, 1.0, "tx-1")
	if err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if sold != 0 {
		t.Errorf("sold = %v, want 0", sold)
	}
}

func TestPositionBook_HoldingWithoutPositionIsZero(t *testing.T) {
	book := NewPositionBook(nil, storage.NewMemory())

	holding, err := book.Holding(context.Background(), 1, testToken)
	if err != nil {
		t.Fatalf("Holding: %v", err)
	}
	if holding != 0 {
		t.Errorf("holding = %v, want 0", holding)
	}
}
