package telegram

import (
	"strings"
	"testing"
	"time"

	"copybot/clients/notifier"
)

func TestNewTelegramClient_NoToken(t *testing.T) {
	client := NewTelegramClient(nil, Config{})

	if client.logger == nil {
		t.Error("expected logger to be set")
	}
	if client.botToken != "" {
		t.Error("expected empty bot token")
	}

	// Notify must be a no-op without a token
	client.Notify(123, notifier.Event{Type: notifier.EventTradeExecuted})
}

func TestNewTelegramClient_WithToken(t *testing.T) {
	client := NewTelegramClient(nil, Config{BotToken: "test-token"})

	if client.botToken != "test-token" {
		t.Errorf("unexpected bot token: %s", client.botToken)
	}
	if client.client == nil {
		t.Error("expected http client to be initialized")
	}
}

func TestBuildEventMessage_Executed(t *testing.T) {
	msg := buildEventMessage(notifier.Event{
		Type:         notifier.EventTradeExecuted,
		Network:      "solana",
		TokenAddress: "So11111111111111111111111111111111111111112",
		SourceWallet: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Side:         "buy",
		NativeAmount: 0.5,
		TokensAmount: 1234.5,
		Price:        0.000405,
		TxHash:       "5UfDuX94A1QfqkQvg5WBvM3WLzoTEX2bKFyquJHGxkRD",
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	if !strings.Contains(msg, "Trade Executed") {
		t.Error("expected executed title")
	}
	if !strings.Contains(msg, "BUY") {
		t.Error("expected upper-cased side")
	}
	if !strings.Contains(msg, "So1111…111112") {
		t.Errorf("expected shortened token address, got: %s", msg)
	}
	if !strings.Contains(msg, "copybot") {
		t.Error("expected copybot footer")
	}
	if !strings.Contains(msg, "2025-06-01 12:00:00 UTC") {
		t.Error("expected formatted timestamp")
	}
}

func TestBuildEventMessage_StopLossIncludesProfit(t *testing.T) {
	msg := buildEventMessage(notifier.Event{
		Type:          notifier.EventStopLossTriggered,
		Side:          "sell",
		Price:         1.6,
		ProfitPercent: 60.0,
	})

	if !strings.Contains(msg, "Trailing Stop Triggered") {
		t.Error("expected stop loss title")
	}
	if !strings.Contains(msg, "+60.0%") {
		t.Errorf("expected profit percent, got: %s", msg)
	}
	if !strings.Contains(msg, "SELL") {
		t.Error("expected sell side")
	}
}

func TestBuildEventMessage_SkippedReason(t *testing.T) {
	msg := buildEventMessage(notifier.Event{
		Type:   notifier.EventReplicationSkipped,
		Reason: "liquidity too low",
	})

	if !strings.Contains(msg, "Copy Skipped") {
		t.Error("expected skipped title")
	}
	if !strings.Contains(msg, "liquidity too low") {
		t.Error("expected reason in message")
	}
}

func TestEventTitle_AllTypes(t *testing.T) {
	types := []notifier.EventType{
		notifier.EventTradeExecuted,
		notifier.EventTradeFailed,
		notifier.EventTradeStaged,
		notifier.EventTradeExpired,
		notifier.EventTradeCancelled,
		notifier.EventReplicationSkipped,
		notifier.EventStopLossTriggered,
		notifier.EventType("something-else"),
	}
	seen := make(map[string]bool)
	for _, typ := range types {
		title := eventTitle(typ)
		if title == "" {
			t.Errorf("empty title for %s", typ)
		}
		if seen[title] {
			t.Errorf("duplicate title %q for %s", title, typ)
		}
		seen[title] = true
	}
}

func TestEscapeMarkdown(t *testing.T) {
	got := escapeMarkdown("a_b*c[d]e`f")
	want := "a\\_b\\*c\\[d\\]e\\`f"
	if got != want {
		t.Errorf("escapeMarkdown = %q, want %q", got, want)
	}
}

func TestShortAddress(t *testing.T) {
	if got := shortAddress("short"); got != "short" {
		t.Errorf("short address should pass through, got %q", got)
	}
	long := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	got := shortAddress(long)
	if got != "9WzDXw…YtAWWM" {
		t.Errorf("unexpected short form: %q", got)
	}
}
