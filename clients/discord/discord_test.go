package discord

import (
	"testing"

	"copybot/clients/notifier"
)

func TestNewDiscordClient_NoToken(t *testing.T) {
	client := NewDiscordClient(nil, Config{})

	if client.logger == nil {
		t.Error("expected logger to be set")
	}
	if client.session != nil {
		t.Error("expected nil session without token")
	}

	// Notify must be a no-op without a session
	client.Notify(42, notifier.Event{Type: notifier.EventTradeExecuted})

	if err := client.Close(); err != nil {
		t.Errorf("close without session should not error: %v", err)
	}
}

func TestBuildEventEmbed_Executed(t *testing.T) {
	embed := buildEventEmbed(notifier.Event{
		Type:         notifier.EventTradeExecuted,
		Network:      "solana",
		TokenAddress: "So11111111111111111111111111111111111111112",
		Side:         "buy",
		NativeAmount: 0.75,
		Price:        0.000405,
		TxHash:       "5UfDuX94A1QfqkQvg5WBvM3WLzoTEX2bKFyquJHGxkRD",
	})

	if embed.Title != "✅ Trade Executed" {
		t.Errorf("unexpected title: %s", embed.Title)
	}
	if embed.Color != 0x2ECC71 {
		t.Errorf("expected green embed, got %#x", embed.Color)
	}
	if embed.Footer == nil || embed.Footer.Text != "copybot" {
		t.Error("expected copybot footer")
	}

	fieldNames := make(map[string]string)
	for _, f := range embed.Fields {
		fieldNames[f.Name] = f.Value
	}
	if fieldNames["Network"] != "solana" {
		t.Error("expected network field")
	}
	if _, ok := fieldNames["Token"]; !ok {
		t.Error("expected token field")
	}
	if _, ok := fieldNames["Tx"]; !ok {
		t.Error("expected tx field")
	}
}

func TestBuildEventEmbed_FailureColors(t *testing.T) {
	for _, typ := range []notifier.EventType{
		notifier.EventTradeFailed,
		notifier.EventStopLossTriggered,
	} {
		embed := buildEventEmbed(notifier.Event{Type: typ})
		if embed.Color != 0xE74C3C {
			t.Errorf("%s: expected red embed, got %#x", typ, embed.Color)
		}
	}

	staged := buildEventEmbed(notifier.Event{Type: notifier.EventTradeStaged})
	if staged.Color != 0xF1C40F {
		t.Errorf("expected yellow embed for staged, got %#x", staged.Color)
	}
}

func TestBuildEventEmbed_OmitsEmptyFields(t *testing.T) {
	embed := buildEventEmbed(notifier.Event{
		Type:    notifier.EventTradeCancelled,
		Network: "solana",
	})

	for _, f := range embed.Fields {
		if f.Value == "" {
			t.Errorf("field %q has empty value", f.Name)
		}
	}
	if len(embed.Fields) != 1 {
		t.Errorf("expected only the network field, got %d fields", len(embed.Fields))
	}
}
