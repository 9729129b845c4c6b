package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"copybot/clients/notifier"

	"go.uber.org/zap"
)

const telegramAPIURL = "https://api.telegram.org/bot%s/%s"

// Config holds telegram notifier settings.
type Config struct {
	BotToken string
}

// TelegramClient delivers trade events to users over Telegram. Events go
// to the user's direct chat, keyed by their Telegram user id.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	botToken string
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.BotToken == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram notifications disabled")
		return &TelegramClient{logger: logger}
	}

	logger.Info("telegram bot initialized")

	return &TelegramClient{
		logger:   logger,
		botToken: cfg.BotToken,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify delivers an event to the user's chat.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) Notify(userID int64, event notifier.Event) {
	if tc.botToken == "" {
		return
	}

	message := buildEventMessage(event)

	if err := tc.sendMessage(userID, message); err != nil {
		tc.logger.Error("failed to send telegram message",
			zap.Int64("userID", userID),
			zap.Error(err),
		)
		return
	}

	tc.logger.Debug("sent telegram notification",
		zap.Int64("userID", userID),
		zap.String("type", string(event.Type)),
	)
}

func buildEventMessage(event notifier.Event) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("*%s*\n\n", eventTitle(event.Type)))

	if event.TokenAddress != "" {
		sb.WriteString(fmt.Sprintf("*Token:* `%s`\n", shortAddress(event.TokenAddress)))
	}
	if event.Network != "" {
		sb.WriteString(fmt.Sprintf("*Network:* %s\n", escapeMarkdown(event.Network)))
	}
	if event.SourceWallet != "" {
		sb.WriteString(fmt.Sprintf("*Source wallet:* `%s`\n", shortAddress(event.SourceWallet)))
	}
	if event.Side != "" {
		sideEmoji := "🟢"
		if strings.EqualFold(event.Side, "sell") {
			sideEmoji = "🔴"
		}
		sb.WriteString(fmt.Sprintf("*Side:* %s %s\n", sideEmoji, strings.ToUpper(event.Side)))
	}
	if event.NativeAmount > 0 {
		sb.WriteString(fmt.Sprintf("*Amount:* %.4f\n", event.NativeAmount))
	}
	if event.TokensAmount > 0 {
		sb.WriteString(fmt.Sprintf("*Tokens:* %.4f\n", event.TokensAmount))
	}
	if event.Price > 0 {
		sb.WriteString(fmt.Sprintf("*Price:* %.6f\n", event.Price))
	}
	if event.Type == notifier.EventStopLossTriggered {
		sb.WriteString(fmt.Sprintf("*P&L:* %+.1f%%\n", event.ProfitPercent))
	}
	if event.TxHash != "" {
		sb.WriteString(fmt.Sprintf("*Tx:* `%s`\n", shortAddress(event.TxHash)))
	}
	if event.TradeID != "" {
		sb.WriteString(fmt.Sprintf("*Trade ID:* `%s`\n", event.TradeID))
	}
	if event.Reason != "" {
		sb.WriteString(fmt.Sprintf("*Reason:* %s\n", escapeMarkdown(event.Reason)))
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(fmt.Sprintf("\n_copybot • %s_", ts.UTC().Format("2006-01-02 15:04:05 UTC")))

	return sb.String()
}

func eventTitle(t notifier.EventType) string {
	switch t {
	case notifier.EventTradeExecuted:
		return "✅ Trade Executed"
	case notifier.EventTradeFailed:
		return "❌ Trade Failed"
	case notifier.EventTradeStaged:
		return "⏳ Trade Awaiting Confirmation"
	case notifier.EventTradeExpired:
		return "⌛ Trade Expired"
	case notifier.EventTradeCancelled:
		return "🚫 Trade Cancelled"
	case notifier.EventReplicationSkipped:
		return "⏭️ Copy Skipped"
	case notifier.EventStopLossTriggered:
		return "🛑 Trailing Stop Triggered"
	default:
		return "📣 Trade Update"
	}
}

func (tc *TelegramClient) sendMessage(chatID int64, text string) error {
	url := fmt.Sprintf(telegramAPIURL, tc.botToken, "sendMessage")

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := tc.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources. Implements notifier.Notifier interface.
func (tc *TelegramClient) Close() error {
	return nil
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
