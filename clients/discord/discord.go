package discord

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"copybot/clients/notifier"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Config holds discord notifier settings.
type Config struct {
	BotToken string
}

// DiscordClient delivers trade events to users over Discord direct
// messages. Implements notifier.Notifier interface.
type DiscordClient struct {
	logger  *zap.Logger
	session *discordgo.Session

	// DM channel ids per user, created lazily.
	channelMu sync.Mutex
	channels  map[int64]string
}

func NewDiscordClient(logger *zap.Logger, cfg Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.BotToken == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord notifications disabled")
		return &DiscordClient{
			logger:   logger,
			channels: make(map[int64]string),
		}
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:   logger,
			channels: make(map[int64]string),
		}
	}

	logger.Info("discord bot initialized")

	return &DiscordClient{
		logger:   logger,
		session:  session,
		channels: make(map[int64]string),
	}
}

// Notify sends a rich embedded event to the user's DM channel.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) Notify(userID int64, event notifier.Event) {
	if dc.session == nil {
		return
	}

	channelID, err := dc.dmChannel(userID)
	if err != nil {
		dc.logger.Error("failed to open discord DM channel",
			zap.Int64("userID", userID),
			zap.Error(err),
		)
		return
	}

	embed := buildEventEmbed(event)

	if _, err := dc.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		dc.logger.Error("failed to send discord embed",
			zap.Int64("userID", userID),
			zap.Error(err),
		)
		return
	}

	dc.logger.Debug("sent discord notification",
		zap.Int64("userID", userID),
		zap.String("type", string(event.Type)),
	)
}

func (dc *DiscordClient) dmChannel(userID int64) (string, error) {
	dc.channelMu.Lock()
	if id, ok := dc.channels[userID]; ok {
		dc.channelMu.Unlock()
		return id, nil
	}
	dc.channelMu.Unlock()

	channel, err := dc.session.UserChannelCreate(strconv.FormatInt(userID, 10))
	if err != nil {
		return "", fmt.Errorf("create DM channel: %w", err)
	}

	dc.channelMu.Lock()
	dc.channels[userID] = channel.ID
	dc.channelMu.Unlock()
	return channel.ID, nil
}

func buildEventEmbed(event notifier.Event) *discordgo.MessageEmbed {
	color := 0x3498DB
	switch event.Type {
	case notifier.EventTradeExecuted:
		color = 0x2ECC71
	case notifier.EventTradeFailed, notifier.EventStopLossTriggered:
		color = 0xE74C3C
	case notifier.EventTradeStaged:
		color = 0xF1C40F
	}

	var fields []*discordgo.MessageEmbedField
	addField := func(name, value string) {
		if value == "" {
			return
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  value,
			Inline: true,
		})
	}

	addField("Network", event.Network)
	if event.TokenAddress != "" {
		addField("Token", fmt.Sprintf("`%s`", shortAddress(event.TokenAddress)))
	}
	if event.SourceWallet != "" {
		addField("Source wallet", fmt.Sprintf("`%s`", shortAddress(event.SourceWallet)))
	}
	if event.Side != "" {
		sideEmoji := "🟢"
		if strings.EqualFold(event.Side, "sell") {
			sideEmoji = "🔴"
		}
		addField("Side", fmt.Sprintf("%s %s", sideEmoji, strings.ToUpper(event.Side)))
	}
	if event.NativeAmount > 0 {
		addField("Amount", fmt.Sprintf("%.4f", event.NativeAmount))
	}
	if event.TokensAmount > 0 {
		addField("Tokens", fmt.Sprintf("%.4f", event.TokensAmount))
	}
	if event.Price > 0 {
		addField("Price", fmt.Sprintf("%.6f", event.Price))
	}
	if event.Type == notifier.EventStopLossTriggered {
		addField("P&L", fmt.Sprintf("%+.1f%%", event.ProfitPercent))
	}
	if event.TxHash != "" {
		addField("Tx", fmt.Sprintf("`%s`", shortAddress(event.TxHash)))
	}
	if event.TradeID != "" {
		addField("Trade ID", fmt.Sprintf("`%s`", event.TradeID))
	}
	addField("Reason", event.Reason)

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:     eventTitle(event.Type),
		Color:     color,
		Fields:    fields,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "copybot",
		},
	}
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

// Close shuts down the Discord session.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}
