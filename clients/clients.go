package clients

import (
	"copybot/clients/discord"
	"copybot/clients/executor"
	"copybot/clients/notifier"
	"copybot/clients/pricefeed"
	"copybot/clients/solanachain"
	"copybot/clients/telegram"
	"copybot/clients/tokendata"
	"copybot/config"
	"copybot/internal/app"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord   *discord.DiscordClient
	Telegram  *telegram.TelegramClient
	Notifier  notifier.Notifier // Combined notifier for all channels
	Solana    *solanachain.Client
	TokenData *tokendata.Client
	PriceFeed *pricefeed.PriceFeed
	Prices    *pricefeed.CachedPriceSource
	Executor  app.TradeExecutor
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, discord.Config{
		BotToken: cfg.Discord.BotToken,
	})
	telegramClient := telegram.NewTelegramClient(logger, telegram.Config{
		BotToken: cfg.Telegram.BotToken,
	})

	// Create combined notifier for all channels
	multiNotifier := notifier.NewMultiNotifier(discordClient, telegramClient)

	tokenDataClient := tokendata.NewClient(logger, tokendata.Config{
		BaseURL: cfg.TokenData.BaseURL,
		Timeout: cfg.TokenData.Timeout,
	})
	feed := pricefeed.NewPriceFeed(logger, pricefeed.Config{
		URL:          cfg.PriceFeed.URL,
		MaxStaleness: cfg.PriceFeed.MaxStaleness,
	})
	prices := pricefeed.NewCachedPriceSource(feed, tokenDataClient)

	return &Clients{
		Logger:   logger,
		Discord:  discordClient,
		Telegram: telegramClient,
		Notifier: multiNotifier,
		Solana: solanachain.NewClient(logger, solanachain.Config{
			RPCURL:     cfg.Solana.RPCURL,
			Commitment: rpc.CommitmentType(cfg.Solana.Commitment),
		}),
		TokenData: tokenDataClient,
		PriceFeed: feed,
		Prices:    prices,
		Executor:  executor.NewDryRunExecutor(logger, prices),
	}
}

// ChainSources returns the chain data sources keyed by network name.
func (c *Clients) ChainSources() map[string]app.ChainDataSource {
	return map[string]app.ChainDataSource{
		"solana": c.Solana,
	}
}
