package tokendata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"copybot/internal/app"

	"go.uber.org/zap"
)

// Config holds token data client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns settings for the public DexScreener API.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.dexscreener.com",
		Timeout: 10 * time.Second,
	}
}

// Client fetches token market data from a DexScreener-compatible API.
// Implements app.TokenDataProvider.
type Client struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
}

var _ app.TokenDataProvider = (*Client)(nil)

// NewClient creates a token data client.
func NewClient(logger *zap.Logger, config Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		logger:  logger.Named("tokendata"),
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// pairResponse mirrors the /latest/dex/tokens response shape.
type pairResponse struct {
	Pairs []struct {
		ChainID     string `json:"chainId"`
		PriceUsd    string `json:"priceUsd"`
		PriceNative string `json:"priceNative"`
		MarketCap   float64 `json:"marketCap"`
		FDV         float64 `json:"fdv"`
		Liquidity   struct {
			Usd float64 `json:"usd"`
		} `json:"liquidity"`
		PairCreatedAt int64 `json:"pairCreatedAt"`
		Info          *struct {
			BuyTax         float64 `json:"buyTax"`
			SellTax        float64 `json:"sellTax"`
			Verified       bool    `json:"verified"`
			MevRisk        float64 `json:"mevRisk"`
			MempoolFlagged bool    `json:"mempoolFlagged"`
		} `json:"info"`
	} `json:"pairs"`
}

// GetTokenData returns market data for a token, using the deepest pair on
// the requested network.
func (c *Client) GetTokenData(ctx context.Context, network, tokenAddress string) (*app.TokenData, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, tokenAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("token data API: %w", app.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token data API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode token data: %w", err)
	}

	best := -1
	for i, pair := range parsed.Pairs {
		if pair.ChainID != network {
			continue
		}
		if best < 0 || pair.Liquidity.Usd > parsed.Pairs[best].Liquidity.Usd {
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("no pairs found for token %s on %s", tokenAddress, network)
	}

	pair := parsed.Pairs[best]
	data := &app.TokenData{
		PriceUsd:    parseFloat(pair.PriceUsd),
		PriceNative: parseFloat(pair.PriceNative),
		MarketCap:   pair.MarketCap,
		Liquidity:   pair.Liquidity.Usd,
	}
	if data.MarketCap == 0 {
		data.MarketCap = pair.FDV
	}
	if pair.PairCreatedAt > 0 {
		created := time.UnixMilli(pair.PairCreatedAt)
		data.AgeHours = time.Since(created).Hours()
	}
	if pair.Info != nil {
		data.BuyTaxPercent = pair.Info.BuyTax
		data.SellTaxPercent = pair.Info.SellTax
		data.Verified = pair.Info.Verified
		data.MevRiskScore = pair.Info.MevRisk
		data.MempoolFlagged = pair.Info.MempoolFlagged
	} else {
		// Without screener metadata, treat any pair with real liquidity
		// as verified and score MEV risk off pool depth and age.
		data.Verified = data.Liquidity > 0
		data.MevRiskScore = mevRiskHeuristic(data.Liquidity, data.AgeHours)
	}

	c.logger.Debug("fetched token data",
		zap.String("token", tokenAddress),
		zap.String("network", network),
		zap.Float64("priceUsd", data.PriceUsd),
		zap.Float64("liquidity", data.Liquidity),
	)

	return data, nil
}

// mevRiskHeuristic scores 0..1, higher for thin or freshly created pools.
func mevRiskHeuristic(liquidityUsd, ageHours float64) float64 {
	risk := 0.0
	if liquidityUsd < 10_000 {
		risk += 0.4
	} else if liquidityUsd < 50_000 {
		risk += 0.2
	}
	if ageHours < 24 {
		risk += 0.4
	} else if ageHours < 24*7 {
		risk += 0.2
	}
	return risk
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
