package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists all copy-trading state in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL store from a connection string and
// ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tracked_wallets (
			network TEXT NOT NULL,
			address TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			PRIMARY KEY (network, address, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_statuses (
			user_id BIGINT NOT NULL,
			source_wallet TEXT NOT NULL,
			state TEXT NOT NULL,
			resume_at TIMESTAMPTZ,
			PRIMARY KEY (user_id, source_wallet)
		)`,
		`CREATE TABLE IF NOT EXISTS replication_settings (
			user_id BIGINT PRIMARY KEY,
			buy_percentage DOUBLE PRECISION NOT NULL,
			max_buy_amount DOUBLE PRECISION NOT NULL,
			sell_percentage DOUBLE PRECISION NOT NULL,
			blind_follow BOOLEAN NOT NULL,
			confirm_before_trade BOOLEAN NOT NULL,
			frontrun BOOLEAN NOT NULL,
			bid_premium DOUBLE PRECISION NOT NULL,
			min_market_cap DOUBLE PRECISION NOT NULL,
			min_liquidity DOUBLE PRECISION NOT NULL,
			max_tax_percent DOUBLE PRECISION NOT NULL,
			daily_limit DOUBLE PRECISION NOT NULL,
			trailing_stop_percent DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			user_id BIGINT NOT NULL,
			token_address TEXT NOT NULL,
			network TEXT NOT NULL,
			total_amount DOUBLE PRECISION NOT NULL,
			avg_price DOUBLE PRECISION NOT NULL,
			source_wallet TEXT NOT NULL,
			trades JSONB NOT NULL DEFAULT '[]',
			PRIMARY KEY (user_id, token_address)
		)`,
		`CREATE TABLE IF NOT EXISTS trailing_stops (
			user_id BIGINT NOT NULL,
			token_address TEXT NOT NULL,
			network TEXT NOT NULL,
			buy_price DOUBLE PRECISION NOT NULL,
			highest_price DOUBLE PRECISION NOT NULL,
			stop_loss_percent DOUBLE PRECISION NOT NULL,
			stop_loss_price DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (user_id, token_address)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases database connections
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Track(ctx context.Context, wallet TrackedWallet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, owner := range wallet.Owners {
		_, err := tx.Exec(ctx,
			`INSERT INTO tracked_wallets (network, address, user_id)
			 VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			wallet.Network, wallet.Address, owner)
		if err != nil {
			return fmt.Errorf("postgres: track wallet: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Untrack(ctx context.Context, network, address string, userID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM tracked_wallets WHERE network = $1 AND address = $2 AND user_id = $3`,
		network, address, userID)
	if err != nil {
		return fmt.Errorf("postgres: untrack wallet: %w", err)
	}
	return nil
}

func (s *PostgresStore) TrackedWallets(ctx context.Context, network string) ([]TrackedWallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, user_id FROM tracked_wallets WHERE network = $1 ORDER BY address`,
		network)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets: %w", err)
	}
	defer rows.Close()

	byAddress := make(map[string]*TrackedWallet)
	var order []string
	for rows.Next() {
		var address string
		var userID int64
		if err := rows.Scan(&address, &userID); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		w, ok := byAddress[address]
		if !ok {
			w = &TrackedWallet{Address: address, Network: network}
			byAddress[address] = w
			order = append(order, address)
		}
		w.Owners = append(w.Owners, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TrackedWallet, 0, len(order))
	for _, address := range order {
		out = append(out, *byAddress[address])
	}
	return out, nil
}

func (s *PostgresStore) GetWalletStatus(ctx context.Context, userID int64, sourceWallet string) (WalletStatus, error) {
	status := WalletStatus{UserID: userID, SourceWallet: sourceWallet}
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state, resume_at FROM wallet_statuses WHERE user_id = $1 AND source_wallet = $2`,
		userID, sourceWallet).Scan(&state, &status.ResumeAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WalletStatus{}, ErrNotFound
	}
	if err != nil {
		return WalletStatus{}, fmt.Errorf("postgres: get status: %w", err)
	}
	status.State = TradingState(state)
	return status, nil
}

func (s *PostgresStore) SetWalletStatus(ctx context.Context, status WalletStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallet_statuses (user_id, source_wallet, state, resume_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, source_wallet)
		 DO UPDATE SET state = EXCLUDED.state, resume_at = EXCLUDED.resume_at`,
		status.UserID, status.SourceWallet, string(status.State), status.ResumeAt)
	if err != nil {
		return fmt.Errorf("postgres: set status: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSettings(ctx context.Context, userID int64) (ReplicationSettings, error) {
	settings := ReplicationSettings{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT buy_percentage, max_buy_amount, sell_percentage, blind_follow,
		        confirm_before_trade, frontrun, bid_premium, min_market_cap,
		        min_liquidity, max_tax_percent, daily_limit, trailing_stop_percent
		 FROM replication_settings WHERE user_id = $1`, userID).Scan(
		&settings.BuyPercentage, &settings.MaxBuyAmount, &settings.SellPercentage,
		&settings.BlindFollow, &settings.ConfirmBeforeTrade, &settings.Frontrun,
		&settings.BidPremium, &settings.MinMarketCap, &settings.MinLiquidity,
		&settings.MaxTaxPercent, &settings.DailyLimit, &settings.TrailingStopPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReplicationSettings{}, ErrNotFound
	}
	if err != nil {
		return ReplicationSettings{}, fmt.Errorf("postgres: get settings: %w", err)
	}
	return settings, nil
}

func (s *PostgresStore) SetSettings(ctx context.Context, settings ReplicationSettings) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO replication_settings (
			user_id, buy_percentage, max_buy_amount, sell_percentage, blind_follow,
			confirm_before_trade, frontrun, bid_premium, min_market_cap,
			min_liquidity, max_tax_percent, daily_limit, trailing_stop_percent
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (user_id) DO UPDATE SET
			buy_percentage = EXCLUDED.buy_percentage,
			max_buy_amount = EXCLUDED.max_buy_amount,
			sell_percentage = EXCLUDED.sell_percentage,
			blind_follow = EXCLUDED.blind_follow,
			confirm_before_trade = EXCLUDED.confirm_before_trade,
			frontrun = EXCLUDED.frontrun,
			bid_premium = EXCLUDED.bid_premium,
			min_market_cap = EXCLUDED.min_market_cap,
			min_liquidity = EXCLUDED.min_liquidity,
			max_tax_percent = EXCLUDED.max_tax_percent,
			daily_limit = EXCLUDED.daily_limit,
			trailing_stop_percent = EXCLUDED.trailing_stop_percent`,
		settings.UserID, settings.BuyPercentage, settings.MaxBuyAmount,
		settings.SellPercentage, settings.BlindFollow, settings.ConfirmBeforeTrade,
		settings.Frontrun, settings.BidPremium, settings.MinMarketCap,
		settings.MinLiquidity, settings.MaxTaxPercent, settings.DailyLimit,
		settings.TrailingStopPercent)
	if err != nil {
		return fmt.Errorf("postgres: set settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID int64, tokenAddress string) (Position, error) {
	pos := Position{UserID: userID, TokenAddress: tokenAddress}
	var tradesJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT network, total_amount, avg_price, source_wallet, trades
		 FROM positions WHERE user_id = $1 AND token_address = $2`,
		userID, tokenAddress).Scan(
		&pos.Network, &pos.TotalAmount, &pos.AvgPrice, &pos.SourceWallet, &tradesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("postgres: get position: %w", err)
	}
	if len(tradesJSON) > 0 {
		if err := json.Unmarshal(tradesJSON, &pos.Trades); err != nil {
			return Position{}, fmt.Errorf("postgres: decode trades: %w", err)
		}
	}
	return pos, nil
}

func (s *PostgresStore) SavePosition(ctx context.Context, position Position) error {
	tradesJSON, err := json.Marshal(position.Trades)
	if err != nil {
		return fmt.Errorf("postgres: encode trades: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO positions (user_id, token_address, network, total_amount, avg_price, source_wallet, trades)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, token_address) DO UPDATE SET
			network = EXCLUDED.network,
			total_amount = EXCLUDED.total_amount,
			avg_price = EXCLUDED.avg_price,
			source_wallet = EXCLUDED.source_wallet,
			trades = EXCLUDED.trades`,
		position.UserID, position.TokenAddress, position.Network,
		position.TotalAmount, position.AvgPrice, position.SourceWallet, tradesJSON)
	if err != nil {
		return fmt.Errorf("postgres: save position: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, userID int64, tokenAddress string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM positions WHERE user_id = $1 AND token_address = $2`,
		userID, tokenAddress)
	if err != nil {
		return fmt.Errorf("postgres: delete position: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID int64) ([]Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token_address, network, total_amount, avg_price, source_wallet, trades
		 FROM positions WHERE user_id = $1 ORDER BY token_address`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		pos := Position{UserID: userID}
		var tradesJSON []byte
		if err := rows.Scan(&pos.TokenAddress, &pos.Network, &pos.TotalAmount,
			&pos.AvgPrice, &pos.SourceWallet, &tradesJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		if len(tradesJSON) > 0 {
			if err := json.Unmarshal(tradesJSON, &pos.Trades); err != nil {
				return nil, fmt.Errorf("postgres: decode trades: %w", err)
			}
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListTrailingStops(ctx context.Context) ([]TrailingStopEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, token_address, network, buy_price, highest_price,
		        stop_loss_percent, stop_loss_price
		 FROM trailing_stops`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trailing stops: %w", err)
	}
	defer rows.Close()

	var out []TrailingStopEntry
	for rows.Next() {
		var entry TrailingStopEntry
		if err := rows.Scan(&entry.UserID, &entry.TokenAddress, &entry.Network,
			&entry.BuyPrice, &entry.HighestPrice, &entry.StopLossPercent,
			&entry.StopLossPrice); err != nil {
			return nil, fmt.Errorf("postgres: scan trailing stop: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveTrailingStop(ctx context.Context, entry TrailingStopEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trailing_stops (user_id, token_address, network, buy_price,
			highest_price, stop_loss_percent, stop_loss_price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, token_address) DO UPDATE SET
			network = EXCLUDED.network,
			buy_price = EXCLUDED.buy_price,
			highest_price = EXCLUDED.highest_price,
			stop_loss_percent = EXCLUDED.stop_loss_percent,
			stop_loss_price = EXCLUDED.stop_loss_price`,
		entry.UserID, entry.TokenAddress, entry.Network, entry.BuyPrice,
		entry.HighestPrice, entry.StopLossPercent, entry.StopLossPrice)
	if err != nil {
		return fmt.Errorf("postgres: save trailing stop: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTrailingStop(ctx context.Context, userID int64, tokenAddress string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM trailing_stops WHERE user_id = $1 AND token_address = $2`,
		userID, tokenAddress)
	if err != nil {
		return fmt.Errorf("postgres: delete trailing stop: %w", err)
	}
	return nil
}
