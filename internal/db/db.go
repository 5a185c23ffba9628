package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/spotexchange/internal/exchange"
	"github.com/xtrntr/spotexchange/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxTxAttempts bounds retries of a unit of work aborted by a deadlock or
// serialization failure
const maxTxAttempts = 3

const orderColumns = "id, user_id, symbol, side, price, amount, status, created_at"

const tradeColumns = "id, buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price, amount, total, commission, created_at"

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// WithinTx runs fn in a read-committed transaction. Rows touched through the
// unit of work are locked until commit or rollback. Deadlocks and
// serialization failures are retried.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, uow exchange.UnitOfWork) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = db.runTx(ctx, fn)
		if isOutOfRange(err) {
			return fmt.Errorf("value exceeds NUMERIC(18, 8): %w", exchange.ErrInvalidInput)
		}
		if !isRetryable(err) {
			return err
		}
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context, uow exchange.UnitOfWork) error) error {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func isOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	// numeric_value_out_of_range
	return errors.As(err, &pgErr) && pgErr.Code == "22003"
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, balance, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Balance, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, balance, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to get user %q: %w", username, exchange.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Profile retrieves a user's balance and asset holdings
func (db *DB) Profile(ctx context.Context, userID int) (*models.Profile, error) {
	profile := &models.Profile{Assets: []models.Asset{}}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, balance FROM users WHERE id = $1",
		userID).Scan(&profile.ID, &profile.Username, &profile.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", userID, exchange.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		"SELECT user_id, symbol, amount, locked_amount FROM assets WHERE user_id = $1 ORDER BY symbol",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var asset models.Asset
		if err := rows.Scan(&asset.UserID, &asset.Symbol, &asset.Amount, &asset.LockedAmount); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		profile.Assets = append(profile.Assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}
	return profile, nil
}

// OpenOrders retrieves the open orders of a symbol
func (db *DB) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE symbol = $1 AND status = 'open' ORDER BY created_at ASC, id ASC",
		symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	return collectOrders(rows)
}

// UserOrders retrieves all orders for a user, newest first
func (db *DB) UserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", err)
	}
	return collectOrders(rows)
}

// UserTrades retrieves all trades a user bought or sold in, newest first
func (db *DB) UserTrades(ctx context.Context, userID int) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+tradeColumns+" FROM trades WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	trades := []models.Trade{}
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}

func collectOrders(rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(&order.ID, &order.UserID, &order.Symbol, &order.Side, &order.Price, &order.Amount, &order.Status, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return order, nil
}

func scanTrade(row pgx.Row) (*models.Trade, error) {
	trade := &models.Trade{}
	err := row.Scan(&trade.ID, &trade.BuyOrderID, &trade.SellOrderID, &trade.BuyerID, &trade.SellerID,
		&trade.Symbol, &trade.Price, &trade.Amount, &trade.Total, &trade.Commission, &trade.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan trade: %w", err)
	}
	return trade, nil
}
