package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtrntr/spotexchange/internal/exchange"
	"github.com/xtrntr/spotexchange/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// txStore implements the ledger, order and trade stores on one transaction.
// Balance and asset rows are only ever changed by the guarded UPDATEs below.
type txStore struct {
	tx pgx.Tx
}

func (s *txStore) Ledger() exchange.Ledger     { return s }
func (s *txStore) Orders() exchange.OrderStore { return s }
func (s *txStore) Trades() exchange.TradeStore { return s }

func (s *txStore) userExists(ctx context.Context, userID int) error {
	var exists bool
	err := s.tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("user %d: %w", userID, exchange.ErrNotFound)
	}
	return nil
}

// ReserveFunds debits the balance only if it covers amount
func (s *txStore) ReserveFunds(ctx context.Context, userID int, amount decimal.Decimal) error {
	tag, err := s.tx.Exec(ctx,
		"UPDATE users SET balance = balance - $2 WHERE id = $1 AND balance >= $2",
		userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.userExists(ctx, userID); err != nil {
			return err
		}
		return fmt.Errorf("balance below %s: %w", amount, exchange.ErrInsufficientFunds)
	}
	return nil
}

func (s *txStore) ReleaseFunds(ctx context.Context, userID int, amount decimal.Decimal) error {
	return s.CreditFunds(ctx, userID, amount)
}

func (s *txStore) CreditFunds(ctx context.Context, userID int, amount decimal.Decimal) error {
	tag, err := s.tx.Exec(ctx, "UPDATE users SET balance = balance + $2 WHERE id = $1", userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", userID, exchange.ErrNotFound)
	}
	return nil
}

func (s *txStore) Balance(ctx context.Context, userID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.tx.QueryRow(ctx, "SELECT balance FROM users WHERE id = $1", userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("user %d: %w", userID, exchange.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// ReserveAsset moves amount from free to locked only if enough is free
func (s *txStore) ReserveAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	tag, err := s.tx.Exec(ctx,
		"UPDATE assets SET amount = amount - $3, locked_amount = locked_amount + $3 WHERE user_id = $1 AND symbol = $2 AND amount >= $3",
		userID, symbol, amount)
	if err != nil {
		return fmt.Errorf("failed to lock asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.userExists(ctx, userID); err != nil {
			return err
		}
		return fmt.Errorf("free %s below %s: %w", symbol, amount, exchange.ErrInsufficientAsset)
	}
	return nil
}

func (s *txStore) ReleaseAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	tag, err := s.tx.Exec(ctx,
		"UPDATE assets SET locked_amount = locked_amount - $3, amount = amount + $3 WHERE user_id = $1 AND symbol = $2 AND locked_amount >= $3",
		userID, symbol, amount)
	if err != nil {
		return fmt.Errorf("failed to unlock asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locked %s below %s for user %d: %w", symbol, amount, userID, exchange.ErrInvalidState)
	}
	return nil
}

func (s *txStore) SettleAssetRelease(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	tag, err := s.tx.Exec(ctx,
		"UPDATE assets SET locked_amount = locked_amount - $3 WHERE user_id = $1 AND symbol = $2 AND locked_amount >= $3",
		userID, symbol, amount)
	if err != nil {
		return fmt.Errorf("failed to settle asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locked %s below %s for user %d: %w", symbol, amount, userID, exchange.ErrInvalidState)
	}
	return nil
}

func (s *txStore) CreditAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	if err := s.userExists(ctx, userID); err != nil {
		return err
	}
	_, err := s.tx.Exec(ctx, `
		INSERT INTO assets (user_id, symbol, amount, locked_amount) VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id, symbol) DO UPDATE SET amount = assets.amount + EXCLUDED.amount`,
		userID, symbol, amount)
	if err != nil {
		return fmt.Errorf("failed to credit asset: %w", err)
	}
	return nil
}

// CreateOrder inserts a new open order
func (s *txStore) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	row := s.tx.QueryRow(ctx,
		"INSERT INTO orders (user_id, symbol, side, price, amount, status) VALUES ($1, $2, $3, $4, $5, 'open') RETURNING "+orderColumns,
		order.UserID, order.Symbol, order.Side, order.Price, order.Amount)
	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return created, nil
}

// GetOrderForUpdate locks the order row for the rest of the transaction
func (s *txStore) GetOrderForUpdate(ctx context.Context, orderID int) (*models.Order, error) {
	row := s.tx.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d: %w", orderID, exchange.ErrNotFound)
		}
		return nil, err
	}
	return order, nil
}

func (s *txStore) MarkFilled(ctx context.Context, order *models.Order) error {
	return s.transition(ctx, order, models.StatusFilled)
}

func (s *txStore) MarkCancelled(ctx context.Context, order *models.Order) error {
	return s.transition(ctx, order, models.StatusCancelled)
}

func (s *txStore) transition(ctx context.Context, order *models.Order, status models.Status) error {
	tag, err := s.tx.Exec(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2 AND status = 'open'",
		status, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d not open: %w", order.ID, exchange.ErrInvalidState)
	}
	order.Status = status
	return nil
}

// FindMatchCandidate locks the first eligible counter-order. Rows already
// locked by a concurrent transaction are skipped rather than waited on, so
// two new orders can never settle against the same resting order.
func (s *txStore) FindMatchCandidate(ctx context.Context, c exchange.MatchCriteria) (*models.Order, error) {
	priceOrder := "ASC"
	if c.Side == models.SideBuy {
		priceOrder = "DESC"
	}

	row := s.tx.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'open' AND symbol = $1 AND side = $2 AND price = $3 AND amount = $4 AND user_id <> $5
		ORDER BY price `+priceOrder+`, created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		c.Symbol, c.Side, c.Price, c.Amount, c.ExcludeUserID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// CreateTrade inserts a new trade
func (s *txStore) CreateTrade(ctx context.Context, trade *models.Trade) (*models.Trade, error) {
	row := s.tx.QueryRow(ctx, `
		INSERT INTO trades (buy_order_id, sell_order_id, buyer_id, seller_id, symbol, price, amount, total, commission)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+tradeColumns,
		trade.BuyOrderID, trade.SellOrderID, trade.BuyerID, trade.SellerID, trade.Symbol,
		trade.Price, trade.Amount, trade.Total, trade.Commission)
	created, err := scanTrade(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	return created, nil
}
