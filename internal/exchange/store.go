package exchange

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/models"
)

// Ledger is the only way balance and asset fields are mutated. Every call runs
// inside the caller's unit of work.
type Ledger interface {
	// ReserveFunds debits amount from the user's balance or fails with ErrInsufficientFunds.
	ReserveFunds(ctx context.Context, userID int, amount decimal.Decimal) error
	// ReleaseFunds credits back a reservation taken by ReserveFunds.
	ReleaseFunds(ctx context.Context, userID int, amount decimal.Decimal) error
	// CreditFunds credits seller proceeds or a buyer refund.
	CreditFunds(ctx context.Context, userID int, amount decimal.Decimal) error
	// ReserveAsset moves amount from free to locked or fails with ErrInsufficientAsset.
	ReserveAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error
	// ReleaseAsset moves amount from locked back to free.
	ReleaseAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error
	// SettleAssetRelease removes amount from locked; the asset leaves the user.
	SettleAssetRelease(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error
	// CreditAsset adds amount to free, creating the holding at (0, 0) if absent.
	CreditAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error
	// Balance reads the user's current fiat balance.
	Balance(ctx context.Context, userID int) (decimal.Decimal, error)
}

// OrderStore holds order records and the query surface matching needs.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	// GetOrderForUpdate loads an order and locks it until the unit of work ends.
	GetOrderForUpdate(ctx context.Context, orderID int) (*models.Order, error)
	// MarkFilled and MarkCancelled fail with ErrInvalidState unless the order is open.
	MarkFilled(ctx context.Context, order *models.Order) error
	MarkCancelled(ctx context.Context, order *models.Order) error
	// FindMatchCandidate returns the first eligible resting order, locked
	// exclusively, or nil when none is free to take.
	FindMatchCandidate(ctx context.Context, c MatchCriteria) (*models.Order, error)
}

// TradeStore appends trades.
type TradeStore interface {
	CreateTrade(ctx context.Context, trade *models.Trade) (*models.Trade, error)
}

// UnitOfWork exposes the stores bound to one atomic transaction
type UnitOfWork interface {
	Ledger() Ledger
	Orders() OrderStore
	Trades() TradeStore
}

// Store runs units of work and serves read-only queries
type Store interface {
	// WithinTx runs fn atomically. Nothing fn did is visible to others if it
	// returns an error.
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	// UserOrders returns the user's orders, newest first.
	UserOrders(ctx context.Context, userID int) ([]models.Order, error)
	// UserTrades returns trades the user bought or sold in, newest first.
	UserTrades(ctx context.Context, userID int) ([]models.Trade, error)
	Profile(ctx context.Context, userID int) (*models.Profile, error)
}
