package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side an order of this side trades against
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is buy or sell
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Status is the lifecycle state of an order. Filled and Cancelled are terminal.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// User represents a registered user and their fiat balance
type User struct {
	ID           int             `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Asset is a user's holding of one symbol. Amount is free, LockedAmount backs open sell orders.
type Asset struct {
	UserID       int             `json:"user_id"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	LockedAmount decimal.Decimal `json:"locked_amount"`
}

// Order represents a buy or sell limit order
type Order struct {
	ID        int             `json:"id"`
	UserID    int             `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"` // Used for time priority
}

// IsOpen reports whether the order can still be matched or cancelled
func (o *Order) IsOpen() bool {
	return o.Status == StatusOpen
}

// Total is price times amount at 8 fractional digits
func (o *Order) Total() decimal.Decimal {
	return Mul(o.Price, o.Amount)
}

// Trade represents an executed trade. Trades are never mutated.
type Trade struct {
	ID          int             `json:"id"`
	BuyOrderID  int             `json:"buy_order_id"`
	SellOrderID int             `json:"sell_order_id"`
	BuyerID     int             `json:"buyer_id"`
	SellerID    int             `json:"seller_id"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	Total       decimal.Decimal `json:"total"`
	Commission  decimal.Decimal `json:"commission"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BookEntry is one resting order as shown in the order book
type BookEntry struct {
	ID        int             `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderBook holds the open orders of one symbol split by side
type OrderBook struct {
	Symbol string      `json:"symbol"`
	Buy    []BookEntry `json:"buy"`
	Sell   []BookEntry `json:"sell"`
}

// Profile is a user's balance together with their asset holdings
type Profile struct {
	ID       int             `json:"id"`
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
	Assets   []Asset         `json:"assets"`
}

// Scale is the number of fractional digits kept for every amount
const Scale = 8

// Mul multiplies and truncates the product to Scale digits
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(Scale)
}

// MaxValue is the exclusive upper bound of every stored amount, the range of
// a NUMERIC(18, 8) column
var MaxValue = decimal.New(1, 10)

// FitsRange reports whether d is below MaxValue
func FitsRange(d decimal.Decimal) bool {
	return d.LessThan(MaxValue)
}

// FitsScale reports whether d carries no more than Scale fractional digits
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}
