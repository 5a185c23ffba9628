package exchange

import "errors"

var (
	// ErrInvalidInput is returned for a malformed symbol, side, price or amount
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientFunds is returned when a buyer's balance cannot cover price×amount
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientAsset is returned when a seller's free asset amount is too small
	ErrInsufficientAsset = errors.New("insufficient asset")
	// ErrInvalidState is returned when operating on an order that is no longer open
	ErrInvalidState = errors.New("order is not open")
	// ErrUnauthorized is returned when a user acts on an order they do not own
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned for an unknown order or user
	ErrNotFound = errors.New("not found")
)
