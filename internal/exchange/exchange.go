package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/models"
	"go.uber.org/zap"
)

// DefaultCommissionRate is the fee taken from the seller's proceeds
var DefaultCommissionRate = decimal.RequireFromString("0.015")

// Options configures an Exchange
type Options struct {
	Symbols        []string
	CommissionRate decimal.Decimal
	NotifyTimeout  time.Duration
	Logger         *zap.Logger
}

// Exchange places and cancels orders, matching and settling them atomically
type Exchange struct {
	store          Store
	notifier       Notifier
	symbols        map[string]bool
	commissionRate decimal.Decimal
	notifyTimeout  time.Duration
	logger         *zap.Logger
}

// NewExchange creates a new exchange on top of store. A nil notifier drops events.
func NewExchange(store Store, notifier Notifier, opts Options) *Exchange {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CommissionRate.IsZero() {
		opts.CommissionRate = DefaultCommissionRate
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 2 * time.Second
	}
	if len(opts.Symbols) == 0 {
		opts.Symbols = []string{"BTC", "ETH"}
	}

	symbols := make(map[string]bool, len(opts.Symbols))
	for _, s := range opts.Symbols {
		symbols[strings.ToUpper(s)] = true
	}

	return &Exchange{
		store:          store,
		notifier:       notifier,
		symbols:        symbols,
		commissionRate: opts.CommissionRate,
		notifyTimeout:  opts.NotifyTimeout,
		logger:         opts.Logger,
	}
}

// PlaceOrderRequest is a new limit order
type PlaceOrderRequest struct {
	UserID int
	Symbol string
	Side   models.Side
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// PlaceOrder reserves funds or assets, creates the order and settles it
// against at most one exact counter-order. The returned order is either
// open or filled.
func (e *Exchange) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	symbol, err := e.normalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("side must be 'buy' or 'sell': %w", ErrInvalidInput)
	}
	if err := validateQuantity("price", req.Price); err != nil {
		return nil, err
	}
	if err := validateQuantity("amount", req.Amount); err != nil {
		return nil, err
	}
	// Funds are reserved and settled at the exact product.
	total := req.Price.Mul(req.Amount)
	if err := validateQuantity("price*amount", total); err != nil {
		return nil, err
	}

	var (
		placed  *models.Order
		settled *settlement
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		placed, settled = nil, nil

		ledger := uow.Ledger()
		if req.Side == models.SideBuy {
			if err := ledger.ReserveFunds(ctx, req.UserID, total); err != nil {
				return fmt.Errorf("failed to reserve funds: %w", err)
			}
		} else {
			if err := ledger.ReserveAsset(ctx, req.UserID, symbol, req.Amount); err != nil {
				return fmt.Errorf("failed to reserve asset: %w", err)
			}
		}

		order, err := uow.Orders().CreateOrder(ctx, &models.Order{
			UserID: req.UserID,
			Symbol: symbol,
			Side:   req.Side,
			Price:  req.Price,
			Amount: req.Amount,
			Status: models.StatusOpen,
		})
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		counter, err := findMatch(ctx, uow.Orders(), order)
		if err != nil {
			return err
		}
		if counter != nil {
			s, err := e.settle(ctx, uow, order, counter)
			if err != nil {
				return err
			}
			settled = s
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if settled != nil {
		for _, ev := range settled.events() {
			e.notifyTrade(ctx, ev)
		}
	}
	e.notifyOrderBook(ctx, symbol)

	return placed, nil
}

// CancelOrder releases the order's reservation and closes it
func (e *Exchange) CancelOrder(ctx context.Context, userID, orderID int) (*models.Order, error) {
	var cancelled *models.Order
	err := e.store.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		order, err := uow.Orders().GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return fmt.Errorf("order %d belongs to another user: %w", orderID, ErrUnauthorized)
		}
		if !order.IsOpen() {
			return fmt.Errorf("order %d is %s: %w", orderID, order.Status, ErrInvalidState)
		}

		ledger := uow.Ledger()
		if order.Side == models.SideBuy {
			if err := ledger.ReleaseFunds(ctx, order.UserID, order.Total()); err != nil {
				return fmt.Errorf("failed to release funds: %w", err)
			}
		} else {
			if err := ledger.ReleaseAsset(ctx, order.UserID, order.Symbol, order.Amount); err != nil {
				return fmt.Errorf("failed to release asset: %w", err)
			}
		}

		if err := uow.Orders().MarkCancelled(ctx, order); err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notifyOrderBook(ctx, cancelled.Symbol)
	return cancelled, nil
}

// GetOrderBook returns the open orders of a symbol, buys by price descending
// and sells by price ascending
func (e *Exchange) GetOrderBook(ctx context.Context, symbol string) (*models.OrderBook, error) {
	symbol, err := e.normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	orders, err := e.store.OpenOrders(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}

	var buys, sells []models.Order
	for _, o := range orders {
		if o.Side == models.SideBuy {
			buys = append(buys, o)
		} else {
			sells = append(sells, o)
		}
	}
	SortBook(models.SideBuy, buys)
	SortBook(models.SideSell, sells)

	return &models.OrderBook{
		Symbol: symbol,
		Buy:    bookEntries(buys),
		Sell:   bookEntries(sells),
	}, nil
}

// ListUserOrders returns a user's orders, newest first
func (e *Exchange) ListUserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	return e.store.UserOrders(ctx, userID)
}

// ListUserTrades returns a user's trades, newest first
func (e *Exchange) ListUserTrades(ctx context.Context, userID int) ([]models.Trade, error) {
	return e.store.UserTrades(ctx, userID)
}

// GetProfile returns a user's balance and holdings
func (e *Exchange) GetProfile(ctx context.Context, userID int) (*models.Profile, error) {
	return e.store.Profile(ctx, userID)
}

// Deposit credits fiat balance to a user
func (e *Exchange) Deposit(ctx context.Context, userID int, amount decimal.Decimal) error {
	if err := validateQuantity("amount", amount); err != nil {
		return err
	}
	return e.store.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.Ledger().CreditFunds(ctx, userID, amount)
	})
}

// DepositAsset credits a free asset amount to a user
func (e *Exchange) DepositAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	symbol, err := e.normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if err := validateQuantity("amount", amount); err != nil {
		return err
	}
	return e.store.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		return uow.Ledger().CreditAsset(ctx, userID, symbol, amount)
	})
}

func (e *Exchange) normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !e.symbols[s] {
		return "", fmt.Errorf("unknown symbol %q: %w", symbol, ErrInvalidInput)
	}
	return s, nil
}

func (e *Exchange) notifyOrderBook(ctx context.Context, symbol string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()

	if err := e.notifier.OrderBookChanged(ctx, symbol); err != nil {
		e.logger.Warn("order book notification dropped", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (e *Exchange) notifyTrade(ctx context.Context, ev TradeEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
	defer cancel()

	if err := e.notifier.TradeOccurred(ctx, ev); err != nil {
		e.logger.Warn("trade notification dropped",
			zap.Int("trade_id", ev.Trade.ID),
			zap.Int("user_id", ev.UserID),
			zap.String("symbol", ev.Trade.Symbol),
			zap.Error(err))
	}
}

func validateQuantity(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%s must be positive: %w", field, ErrInvalidInput)
	}
	if !models.FitsScale(d) {
		return fmt.Errorf("%s has more than %d decimal places: %w", field, models.Scale, ErrInvalidInput)
	}
	if !models.FitsRange(d) {
		return fmt.Errorf("%s must be below %s: %w", field, models.MaxValue, ErrInvalidInput)
	}
	return nil
}

func bookEntries(orders []models.Order) []models.BookEntry {
	entries := make([]models.BookEntry, 0, len(orders))
	for _, o := range orders {
		entries = append(entries, models.BookEntry{
			ID:        o.ID,
			Price:     o.Price,
			Amount:    o.Amount,
			CreatedAt: o.CreatedAt,
		})
	}
	return entries
}
