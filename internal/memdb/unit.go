package memdb

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/exchange"
	"github.com/xtrntr/spotexchange/internal/models"
)

// unit is the view of the store handed to one unit of work. The store mutex
// is held for its whole lifetime.
type unit struct {
	store *Store
}

func (u *unit) Ledger() exchange.Ledger { return u }
func (u *unit) Orders() exchange.OrderStore { return u }
func (u *unit) Trades() exchange.TradeStore { return u }
func (u *unit) state() *state { return u.store.st }

func (u *unit) user(userID int) (models.User, error) {
	user, ok := u.state().users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", userID, exchange.ErrNotFound)
	}
	return user, nil
}

func (u *unit) ReserveFunds(ctx context.Context, userID int, amount decimal.Decimal) error {
	user, err := u.user(userID)
	if err != nil {
		return err
	}
	if user.Balance.LessThan(amount) {
		return fmt.Errorf("balance %s below %s: %w", user.Balance, amount, exchange.ErrInsufficientFunds)
	}
	user.Balance = user.Balance.Sub(amount)
	u.state().users[userID] = user
	return nil
}

func (u *unit) ReleaseFunds(ctx context.Context, userID int, amount decimal.Decimal) error {
	return u.CreditFunds(ctx, userID, amount)
}

func (u *unit) CreditFunds(ctx context.Context, userID int, amount decimal.Decimal) error {
	user, err := u.user(userID)
	if err != nil {
		return err
	}
	balance := user.Balance.Add(amount)
	if !models.FitsRange(balance) {
		return fmt.Errorf("balance of user %d would reach %s: %w", userID, balance, exchange.ErrInvalidInput)
	}
	user.Balance = balance
	u.state().users[userID] = user
	return nil
}

func (u *unit) Balance(ctx context.Context, userID int) (decimal.Decimal, error) {
	user, err := u.user(userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

func (u *unit) ReserveAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	if _, err := u.user(userID); err != nil {
		return err
	}
	key := assetKey{userID, symbol}
	asset, ok := u.state().assets[key]
	if !ok || asset.Amount.LessThan(amount) {
		return fmt.Errorf("free %s below %s: %w", symbol, amount, exchange.ErrInsufficientAsset)
	}
	asset.Amount = asset.Amount.Sub(amount)
	asset.LockedAmount = asset.LockedAmount.Add(amount)
	u.state().assets[key] = asset
	return nil
}

func (u *unit) ReleaseAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	key := assetKey{userID, symbol}
	asset, ok := u.state().assets[key]
	if !ok || asset.LockedAmount.LessThan(amount) {
		return fmt.Errorf("locked %s below %s for user %d: %w", symbol, amount, userID, exchange.ErrInvalidState)
	}
	asset.LockedAmount = asset.LockedAmount.Sub(amount)
	asset.Amount = asset.Amount.Add(amount)
	u.state().assets[key] = asset
	return nil
}

func (u *unit) SettleAssetRelease(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	key := assetKey{userID, symbol}
	asset, ok := u.state().assets[key]
	if !ok || asset.LockedAmount.LessThan(amount) {
		return fmt.Errorf("locked %s below %s for user %d: %w", symbol, amount, userID, exchange.ErrInvalidState)
	}
	asset.LockedAmount = asset.LockedAmount.Sub(amount)
	u.state().assets[key] = asset
	return nil
}

func (u *unit) CreditAsset(ctx context.Context, userID int, symbol string, amount decimal.Decimal) error {
	if _, err := u.user(userID); err != nil {
		return err
	}
	key := assetKey{userID, symbol}
	asset, ok := u.state().assets[key]
	if !ok {
		asset = models.Asset{UserID: userID, Symbol: symbol, Amount: decimal.Zero, LockedAmount: decimal.Zero}
	}
	if !models.FitsRange(asset.Amount.Add(amount)) {
		return fmt.Errorf("%s of user %d would reach %s: %w", symbol, userID, asset.Amount.Add(amount), exchange.ErrInvalidInput)
	}
	asset.Amount = asset.Amount.Add(amount)
	u.state().assets[key] = asset
	return nil
}

func (u *unit) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if _, err := u.user(order.UserID); err != nil {
		return nil, err
	}
	st := u.state()
	st.nextOrderID++
	created := *order
	created.ID = st.nextOrderID
	created.Status = models.StatusOpen
	created.CreatedAt = u.store.timestamp()
	st.orders[created.ID] = created
	return &created, nil
}

func (u *unit) GetOrderForUpdate(ctx context.Context, orderID int) (*models.Order, error) {
	order, ok := u.state().orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", orderID, exchange.ErrNotFound)
	}
	return &order, nil
}

func (u *unit) MarkFilled(ctx context.Context, order *models.Order) error {
	return u.transition(order, models.StatusFilled)
}

func (u *unit) MarkCancelled(ctx context.Context, order *models.Order) error {
	return u.transition(order, models.StatusCancelled)
}

func (u *unit) transition(order *models.Order, status models.Status) error {
	stored, ok := u.state().orders[order.ID]
	if !ok {
		return fmt.Errorf("order %d: %w", order.ID, exchange.ErrNotFound)
	}
	if !stored.IsOpen() {
		return fmt.Errorf("order %d is %s: %w", order.ID, stored.Status, exchange.ErrInvalidState)
	}
	stored.Status = status
	u.state().orders[order.ID] = stored
	order.Status = status
	return nil
}

// FindMatchCandidate scans the open orders. The unit already holds the store
// exclusively, so the returned candidate cannot be taken by anyone else.
func (u *unit) FindMatchCandidate(ctx context.Context, c exchange.MatchCriteria) (*models.Order, error) {
	var candidates []models.Order
	for _, o := range u.state().orders {
		if c.Matches(&o) {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	exchange.SortBook(c.Side, candidates)
	return &candidates[0], nil
}

func (u *unit) CreateTrade(ctx context.Context, trade *models.Trade) (*models.Trade, error) {
	st := u.state()
	st.nextTradeID++
	created := *trade
	created.ID = st.nextTradeID
	created.CreatedAt = u.store.timestamp()
	st.trades = append(st.trades, created)
	return &created, nil
}
