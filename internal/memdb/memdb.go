// Package memdb is an in-memory implementation of the exchange store. Units of
// work are serialized by a single mutex and rolled back by restoring a snapshot.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/exchange"
	"github.com/xtrntr/spotexchange/internal/models"
)

type assetKey struct {
	userID int
	symbol string
}

type state struct {
	users       map[int]models.User
	usernames   map[string]int
	assets      map[assetKey]models.Asset
	orders      map[int]models.Order
	trades      []models.Trade
	nextUserID  int
	nextOrderID int
	nextTradeID int
}

func newState() *state {
	return &state{
		users:     make(map[int]models.User),
		usernames: make(map[string]int),
		assets:    make(map[assetKey]models.Asset),
		orders:    make(map[int]models.Order),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:       make(map[int]models.User, len(s.users)),
		usernames:   make(map[string]int, len(s.usernames)),
		assets:      make(map[assetKey]models.Asset, len(s.assets)),
		orders:      make(map[int]models.Order, len(s.orders)),
		trades:      append([]models.Trade(nil), s.trades...),
		nextUserID:  s.nextUserID,
		nextOrderID: s.nextOrderID,
		nextTradeID: s.nextTradeID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.usernames {
		c.usernames[k] = v
	}
	for k, v := range s.assets {
		c.assets[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

// Store holds users, assets, orders and trades in memory
type Store struct {
	mu   sync.Mutex
	st   *state
	now  func() time.Time
	last time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithinTx runs fn with exclusive access to the store. If fn fails every
// change it made is discarded.
//
// Every call copies the whole state, so its cost grows with the number of
// orders and trades held. Use it for tests and local runs, not load tests.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow exchange.UnitOfWork) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &unit{store: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// timestamp returns a strictly increasing creation time. Caller holds mu.
func (s *Store) timestamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// CreateUser inserts a new user with a zero balance
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.usernames[username]; ok {
		return nil, fmt.Errorf("failed to create user: username %q already taken", username)
	}
	s.st.nextUserID++
	user := models.User{
		ID:           s.st.nextUserID,
		Username:     username,
		PasswordHash: passwordHash,
		Balance:      decimal.Zero,
		CreatedAt:    s.timestamp(),
	}
	s.st.users[user.ID] = user
	s.st.usernames[username] = user.ID
	return &user, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.st.usernames[username]
	if !ok {
		return nil, fmt.Errorf("failed to get user %q: %w", username, exchange.ErrNotFound)
	}
	user := s.st.users[id]
	return &user, nil
}

// OpenOrders returns the open orders of a symbol
func (s *Store) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []models.Order
	for _, o := range s.st.orders {
		if o.Symbol == symbol && o.IsOpen() {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// UserOrders returns a user's orders, newest first
func (s *Store) UserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := []models.Order{}
	for _, o := range s.st.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// UserTrades returns trades the user took part in, newest first
func (s *Store) UserTrades(ctx context.Context, userID int) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades := []models.Trade{}
	for i := len(s.st.trades) - 1; i >= 0; i-- {
		t := s.st.trades[i]
		if t.BuyerID == userID || t.SellerID == userID {
			trades = append(trades, t)
		}
	}
	return trades, nil
}

// Profile returns a user's balance and holdings sorted by symbol
func (s *Store) Profile(ctx context.Context, userID int) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.st.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, exchange.ErrNotFound)
	}
	profile := &models.Profile{
		ID:       user.ID,
		Username: user.Username,
		Balance:  user.Balance,
		Assets:   []models.Asset{},
	}
	for k, a := range s.st.assets {
		if k.userID == userID {
			profile.Assets = append(profile.Assets, a)
		}
	}
	sort.Slice(profile.Assets, func(i, j int) bool { return profile.Assets[i].Symbol < profile.Assets[j].Symbol })
	return profile, nil
}

// Trades returns every trade in execution order
func (s *Store) Trades() []models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Trade(nil), s.st.trades...)
}
