package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/spotexchange/internal/models"
)

func TestCriteriaFor(t *testing.T) {
	order := &models.Order{
		ID:     7,
		UserID: 3,
		Symbol: "BTC",
		Side:   models.SideBuy,
		Price:  decimal.RequireFromString("100.5"),
		Amount: decimal.RequireFromString("2"),
	}

	c := CriteriaFor(order)
	assert.Equal(t, "BTC", c.Symbol)
	assert.Equal(t, models.SideSell, c.Side)
	assert.Equal(t, 3, c.ExcludeUserID)
	assert.True(t, c.Price.Equal(order.Price))
	assert.True(t, c.Amount.Equal(order.Amount))
}

func TestMatchCriteria_Matches(t *testing.T) {
	criteria := MatchCriteria{
		Symbol:        "ETH",
		Side:          models.SideSell,
		Price:         decimal.RequireFromString("2500"),
		Amount:        decimal.RequireFromString("0.5"),
		ExcludeUserID: 1,
	}
	base := models.Order{
		ID:     10,
		UserID: 2,
		Symbol: "ETH",
		Side:   models.SideSell,
		Price:  decimal.RequireFromString("2500.00"),
		Amount: decimal.RequireFromString("0.50"),
		Status: models.StatusOpen,
	}

	tests := []struct {
		name   string
		modify func(o *models.Order)
		want   bool
	}{
		{name: "Eligible", modify: func(o *models.Order) {}, want: true},
		{name: "Filled", modify: func(o *models.Order) { o.Status = models.StatusFilled }},
		{name: "Cancelled", modify: func(o *models.Order) { o.Status = models.StatusCancelled }},
		{name: "OtherSymbol", modify: func(o *models.Order) { o.Symbol = "BTC" }},
		{name: "SameSide", modify: func(o *models.Order) { o.Side = models.SideBuy }},
		{name: "SameUser", modify: func(o *models.Order) { o.UserID = 1 }},
		{name: "PriceOff", modify: func(o *models.Order) { o.Price = decimal.RequireFromString("2500.00000001") }},
		{name: "AmountOff", modify: func(o *models.Order) { o.Amount = decimal.RequireFromString("0.4") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := base
			tt.modify(&candidate)
			assert.Equal(t, tt.want, criteria.Matches(&candidate))
		})
	}
}

func TestSortBook(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	orders := func() []models.Order {
		return []models.Order{
			{ID: 1, Price: decimal.NewFromInt(100), CreatedAt: t0.Add(3 * time.Second)},
			{ID: 2, Price: decimal.NewFromInt(120), CreatedAt: t0.Add(2 * time.Second)},
			{ID: 3, Price: decimal.NewFromInt(100), CreatedAt: t0.Add(1 * time.Second)},
			{ID: 5, Price: decimal.NewFromInt(110), CreatedAt: t0},
			{ID: 4, Price: decimal.NewFromInt(110), CreatedAt: t0},
		}
	}

	tests := []struct {
		name string
		side models.Side
		want []int
	}{
		{name: "BuyHighestFirst", side: models.SideBuy, want: []int{2, 4, 5, 3, 1}},
		{name: "SellLowestFirst", side: models.SideSell, want: []int{3, 1, 4, 5, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := orders()
			SortBook(tt.side, book)
			ids := make([]int, len(book))
			for i, o := range book {
				ids[i] = o.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

type stubOrders struct {
	OrderStore
	candidate *models.Order
}

func (s stubOrders) FindMatchCandidate(ctx context.Context, c MatchCriteria) (*models.Order, error) {
	return s.candidate, nil
}

func TestFindMatch_RejectsIneligibleCandidate(t *testing.T) {
	order := &models.Order{
		ID: 2, UserID: 1, Symbol: "BTC", Side: models.SideBuy,
		Price: decimal.NewFromInt(10), Amount: decimal.NewFromInt(1), Status: models.StatusOpen,
	}

	got, err := findMatch(context.Background(), stubOrders{}, order)
	require.NoError(t, err)
	assert.Nil(t, got)

	self := *order
	_, err = findMatch(context.Background(), stubOrders{candidate: &self}, order)
	assert.ErrorIs(t, err, ErrInvalidState)

	counter := &models.Order{
		ID: 1, UserID: 5, Symbol: "BTC", Side: models.SideSell,
		Price: decimal.NewFromInt(10), Amount: decimal.NewFromInt(1), Status: models.StatusOpen,
	}
	got, err = findMatch(context.Background(), stubOrders{candidate: counter}, order)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ID)
}
