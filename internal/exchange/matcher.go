package exchange

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/models"
)

// MatchCriteria describes the resting order a new order can trade against.
// Price and amount must be exactly equal; there are no partial fills.
type MatchCriteria struct {
	Symbol        string
	Side          models.Side // side of the resting orders searched
	Price         decimal.Decimal
	Amount        decimal.Decimal
	ExcludeUserID int
}

// CriteriaFor builds the match criteria of a newly created order
func CriteriaFor(order *models.Order) MatchCriteria {
	return MatchCriteria{
		Symbol:        order.Symbol,
		Side:          order.Side.Opposite(),
		Price:         order.Price,
		Amount:        order.Amount,
		ExcludeUserID: order.UserID,
	}
}

// Matches reports whether candidate is an eligible counter-order
func (c MatchCriteria) Matches(candidate *models.Order) bool {
	return candidate.IsOpen() &&
		candidate.Symbol == c.Symbol &&
		candidate.Side == c.Side &&
		candidate.UserID != c.ExcludeUserID &&
		candidate.Price.Equal(c.Price) &&
		candidate.Amount.Equal(c.Amount)
}

// SortBook orders one side of the book by priority.
// Buy: highest price first. Sell: lowest price first. Ties go to the earliest order.
func SortBook(side models.Side, orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.Price.Equal(b.Price) {
			if side == models.SideBuy {
				return a.Price.GreaterThan(b.Price)
			}
			return a.Price.LessThan(b.Price)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// findMatch looks up at most one counter-order for a new order
func findMatch(ctx context.Context, orders OrderStore, order *models.Order) (*models.Order, error) {
	criteria := CriteriaFor(order)
	candidate, err := orders.FindMatchCandidate(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to find match candidate: %w", err)
	}
	if candidate == nil {
		return nil, nil
	}
	if candidate.ID == order.ID || !criteria.Matches(candidate) {
		return nil, fmt.Errorf("order %d is not a valid counter-order for %d: %w", candidate.ID, order.ID, ErrInvalidState)
	}
	return candidate, nil
}
