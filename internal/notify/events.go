// Package notify delivers order book and trade events to clients. Every sink
// implements exchange.Notifier and is invoked after the transaction commits.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/exchange"
	"github.com/xtrntr/spotexchange/internal/models"
)

const (
	EventOrderBookUpdated = "orderbook.updated"
	EventOrderMatched     = "order.matched"
)

// OrderBookMessage tells subscribers to refetch a symbol's book
type OrderBookMessage struct {
	Event              string `json:"event"`
	Symbol             string `json:"symbol"`
	IsOrderBookUpdated bool   `json:"isOrderBookUpdated"`
}

// TradeView is a trade as seen by one of its parties
type TradeView struct {
	ID         int             `json:"id"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Total      decimal.Decimal `json:"total"`
	Commission decimal.Decimal `json:"commission"`
	Side       models.Side     `json:"side"`
	CreatedAt  time.Time       `json:"created_at"`
}

// UserView carries the party's balance after the trade
type UserView struct {
	ID      int             `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// TradeMessage is delivered privately to one party of a trade
type TradeMessage struct {
	Event string    `json:"event"`
	Trade TradeView `json:"trade"`
	User  UserView  `json:"user"`
}

func encodeOrderBook(symbol string) ([]byte, error) {
	data, err := json.Marshal(OrderBookMessage{Event: EventOrderBookUpdated, Symbol: symbol, IsOrderBookUpdated: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order book event: %w", err)
	}
	return data, nil
}

func encodeTrade(ev exchange.TradeEvent) ([]byte, error) {
	msg := TradeMessage{
		Event: EventOrderMatched,
		Trade: TradeView{
			ID:         ev.Trade.ID,
			Symbol:     ev.Trade.Symbol,
			Price:      ev.Trade.Price,
			Amount:     ev.Trade.Amount,
			Total:      ev.Trade.Total,
			Commission: ev.Trade.Commission,
			Side:       ev.Side,
			CreatedAt:  ev.Trade.CreatedAt,
		},
		User: UserView{ID: ev.UserID, Balance: ev.Balance},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trade event: %w", err)
	}
	return data, nil
}

// UserChannel is the private channel name of a user
func UserChannel(userID int) string {
	return fmt.Sprintf("user.%d", userID)
}

// OrderBookChannel is the public channel every book update goes to
const OrderBookChannel = "orderBook"
