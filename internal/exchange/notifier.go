package exchange

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/models"
)

// TradeEvent is one party's view of a completed trade
type TradeEvent struct {
	Trade   models.Trade
	UserID  int
	Side    models.Side
	Balance decimal.Decimal // the user's fiat balance right after settlement
}

// Notifier receives post-commit signals. Delivery is best effort: errors are
// logged and never undo the committed operation.
type Notifier interface {
	OrderBookChanged(ctx context.Context, symbol string) error
	TradeOccurred(ctx context.Context, ev TradeEvent) error
}

// NopNotifier drops every event
type NopNotifier struct{}

func (NopNotifier) OrderBookChanged(context.Context, string) error { return nil }

func (NopNotifier) TradeOccurred(context.Context, TradeEvent) error { return nil }
