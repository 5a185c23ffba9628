package notify

import (
	"context"
	"errors"

	"github.com/xtrntr/spotexchange/internal/exchange"
)

// Multi fans every event out to all of its notifiers. One failing sink does
// not stop delivery to the others; their errors are joined.
type Multi []exchange.Notifier

func (m Multi) OrderBookChanged(ctx context.Context, symbol string) error {
	var errs []error
	for _, n := range m {
		if err := n.OrderBookChanged(ctx, symbol); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) TradeOccurred(ctx context.Context, ev exchange.TradeEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.TradeOccurred(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
