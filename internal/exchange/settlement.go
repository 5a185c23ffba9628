package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/spotexchange/internal/models"
)

// settlement is the outcome of one executed trade
type settlement struct {
	trade         *models.Trade
	buyerBalance  decimal.Decimal
	sellerBalance decimal.Decimal
}

// events returns one TradeEvent per party
func (s *settlement) events() []TradeEvent {
	return []TradeEvent{
		{Trade: *s.trade, UserID: s.trade.BuyerID, Side: models.SideBuy, Balance: s.buyerBalance},
		{Trade: *s.trade, UserID: s.trade.SellerID, Side: models.SideSell, Balance: s.sellerBalance},
	}
}

// settle executes a trade between a new order and the resting order it matched.
// It must run inside the same unit of work that created newOrder.
func (e *Exchange) settle(ctx context.Context, uow UnitOfWork, newOrder, resting *models.Order) (*settlement, error) {
	buy, sell := newOrder, resting
	if newOrder.Side == models.SideSell {
		buy, sell = resting, newOrder
	}

	// The resting order sets the price; amounts are equal by construction.
	price := resting.Price
	amount := newOrder.Amount
	total := models.Mul(price, amount)
	commission := models.Mul(total, e.commissionRate)

	ledger := uow.Ledger()

	if buy == newOrder {
		if refund := buy.Total().Sub(total); refund.IsPositive() {
			if err := ledger.CreditFunds(ctx, buy.UserID, refund); err != nil {
				return nil, fmt.Errorf("failed to refund buyer: %w", err)
			}
		}
	}
	if err := ledger.CreditAsset(ctx, buy.UserID, buy.Symbol, amount); err != nil {
		return nil, fmt.Errorf("failed to credit buyer asset: %w", err)
	}
	if err := ledger.SettleAssetRelease(ctx, sell.UserID, sell.Symbol, amount); err != nil {
		return nil, fmt.Errorf("failed to release seller asset: %w", err)
	}
	if err := ledger.CreditFunds(ctx, sell.UserID, total.Sub(commission)); err != nil {
		return nil, fmt.Errorf("failed to credit seller proceeds: %w", err)
	}

	orders := uow.Orders()
	if err := orders.MarkFilled(ctx, newOrder); err != nil {
		return nil, fmt.Errorf("failed to fill order %d: %w", newOrder.ID, err)
	}
	if err := orders.MarkFilled(ctx, resting); err != nil {
		return nil, fmt.Errorf("failed to fill order %d: %w", resting.ID, err)
	}

	trade, err := uow.Trades().CreateTrade(ctx, &models.Trade{
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyerID:     buy.UserID,
		SellerID:    sell.UserID,
		Symbol:      buy.Symbol,
		Price:       price,
		Amount:      amount,
		Total:       total,
		Commission:  commission,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	buyerBalance, err := ledger.Balance(ctx, buy.UserID)
	if err != nil {
		return nil, err
	}
	sellerBalance, err := ledger.Balance(ctx, sell.UserID)
	if err != nil {
		return nil, err
	}

	return &settlement{trade: trade, buyerBalance: buyerBalance, sellerBalance: sellerBalance}, nil
}
