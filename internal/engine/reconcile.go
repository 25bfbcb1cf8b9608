package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"
	"quantdinger/internal/store"
)

// PositionReconciler turns fill events into reconcile outcomes: the
// order's next status plus the position and trade effects that must
// commit with it. It holds no state of its own; all arithmetic runs
// inside the store's reconcile transaction.
type PositionReconciler struct{}

// NewPositionReconciler creates a PositionReconciler.
func NewPositionReconciler() *PositionReconciler {
	return &PositionReconciler{}
}

// Outcome returns the ReconcileFunc for one fill event.
func (r *PositionReconciler) Outcome(ev domain.FillEvent) store.ReconcileFunc {
	return func(order *domain.PendingOrder, pos *domain.Position) (*store.ReconcileOutcome, error) {
		switch ev.Kind {
		case domain.FillKindFill, domain.FillKindPartial:
			return r.applyFill(ev, order, pos)
		case domain.FillKindCancelled:
			return &store.ReconcileOutcome{
				OrderStatus: domain.StatusCancelled,
				Reason:      ev.Reason,
			}, nil
		case domain.FillKindRejected:
			return &store.ReconcileOutcome{
				OrderStatus: domain.StatusRejected,
				Reason:      ev.Reason,
			}, nil
		default:
			return nil, fmt.Errorf("unknown fill event kind %q", ev.Kind)
		}
	}
}

func (r *PositionReconciler) applyFill(ev domain.FillEvent, order *domain.PendingOrder, pos *domain.Position) (*store.ReconcileOutcome, error) {
	out := &store.ReconcileOutcome{OrderStatus: domain.StatusPartiallyFilled}
	if ev.Kind == domain.FillKindFill {
		out.OrderStatus = domain.StatusFilled
	}

	qty := decimal.NewFromInt(ev.Qty)
	trade := &domain.Trade{
		OrderID:    order.ID,
		StrategyID: order.StrategyID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Qty:        ev.Qty,
		Price:      ev.Price,
		Value:      ev.Price.Mul(qty),
		CreatedAt:  ev.At,
	}
	out.Trade = trade

	now := time.Now().UTC()
	switch order.Side {
	case domain.OrderSideBuy:
		if pos == nil {
			pos = &domain.Position{
				Account: order.Account,
				Symbol:  order.Symbol,
				Market:  order.Market,
			}
		}
		// Weighted average entry over the enlarged position.
		oldQty := decimal.NewFromInt(pos.Qty)
		newQty := pos.Qty + ev.Qty
		cost := pos.AvgEntry.Mul(oldQty).Add(ev.Price.Mul(qty))
		pos.AvgEntry = cost.Div(decimal.NewFromInt(newQty))
		pos.Qty = newQty
		pos.LastPrice = ev.Price
		pos.UpdatedAt = now
		out.Position = pos

	case domain.OrderSideSell:
		if pos == nil || pos.Qty <= 0 {
			// A sell fill with no local position cannot be applied to
			// holdings. The trade is still recorded.
			out.Warning = fmt.Sprintf("sell fill of %d %s with no local position", ev.Qty, order.Symbol)
			return out, nil
		}
		sold := ev.Qty
		if sold > pos.Qty {
			out.Warning = fmt.Sprintf("sell fill of %d %s exceeds position of %d, clamping to zero",
				ev.Qty, order.Symbol, pos.Qty)
			sold = pos.Qty
		}
		soldDec := decimal.NewFromInt(sold)
		profit := ev.Price.Sub(pos.AvgEntry).Mul(soldDec)
		trade.Profit = decimal.NullDecimal{Decimal: profit, Valid: true}

		pos.Qty -= sold
		pos.LastPrice = ev.Price
		pos.UpdatedAt = now
		if pos.Qty == 0 {
			out.DeletePosition = true
		} else {
			out.Position = pos
		}

	default:
		return nil, fmt.Errorf("unknown order side %q", order.Side)
	}
	return out, nil
}
