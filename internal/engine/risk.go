package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"quantdinger/internal/domain"
	"quantdinger/internal/store"
)

// RiskManager enforces pre-trade limits before an order is accepted into
// the queue.
type RiskManager struct {
	maxOrderQty  int64
	maxDailyLoss decimal.Decimal
	trades       store.TradeStore
}

// NewRiskManager creates a RiskManager.
//
//   - maxOrderQty: maximum quantity for a single order; zero disables.
//   - maxDailyLoss: maximum realized loss per UTC day before new orders
//     are refused; zero disables.
func NewRiskManager(maxOrderQty int64, maxDailyLoss decimal.Decimal, trades store.TradeStore) *RiskManager {
	return &RiskManager{
		maxOrderQty:  maxOrderQty,
		maxDailyLoss: maxDailyLoss,
		trades:       trades,
	}
}

// CheckOrder evaluates the proposed order against the configured limits.
// Violations fail with domain.ErrValidation.
func (rm *RiskManager) CheckOrder(ctx context.Context, order *domain.PendingOrder) error {
	if rm.maxOrderQty > 0 && order.Qty > rm.maxOrderQty {
		return fmt.Errorf("%w: qty %d exceeds per-order limit %d", domain.ErrValidation, order.Qty, rm.maxOrderQty)
	}

	if rm.maxDailyLoss.IsPositive() {
		today := time.Now().UTC().Format("2006-01-02")
		trades, err := rm.trades.ListTradesForDay(ctx, today)
		if err != nil {
			return fmt.Errorf("checking daily loss: %w", err)
		}
		realized := decimal.Zero
		for _, tr := range trades {
			if tr.Profit.Valid {
				realized = realized.Add(tr.Profit.Decimal)
			}
		}
		if realized.IsNegative() && realized.Neg().GreaterThanOrEqual(rm.maxDailyLoss) {
			return fmt.Errorf("%w: daily realized loss %s reached the %s limit",
				domain.ErrValidation, realized.Neg(), rm.maxDailyLoss)
		}
	}
	return nil
}
