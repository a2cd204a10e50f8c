// Package kpi derives the budget → order → invoice production funnel
// indicators.
package kpi

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/domain"
)

// WindowYears is how many full years before the current one the production
// analysis looks back.
const WindowYears = 4

type Calculator struct {
	clock clockwork.Clock
	log   *zap.Logger
}

func New(clock clockwork.Clock, log *zap.Logger) *Calculator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Calculator{clock: clock, log: log.Named("kpi")}
}

// AnalysisWindow returns Jan 1 of the year WindowYears before now.
func AnalysisWindow(now time.Time) time.Time {
	return time.Date(now.Year()-WindowYears, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Window is AnalysisWindow evaluated on the calculator's clock.
func (c *Calculator) Window() time.Time {
	return AnalysisWindow(c.clock.Now())
}

// ComputeProductionKPIs evaluates the funnel over inputs already limited to
// the same window. Joins on order id keep every matching pair, so an order
// referenced by two budgets counts twice. Every undefined ratio is 0.
func (c *Calculator) ComputeProductionKPIs(budgets []domain.Budget, orders []domain.Order, invoices []domain.Invoice) domain.KPISnapshot {
	var snap domain.KPISnapshot

	// Approval rate over budgets that left analysis.
	for _, b := range budgets {
		if b.Status == domain.BudgetInAnalysis {
			continue
		}
		snap.FinalizedBudgets++
		if b.Status != domain.BudgetCancelled {
			snap.ApprovedBudgets++
		}
	}
	if snap.FinalizedBudgets > 0 {
		snap.ApprovalRate = float64(snap.ApprovedBudgets) / float64(snap.FinalizedBudgets) * 100
	} else {
		c.degenerate("approval_rate", "no finalized budgets")
	}

	ordersByID := make(map[string][]domain.Order, len(orders))
	for _, o := range orders {
		if o.ID == "" {
			continue
		}
		ordersByID[o.ID] = append(ordersByID[o.ID], o)
	}

	// Budget → order lag and average approved budget.
	var lagSum float64
	approvedTotal := decimal.Zero
	for _, b := range budgets {
		if b.OrderID == "" {
			continue
		}
		snap.LinkedBudgets++
		approvedTotal = approvedTotal.Add(b.Amount)
		for _, o := range ordersByID[b.OrderID] {
			lagSum += days(b.Date, o.Date)
			snap.BudgetOrderPairs++
		}
	}
	if snap.BudgetOrderPairs > 0 {
		snap.BudgetToOrderDays = lagSum / float64(snap.BudgetOrderPairs)
	} else {
		c.degenerate("budget_to_order_days", "no budget/order pairs")
	}
	if snap.LinkedBudgets > 0 {
		snap.AvgApprovedBudget, _ = approvedTotal.Div(decimal.NewFromInt(int64(snap.LinkedBudgets))).Float64()
	} else {
		c.degenerate("avg_approved_budget", "no budgets linked to an order")
	}

	// Order → invoice lag over invoiced orders.
	invoicesByOrder := make(map[string][]domain.Invoice)
	total := decimal.Zero
	viaOrders := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.Amount)
		if inv.OrderID == "" {
			continue
		}
		viaOrders = viaOrders.Add(inv.Amount)
		invoicesByOrder[inv.OrderID] = append(invoicesByOrder[inv.OrderID], inv)
	}
	lagSum = 0
	for _, o := range orders {
		if o.Status != domain.OrderInvoiced || o.ID == "" {
			continue
		}
		for _, inv := range invoicesByOrder[o.ID] {
			lagSum += days(o.Date, inv.Date)
			snap.OrderInvoicePairs++
		}
	}
	if snap.OrderInvoicePairs > 0 {
		snap.OrderToInvoiceDays = lagSum / float64(snap.OrderInvoicePairs)
	} else {
		c.degenerate("order_to_invoice_days", "no invoiced order/invoice pairs")
	}

	if total.IsPositive() {
		snap.RevenueViaOrdersPct, _ = viaOrders.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	} else {
		c.degenerate("revenue_via_orders_pct", "total invoiced amount is not positive")
	}

	c.log.Info("production kpis computed",
		zap.Int("budgets", len(budgets)),
		zap.Int("orders", len(orders)),
		zap.Int("invoices", len(invoices)),
		zap.Float64("approval_rate", snap.ApprovalRate),
		zap.Int("budget_order_pairs", snap.BudgetOrderPairs),
		zap.Int("order_invoice_pairs", snap.OrderInvoicePairs),
	)
	return snap
}

func (c *Calculator) degenerate(kpi, reason string) {
	c.log.Info("kpi defaults to zero", zap.String("kpi", kpi), zap.String("reason", reason))
}

// days is the whole-day difference to - from.
func days(from, to time.Time) float64 {
	return float64(int(to.Sub(from).Hours() / 24))
}
