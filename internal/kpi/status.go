package kpi

import (
	"github.com/empresamix/mixbi/internal/domain"
)

var lifecycle = []domain.OrderStatus{
	domain.OrderOpen,
	domain.OrderToManufacture,
	domain.OrderManufactured,
	domain.OrderToInvoice,
	domain.OrderInvoiced,
	domain.OrderCancelled,
}

// StatusBreakdown counts orders per lifecycle status, with each status'
// share of all orders and the mean age in days of its orders. Every known
// status is listed, in lifecycle order; unknown codes are appended after.
func (c *Calculator) StatusBreakdown(orders []domain.Order) []domain.OrderStatusStat {
	now := c.clock.Now()
	counts := make(map[domain.OrderStatus]int)
	ages := make(map[domain.OrderStatus]float64)
	for _, o := range orders {
		counts[o.Status]++
		ages[o.Status] += days(o.Date, now)
	}

	statuses := append([]domain.OrderStatus(nil), lifecycle...)
	known := make(map[domain.OrderStatus]bool, len(lifecycle))
	for _, s := range lifecycle {
		known[s] = true
	}
	for _, o := range orders {
		if !known[o.Status] {
			known[o.Status] = true
			statuses = append(statuses, o.Status)
		}
	}

	out := make([]domain.OrderStatusStat, 0, len(statuses))
	for _, s := range statuses {
		stat := domain.OrderStatusStat{Status: s, Label: s.Label(), Count: counts[s]}
		if stat.Count > 0 {
			stat.Share = float64(stat.Count) / float64(len(orders)) * 100
			stat.AvgAgeDays = ages[s] / float64(stat.Count)
		}
		out = append(out, stat)
	}
	if len(orders) == 0 {
		c.degenerate("order_status", "no orders")
	}
	return out
}
