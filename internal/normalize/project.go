package normalize

import (
	"fmt"
	"sort"
	"time"

	"github.com/empresamix/mixbi/internal/domain"
)

// Budgets projects rows of the budget cube. Rows carry no budget number of
// their own, so the document number is used, or the row position when that
// is blank too.
func Budgets(records []domain.NormalizedRecord) []domain.Budget {
	out := make([]domain.Budget, 0, len(records))
	for i, r := range records {
		id := r.InvoiceID
		if id == "" {
			id = fmt.Sprintf("row-%d", i)
		}
		out = append(out, domain.Budget{
			ID:      id,
			OrderID: r.LinkedOrderID(),
			Date:    r.Date,
			Amount:  r.Value,
			Status:  r.StatusID,
		})
	}
	return out
}

// Orders projects rows of the order cube. Rows without an order number are
// skipped since nothing can join to them.
func Orders(records []domain.NormalizedRecord) []domain.Order {
	out := make([]domain.Order, 0, len(records))
	for _, r := range records {
		id := r.LinkedOrderID()
		if id == "" {
			continue
		}
		out = append(out, domain.Order{
			ID:     id,
			Date:   r.Date,
			Status: domain.OrderStatus(r.StatusID),
		})
	}
	return out
}

func Invoices(records []domain.NormalizedRecord) []domain.Invoice {
	out := make([]domain.Invoice, 0, len(records))
	for _, r := range records {
		out = append(out, domain.Invoice{
			ID:      r.InvoiceID,
			OrderID: r.LinkedOrderID(),
			Date:    r.Date,
			Amount:  r.Value,
		})
	}
	return out
}

// FilterYears keeps records whose year is listed. An empty list keeps none.
func FilterYears(records []domain.NormalizedRecord, years []int) []domain.NormalizedRecord {
	want := make(map[int]struct{}, len(years))
	for _, y := range years {
		want[y] = struct{}{}
	}
	out := make([]domain.NormalizedRecord, 0, len(records))
	for _, r := range records {
		if _, ok := want[r.Year]; ok {
			out = append(out, r)
		}
	}
	return out
}

// NarrowYears is FilterYears for optional narrowing: an empty list keeps
// every record.
func NarrowYears(records []domain.NormalizedRecord, years []int) []domain.NormalizedRecord {
	if len(years) == 0 {
		return records
	}
	return FilterYears(records, years)
}

// FilterSince keeps records dated on or after start.
func FilterSince(records []domain.NormalizedRecord, start time.Time) []domain.NormalizedRecord {
	out := make([]domain.NormalizedRecord, 0, len(records))
	for _, r := range records {
		if !r.Date.Before(start) {
			out = append(out, r)
		}
	}
	return out
}

// Years lists the distinct years present, newest first.
func Years(records []domain.NormalizedRecord) []int {
	seen := make(map[int]struct{})
	for _, r := range records {
		seen[r.Year] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for y := range seen {
		out = append(out, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
