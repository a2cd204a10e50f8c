// Package rfv computes recency, frequency and value per customer.
package rfv

import (
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/domain"
	"github.com/empresamix/mixbi/internal/normalize"
)

type Calculator struct {
	clock clockwork.Clock
	log   *zap.Logger
}

func New(clock clockwork.Clock, log *zap.Logger) *Calculator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Calculator{clock: clock, log: log.Named("rfv")}
}

type accumulator struct {
	last     time.Time
	invoices map[string]struct{}
	unnamed  int
	monetary decimal.Decimal
}

// Compute returns one segment per customer with purchases in years, sorted
// by customer id. Recency is the number of whole days from the latest
// purchase to now, never negative. Frequency counts distinct invoices; a row
// without an invoice number counts as a purchase of its own.
func (c *Calculator) Compute(records []domain.NormalizedRecord, years []int) []domain.CustomerSegment {
	if len(years) == 0 {
		c.log.Info("no years selected")
		return []domain.CustomerSegment{}
	}
	filtered := normalize.FilterYears(records, years)
	if len(filtered) == 0 {
		c.log.Info("no records in selected years", zap.Ints("years", years))
		return []domain.CustomerSegment{}
	}

	byCustomer := make(map[string]*accumulator)
	skipped := 0
	for _, r := range filtered {
		id := strings.TrimSpace(r.CustomerID)
		if id == "" {
			skipped++
			continue
		}
		a, ok := byCustomer[id]
		if !ok {
			a = &accumulator{invoices: make(map[string]struct{})}
			byCustomer[id] = a
		}
		if r.Date.After(a.last) {
			a.last = r.Date
		}
		if inv := strings.TrimSpace(r.InvoiceID); inv != "" {
			a.invoices[inv] = struct{}{}
		} else {
			a.unnamed++
		}
		a.monetary = a.monetary.Add(r.Value)
	}
	if skipped > 0 {
		c.log.Warn("records without customer id skipped", zap.Int("skipped", skipped))
	}

	now := c.clock.Now()
	out := make([]domain.CustomerSegment, 0, len(byCustomer))
	for id, a := range byCustomer {
		out = append(out, domain.CustomerSegment{
			CustomerID:   id,
			RecencyDays:  daysBetween(a.last, now),
			Frequency:    len(a.invoices) + a.unnamed,
			Monetary:     a.monetary,
			LastPurchase: a.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

func daysBetween(from, to time.Time) int {
	d := int(to.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// Summary holds the averages shown above the RFV table.
type Summary struct {
	Customers     int             `json:"clientes"`
	AvgRecency    float64         `json:"recencia_media"`
	AvgFrequency  float64         `json:"frequencia_media"`
	AvgTicket     decimal.Decimal `json:"ticket_medio"`
	TotalMonetary decimal.Decimal `json:"valor_total"`
}

// Summarize averages the segments. The ticket is the mean monetary value
// per customer. An empty input yields zeros.
func Summarize(segments []domain.CustomerSegment) Summary {
	s := Summary{Customers: len(segments), AvgTicket: decimal.Zero, TotalMonetary: decimal.Zero}
	if len(segments) == 0 {
		return s
	}
	var recency, frequency int
	for _, seg := range segments {
		recency += seg.RecencyDays
		frequency += seg.Frequency
		s.TotalMonetary = s.TotalMonetary.Add(seg.Monetary)
	}
	n := len(segments)
	s.AvgRecency = float64(recency) / float64(n)
	s.AvgFrequency = float64(frequency) / float64(n)
	s.AvgTicket = s.TotalMonetary.Div(decimal.NewFromInt(int64(n)))
	return s
}
