// Package normalize turns raw cube rows into typed records. Rows whose date
// or amount cannot be read are dropped; the rest of the batch survives.
package normalize

import (
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/domain"
	"github.com/empresamix/mixbi/internal/metrics"
)

// Report counts what a Normalize call did with its input.
type Report struct {
	Input         int
	Kept          int
	BadDate       int
	BadAmount     int
	BadQuantity   int
	UnknownStatus int
}

type Normalizer struct {
	log     *zap.Logger
	metrics *metrics.Collector
}

func New(log *zap.Logger, m *metrics.Collector) *Normalizer {
	return &Normalizer{log: log.Named("normalize"), metrics: m}
}

// Normalize parses records with a no-op logger.
func Normalize(records []domain.FactRecord) []domain.NormalizedRecord {
	out, _ := New(zap.NewNop(), nil).Run(records)
	return out
}

func (n *Normalizer) Normalize(records []domain.FactRecord) []domain.NormalizedRecord {
	out, _ := n.Run(records)
	return out
}

// Run normalizes records and reports how many were dropped or patched.
func (n *Normalizer) Run(records []domain.FactRecord) ([]domain.NormalizedRecord, Report) {
	rep := Report{Input: len(records)}
	out := make([]domain.NormalizedRecord, 0, len(records))

	for i, rec := range records {
		date, err := ParseDate(rec.EmissionDate)
		if err != nil {
			rep.BadDate++
			n.log.Debug("drop row", zap.Int("row", i), zap.Error(err))
			continue
		}
		value, err := ParseAmount(rec.Amount)
		if err != nil {
			rep.BadAmount++
			n.log.Debug("drop row", zap.Int("row", i), zap.Error(err))
			continue
		}
		units, err := ParseAmount(rec.Quantity)
		if err != nil {
			rep.BadQuantity++
			n.log.Debug("quantity reset to zero", zap.Int("row", i), zap.Error(err))
		}
		status, ok := ParseStatus(rec.Status)
		if !ok && rec.Status != "" {
			rep.UnknownStatus++
		}

		out = append(out, domain.NormalizedRecord{
			FactRecord: rec,
			Date:       date,
			Year:       date.Year(),
			Value:      value,
			Units:      units,
			StatusID:   status,
		})
	}
	rep.Kept = len(out)

	n.metrics.RecordDropped("bad_date", rep.BadDate)
	n.metrics.RecordDropped("bad_amount", rep.BadAmount)
	if dropped := rep.BadDate + rep.BadAmount; dropped > 0 || rep.BadQuantity > 0 || rep.UnknownStatus > 0 {
		n.log.Warn("malformed rows",
			zap.Int("input", rep.Input),
			zap.Int("kept", rep.Kept),
			zap.Int("bad_date", rep.BadDate),
			zap.Int("bad_amount", rep.BadAmount),
			zap.Int("bad_quantity", rep.BadQuantity),
			zap.Int("unknown_status", rep.UnknownStatus),
		)
	}
	return out, rep
}

// Facts recovers the raw rows behind normalized ones.
func Facts(records []domain.NormalizedRecord) []domain.FactRecord {
	out := make([]domain.FactRecord, len(records))
	for i, r := range records {
		out[i] = r.Fact()
	}
	return out
}
