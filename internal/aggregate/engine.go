// Package aggregate groups normalized records into flat rows and into
// branch-total trees for treemaps.
package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/domain"
)

var ErrUnsupportedOperation = errors.New("unsupported aggregate operation")

// Operation is how a metric is folded within a group.
type Operation string

const (
	OpSum           Operation = "sum"
	OpCount         Operation = "count"
	OpCountDistinct Operation = "count_distinct"
)

// Metric is the measure being aggregated.
type Metric string

const (
	Amount    Metric = "valorfaturado"
	Quantity  Metric = "quant"
	Customers Metric = "codcli"
)

func (m Metric) numeric(r *domain.NormalizedRecord) (decimal.Decimal, bool) {
	switch m {
	case Amount:
		return r.Value, true
	case Quantity:
		return r.Units, true
	}
	return decimal.Zero, false
}

// key is the identity used by count_distinct.
func (m Metric) key(r *domain.NormalizedRecord) string {
	switch m {
	case Amount:
		return r.Value.String()
	case Quantity:
		return r.Units.String()
	case Customers:
		return strings.TrimSpace(r.CustomerID)
	}
	return ""
}

// DefaultOperation is sum for numeric metrics and count_distinct otherwise.
func (m Metric) DefaultOperation() Operation {
	if m == Customers {
		return OpCountDistinct
	}
	return OpSum
}

// GroupRow is one group of an aggregation. Keys follow the order of the
// requested dimensions.
type GroupRow struct {
	Keys  []string        `json:"keys"`
	Value decimal.Decimal `json:"value"`
}

type Engine struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Engine {
	return &Engine{log: log.Named("aggregate")}
}

var nopEngine = &Engine{log: zap.NewNop()}

// Aggregate groups with a no-op logger.
func Aggregate(records []domain.NormalizedRecord, groupKeys []Dimension, metric Metric, op Operation) ([]GroupRow, error) {
	return nopEngine.Aggregate(records, groupKeys, metric, op)
}

// Aggregate folds metric with op over the records sharing the same values
// of groupKeys. Records with an empty group value are left out. Rows come
// back in the order their group was first seen.
func (e *Engine) Aggregate(records []domain.NormalizedRecord, groupKeys []Dimension, metric Metric, op Operation) ([]GroupRow, error) {
	switch op {
	case OpSum:
		if metric != Amount && metric != Quantity {
			return nil, fmt.Errorf("%w: %s over %s", ErrUnsupportedOperation, op, metric)
		}
	case OpCount, OpCountDistinct:
		if metric != Amount && metric != Quantity && metric != Customers {
			return nil, fmt.Errorf("%w: %s over %s", ErrUnsupportedOperation, op, metric)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, op)
	}

	type group struct {
		keys     []string
		sum      decimal.Decimal
		count    int64
		distinct map[string]struct{}
	}
	groups := make(map[string]*group)
	var order []string
	skipped := 0

	for i := range records {
		r := &records[i]
		keys := make([]string, len(groupKeys))
		missing := false
		for j, d := range groupKeys {
			keys[j] = d.Value(r)
			if keys[j] == "" {
				missing = true
				break
			}
		}
		if missing {
			skipped++
			continue
		}

		id := strings.Join(keys, "\x00")
		g, ok := groups[id]
		if !ok {
			g = &group{keys: keys, distinct: make(map[string]struct{})}
			groups[id] = g
			order = append(order, id)
		}
		switch op {
		case OpSum:
			v, _ := metric.numeric(r)
			g.sum = g.sum.Add(v)
		case OpCount:
			g.count++
		case OpCountDistinct:
			if k := metric.key(r); k != "" {
				g.distinct[k] = struct{}{}
			}
		}
	}

	if skipped > 0 {
		e.log.Debug("records without group value skipped",
			zap.Int("skipped", skipped),
			zap.Int("input", len(records)))
	}

	out := make([]GroupRow, 0, len(order))
	for _, id := range order {
		g := groups[id]
		row := GroupRow{Keys: g.keys}
		switch op {
		case OpSum:
			row.Value = g.sum
		case OpCount:
			row.Value = decimal.NewFromInt(g.count)
		case OpCountDistinct:
			row.Value = decimal.NewFromInt(int64(len(g.distinct)))
		}
		out = append(out, row)
	}
	return out, nil
}
