package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/domain"
	"github.com/empresamix/mixbi/internal/format"
)

const MaxLevels = 3

var (
	ErrInvalidLevels = errors.New("tree needs between 1 and 3 known levels")
	ErrUnknownPreset = errors.New("unknown level preset")
	ErrUnknownMetric = errors.New("unknown metric")
)

// BuildTree builds with a no-op logger.
func BuildTree(records []domain.NormalizedRecord, levels []Dimension, metric Metric) ([]domain.AggregateNode, error) {
	return nopEngine.BuildTree(records, levels, metric)
}

// BuildTree aggregates records into a tree with one level per dimension.
// Leaves take the metric's default operation; every parent is the sum of
// its children. Nodes come out parent first, children in first-seen order.
func (e *Engine) BuildTree(records []domain.NormalizedRecord, levels []Dimension, metric Metric) ([]domain.AggregateNode, error) {
	if len(levels) == 0 || len(levels) > MaxLevels {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLevels, len(levels))
	}
	for _, d := range levels {
		if !d.Valid() {
			return nil, fmt.Errorf("%w: unknown dimension %q", ErrInvalidLevels, d)
		}
	}
	if metric != Amount && metric != Quantity && metric != Customers {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	leaves, err := e.Aggregate(records, levels, metric, metric.DefaultOperation())
	if err != nil {
		return nil, err
	}
	if kept := countCovered(records, levels); kept < len(records) {
		e.log.Info("records missing a tree level excluded",
			zap.Int("excluded", len(records)-kept),
			zap.Int("input", len(records)))
	}

	root := &treeNode{children: map[string]*treeNode{}}
	for _, row := range leaves {
		n := root
		for depth, key := range row.Keys {
			n = n.child(key, levels[depth], row.Keys[:depth+1])
			n.value = n.value.Add(row.Value)
		}
	}

	out := make([]domain.AggregateNode, 0, len(leaves)*len(levels))
	var walk func(n *treeNode, parent string, level int)
	walk = func(n *treeNode, parent string, level int) {
		for _, c := range n.ordered {
			out = append(out, domain.AggregateNode{
				ID:     c.id,
				Label:  c.label,
				Parent: parent,
				Level:  level,
				Value:  c.value,
				Text:   c.label + " " + FormatValue(metric, c.value),
			})
			walk(c, c.id, level+1)
		}
	}
	walk(root, "", 1)
	return out, nil
}

type treeNode struct {
	id       string
	label    string
	value    decimal.Decimal
	children map[string]*treeNode
	ordered  []*treeNode
}

// idEscaper keeps '_' unambiguous as the path separator in node ids.
var idEscaper = strings.NewReplacer(`\`, `\\`, "_", `\_`)

func nodeID(d Dimension, path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = idEscaper.Replace(p)
	}
	return d.tag() + "_" + strings.Join(parts, "_")
}

func (n *treeNode) child(key string, d Dimension, path []string) *treeNode {
	if c, ok := n.children[key]; ok {
		return c
	}
	c := &treeNode{
		id:       nodeID(d, path),
		label:    key,
		children: map[string]*treeNode{},
	}
	n.children[key] = c
	n.ordered = append(n.ordered, c)
	return c
}

func countCovered(records []domain.NormalizedRecord, levels []Dimension) int {
	n := 0
	for i := range records {
		ok := true
		for _, d := range levels {
			if d.Value(&records[i]) == "" {
				ok = false
				break
			}
		}
		if ok {
			n++
		}
	}
	return n
}

// FormatValue renders a node value for display: currency for amounts, a
// counted unit otherwise.
func FormatValue(metric Metric, v decimal.Decimal) string {
	switch metric {
	case Customers:
		return format.Count(v, "clientes")
	case Quantity:
		return format.Count(v, "un")
	default:
		return format.Currency(v)
	}
}
