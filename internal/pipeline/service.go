// Package pipeline wires the cube source, the normalizer and the analytical
// calculators into the views the dashboard asks for.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/aggregate"
	"github.com/empresamix/mixbi/internal/cube"
	"github.com/empresamix/mixbi/internal/domain"
	"github.com/empresamix/mixbi/internal/format"
	"github.com/empresamix/mixbi/internal/kpi"
	"github.com/empresamix/mixbi/internal/metrics"
	"github.com/empresamix/mixbi/internal/normalize"
	"github.com/empresamix/mixbi/internal/rfv"
)

// Cubes names the cube view behind each dataset.
type Cubes struct {
	Invoices string
	Budgets  string
	Orders   string
}

func DefaultCubes() Cubes {
	return Cubes{
		Invoices: "CUBO_FATURAMENTO",
		Budgets:  "CUBO_ORCAMENTO",
		Orders:   "CUBO_OS",
	}
}

type Option func(*Service)

func WithCubes(c Cubes) Option {
	return func(s *Service) { s.cubes = c }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// Service builds views on demand. It keeps no state between calls; caching
// belongs to the Source.
type Service struct {
	source  cube.Source
	cubes   Cubes
	clock   clockwork.Clock
	metrics *metrics.Collector
	log     *zap.Logger

	normalizer *normalize.Normalizer
	engine     *aggregate.Engine
	rfv        *rfv.Calculator
	kpi        *kpi.Calculator
}

func New(source cube.Source, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		source: source,
		cubes:  DefaultCubes(),
		clock:  clockwork.NewRealClock(),
		log:    log.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.normalizer = normalize.New(log, s.metrics)
	s.engine = aggregate.New(log)
	s.rfv = rfv.New(s.clock, log)
	s.kpi = kpi.New(s.clock, log)
	return s
}

// Cubes returns the cube names the service reads.
func (s *Service) Cubes() Cubes {
	return s.cubes
}

// DefaultYears is the selection used when the caller picks no year: the
// current year and the WindowYears before it, newest first.
func (s *Service) DefaultYears() []int {
	now := s.clock.Now().Year()
	years := make([]int, 0, kpi.WindowYears+1)
	for y := now; y >= now-kpi.WindowYears; y-- {
		years = append(years, y)
	}
	return years
}

type dataset struct {
	cube    string
	status  cube.Status
	records []domain.NormalizedRecord
}

func (s *Service) load(ctx context.Context, name string) dataset {
	res := s.source.Fetch(ctx, name)
	ds := dataset{cube: name, status: res.Status}
	if res.Status != cube.StatusOK {
		fields := []zap.Field{
			zap.String("cube", name),
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
		}
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		s.log.Warn("cube has no rows", fields...)
		return ds
	}

	ds.records = s.normalizer.Normalize(res.Records)
	return ds
}

// fold decides the view state from the datasets it was built from. A failed
// source wins over an empty one.
func (s *Service) fold(sets ...dataset) Meta {
	meta := Meta{
		State:       StateOK,
		Sources:     make(map[string]cube.Status, len(sets)),
		GeneratedAt: s.clock.Now().UTC(),
	}
	var failed []string
	empty := true
	for _, ds := range sets {
		meta.Sources[ds.cube] = ds.status
		if ds.status == cube.StatusFailed {
			failed = append(failed, ds.cube)
		}
		if len(ds.records) > 0 {
			empty = false
		}
	}
	switch {
	case len(failed) > 0:
		meta.State = StateUnavailable
		meta.Message = MessageUnavailable
		s.log.Warn("view unavailable", zap.Strings("failed", failed))
	case empty:
		meta.State = StateNoData
		meta.Message = MessageNoData
	}
	return meta
}

func noDataForPeriod(meta *Meta) {
	if meta.State == StateOK {
		meta.State = StateNoData
		meta.Message = MessageNoDataPeriod
	}
}

// RFV segments customers of the invoice cube over the given years. No years
// means DefaultYears.
func (s *Service) RFV(ctx context.Context, years []int) RFVView {
	if len(years) == 0 {
		years = s.DefaultYears()
	}
	ds := s.load(ctx, s.cubes.Invoices)
	view := RFVView{
		Meta:     s.fold(ds),
		Years:    years,
		Summary:  rfv.Summarize(nil),
		Segments: []domain.CustomerSegment{},
	}
	if view.State != StateOK {
		return view
	}

	segments := s.rfv.Compute(ds.records, years)
	if len(segments) == 0 {
		noDataForPeriod(&view.Meta)
		return view
	}
	view.Segments = segments
	view.Summary = rfv.Summarize(segments)
	return view
}

// Territory builds the invoice treemap for a preset or level list and a
// metric name. Empty arguments select "Região > Estado" and the invoiced
// amount.
func (s *Service) Territory(ctx context.Context, levels, metric string) (TreeView, error) {
	if strings.TrimSpace(levels) == "" {
		levels = aggregate.PresetRegionState
	}
	dims, err := aggregate.ParseLevels(levels)
	if err != nil {
		return TreeView{}, err
	}
	m := aggregate.Amount
	if strings.TrimSpace(metric) != "" {
		if m, err = aggregate.ParseMetric(metric); err != nil {
			return TreeView{}, err
		}
	}
	return s.tree(ctx, dims, m)
}

// ProductMix builds the salesperson > group > subgroup treemap of invoiced
// amounts.
func (s *Service) ProductMix(ctx context.Context) (TreeView, error) {
	return s.tree(ctx, aggregate.ProductMixLevels, aggregate.Amount)
}

func (s *Service) tree(ctx context.Context, dims []aggregate.Dimension, metric aggregate.Metric) (TreeView, error) {
	labels := make([]string, len(dims))
	for i, d := range dims {
		labels[i] = d.Label()
	}
	ds := s.load(ctx, s.cubes.Invoices)
	view := TreeView{
		Meta:      s.fold(ds),
		Levels:    labels,
		Metric:    string(metric),
		Total:     decimal.Zero,
		TotalText: aggregate.FormatValue(metric, decimal.Zero),
		Nodes:     []domain.AggregateNode{},
	}
	if view.State != StateOK {
		return view, nil
	}

	nodes, err := s.engine.BuildTree(ds.records, dims, metric)
	if err != nil {
		return TreeView{}, fmt.Errorf("build tree: %w", err)
	}
	if len(nodes) == 0 {
		noDataForPeriod(&view.Meta)
		return view, nil
	}
	for _, n := range nodes {
		if n.Parent == "" {
			view.Total = view.Total.Add(n.Value)
		}
	}
	view.Nodes = nodes
	view.TotalText = aggregate.FormatValue(metric, view.Total)
	return view, nil
}

// ProductionKPIs evaluates the funnel over the analysis window, optionally
// narrowed to the given years. Sources that loaded are still used when
// another failed; the view is then marked unavailable.
func (s *Service) ProductionKPIs(ctx context.Context, years []int) KPIView {
	budgets := s.load(ctx, s.cubes.Budgets)
	orders := s.load(ctx, s.cubes.Orders)
	invoices := s.load(ctx, s.cubes.Invoices)

	start := s.kpi.Window()
	window := func(ds dataset) []domain.NormalizedRecord {
		return normalize.NarrowYears(normalize.FilterSince(ds.records, start), years)
	}
	b := normalize.Budgets(window(budgets))
	o := normalize.Orders(window(orders))
	inv := normalize.Invoices(window(invoices))

	view := KPIView{
		Meta:        s.fold(budgets, orders, invoices),
		WindowStart: start,
		Years:       years,
		KPIs:        s.kpi.ComputeProductionKPIs(b, o, inv),
	}
	if len(b) == 0 && len(o) == 0 && len(inv) == 0 {
		noDataForPeriod(&view.Meta)
	}
	view.Display = kpiDisplay(view.KPIs)
	return view
}

func kpiDisplay(k domain.KPISnapshot) map[string]string {
	return map[string]string{
		"taxa_aprovacao":        format.Percentage(k.ApprovalRate, 1),
		"tempo_medio_orc_os":    format.Number(k.BudgetToOrderDays, 1) + " dias",
		"tempo_medio_os_fat":    format.Number(k.OrderToInvoiceDays, 1) + " dias",
		"valor_medio_aprovados": format.Currency(decimal.NewFromFloat(k.AvgApprovedBudget)),
		"perc_faturamento_os":   format.Percentage(k.RevenueViaOrdersPct, 1),
	}
}

// OrderStatus breaks the orders of the analysis window down by status.
func (s *Service) OrderStatus(ctx context.Context) StatusView {
	ds := s.load(ctx, s.cubes.Orders)
	start := s.kpi.Window()
	view := StatusView{
		Meta:        s.fold(ds),
		WindowStart: start,
		Statuses:    []domain.OrderStatusStat{},
	}
	if view.State != StateOK {
		return view
	}

	orders := normalize.Orders(normalize.FilterSince(ds.records, start))
	if len(orders) == 0 {
		noDataForPeriod(&view.Meta)
		return view
	}
	view.Total = len(orders)
	view.Statuses = s.kpi.StatusBreakdown(orders)
	return view
}
