package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/empresamix/mixbi/internal/aggregate"
	"github.com/empresamix/mixbi/internal/pipeline"
	"github.com/empresamix/mixbi/internal/repository"
)

// BreakerReporter exposes the per-cube circuit breaker states.
type BreakerReporter interface {
	BreakerStates() map[string]string
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	pipeline *pipeline.Service
	fetchLog *repository.FetchLogRepo
	breakers BreakerReporter
	log      *zap.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

// writeViewError maps contract violations to 400 and anything else to 500.
func (h *Handlers) writeViewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aggregate.ErrUnknownPreset),
		errors.Is(err, aggregate.ErrInvalidLevels),
		errors.Is(err, aggregate.ErrUnknownMetric),
		errors.Is(err, aggregate.ErrUnsupportedOperation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("build view", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// parseYears reads "2023,2024". Empty input and "Todos" select no filter.
func parseYears(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "todos") {
		return nil, nil
	}
	var years []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		y, err := strconv.Atoi(part)
		if err != nil || y < 1900 || y > 9999 {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}

// --- views ---

func (h *Handlers) GetRFV(w http.ResponseWriter, r *http.Request) {
	years, err := parseYears(r.URL.Query().Get("years"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.pipeline.RFV(r.Context(), years))
}

func (h *Handlers) GetTerritoryTreemap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := h.pipeline.Territory(r.Context(), q.Get("levels"), q.Get("metric"))
	if err != nil {
		h.writeViewError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetProductMixTreemap(w http.ResponseWriter, r *http.Request) {
	view, err := h.pipeline.ProductMix(r.Context())
	if err != nil {
		h.writeViewError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// GetTreemapOptions lists the presets and metrics the territory treemap accepts.
func (h *Handlers) GetTreemapOptions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]string{
		"presets": aggregate.TerritoryPresets(),
		"metrics": aggregate.MetricNames(),
	})
}

func (h *Handlers) GetProductionKPIs(w http.ResponseWriter, r *http.Request) {
	years, err := parseYears(r.URL.Query().Get("years"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.pipeline.ProductionKPIs(r.Context(), years))
}

func (h *Handlers) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.pipeline.OrderStatus(r.Context()))
}

// --- fetch log ---

func (h *Handlers) ListFetches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.FetchLogFilter{
		Cube:   q.Get("cube"),
		Status: q.Get("status"),
		From:   parseTime(q.Get("from")),
		To:     parseTime(q.Get("to")),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	entries, total, err := h.fetchLog.List(r.Context(), filter)
	if err != nil {
		h.log.Error("list fetches", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"fetches": entries,
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}

func (h *Handlers) GetFetchSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.fetchLog.Summary(r.Context())
	if err != nil {
		h.log.Error("fetch summary", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// --- health ---

// Health reports "degraded" while any cube breaker is not closed. The
// process itself is still serving, so the status code stays 200.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	breakers := map[string]string{}
	if h.breakers != nil {
		breakers = h.breakers.BreakerStates()
	}
	for _, state := range breakers {
		if state != "closed" {
			status = "degraded"
		}
	}
	cubes := h.pipeline.Cubes()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"breakers": breakers,
		"cubes": map[string]string{
			"invoices": cubes.Invoices,
			"budgets":  cubes.Budgets,
			"orders":   cubes.Orders,
		},
	})
}
