package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/empresamix/mixbi/internal/cube"
	"github.com/empresamix/mixbi/internal/domain"
	"github.com/empresamix/mixbi/internal/metrics"
	"github.com/empresamix/mixbi/internal/pipeline"
	"github.com/empresamix/mixbi/internal/repository"
)

type stubSource map[string]cube.FetchResult

func (s stubSource) Fetch(_ context.Context, name string) cube.FetchResult {
	if res, ok := s[name]; ok {
		return res
	}
	return cube.FetchResult{Records: []domain.FactRecord{}, Status: cube.StatusFailed, Attempts: 3}
}

type stubBreakers map[string]string

func (s stubBreakers) BreakerStates() map[string]string { return s }

type testServer struct {
	handler  http.Handler
	fetchLog *repository.FetchLogRepo
	metrics  *metrics.Collector
}

func newTestServer(t *testing.T, src stubSource, breakers BreakerReporter) *testServer {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zaptest.NewLogger(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	ts := &testServer{
		fetchLog: repository.NewFetchLogRepo(db),
		metrics:  metrics.NewCollector("mixbi"),
	}
	ts.handler = NewRouter(Deps{
		Pipeline: pipeline.New(src, log, pipeline.WithClock(clock)),
		FetchLog: ts.fetchLog,
		Breakers: breakers,
		Metrics:  ts.metrics,
		Log:      log,
	})
	return ts
}

func (ts *testServer) get(t *testing.T, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec, body
}

func invoiceSource() stubSource {
	return stubSource{
		"CUBO_FATURAMENTO": {Status: cube.StatusOK, Attempts: 1, Records: []domain.FactRecord{
			{CustomerID: "1", InvoiceID: "N1", OrderID: "10", EmissionDate: "2024-06-10", Amount: "1.000,00",
				Region: "S", State: "SP", City: "Campinas", Salesperson: "Ana", Group: "Tintas", Subgroup: "Acrilica"},
			{CustomerID: "2", InvoiceID: "N2", EmissionDate: "2023-03-01", Amount: "250",
				Region: "S", State: "RJ", City: "Niteroi", Salesperson: "Ana", Group: "Vernizes", Subgroup: "Naval"},
		}},
		"CUBO_ORCAMENTO": {Status: cube.StatusOK, Attempts: 1, Records: []domain.FactRecord{
			{InvoiceID: "B1", OrderID: "10", EmissionDate: "2024-05-01", Amount: "900", Status: "1"},
		}},
		"CUBO_OS": {Status: cube.StatusEmpty, Attempts: 3, Records: []domain.FactRecord{}},
	}
}

func TestGetRFV(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)

	rec, body := ts.get(t, "/api/v1/rfv?years=2023,2024")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["state"])
	assert.Equal(t, []any{2023.0, 2024.0}, body["years"])
	assert.Len(t, body["segments"], 2)

	rec, body = ts.get(t, "/api/v1/rfv?years=2024")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["segments"], 1)

	rec, body = ts.get(t, "/api/v1/rfv?years=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "invalid year")

	assert.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.HTTPRequests.WithLabelValues("GET", "/api/v1/rfv", "200")))
}

func TestGetTerritoryTreemap(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)

	q := url.Values{"levels": {"Estado > Cidade"}, "metric": {"Valor Faturado"}}
	rec, body := ts.get(t, "/api/v1/treemaps/territory?"+q.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["state"])
	assert.Equal(t, []any{"Estado", "Cidade"}, body["levels"])
	assert.Equal(t, "R$ 1.250,00", body["total_text"])
	nodes := body["nodes"].([]any)
	require.Len(t, nodes, 4)
	assert.Equal(t, "u_SP", nodes[0].(map[string]any)["id"])
	assert.Equal(t, "c_SP_Campinas", nodes[1].(map[string]any)["id"])

	for _, target := range []string{
		"/api/v1/treemaps/territory?metric=Margem",
		"/api/v1/treemaps/territory?levels=planeta",
		"/api/v1/treemaps/territory?levels=regiao,uf,cidade,pais",
	} {
		rec, body := ts.get(t, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.NotEmpty(t, body["error"], target)
	}
}

func TestGetProductMixTreemap(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)

	rec, body := ts.get(t, "/api/v1/treemaps/product-mix")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Vendedor", "Grupo", "Subgrupo"}, body["levels"])
	nodes := body["nodes"].([]any)
	assert.Equal(t, "v_Ana", nodes[0].(map[string]any)["id"])
	assert.Equal(t, "Ana R$ 1.250,00", nodes[0].(map[string]any)["text"])
}

func TestGetTreemapOptions(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)

	rec, body := ts.get(t, "/api/v1/treemaps/options")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["presets"], 3)
	assert.Contains(t, body["metrics"], "Número de Clientes")
}

func TestGetProductionKPIs(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)

	rec, body := ts.get(t, "/api/v1/kpis/production")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["state"])
	assert.Equal(t, "empty", body["sources"].(map[string]any)["CUBO_OS"])
	kpis := body["kpis"].(map[string]any)
	assert.Equal(t, 100.0, kpis["taxa_aprovacao"])
	assert.Equal(t, 900.0, kpis["valor_medio_aprovados"])
	assert.Equal(t, 80.0, kpis["perc_faturamento_os"])
	assert.Equal(t, "2020-01-01T00:00:00Z", body["window_start"])

	rec, _ = ts.get(t, "/api/v1/kpis/production?years=20x4")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderStatus(t *testing.T) {
	t.Run("empty cube", func(t *testing.T) {
		ts := newTestServer(t, invoiceSource(), nil)
		rec, body := ts.get(t, "/api/v1/orders/status")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no_data", body["state"])
		assert.Equal(t, pipeline.MessageNoData, body["message"])
	})

	t.Run("cube unreachable", func(t *testing.T) {
		ts := newTestServer(t, stubSource{}, nil)
		rec, body := ts.get(t, "/api/v1/orders/status")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "unavailable", body["state"])
		assert.Equal(t, []any{}, body["statuses"])
	})
}

func TestListFetches(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i, e := range []domain.FetchLogEntry{
		{Cube: "CUBO_OS", Status: "ok", Attempts: 1, Rows: 10},
		{Cube: "CUBO_OS", Status: "failed", Attempts: 3, Error: "http 500"},
		{Cube: "CUBO_FATURAMENTO", Status: "ok", Attempts: 2, Rows: 40},
	} {
		e.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, ts.fetchLog.Insert(ctx, &e))
	}

	rec, body := ts.get(t, "/api/v1/fetches?cube=CUBO_OS&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2.0, body["total"])
	assert.Equal(t, 1.0, body["limit"])
	fetches := body["fetches"].([]any)
	require.Len(t, fetches, 1)
	assert.Equal(t, "failed", fetches[0].(map[string]any)["status"])

	rec, body = ts.get(t, "/api/v1/fetches/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, body["total_count"])
	assert.Equal(t, 2.0, body["by_status"].(map[string]any)["ok"])
	assert.Len(t, body["by_cube"], 2)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)
	rec, body := ts.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "CUBO_OS", body["cubes"].(map[string]any)["orders"])

	ts = newTestServer(t, invoiceSource(), stubBreakers{"CUBO_OS": "open", "CUBO_ORCAMENTO": "closed"})
	rec, body = ts.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "open", body["breakers"].(map[string]any)["CUBO_OS"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, invoiceSource(), nil)
	ts.get(t, "/healthz")

	rec, _ := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mixbi_http_requests_total")
}
