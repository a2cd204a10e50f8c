// Command generate writes sample cube payloads under testdata/cubes and can
// serve them as a stand-in for the upstream cube service:
//
//	go run ./testdata/generate
//	go run ./testdata/generate -serve :8077 -fail-rate 0.3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Upstream message for a conflicting query; it carries a conflict signature
// the client recognises.
const deadlockMessage = "Transaction (Process ID 61) was deadlocked on lock resources with another process and has been chosen as the deadlock victim. Rerun the transaction."

type row = map[string]any

type territory struct {
	region, state, city string
}

var territories = []territory{
	{"SUDESTE", "SP", "Campinas"},
	{"SUDESTE", "SP", "São Paulo"},
	{"SUDESTE", "RJ", "Niterói"},
	{"SUDESTE", "MG", "Belo Horizonte"},
	{"SUL", "PR", "Curitiba"},
	{"SUL", "SC", "Joinville"},
	{"SUL", "RS", "Porto Alegre"},
	{"NORDESTE", "BA", "Salvador"},
	{"NORDESTE", "PE", "Recife"},
	{"NORTE", "AM", "Manaus"},
	{"CENTRO-OESTE", "GO", "Goiânia"},
}

var products = map[string][]string{
	"TINTAS":    {"ACRILICA", "ESMALTE", "EPOXI"},
	"VERNIZES":  {"MARITIMO", "PU"},
	"SOLVENTES": {"THINNER", "AGUARRAS"},
}

var salespeople = []string{"ANA", "BRUNO", "CARLA", "DIEGO"}

func main() {
	out := flag.String("out", "", "directory for the generated payloads (default: testdata/cubes)")
	seed := flag.Int64("seed", 42, "random seed")
	serve := flag.String("serve", "", "serve the payloads on this address instead of exiting")
	failRate := flag.Float64("fail-rate", 0, "share of cube requests answered with a deadlock error when serving")
	flag.Parse()

	dir := *out
	if dir == "" {
		dir = filepath.Join(findTestdataDir(), "cubes")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		panic(err)
	}

	rng := rand.New(rand.NewSource(*seed))
	cubes := generate(rng, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC))
	for name, rows := range cubes {
		writeJSONFile(filepath.Join(dir, name+".json"), rows)
		fmt.Printf("Generated %d rows -> %s.json\n", len(rows), name)
	}

	if *serve == "" {
		fmt.Println("Cube data generation complete.")
		return
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	srv := newFakeCube(cubes, *failRate, rng, log)
	log.Info("serving fake cube", zap.String("addr", *serve), zap.Float64("fail_rate", *failRate))
	if err := http.ListenAndServe(*serve, srv); err != nil {
		log.Fatal("fake cube stopped", zap.Error(err))
	}
}

// generate builds budgets, the orders some of them turned into and the
// invoices billed from those orders, plus counter sales with no order. A few
// rows are malformed the way the upstream sometimes sends them.
func generate(rng *rand.Rand, until time.Time) map[string][]row {
	start := time.Date(until.Year()-5, time.January, 1, 0, 0, 0, 0, time.UTC)
	span := int(until.Sub(start).Hours() / 24)

	var budgets, orders, invoices []row
	nextOrder, nextInvoice := 1000, 50000

	for i := 1; i <= 400; i++ {
		customer := fmt.Sprintf("%d", 100+rng.Intn(80))
		t := territories[rng.Intn(len(territories))]
		seller := salespeople[rng.Intn(len(salespeople))]
		budgetDate := start.AddDate(0, 0, rng.Intn(span))
		amount := money(rng, 200, 20000)

		// 0 in analysis, 1 approved, 5 cancelled.
		status := []int{0, 1, 1, 1, 5}[rng.Intn(5)]
		orderID := ""
		if status == 1 {
			nextOrder++
			orderID = fmt.Sprintf("%d", nextOrder)
		}
		budgets = append(budgets, row{
			"codcli": customer,
			"nota":   fmt.Sprintf("ORC-%04d", i),
			"os":     orderOrZero(orderID),
			"data":   budgetDate.Format("02/01/2006"),
			"valor":  ptBR(amount),
			"status": status,
		})
		if orderID == "" {
			continue
		}

		orderDate := budgetDate.AddDate(0, 0, 1+rng.Intn(20))
		orderStatus := rng.Intn(6)
		orders = append(orders, row{
			"os":     orderID,
			"codcli": customer,
			"data":   orderDate.Format("2006-01-02T15:04:05"),
			"valor":  amount.String(),
			"status": orderStatus,
		})
		if orderStatus != 4 {
			continue
		}

		invoiceDate := orderDate.AddDate(0, 0, 3+rng.Intn(30))
		for _, item := range split(rng, amount) {
			nextInvoice++
			invoices = append(invoices, invoiceRow(rng, nextInvoice, customer, orderID, invoiceDate, item, t, seller))
		}
	}

	// Counter sales.
	for i := 0; i < 250; i++ {
		nextInvoice++
		invoices = append(invoices, invoiceRow(rng, nextInvoice,
			fmt.Sprintf("%d", 100+rng.Intn(120)), "",
			start.AddDate(0, 0, rng.Intn(span)),
			money(rng, 50, 3000),
			territories[rng.Intn(len(territories))],
			salespeople[rng.Intn(len(salespeople))]))
	}

	invoices = append(invoices,
		row{"codcli": "999", "nota": "BAD-DATE", "data": "31/02/2024", "valorfaturado": 10},
		row{"codcli": "999", "nota": "BAD-AMOUNT", "data": "2024-03-01", "valorfaturado": "dez reais"},
	)

	return map[string][]row{
		"CUBO_ORCAMENTO":   budgets,
		"CUBO_OS":          orders,
		"CUBO_FATURAMENTO": invoices,
	}
}

func invoiceRow(rng *rand.Rand, number int, customer, orderID string, date time.Time, amount decimal.Decimal, t territory, seller string) row {
	groups := make([]string, 0, len(products))
	for g := range products {
		groups = append(groups, g)
	}
	// Map order is random; sort for a stable seed.
	sort.Strings(groups)
	group := groups[rng.Intn(len(groups))]
	sub := products[group][rng.Intn(len(products[group]))]

	return row{
		"codcli":        customer,
		"nota":          fmt.Sprintf("%d", number),
		"os":            orderOrZero(orderID),
		"data":          date.Format("2006-01-02"),
		"valorfaturado": amount.InexactFloat64(),
		"quant":         1 + rng.Intn(40),
		"vendedor":      seller,
		"regiao":        t.region,
		"uf":            t.state,
		"cidade":        t.city,
		"pais":          "BRASIL",
		"grupo":         group,
		"subGrupo":      sub,
	}
}

func money(rng *rand.Rand, lo, hi int) decimal.Decimal {
	cents := int64(lo*100 + rng.Intn((hi-lo)*100))
	return decimal.New(cents, -2)
}

// split divides an order amount over one to three invoices.
func split(rng *rand.Rand, amount decimal.Decimal) []decimal.Decimal {
	n := 1 + rng.Intn(3)
	parts := make([]decimal.Decimal, 0, n)
	rest := amount
	for i := 1; i < n; i++ {
		p := rest.Div(decimal.NewFromInt(int64(n - i + 1))).Round(2)
		parts = append(parts, p)
		rest = rest.Sub(p)
	}
	return append(parts, rest)
}

func orderOrZero(id string) any {
	if id == "" {
		return 0
	}
	return id
}

// ptBR renders the amount the way the budget cube sends it, e.g. "1.234,56".
func ptBR(v decimal.Decimal) string {
	return humanize.FormatFloat("#.###,##", v.InexactFloat64())
}

func newFakeCube(cubes map[string][]row, failRate float64, rng *rand.Rand, log *zap.Logger) http.Handler {
	var mu sync.Mutex
	fail := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < failRate
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/POWERBI/", func(w http.ResponseWriter, req *http.Request) {
		view := req.URL.Query().Get("VIEW")
		if fail() {
			log.Info("injecting deadlock", zap.String("view", view))
			http.Error(w, deadlockMessage, http.StatusInternalServerError)
			return
		}
		rows, ok := cubes[view]
		if !ok {
			rows = []row{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			log.Warn("encode rows", zap.Error(err))
		}
	})
	r.Get("/POWERBI/CLEAR/", func(w http.ResponseWriter, req *http.Request) {
		log.Info("clear requested", zap.String("view", req.URL.Query().Get("VIEW")))
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", "../testdata", "../../testdata"} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
