package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerSegment holds the RFV metrics of one customer.
type CustomerSegment struct {
	CustomerID   string          `json:"cliente_id"`
	RecencyDays  int             `json:"recencia"`
	Frequency    int             `json:"frequencia"`
	Monetary     decimal.Decimal `json:"valor"`
	LastPurchase time.Time       `json:"ultima_compra"`
}

// AggregateNode is one node of a branch-total tree.
type AggregateNode struct {
	ID     string          `json:"id"`
	Label  string          `json:"label"`
	Parent string          `json:"parent"`
	Level  int             `json:"level"`
	Value  decimal.Decimal `json:"value"`
	Text   string          `json:"text"`
}

// KPISnapshot is the production funnel summary.
type KPISnapshot struct {
	ApprovalRate        float64 `json:"taxa_aprovacao"`
	BudgetToOrderDays   float64 `json:"tempo_medio_orc_os"`
	OrderToInvoiceDays  float64 `json:"tempo_medio_os_fat"`
	AvgApprovedBudget   float64 `json:"valor_medio_aprovados"`
	RevenueViaOrdersPct float64 `json:"perc_faturamento_os"`
	FinalizedBudgets    int     `json:"orcamentos_finalizados"`
	ApprovedBudgets     int     `json:"orcamentos_aprovados"`
	BudgetOrderPairs    int     `json:"pares_orcamento_os"`
	OrderInvoicePairs   int     `json:"pares_os_faturamento"`
	LinkedBudgets       int     `json:"orcamentos_com_os"`
}

// OrderStatusStat summarises orders sharing one status.
type OrderStatusStat struct {
	Status     OrderStatus `json:"status"`
	Label      string      `json:"label"`
	Count      int         `json:"count"`
	Share      float64     `json:"percentual"`
	AvgAgeDays float64     `json:"tempo_medio_dias"`
}

// FetchLogEntry records one fetch cycle against the cube service.
type FetchLogEntry struct {
	ID        string        `json:"id"`
	Cube      string        `json:"cube"`
	Status    string        `json:"status"`
	Attempts  int           `json:"attempts"`
	Rows      int           `json:"rows"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}
