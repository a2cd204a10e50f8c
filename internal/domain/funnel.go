package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget status codes as emitted by the budget cube.
const (
	BudgetInAnalysis = 0
	BudgetCancelled  = 5
)

// OrderStatus is the production order (OS) lifecycle code.
type OrderStatus int

const (
	OrderOpen OrderStatus = iota
	OrderToManufacture
	OrderManufactured
	OrderToInvoice
	OrderInvoiced
	OrderCancelled
)

var orderStatusLabels = map[OrderStatus]string{
	OrderOpen:          "Abertas",
	OrderToManufacture: "Para Fabricar",
	OrderManufactured:  "Fabricadas",
	OrderToInvoice:     "Para Faturar",
	OrderInvoiced:      "Faturadas",
	OrderCancelled:     "Canceladas",
}

// Label returns the dashboard label for the status.
func (s OrderStatus) Label() string {
	if l, ok := orderStatusLabels[s]; ok {
		return l
	}
	return "Desconhecido"
}

// Budget is a sales quote. OrderID is empty when the quote never became an order.
type Budget struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id,omitempty"`
	Date    time.Time       `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
	Status  int             `json:"status"`
}

// Order is a production order.
type Order struct {
	ID     string      `json:"id"`
	Date   time.Time   `json:"date"`
	Status OrderStatus `json:"status"`
}

// Invoice is a billed document. OrderID is empty for counter sales.
type Invoice struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id,omitempty"`
	Date    time.Time       `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
}
