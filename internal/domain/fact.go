package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StatusUnknown marks a record whose status column was absent or unreadable.
const StatusUnknown = -1

// FactRecord is one row of a cube view as delivered by the upstream service.
// Fields keep the raw text; parsing happens in the normalizer.
type FactRecord struct {
	CustomerID   string `json:"codcli"`
	InvoiceID    string `json:"nota"`
	OrderID      string `json:"os"`
	EmissionDate string `json:"data"`
	Amount       string `json:"valor"`
	Quantity     string `json:"quant,omitempty"`
	Salesperson  string `json:"vendedor,omitempty"`
	Region       string `json:"regiao,omitempty"`
	State        string `json:"uf,omitempty"`
	City         string `json:"cidade,omitempty"`
	Country      string `json:"pais,omitempty"`
	Group        string `json:"grupo,omitempty"`
	Subgroup     string `json:"subGrupo,omitempty"`
	Status       string `json:"status,omitempty"`
}

// factAliases lists the cube column names accepted for each field, in
// priority order. Invoice cubes call the amount "valorfaturado", budget
// cubes call it "valor".
var factAliases = map[string][]string{
	"customer":    {"codcli", "cliente_id"},
	"invoice":     {"nota", "notafiscal"},
	"order":       {"os", "ordem"},
	"date":        {"data", "dataemissao", "emissao"},
	"amount":      {"valorfaturado", "valor"},
	"quantity":    {"quant", "quantidade"},
	"salesperson": {"vendedor"},
	"region":      {"regiao"},
	"state":       {"uf"},
	"city":        {"cidade"},
	"country":     {"pais"},
	"group":       {"grupo"},
	"subgroup":    {"subGrupo", "subgrupo"},
	"status":      {"status"},
}

// UnmarshalJSON accepts numbers, strings, booleans and nulls for every column.
func (f *FactRecord) UnmarshalJSON(data []byte) error {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return fmt.Errorf("fact row: %w", err)
	}

	pick := func(field string) string {
		for _, key := range factAliases[field] {
			if raw, ok := row[key]; ok {
				if s := rawText(raw); s != "" {
					return s
				}
			}
		}
		return ""
	}

	*f = FactRecord{
		CustomerID:   pick("customer"),
		InvoiceID:    pick("invoice"),
		OrderID:      pick("order"),
		EmissionDate: pick("date"),
		Amount:       pick("amount"),
		Quantity:     pick("quantity"),
		Salesperson:  pick("salesperson"),
		Region:       pick("region"),
		State:        pick("state"),
		City:         pick("city"),
		Country:      pick("country"),
		Group:        pick("group"),
		Subgroup:     pick("subgroup"),
		Status:       pick("status"),
	}
	return nil
}

func rawText(raw json.RawMessage) string {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// HasOrder reports whether the row references a production order. The cube
// encodes "no order" as either an empty column or 0.
func (f FactRecord) HasOrder() bool {
	return linkedOrder(f.OrderID) != ""
}

func linkedOrder(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || id == "0" {
		return ""
	}
	return id
}

// NormalizedRecord is a FactRecord whose date and numeric columns parsed.
type NormalizedRecord struct {
	FactRecord
	Date     time.Time       `json:"date"`
	Year     int             `json:"year"`
	Value    decimal.Decimal `json:"value"`
	Units    decimal.Decimal `json:"units"`
	StatusID int             `json:"status_id"`
}

// Fact returns the raw record the normalized one was built from.
func (n NormalizedRecord) Fact() FactRecord {
	return n.FactRecord
}

// LinkedOrderID returns the referenced order id, or "" when none.
func (n NormalizedRecord) LinkedOrderID() string {
	return linkedOrder(n.OrderID)
}
