package aggregate

import (
	"strings"

	"github.com/empresamix/mixbi/internal/domain"
)

// Dimension is a categorical column records can be grouped by.
type Dimension string

const (
	Region      Dimension = "regiao"
	State       Dimension = "uf"
	City        Dimension = "cidade"
	Country     Dimension = "pais"
	Salesperson Dimension = "vendedor"
	Group       Dimension = "grupo"
	Subgroup    Dimension = "subGrupo"
	Customer    Dimension = "codcli"
)

type dimensionInfo struct {
	tag   string
	label string
	value func(r *domain.NormalizedRecord) string
}

var dimensions = map[Dimension]dimensionInfo{
	Region:      {"r", "Região", func(r *domain.NormalizedRecord) string { return r.Region }},
	State:       {"u", "Estado", func(r *domain.NormalizedRecord) string { return r.State }},
	City:        {"c", "Cidade", func(r *domain.NormalizedRecord) string { return r.City }},
	Country:     {"p", "País", func(r *domain.NormalizedRecord) string { return r.Country }},
	Salesperson: {"v", "Vendedor", func(r *domain.NormalizedRecord) string { return r.Salesperson }},
	Group:       {"g", "Grupo", func(r *domain.NormalizedRecord) string { return r.Group }},
	Subgroup:    {"s", "Subgrupo", func(r *domain.NormalizedRecord) string { return r.Subgroup }},
	Customer:    {"k", "Cliente", func(r *domain.NormalizedRecord) string { return r.CustomerID }},
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	_, ok := dimensions[d]
	return ok
}

// Label is the dashboard name of the dimension.
func (d Dimension) Label() string {
	return dimensions[d].label
}

// Value returns the trimmed column value of r, "" when absent.
func (d Dimension) Value(r *domain.NormalizedRecord) string {
	info, ok := dimensions[d]
	if !ok {
		return ""
	}
	return strings.TrimSpace(info.value(r))
}

func (d Dimension) tag() string {
	return dimensions[d].tag
}

// lookupDimension accepts either the column key or the dashboard label,
// ignoring case.
func lookupDimension(s string) (Dimension, bool) {
	s = strings.TrimSpace(s)
	for d, info := range dimensions {
		if strings.EqualFold(s, string(d)) || strings.EqualFold(s, info.label) {
			return d, true
		}
	}
	return "", false
}
