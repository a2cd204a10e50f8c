// Package format renders values the way the dashboard shows them (pt-BR).
package format

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Currency formats an amount as Brazilian reais, e.g. "R$ 1.234,56".
func Currency(v decimal.Decimal) string {
	f, _ := v.Round(2).Float64()
	return "R$ " + humanize.FormatFloat("#.###,##", f)
}

// Number formats v with thousands separated by dots and the given decimals.
func Number(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	if decimals <= 0 {
		return humanize.FormatFloat("#.###,", v)
	}
	return humanize.FormatFloat("#.###,"+strings.Repeat("#", decimals), v)
}

// Percentage formats v (already scaled to 0-100) with a comma decimal mark.
func Percentage(v float64, decimals int) string {
	return Number(v, decimals) + "%"
}

// Count formats an integer quantity followed by a unit, e.g. "12 clientes".
func Count(v decimal.Decimal, unit string) string {
	return Number(float64(v.IntPart()), 0) + " " + unit
}
