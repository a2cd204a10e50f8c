package aggregate

import (
	"fmt"
	"strings"
)

// Territory presets offered by the dashboard.
const (
	PresetRegionState     = "Região > Estado"
	PresetStateCity       = "Estado > Cidade"
	PresetRegionStateCity = "Região > Estado > Cidade"
)

var territoryPresets = map[string][]Dimension{
	PresetRegionState:     {Region, State},
	PresetStateCity:       {State, City},
	PresetRegionStateCity: {Region, State, City},
}

// ProductMixLevels is the salesperson > group > subgroup breakdown.
var ProductMixLevels = []Dimension{Salesperson, Group, Subgroup}

var metricNames = map[string]Metric{
	"Valor Faturado":     Amount,
	"Quantidade":         Quantity,
	"Número de Clientes": Customers,
}

// TerritoryPresets lists the preset names in display order.
func TerritoryPresets() []string {
	return []string{PresetRegionState, PresetStateCity, PresetRegionStateCity}
}

// ParseLevels resolves a preset name, or a list of dimensions separated by
// ">" or ",". Each dimension may be given by column key or label.
func ParseLevels(s string) ([]Dimension, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnknownPreset)
	}
	if levels, ok := territoryPresets[s]; ok {
		return append([]Dimension(nil), levels...), nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '>' || r == ',' })
	levels := make([]Dimension, 0, len(parts))
	for _, p := range parts {
		d, ok := lookupDimension(p)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, s)
		}
		levels = append(levels, d)
	}
	if len(levels) == 0 || len(levels) > MaxLevels {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLevels, len(levels))
	}
	return levels, nil
}

// ParseMetric resolves a metric by dashboard name or column key.
func ParseMetric(s string) (Metric, error) {
	s = strings.TrimSpace(s)
	if m, ok := metricNames[s]; ok {
		return m, nil
	}
	switch m := Metric(s); m {
	case Amount, Quantity, Customers:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// MetricNames lists the dashboard metric names.
func MetricNames() []string {
	return []string{"Valor Faturado", "Quantidade", "Número de Clientes"}
}
