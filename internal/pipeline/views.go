package pipeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/empresamix/mixbi/internal/cube"
	"github.com/empresamix/mixbi/internal/domain"
	"github.com/empresamix/mixbi/internal/rfv"
)

// State tells the caller whether a view has something to show.
type State string

const (
	StateOK          State = "ok"
	StateNoData      State = "no_data"
	StateUnavailable State = "unavailable"
)

// Messages shown next to a view that is not StateOK.
const (
	MessageUnavailable  = "Não foi possível carregar os dados. Tente novamente mais tarde."
	MessageNoData       = "Nenhum dado disponível."
	MessageNoDataPeriod = "Nenhum dado encontrado para o período selecionado."
)

// Meta is common to every view.
type Meta struct {
	State       State                  `json:"state"`
	Message     string                 `json:"message,omitempty"`
	Sources     map[string]cube.Status `json:"sources"`
	GeneratedAt time.Time              `json:"generated_at"`
}

type RFVView struct {
	Meta
	Years    []int                    `json:"years"`
	Summary  rfv.Summary              `json:"summary"`
	Segments []domain.CustomerSegment `json:"segments"`
}

// TreeView is a treemap ready to draw: nodes come parent first.
type TreeView struct {
	Meta
	Levels    []string               `json:"levels"`
	Metric    string                 `json:"metric"`
	Total     decimal.Decimal        `json:"total"`
	TotalText string                 `json:"total_text"`
	Nodes     []domain.AggregateNode `json:"nodes"`
}

type KPIView struct {
	Meta
	WindowStart time.Time          `json:"window_start"`
	Years       []int              `json:"years,omitempty"`
	KPIs        domain.KPISnapshot `json:"kpis"`

	// Display holds the dashboard text of each indicator, keyed like KPIs.
	Display map[string]string `json:"display"`
}

type StatusView struct {
	Meta
	WindowStart time.Time                `json:"window_start"`
	Total       int                      `json:"total"`
	Statuses    []domain.OrderStatusStat `json:"statuses"`
}
