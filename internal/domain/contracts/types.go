// Package contracts implements the budget/contract dashboard domain:
// normalization of procurement contract workbooks (UGR/PI execution
// tracking), KPI derivation, expiring-contract alerts, monthly consumption
// series, heatmaps, and scenario simulation.
package contracts

import (
	"time"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

// State classifies a contract row's lifecycle, derived purely from the
// vigency-end date and "today".
type State string

const (
	StateNoDate          State = "noDate"
	StateFuture          State = "future"
	StateOnTrack         State = "onTrack"
	StateExpiredCurrent  State = "expiredCurrent"
	StateExpiredPrevious State = "expiredPrevious"
)

// Severity ranks an expiring/expired alert item.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Row is one normalized contract line after numeric coercion and
// "Total"-row filtering.
type Row struct {
	UGR              string      `json:"ugr"`
	PI               string      `json:"pi"`
	Description      string      `json:"description"`
	Supplier         string      `json:"supplier"`
	ContractNumber   string      `json:"contractNumber"`
	Status           string      `json:"status"`
	EndDate          *time.Time  `json:"endDate,omitempty"`
	MonthlyAverage   float64     `json:"monthlyAverage"`
	Months           [12]float64 `json:"months"`
	EstimatedAnnual  float64     `json:"estimatedAnnual"`
	Executed         float64     `json:"executed"`
	Committed        float64     `json:"committed"`
	CommittedCurrent float64     `json:"committedCurrent"`
	CommittedCarry   float64     `json:"committedCarry"`
	ExecutionRate    float64     `json:"executionRate"` // Executed / EstimatedAnnual * 100, 0 when EstimatedAnnual <= 0
	State            State       `json:"state"`
}

// Expired reports whether the row counts as expired for UGR analysis. The
// vigency date decides when present; the status text ("VENC..." but not the
// still-running "VENCENDO") is only consulted for rows without one.
func (r Row) Expired(today time.Time) bool {
	if r.EndDate != nil {
		return r.EndDate.Before(today)
	}
	return statusLooksExpired(r.Status)
}

// Dataset is the normalized contracts workbook. TotalRowPrefixes echoes the
// prefixes that were filtered during normalization so the dashboard can
// report them back.
type Dataset struct {
	Rows             []Row
	TotalRowPrefixes []string
	Warnings         []string
}

// AsTable flattens Rows into the column-oriented shape the Dataset Store,
// Pivot Planner, and Exporter operate on, so contract lines can be pivoted
// (by UGR, state, supplier) the same way as any uploaded CSV.
func (d *Dataset) AsTable() (*analytics.Table, []analytics.SchemaEntry) {
	n := len(d.Rows)
	ugr := &analytics.Column{Name: "UGR", Key: "ugr", Kind: analytics.KindText, Values: make([]analytics.Cell, n)}
	pi := &analytics.Column{Name: "PI", Key: "pi", Kind: analytics.KindText, Values: make([]analytics.Cell, n)}
	desc := &analytics.Column{Name: "Descrição", Key: "descricao", Kind: analytics.KindText, Values: make([]analytics.Cell, n)}
	supplier := &analytics.Column{Name: "Fornecedor", Key: "fornecedor", Kind: analytics.KindText, Values: make([]analytics.Cell, n)}
	status := &analytics.Column{Name: "Situação", Key: "situacao", Kind: analytics.KindText, Values: make([]analytics.Cell, n)}
	estimated := &analytics.Column{Name: "Valor Estimado Anual", Key: "valor_estimado_anual", Kind: analytics.KindReal, Values: make([]analytics.Cell, n)}
	executed := &analytics.Column{Name: "Valor Executado", Key: "valor_executado", Kind: analytics.KindReal, Values: make([]analytics.Cell, n)}
	committed := &analytics.Column{Name: "Valor Empenhado", Key: "valor_empenhado", Kind: analytics.KindReal, Values: make([]analytics.Cell, n)}
	rate := &analytics.Column{Name: "Taxa de Execução", Key: "taxa_de_execucao", Kind: analytics.KindReal, Values: make([]analytics.Cell, n)}
	state := &analytics.Column{Name: "Estado", Key: "estado", Kind: analytics.KindText, Values: make([]analytics.Cell, n)}

	for i, r := range d.Rows {
		ugr.Values[i] = analytics.TextCell(r.UGR)
		pi.Values[i] = analytics.TextCell(r.PI)
		desc.Values[i] = analytics.TextCell(r.Description)
		supplier.Values[i] = analytics.TextCell(r.Supplier)
		status.Values[i] = analytics.TextCell(r.Status)
		estimated.Values[i] = analytics.NumberCell(r.EstimatedAnnual)
		executed.Values[i] = analytics.NumberCell(r.Executed)
		committed.Values[i] = analytics.NumberCell(r.Committed)
		rate.Values[i] = analytics.NumberCell(r.ExecutionRate)
		state.Values[i] = analytics.TextCell(string(r.State))
	}

	table := &analytics.Table{
		Columns:  []*analytics.Column{ugr, pi, desc, supplier, status, estimated, executed, committed, rate, state},
		RowCount: n,
	}
	schema := []analytics.SchemaEntry{
		{Key: "ugr", Label: "UGR", Kind: analytics.KindText},
		{Key: "pi", Label: "PI", Kind: analytics.KindText},
		{Key: "descricao", Label: "Descrição", Kind: analytics.KindText},
		{Key: "fornecedor", Label: "Fornecedor", Kind: analytics.KindText},
		{Key: "situacao", Label: "Situação", Kind: analytics.KindText},
		{Key: "valor_estimado_anual", Label: "Valor Estimado Anual", Kind: analytics.KindReal, IsMeasure: true},
		{Key: "valor_executado", Label: "Valor Executado", Kind: analytics.KindReal, IsMeasure: true},
		{Key: "valor_empenhado", Label: "Valor Empenhado", Kind: analytics.KindReal, IsMeasure: true},
		{Key: "taxa_de_execucao", Label: "Taxa de Execução", Kind: analytics.KindReal, IsMeasure: true},
		{Key: "estado", Label: "Estado", Kind: analytics.KindText},
	}
	return table, schema
}

// KPIs are the headline dashboard numbers.
type KPIs struct {
	TotalEstimated   float64 `json:"totalEstimated"`
	TotalExecuted    float64 `json:"totalExecuted"`
	TotalCommitted   float64 `json:"totalCommitted"`
	Balance          float64 `json:"balance"` // max(estimated - executed, 0)
	ExecutionPercent float64 `json:"executionPercent"`
	ContractCount    int     `json:"contractCount"`
	ExpiringSoon     int     `json:"expiringIn60Days"`
	ExpiredCount     int     `json:"expiredCount"`
}

// UGRBreakdown aggregates estimated/executed/committed per spending unit.
type UGRBreakdown struct {
	UGR              string  `json:"ugr"`
	Estimated        float64 `json:"estimated"`
	Executed         float64 `json:"executed"`
	Committed        float64 `json:"committed"`
	ExecutionPercent float64 `json:"executionPercent"`
	ActiveCount      int     `json:"activeCount"`
	ExpiredCount     int     `json:"expiredCount"`
}

// MonthlyPoint is one bucket of the monthly consumption series.
type MonthlyPoint struct {
	Month string  `json:"month"` // "Jan", "Fev", ...
	Value float64 `json:"value"`
}

// ExpiringItem is a contract row nearing or past its vigency end.
type ExpiringItem struct {
	UGR            string    `json:"ugr"`
	PI             string    `json:"pi"`
	Description    string    `json:"description"`
	Supplier       string    `json:"supplier"`
	ContractNumber string    `json:"contractNumber"`
	EndDate        time.Time `json:"endDate"`
	DaysLeft       int       `json:"daysLeft"` // negative once expired
	Icon           string    `json:"icon"`
	Motivo         string    `json:"motivo"`
	Severity       Severity  `json:"severity"`
}

// HeatmapRow is one contract description's 12-month consumption, with an
// optional highlight on the vigency-end month when it falls in the current
// year.
type HeatmapRow struct {
	Description    string      `json:"description"`
	UGR            string      `json:"ugr"`
	Months         [12]float64 `json:"months"`
	HighlightMonth int         `json:"highlightMonth"` // 1..12, 0 when none
}

// ScenarioAdjustment is one hypothetical delta applied to a UGR's
// aggregated value.
type ScenarioAdjustment struct {
	UGR   string  `json:"ugr"`
	Field string  `json:"field"` // "estimated", "executed" or "committed"
	Delta float64 `json:"delta"`
}

// Scenario is the echo of the applied adjustments plus their aggregate
// effect. Base KPIs are never mutated; the adjusted KPIs sit alongside.
type Scenario struct {
	Adjustments    []ScenarioAdjustment `json:"adjustments"`
	DeltaPlanned   float64              `json:"deltaPlanned"`
	DeltaExecuted  float64              `json:"deltaExecuted"`
	DeltaCommitted float64              `json:"deltaCommitted"`
	KPIs           KPIs                 `json:"kpis"`
}

// Alert is a short dashboard notice derived from the KPI counts.
type Alert struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ChartMode selects the shape of the planned/committed/executed chart: one
// aggregate bar group, or one group per month.
type ChartMode string

const (
	ChartModeTotal   ChartMode = "total"
	ChartModeMonthly ChartMode = "monthly"
)

// PlannedExecutedBar is one label of the planned/committed/executed chart.
type PlannedExecutedBar struct {
	Label     string  `json:"label"`
	Estimated float64 `json:"estimated"`
	Committed float64 `json:"committed"`
	Executed  float64 `json:"executed"`
}

// DistributionSlice is one slice of the executed-value distribution chart,
// grouped by contract description with the tail collapsed into "Outros".
type DistributionSlice struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Charts groups every chart payload of the dashboard view.
type Charts struct {
	MonthlySeries   []MonthlyPoint       `json:"monthlySeries"`
	Distribution    []DistributionSlice  `json:"distribution"`
	PerUnit         []UGRBreakdown       `json:"perUnit"`
	PlannedExecuted []PlannedExecutedBar `json:"plannedExecuted"`
	Heatmap         []HeatmapRow         `json:"heatmap"`
}

// FilterOptions lists the distinct values offered for each dashboard filter.
type FilterOptions struct {
	UGRs      []string `json:"ugrs"`
	PIs       []string `json:"pis"`
	Suppliers []string `json:"suppliers"`
	Statuses  []string `json:"statuses"`
}

// DatasetRef is the {id,name} pair echoed in dashboard envelopes.
type DatasetRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DashboardView is the full payload the contracts HTTP facade serves.
type DashboardView struct {
	DatasetID     string         `json:"datasetId"`
	Datasets      []DatasetRef   `json:"datasets"`
	GeneratedAt   time.Time      `json:"generatedAt"`
	KPIs          KPIs           `json:"kpis"`
	Alerts        []Alert        `json:"alerts"`
	UnitBreakdown []UGRBreakdown `json:"unitBreakdown"`
	Table         []Row          `json:"table"`
	Charts        Charts         `json:"charts"`
	Scenario      *Scenario      `json:"scenario,omitempty"`
	FilterOptions FilterOptions  `json:"filterOptions"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// KPIConfig parameterizes the derivation pass. The "Total" prefix set and
// the expiring window are configurable because source workbooks disagree on
// both. TotalRowPrefixes lists the description prefixes that always mark a
// totals row; descriptions exactly equal to "Total"/"Total Geral" are
// always filtered, and any other "Total..." description is filtered only
// when the row carries no unit code.
type KPIConfig struct {
	ExpiringWindowDays int
	TotalRowPrefixes   []string
	TopN               int // cap on expiring/expired list lengths
}

// DefaultKPIConfig is the configuration used when the caller doesn't
// override it.
func DefaultKPIConfig() KPIConfig {
	return KPIConfig{
		ExpiringWindowDays: 60,
		TotalRowPrefixes:   []string{"Total da ", "Total de "},
		TopN:               20,
	}
}

// MonthLabels are the pt-BR month abbreviations used by the monthly series
// and heatmap, index 0 = January.
var MonthLabels = [12]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}
