package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedToday matches the reference scenario: two contracts, one already
// expired in the previous year, one ending next year.
var fixedToday = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

func twoContractRows() []Row {
	end1 := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	end2 := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	r1 := Row{
		UGR: "X", Description: "Contrato X", EstimatedAnnual: 1000, Executed: 400,
		Committed: 400, EndDate: &end1,
	}
	r1.State = ClassifyState(r1.EndDate, fixedToday)
	r2 := Row{
		UGR: "Y", Description: "Contrato Y", EstimatedAnnual: 500, Executed: 500,
		Committed: 500, EndDate: &end2,
	}
	r2.State = ClassifyState(r2.EndDate, fixedToday)
	return []Row{r1, r2}
}

func TestDeriveKPIs_ReferenceScenario(t *testing.T) {
	rows := twoContractRows()
	k := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)

	assert.Equal(t, 1500.0, k.TotalEstimated)
	assert.Equal(t, 900.0, k.TotalExecuted)
	assert.InDelta(t, 60.0, k.ExecutionPercent, 0.0001)
	assert.Equal(t, 600.0, k.Balance)
	assert.Equal(t, 1, k.ExpiredCount)
	assert.Equal(t, 0, k.ExpiringSoon)
	assert.Equal(t, 2, k.ContractCount)

	assert.Equal(t, StateExpiredPrevious, rows[0].State)
	assert.Equal(t, StateFuture, rows[1].State)
}

func TestDeriveKPIs_BalanceNeverNegative(t *testing.T) {
	rows := []Row{{UGR: "Z", EstimatedAnnual: 100, Executed: 250}}
	k := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)
	assert.Equal(t, 0.0, k.Balance)
	assert.InDelta(t, 250.0, k.ExecutionPercent, 0.0001)
}

func TestDeriveKPIs_ExpiringWindowInclusive(t *testing.T) {
	atWindow := fixedToday.AddDate(0, 0, 60)
	pastWindow := fixedToday.AddDate(0, 0, 61)
	today := fixedToday

	rows := []Row{
		{UGR: "A", EndDate: &atWindow},
		{UGR: "B", EndDate: &pastWindow},
		{UGR: "C", EndDate: &today},
	}
	k := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)
	assert.Equal(t, 2, k.ExpiringSoon) // at-window and today, not past-window
	assert.Equal(t, 0, k.ExpiredCount)
}

func TestDeriveUGRBreakdown_SortedByEstimatedDesc(t *testing.T) {
	rows := twoContractRows()
	breakdown := DeriveUGRBreakdown(rows, fixedToday)

	require.Len(t, breakdown, 2)
	assert.Equal(t, "X", breakdown[0].UGR)
	assert.Equal(t, 1000.0, breakdown[0].Estimated)
	assert.Equal(t, 1, breakdown[0].ExpiredCount)
	assert.Equal(t, 0, breakdown[0].ActiveCount)
	assert.Equal(t, "Y", breakdown[1].UGR)
	assert.Equal(t, 1, breakdown[1].ActiveCount)
	assert.InDelta(t, 100.0, breakdown[1].ExecutionPercent, 0.0001)
}

func TestDeriveUGRBreakdown_StatusVencMarksExpired(t *testing.T) {
	rows := []Row{
		{UGR: "A", Status: "VENCIDO"},
		{UGR: "A", Status: "VENCENDO"},
	}
	breakdown := DeriveUGRBreakdown(rows, fixedToday)
	require.Len(t, breakdown, 1)
	assert.Equal(t, 1, breakdown[0].ExpiredCount)
	assert.Equal(t, 1, breakdown[0].ActiveCount)
}

func TestDeriveUGRBreakdown_DateWinsOverStatus(t *testing.T) {
	future := fixedToday.AddDate(1, 0, 0)
	rows := []Row{{UGR: "A", Status: "VENCIDO", EndDate: &future}}
	breakdown := DeriveUGRBreakdown(rows, fixedToday)
	require.Len(t, breakdown, 1)
	assert.Equal(t, 0, breakdown[0].ExpiredCount)
	assert.Equal(t, 1, breakdown[0].ActiveCount)
}

func TestDeriveUGRBreakdown_EmptyUGRBucket(t *testing.T) {
	rows := []Row{{UGR: "", EstimatedAnnual: 100}}
	breakdown := DeriveUGRBreakdown(rows, fixedToday)
	require.Len(t, breakdown, 1)
	assert.Equal(t, "Não informado", breakdown[0].UGR)
}

func TestDeriveMonthlySeries_SumsMonthColumns(t *testing.T) {
	rows := []Row{
		{UGR: "A", Months: [12]float64{100, 0, 50, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{UGR: "B", Months: [12]float64{0, 200, 50, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
	}

	series := DeriveMonthlySeries(rows)
	require.Len(t, series, 12)
	assert.Equal(t, MonthlyPoint{Month: "Jan", Value: 100}, series[0])
	assert.Equal(t, MonthlyPoint{Month: "Fev", Value: 200}, series[1])
	assert.Equal(t, MonthlyPoint{Month: "Mar", Value: 100}, series[2])
	assert.Equal(t, 0.0, series[11].Value)
}

func TestDerivePlannedExecuted_TotalMode(t *testing.T) {
	rows := twoContractRows()
	k := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)

	bars := DerivePlannedExecuted(rows, k, ChartModeTotal)
	require.Len(t, bars, 1)
	assert.Equal(t, "Totais", bars[0].Label)
	assert.Equal(t, 1500.0, bars[0].Estimated)
	assert.Equal(t, 900.0, bars[0].Committed)
	assert.Equal(t, 900.0, bars[0].Executed)
}

func TestDerivePlannedExecuted_MonthlyMode(t *testing.T) {
	rows := []Row{{UGR: "A", EstimatedAnnual: 1200, Committed: 600, Executed: 300, Months: [12]float64{300}}}
	k := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)

	bars := DerivePlannedExecuted(rows, k, ChartModeMonthly)
	require.Len(t, bars, 12)
	assert.Equal(t, "Jan", bars[0].Label)
	assert.Equal(t, 100.0, bars[0].Estimated)
	assert.Equal(t, 50.0, bars[0].Committed)
	assert.Equal(t, 300.0, bars[0].Executed)
	assert.Equal(t, 0.0, bars[11].Executed)
}

func TestDeriveExpiring_SeverityBands(t *testing.T) {
	in10 := fixedToday.AddDate(0, 0, 10)
	in25 := fixedToday.AddDate(0, 0, 25)
	in50 := fixedToday.AddDate(0, 0, 50)
	rows := []Row{
		{UGR: "A", Description: "em 50", EndDate: &in50},
		{UGR: "B", Description: "em 10", EndDate: &in10},
		{UGR: "C", Description: "em 25", EndDate: &in25},
	}

	items := DeriveExpiring(rows, DefaultKPIConfig(), fixedToday)
	require.Len(t, items, 3)
	// most urgent first
	assert.Equal(t, "em 10", items[0].Description)
	assert.Equal(t, SeverityCritical, items[0].Severity)
	assert.Equal(t, SeverityWarning, items[1].Severity)
	assert.Equal(t, SeverityInfo, items[2].Severity)
	assert.NotEmpty(t, items[0].Motivo)
	assert.NotEmpty(t, items[0].Icon)
}

func TestDeriveExpired_MostRecentFirst(t *testing.T) {
	d10 := fixedToday.AddDate(0, 0, -10)
	d300 := fixedToday.AddDate(0, 0, -300)
	rows := []Row{
		{UGR: "A", Description: "antigo", EndDate: &d300},
		{UGR: "B", Description: "recente", EndDate: &d10},
	}

	items := DeriveExpired(rows, DefaultKPIConfig(), fixedToday)
	require.Len(t, items, 2)
	assert.Equal(t, "recente", items[0].Description)
	assert.Equal(t, -10, items[0].DaysLeft)
	assert.Equal(t, SeverityCritical, items[0].Severity)
}

func TestDeriveExpiring_TopNCap(t *testing.T) {
	cfg := DefaultKPIConfig()
	cfg.TopN = 2
	var rows []Row
	for i := 1; i <= 5; i++ {
		end := fixedToday.AddDate(0, 0, i)
		rows = append(rows, Row{UGR: "A", EndDate: &end})
	}
	items := DeriveExpiring(rows, cfg, fixedToday)
	assert.Len(t, items, 2)
}

func TestDeriveHeatmap_HighlightsEndMonthInCurrentYear(t *testing.T) {
	endJun := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	endNext := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := []Row{
		{Description: "Contrato A", UGR: "X", Months: [12]float64{1, 2, 3}, EndDate: &endJun},
		{Description: "Contrato B", UGR: "Y", EndDate: &endNext},
		{Description: "Contrato C", UGR: "Z"},
	}

	cells := DeriveHeatmap(rows, fixedToday)
	require.Len(t, cells, 3)
	assert.Equal(t, 6, cells[0].HighlightMonth)
	assert.Equal(t, [12]float64{1, 2, 3}, cells[0].Months)
	assert.Equal(t, 0, cells[1].HighlightMonth)
	assert.Equal(t, 0, cells[2].HighlightMonth)
}

func TestApplyScenario_DeltasLayerOnBase(t *testing.T) {
	rows := twoContractRows()
	base := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)

	s := ApplyScenario(base, rows, []ScenarioAdjustment{
		{UGR: "X", Field: "executed", Delta: 100},
	})
	require.NotNil(t, s)
	assert.Equal(t, 100.0, s.DeltaExecuted)
	assert.Equal(t, 0.0, s.DeltaPlanned)
	assert.Equal(t, 1000.0, s.KPIs.TotalExecuted)
	assert.InDelta(t, 1000.0/1500.0*100, s.KPIs.ExecutionPercent, 0.0001)

	// base untouched
	assert.Equal(t, 900.0, base.TotalExecuted)
}

func TestApplyScenario_UnknownUGRIgnored(t *testing.T) {
	rows := twoContractRows()
	base := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)

	s := ApplyScenario(base, rows, []ScenarioAdjustment{
		{UGR: "nope", Field: "estimated", Delta: 9999},
	})
	require.NotNil(t, s)
	assert.Equal(t, 0.0, s.DeltaPlanned)
	assert.Equal(t, base.TotalEstimated, s.KPIs.TotalEstimated)
}

func TestApplyScenario_NoAdjustmentsIsNil(t *testing.T) {
	rows := twoContractRows()
	base := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)
	assert.Nil(t, ApplyScenario(base, rows, nil))
}

func TestBuildDashboardView_AssemblesAllSections(t *testing.T) {
	rows := twoContractRows()
	ds := &Dataset{Rows: rows}

	view := BuildDashboardView(ds, rows, DefaultKPIConfig(), fixedToday, ChartModeMonthly)
	assert.Equal(t, 1500.0, view.KPIs.TotalEstimated)
	assert.Len(t, view.UnitBreakdown, 2)
	assert.Len(t, view.Charts.MonthlySeries, 12)
	assert.Len(t, view.Charts.Heatmap, 2)
	assert.Len(t, view.Charts.Distribution, 2)
	assert.Len(t, view.Charts.PlannedExecuted, 12)
	assert.Equal(t, []string{"X", "Y"}, view.FilterOptions.UGRs)
	assert.NotEmpty(t, view.Alerts) // one contract expired
	assert.Len(t, view.Table, 2)
}

func TestDeriveKPIs_StatusOnlyExpiredCounted(t *testing.T) {
	rows := []Row{
		{UGR: "A", Status: "VENCIDO"},
		{UGR: "B", Status: "ATIVO"},
	}
	k := DeriveKPIs(rows, DefaultKPIConfig(), fixedToday)
	assert.Equal(t, 1, k.ExpiredCount)
	assert.Equal(t, 0, k.ExpiringSoon)
}

func TestDeriveExpired_IncludesStatusOnlyRows(t *testing.T) {
	d10 := fixedToday.AddDate(0, 0, -10)
	rows := []Row{
		{UGR: "A", Description: "datado", EndDate: &d10},
		{UGR: "B", Description: "sem data", Status: "VENCIDO"},
	}
	items := DeriveExpired(rows, DefaultKPIConfig(), fixedToday)
	require.Len(t, items, 2)
	assert.Equal(t, "datado", items[0].Description)
	assert.Equal(t, "sem data", items[1].Description)
	assert.Equal(t, SeverityCritical, items[1].Severity)
}

func TestDeriveDistribution_TopSlicesPlusOutros(t *testing.T) {
	rows := make([]Row, 0, 8)
	for i := 0; i < 8; i++ {
		rows = append(rows, Row{
			Description: string(rune('A' + i)),
			Executed:    float64(800 - i*100),
		})
	}
	slices := DeriveDistribution(rows)
	require.Len(t, slices, 7) // top 6 + "Outros"
	assert.Equal(t, "A", slices[0].Label)
	assert.Equal(t, 800.0, slices[0].Value)
	assert.Equal(t, "Outros", slices[6].Label)
	assert.Equal(t, 300.0, slices[6].Value) // 200 + 100
}
