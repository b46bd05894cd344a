package pivot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

func buildDataset() *analytics.Dataset {
	region := &analytics.Column{Name: "Região", Key: "regiao", Kind: analytics.KindText, Values: []analytics.Cell{
		analytics.TextCell("Norte"), analytics.TextCell("Norte"), analytics.TextCell("Sul"), analytics.TextCell("Sul"),
	}}
	channel := &analytics.Column{Name: "Canal", Key: "canal", Kind: analytics.KindText, Values: []analytics.Cell{
		analytics.TextCell("Loja"), analytics.TextCell("Site"), analytics.TextCell("Loja"), analytics.TextCell("Site"),
	}}
	revenue := &analytics.Column{Name: "Valor", Key: "valor", Kind: analytics.KindReal, Values: []analytics.Cell{
		analytics.NumberCell(100), analytics.NumberCell(50), analytics.NumberCell(200), analytics.NumberCell(25),
	}}
	units := &analytics.Column{Name: "Unidades", Key: "unidades", Kind: analytics.KindInteger, Values: []analytics.Cell{
		analytics.NumberCell(1), analytics.NumberCell(2), analytics.NumberCell(3), analytics.NumberCell(4),
	}}
	table := &analytics.Table{Columns: []*analytics.Column{region, channel, revenue, units}, RowCount: 4}
	return &analytics.Dataset{ID: "ds1", Table: table}
}

// smallGrid is the region/product/units table the basic grid expectations
// are written against.
func smallGrid() *analytics.Dataset {
	region := &analytics.Column{Name: "region", Key: "region", Kind: analytics.KindText, Values: []analytics.Cell{
		analytics.TextCell("N"), analytics.TextCell("N"), analytics.TextCell("S"),
	}}
	product := &analytics.Column{Name: "product", Key: "product", Kind: analytics.KindText, Values: []analytics.Cell{
		analytics.TextCell("A"), analytics.TextCell("B"), analytics.TextCell("A"),
	}}
	units := &analytics.Column{Name: "units", Key: "units", Kind: analytics.KindInteger, Values: []analytics.Cell{
		analytics.NumberCell(10), analytics.NumberCell(5), analytics.NumberCell(3),
	}}
	table := &analytics.Table{Columns: []*analytics.Column{region, product, units}, RowCount: 3}
	return &analytics.Dataset{ID: "grid", Table: table}
}

func TestPlan_BasicGrid(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Columns: []string{"product"},
		Measures: []string{"units"}, Aggregator: analytics.AggSum,
	}

	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"N"}, {"S"}}, result.RowHeaders)
	assert.Equal(t, [][]string{{"A"}, {"B"}}, result.ColumnHeaders)
	assert.Equal(t, [][]float64{{10, 5}, {3, 0}}, result.Values)
	assert.Equal(t, []float64{15, 3}, result.RowTotals)
	assert.Equal(t, []float64{13, 5}, result.ColumnTotals)
	assert.Equal(t, 18.0, result.GrandTotal)
	assert.Nil(t, result.SummaryValue)
	assert.Equal(t, analytics.FormatNumber, result.ValueFormat)
}

// The share expression references the measure itself, so it is evaluated
// per visible cell: 10/10, 5/5, and 3/3 give 100 while the empty (S,B)
// cell degrades to 0 through division by zero.
func TestPlan_PostCalcShareColumnPerCell(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Columns: []string{"product"},
		Measures: []string{"units"}, Aggregator: analytics.AggSum,
		PostCalculations: []analytics.CalculationSpec{{
			Name: "share", Stage: analytics.StagePost,
			Expression: "{units}/{units} * 100", ResultKey: "share",
		}},
	}

	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	// one calculated column per aggregated source column
	require.Equal(t, []string{"A", "B", "A|share", "B|share"}, result.ColumnKeys)
	assert.Equal(t, []string{"A", "share"}, result.ColumnHeaders[2])
	assert.Equal(t, []string{"B", "share"}, result.ColumnHeaders[3])
	assert.Equal(t, [][]float64{
		{10, 5, 100, 100},
		{3, 0, 100, 0},
	}, result.Values)
}

// Referencing result columns by key keeps the single-appended-column shape:
// one value per row, computed from that row's aggregated cells.
func TestPlan_PostCalcColumnReference(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Columns: []string{"product"},
		Measures: []string{"units"}, Aggregator: analytics.AggSum,
		PostCalculations: []analytics.CalculationSpec{{
			Name: "A + B", Stage: analytics.StagePost,
			Expression: "{A} + {B}", ResultKey: "a_mais_b",
		}},
	}

	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	require.Empty(t, result.Warnings)

	require.Equal(t, []string{"A", "B", "a_mais_b"}, result.ColumnKeys)
	assert.Equal(t, [][]float64{
		{10, 5, 15},
		{3, 0, 3},
	}, result.Values)
	assert.Equal(t, []float64{13, 5, 18}, result.ColumnTotals)
}

func TestPlan_FilterRestrictsEverything(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Columns: []string{"product"},
		Measures: []string{"units"}, Aggregator: analytics.AggSum,
		Filters: map[string][]string{"region": {"N"}},
	}

	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{10, 5}}, result.Values)
	assert.Equal(t, []float64{15}, result.RowTotals)
	assert.Equal(t, 15.0, result.GrandTotal)
}

func TestPlan_EmptyAllowSetYieldsNoRows(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Measures: []string{"units"}, Aggregator: analytics.AggSum,
		Filters: map[string][]string{"region": {}},
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	assert.Empty(t, result.RowHeaders)
	assert.Equal(t, 0.0, result.GrandTotal)
}

func TestPlan_AvgRowTotalsRecomputedFromSource(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Measures: []string{"units"}, Aggregator: analytics.AggAvg,
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, result.RowTotals[0], 1e-9)
	assert.InDelta(t, 3.0, result.RowTotals[1], 1e-9)
	assert.InDelta(t, 6.0, result.GrandTotal, 1e-9)
}

func TestPlan_AdditiveTotalsAgree(t *testing.T) {
	ds := buildDataset()
	q := analytics.PivotQuery{
		Rows: []string{"regiao"}, Columns: []string{"canal"},
		Measures: []string{"valor"}, Aggregator: analytics.AggSum,
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)

	var rowSum, colSum float64
	for _, v := range result.RowTotals {
		rowSum += v
	}
	for _, v := range result.ColumnTotals {
		colSum += v
	}
	assert.InDelta(t, result.GrandTotal, rowSum, 1e-6)
	assert.InDelta(t, result.GrandTotal, colSum, 1e-6)
	assert.Equal(t, analytics.FormatCurrency, result.ValueFormat)
}

func TestPlan_SummaryOnlyWithoutDimensions(t *testing.T) {
	ds := buildDataset()

	avg, err := Plan(context.Background(), ds, analytics.PivotQuery{Measures: []string{"valor"}, Aggregator: analytics.AggAvg})
	require.NoError(t, err)
	require.NotNil(t, avg.SummaryValue)
	assert.InDelta(t, 93.75, *avg.SummaryValue, 0.001)

	cnt, err := Plan(context.Background(), ds, analytics.PivotQuery{Measures: []string{"valor"}, Aggregator: analytics.AggCount})
	require.NoError(t, err)
	require.NotNil(t, cnt.SummaryValue)
	assert.Equal(t, 4.0, *cnt.SummaryValue)
	assert.Equal(t, analytics.FormatNumber, cnt.ValueFormat)
}

func TestPlan_MultipleMeasuresCrossProductColumns(t *testing.T) {
	ds := buildDataset()
	q := analytics.PivotQuery{
		Rows: []string{"regiao"}, Columns: []string{"canal"},
		Measures: []string{"valor", "unidades"}, Aggregator: analytics.AggSum,
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)

	// 2 column tuples x 2 measures.
	require.Len(t, result.ColumnHeaders, 4)
	assert.Equal(t, []string{"Loja", "Valor"}, result.ColumnHeaders[0])
	assert.Equal(t, []string{"Loja", "Unidades"}, result.ColumnHeaders[1])
	assert.Equal(t, []string{"Site", "Valor"}, result.ColumnHeaders[2])
	assert.Equal(t, []string{"Site", "Unidades"}, result.ColumnHeaders[3])
	assert.Equal(t, []float64{100, 1, 50, 2}, result.Values[0])
	assert.Equal(t, []float64{200, 3, 25, 4}, result.Values[1])
}

func TestPlan_MultipleMeasuresSummaryValues(t *testing.T) {
	ds := buildDataset()
	q := analytics.PivotQuery{Measures: []string{"valor", "unidades"}, Aggregator: analytics.AggSum}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	require.Nil(t, result.SummaryValue)
	require.Len(t, result.SummaryValues, 2)
	assert.Equal(t, 375.0, result.SummaryValues[0])
	assert.Equal(t, 10.0, result.SummaryValues[1])
}

func TestPlan_TooManyMeasures(t *testing.T) {
	ds := buildDataset()
	q := analytics.PivotQuery{
		Measures:   []string{"valor", "valor", "valor", "valor", "valor", "valor", "valor"},
		Aggregator: analytics.AggSum,
	}
	_, err := Plan(context.Background(), ds, q)
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeNoMeasure, aerr.Code)
}

func TestPlan_UnknownColumnErrors(t *testing.T) {
	ds := buildDataset()
	_, err := Plan(context.Background(), ds, analytics.PivotQuery{Rows: []string{"nope"}, Measures: []string{"valor"}, Aggregator: analytics.AggSum})
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeUnknownColumn, aerr.Code)
}

func TestPlan_NoMeasureErrors(t *testing.T) {
	ds := buildDataset()
	_, err := Plan(context.Background(), ds, analytics.PivotQuery{Aggregator: analytics.AggSum})
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeNoMeasure, aerr.Code)
}

func TestPlan_UnknownAggregatorErrors(t *testing.T) {
	ds := buildDataset()
	_, err := Plan(context.Background(), ds, analytics.PivotQuery{Measures: []string{"valor"}, Aggregator: "bogus"})
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeUnknownAggregator, aerr.Code)
}

func TestPlan_PreCalculationAddsComputedMeasure(t *testing.T) {
	ds := buildDataset()
	q := analytics.PivotQuery{
		Measures:   []string{"valor_por_unidade"},
		Aggregator: analytics.AggSum,
		PreCalculations: []analytics.CalculationSpec{{
			Name: "Valor por unidade", Stage: analytics.StagePre,
			Expression: "{valor} / {unidades}", ResultField: "valor_por_unidade",
		}},
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	require.NotNil(t, result.SummaryValue)
	assert.InDelta(t, 100.0+25.0+200.0/3.0+6.25, *result.SummaryValue, 0.01)
}

func TestPlan_PreCalcIdentityEqualsSource(t *testing.T) {
	ds := buildDataset()
	q := analytics.PivotQuery{
		Rows: []string{"regiao"}, Measures: []string{"copia"}, Aggregator: analytics.AggSum,
		PreCalculations: []analytics.CalculationSpec{{
			Name: "Cópia", Stage: analytics.StagePre,
			Expression: "{valor}", ResultField: "copia",
		}},
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	assert.Equal(t, []float64{150, 225}, result.RowTotals)
	assert.Equal(t, 375.0, result.GrandTotal)
}

func TestPlan_PostCalcDivisionByZeroYieldsZero(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Measures: []string{"units"}, Aggregator: analytics.AggSum,
		PostCalculations: []analytics.CalculationSpec{{
			Name: "broken", Stage: analytics.StagePost,
			Expression: "{units} / 0", ResultKey: "broken",
		}},
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	for _, row := range result.Values {
		assert.Equal(t, 0.0, row[len(row)-1])
	}
}

func TestPlan_PostCalcUnknownPlaceholderWarns(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Rows: []string{"region"}, Measures: []string{"units"}, Aggregator: analytics.AggSum,
		PostCalculations: []analytics.CalculationSpec{{
			Name: "ghost", Stage: analytics.StagePost,
			Expression: "{missing} * 2", ResultKey: "ghost",
		}},
	}
	result, err := Plan(context.Background(), ds, q)
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	for _, row := range result.Values {
		assert.Equal(t, 0.0, row[len(row)-1])
	}
}

func TestPlan_InvalidExpressionRejected(t *testing.T) {
	ds := smallGrid()
	q := analytics.PivotQuery{
		Measures: []string{"units"}, Aggregator: analytics.AggSum,
		PostCalculations: []analytics.CalculationSpec{{
			Name: "bad", Expression: "{units} + * 2", ResultKey: "bad",
		}},
	}
	_, err := Plan(context.Background(), ds, q)
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeInvalidExpression, aerr.Code)
}

func TestPlan_CancelledContext(t *testing.T) {
	ds := buildDataset()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Plan(ctx, ds, analytics.PivotQuery{
		Rows: []string{"regiao"}, Measures: []string{"valor"}, Aggregator: analytics.AggSum,
	})
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeCancelled, aerr.Code)
}

func TestPlan_EmptyCellsSortLast(t *testing.T) {
	region := &analytics.Column{Name: "Região", Key: "regiao", Kind: analytics.KindText, Values: []analytics.Cell{
		analytics.TextCell("Sul"), analytics.AbsentCell, analytics.TextCell("Norte"),
	}}
	revenue := &analytics.Column{Name: "Receita", Key: "receita", Kind: analytics.KindReal, Values: []analytics.Cell{
		analytics.NumberCell(1), analytics.NumberCell(2), analytics.NumberCell(3),
	}}
	ds := &analytics.Dataset{Table: &analytics.Table{Columns: []*analytics.Column{region, revenue}, RowCount: 3}}

	result, err := Plan(context.Background(), ds, analytics.PivotQuery{Rows: []string{"regiao"}, Measures: []string{"receita"}, Aggregator: analytics.AggSum})
	require.NoError(t, err)
	require.Len(t, result.RowHeaders, 3)
	assert.Equal(t, analytics.EmptyCellsLabel, result.RowHeaders[2][0])
}
