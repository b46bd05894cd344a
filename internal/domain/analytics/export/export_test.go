package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

func sampleResult() *analytics.PivotResult {
	gt := 375.0
	return &analytics.PivotResult{
		Rows:          []string{"Região"},
		Columns:       []string{"Canal"},
		RowHeaders:    [][]string{{"Norte"}, {"Sul"}},
		ColumnHeaders: [][]string{{"Loja"}, {"Site"}},
		ColumnKeys:    []string{"Loja", "Site"},
		Values:        [][]float64{{100, 50}, {200, 25}},
		RowTotals:     []float64{150, 225},
		ColumnTotals:  []float64{300, 75},
		GrandTotal:    gt,
		Aggregator:    analytics.AggSum,
		ValueFormat:   analytics.FormatCurrency,
	}
}

func TestToExcel_ProducesReadableWorkbook(t *testing.T) {
	data, err := ToExcel(context.Background(), sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Pivot")
	require.NoError(t, err)
	// header + 2 data rows + totals row
	require.Len(t, rows, 4)
	assert.Equal(t, "Norte", rows[1][0])
	assert.Equal(t, "Total", rows[3][0])
}

func TestToExcel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ToExcel(ctx, sampleResult())
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeCancelled, aerr.Code)
}

func TestToPDF_ProducesNonEmptyDocument(t *testing.T) {
	data, err := ToPDF(context.Background(), "Vendas por região", sampleResult())
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, []byte("%PDF"), data[:4])
}

func TestToPDF_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ToPDF(ctx, "Vendas", sampleResult())
	var aerr *analytics.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, analytics.CodeCancelled, aerr.Code)
}
