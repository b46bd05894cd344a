// Package export renders a PivotResult (or a dashboard table slice) into a
// downloadable Excel workbook or PDF document.
package export

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

const sheetName = "Pivot"

// ToExcel renders result as a single-sheet .xlsx workbook: a header row of
// frozen row-dimension labels and column keys, one row per pivot row with
// its row header(s) and values, and a trailing totals row. Cancellation is
// observed between rows.
func ToExcel(ctx context.Context, result *analytics.PivotResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "renaming sheet", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E8EAED"}, Pattern: 1},
	})
	if err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "creating header style", err)
	}

	numberFormat := "#,##0.00"
	if result.ValueFormat == analytics.FormatCurrency {
		numberFormat = `"R$" #,##0.00`
	}
	valueStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numberFormat})
	if err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "creating value style", err)
	}

	rowDims := len(result.Rows)
	if rowDims == 0 {
		rowDims = 1
	}

	for d, label := range result.Rows {
		cell, _ := excelize.CoordinatesToCellName(d+1, 1)
		_ = f.SetCellValue(sheetName, cell, label)
	}

	col := rowDims + 1
	for _, ck := range result.ColumnHeaders {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		_ = f.SetCellValue(sheetName, cell, strings.Join(ck, " / "))
		col++
	}
	totalHeaderCell, _ := excelize.CoordinatesToCellName(col, 1)
	_ = f.SetCellValue(sheetName, totalHeaderCell, "Total")
	_ = f.SetCellStyle(sheetName, "A1", totalHeaderCell, headerStyle)

	for r, headers := range result.RowHeaders {
		if err := ctx.Err(); err != nil {
			return nil, analytics.NewError(analytics.CodeCancelled, "export cancelled", err)
		}
		excelRow := r + 2
		for d, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(d+1, excelRow)
			_ = f.SetCellValue(sheetName, cell, h)
		}
		for c, v := range result.Values[r] {
			cell, _ := excelize.CoordinatesToCellName(rowDims+1+c, excelRow)
			_ = f.SetCellValue(sheetName, cell, v)
			_ = f.SetCellStyle(sheetName, cell, cell, valueStyle)
		}
		rowTotalCell, _ := excelize.CoordinatesToCellName(rowDims+1+len(result.Values[r]), excelRow)
		_ = f.SetCellValue(sheetName, rowTotalCell, result.RowTotals[r])
		_ = f.SetCellStyle(sheetName, rowTotalCell, rowTotalCell, valueStyle)
	}

	totalsRow := len(result.RowHeaders) + 2
	totalLabelCell, _ := excelize.CoordinatesToCellName(1, totalsRow)
	_ = f.SetCellValue(sheetName, totalLabelCell, "Total")
	for c, v := range result.ColumnTotals {
		cell, _ := excelize.CoordinatesToCellName(rowDims+1+c, totalsRow)
		_ = f.SetCellValue(sheetName, cell, v)
		_ = f.SetCellStyle(sheetName, cell, cell, valueStyle)
	}
	grandCell, _ := excelize.CoordinatesToCellName(rowDims+1+len(result.ColumnTotals), totalsRow)
	_ = f.SetCellValue(sheetName, grandCell, result.GrandTotal)
	_ = f.SetCellStyle(sheetName, grandCell, grandCell, headerStyle)

	topLeft, _ := excelize.CoordinatesToCellName(rowDims+1, 2)
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, XSplit: rowDims,
		TopLeftCell: topLeft, ActivePane: "bottomRight",
	}); err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "freezing header panes", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "writing workbook", err)
	}
	return buf.Bytes(), nil
}
