package export

import (
	"bytes"
	"context"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/pkg/money"
)

const (
	pdfPageWidthMM = 297.0 // A4 landscape
	pdfMarginMM    = 10.0
)

// ToPDF renders result as a landscape A4 PDF: one table per page, repeating
// the header row if the grid overflows the page height. Cancellation is
// observed between rows.
func ToPDF(ctx context.Context, title string, result *analytics.PivotResult) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMarginMM, pdfMarginMM, pdfMarginMM)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	rowDims := len(result.Rows)
	if rowDims == 0 {
		rowDims = 1
	}
	numCols := rowDims + len(result.ColumnHeaders) + 1
	usable := pdfPageWidthMM - 2*pdfMarginMM
	colWidth := usable / float64(numCols)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(232, 234, 237)
	writeHeaderRow := func() {
		for _, label := range result.Rows {
			pdf.CellFormat(colWidth, 8, label, "1", 0, "C", true, 0, "")
		}
		if rowDims > len(result.Rows) {
			pdf.CellFormat(colWidth, 8, "", "1", 0, "C", true, 0, "")
		}
		for _, ck := range result.ColumnHeaders {
			pdf.CellFormat(colWidth, 8, strings.Join(ck, " / "), "1", 0, "C", true, 0, "")
		}
		pdf.CellFormat(colWidth, 8, "Total", "1", 1, "C", true, 0, "")
	}
	writeHeaderRow()

	pdf.SetFont("Arial", "", 9)
	for r, headers := range result.RowHeaders {
		if err := ctx.Err(); err != nil {
			return nil, analytics.NewError(analytics.CodeCancelled, "export cancelled", err)
		}
		if pdf.GetY() > 190 {
			pdf.AddPage()
			writeHeaderRow()
			pdf.SetFont("Arial", "", 9)
		}
		for _, h := range headers {
			pdf.CellFormat(colWidth, 7, h, "1", 0, "L", false, 0, "")
		}
		for _, v := range result.Values[r] {
			pdf.CellFormat(colWidth, 7, formatValue(v, result.ValueFormat), "1", 0, "R", false, 0, "")
		}
		pdf.CellFormat(colWidth, 7, formatValue(result.RowTotals[r], result.ValueFormat), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(232, 234, 237)
	pdf.CellFormat(colWidth*float64(rowDims), 8, "Total", "1", 0, "L", true, 0, "")
	for _, v := range result.ColumnTotals {
		pdf.CellFormat(colWidth, 8, formatValue(v, result.ValueFormat), "1", 0, "R", true, 0, "")
	}
	pdf.CellFormat(colWidth, 8, formatValue(result.GrandTotal, result.ValueFormat), "1", 1, "R", true, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "rendering pdf", err)
	}
	return buf.Bytes(), nil
}

func formatValue(v float64, format analytics.ValueFormat) string {
	if format == analytics.FormatCurrency {
		return money.FormatBRL(v)
	}
	return money.FormatNumber(v)
}
