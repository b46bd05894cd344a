// Package normalizer turns a raw ingested contracts workbook table into
// normalized contracts.Row values: numeric coercion, "Total" row filtering,
// executed/committed fallback derivation, and date-driven state
// classification.
package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/internal/domain/contracts"
	"github.com/FACorreiaa/analytics-portal/pkg/money"
)

// totalMatcher pre-compiles the canonical "Total" row prefixes once and
// reuses a single Aho-Corasick scan per row, the same Build/Match shape the
// categorization engine uses for merchant descriptions.
type totalMatcher struct {
	matcher  *ahocorasick.Matcher
	prefixes []string
}

func newTotalMatcher(prefixes []string) *totalMatcher {
	if len(prefixes) == 0 {
		return &totalMatcher{}
	}
	patterns := make([][]byte, len(prefixes))
	for i, p := range prefixes {
		patterns[i] = []byte(strings.ToUpper(p))
	}
	return &totalMatcher{matcher: ahocorasick.NewMatcher(patterns), prefixes: prefixes}
}

// isTotalRow reports whether a description marks an invariant totals row:
// exactly "TOTAL"/"TOTAL GERAL" or starting with one of the configured
// prefixes, always; any other description starting with "TOTAL" only when
// the row has no unit code. Aho-Corasick finds candidates anywhere in one
// pass; requiring the match at offset 0 keeps a contract legitimately
// described as "Manutenção Total de Obras" from being dropped.
func (m *totalMatcher) isTotalRow(description, ugr string) bool {
	upper := strings.ToUpper(strings.TrimSpace(description))
	if upper == "" {
		return false
	}
	if upper == "TOTAL" || upper == "TOTAL GERAL" {
		return true
	}
	if m.matcher != nil {
		for _, idx := range m.matcher.Match([]byte(upper)) {
			if idx < 0 || idx >= len(m.prefixes) {
				continue
			}
			if strings.HasPrefix(upper, strings.ToUpper(m.prefixes[idx])) {
				return true
			}
		}
	}
	return ugr == "" && strings.HasPrefix(upper, "TOTAL")
}

// Normalize converts table (as produced by the loader for a contracts
// workbook upload) into a contracts.Dataset, given the column keys carrying
// each semantic field. today is injected so state classification is
// deterministic and testable.
//
// Per-row derivations:
//
//	committed = committedTotal || committedCurrent + committedCarry
//	executed  = executed || sum(months) || committed
//	rate      = executed / estimatedAnnual * 100 (0 when estimatedAnnual <= 0)
func Normalize(table *analytics.Table, cols ColumnMapping, cfg contracts.KPIConfig, today time.Time) (*contracts.Dataset, error) {
	tm := newTotalMatcher(cfg.TotalRowPrefixes)

	ugrCol := table.ColumnByKey(cols.UGR)
	piCol := table.ColumnByKey(cols.PI)
	descCol := table.ColumnByKey(cols.Description)
	supplierCol := table.ColumnByKey(cols.Supplier)
	numberCol := table.ColumnByKey(cols.ContractNumber)
	statusCol := table.ColumnByKey(cols.Status)
	endCol := table.ColumnByKey(cols.EndDate)
	avgCol := table.ColumnByKey(cols.MonthlyAverage)
	estimatedCol := table.ColumnByKey(cols.EstimatedAnnual)
	executedCol := table.ColumnByKey(cols.Executed)
	committedCol := table.ColumnByKey(cols.CommittedCurrent)
	carryCol := table.ColumnByKey(cols.CommittedCarry)
	committedTotalCol := table.ColumnByKey(cols.CommittedTotal)

	monthCols := make([]*analytics.Column, 12)
	var warnings []string
	for m := 0; m < 12; m++ {
		if key := cols.Months[m]; key != "" {
			monthCols[m] = table.ColumnByKey(key)
		}
		if monthCols[m] == nil {
			warnings = append(warnings, fmt.Sprintf("coluna do mês %s ausente", contracts.MonthLabels[m]))
		}
	}

	rows := make([]contracts.Row, 0, table.RowCount)
	for r := 0; r < table.RowCount; r++ {
		desc := cellText(descCol, r)
		ugr := cellText(ugrCol, r)
		if tm.isTotalRow(desc, ugr) {
			continue
		}

		row := contracts.Row{
			UGR:              ugr,
			PI:               cellText(piCol, r),
			Description:      desc,
			Supplier:         cellText(supplierCol, r),
			ContractNumber:   cellText(numberCol, r),
			Status:           cellText(statusCol, r),
			MonthlyAverage:   cellNumber(avgCol, r),
			EstimatedAnnual:  cellNumber(estimatedCol, r),
			Executed:         cellNumber(executedCol, r),
			CommittedCurrent: cellNumber(committedCol, r),
			CommittedCarry:   cellNumber(carryCol, r),
		}

		var monthSum float64
		for m := 0; m < 12; m++ {
			row.Months[m] = cellNumber(monthCols[m], r)
			monthSum += row.Months[m]
		}

		row.Committed = cellNumber(committedTotalCol, r)
		if row.Committed == 0 {
			row.Committed = row.CommittedCurrent + row.CommittedCarry
		}
		if row.Executed == 0 {
			row.Executed = monthSum
		}
		if row.Executed == 0 {
			row.Executed = row.Committed
		}
		if row.EstimatedAnnual > 0 {
			row.ExecutionRate = row.Executed / row.EstimatedAnnual * 100
		}

		if end, warn := cellTime(endCol, r); warn != "" {
			warnings = append(warnings, warn)
		} else if end != nil {
			row.EndDate = end
		}
		row.State = contracts.ClassifyState(row.EndDate, today)

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "no contract rows after totals filtering", nil)
	}

	return &contracts.Dataset{
		Rows:             rows,
		TotalRowPrefixes: cfg.TotalRowPrefixes,
		Warnings:         warnings,
	}, nil
}

func cellText(col *analytics.Column, row int) string {
	if col == nil || row >= len(col.Values) {
		return ""
	}
	return strings.TrimSpace(col.Values[row].String())
}

func cellNumber(col *analytics.Column, row int) float64 {
	if col == nil || row >= len(col.Values) {
		return 0
	}
	cell := col.Values[row]
	if cell.Present && cell.Text == "" {
		return cell.Number
	}
	// Tolerate a value column the loader inferred as text (e.g. a
	// "R$ 1.234,56" cell that failed the numeric-sample threshold because
	// other rows in the sheet carry footnote text).
	if v, ok := money.ParseBRL(cell.Text); ok {
		return v
	}
	return 0
}

func cellTime(col *analytics.Column, row int) (*time.Time, string) {
	if col == nil || row >= len(col.Values) {
		return nil, ""
	}
	cell := col.Values[row]
	if !cell.Present {
		return nil, ""
	}
	if !cell.Time.IsZero() {
		t := cell.Time
		return &t, ""
	}
	raw := strings.TrimSpace(cell.Text)
	if raw == "" {
		return nil, ""
	}
	for _, layout := range []string{"02/01/2006", "2/1/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, ""
		}
	}
	return nil, fmt.Sprintf("data de vigência inválida na linha %d: %q", row+1, raw)
}
