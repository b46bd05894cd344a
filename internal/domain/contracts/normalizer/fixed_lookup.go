package normalizer

import (
	"strings"
	"time"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/internal/domain/contracts"
)

// FixedRecord carries the slow-moving contract attributes maintained in the
// "variáveis fixas" companion workbook: identification and planning fields
// that the monthly execution export tends to truncate or misspell.
type FixedRecord struct {
	Description     string
	PI              string
	ContractNumber  string
	Supplier        string
	Status          string
	EndDate         *time.Time
	MonthlyAverage  float64
	EstimatedAnnual float64
}

type comboKey struct {
	pi   string
	desc string
}

// FixedLookup resolves a contract row to its fixed-variables record:
// contract number first, then internal-plan code, then the (PI,
// description) pair when one PI covers several contracts.
type FixedLookup struct {
	byContract map[string]FixedRecord
	byPI       map[string][]FixedRecord
	byCombo    map[comboKey]FixedRecord
	n          int
}

// BuildFixedLookup indexes the fixed-variables workbook given the column
// keys carrying each field.
func BuildFixedLookup(table *analytics.Table, cols ColumnMapping) *FixedLookup {
	l := &FixedLookup{
		byContract: make(map[string]FixedRecord),
		byPI:       make(map[string][]FixedRecord),
		byCombo:    make(map[comboKey]FixedRecord),
	}

	descCol := table.ColumnByKey(cols.Description)
	piCol := table.ColumnByKey(cols.PI)
	contractCol := table.ColumnByKey(cols.ContractNumber)
	supplierCol := table.ColumnByKey(cols.Supplier)
	statusCol := table.ColumnByKey(cols.Status)
	endCol := table.ColumnByKey(cols.EndDate)
	avgCol := table.ColumnByKey(cols.MonthlyAverage)
	estimatedCol := table.ColumnByKey(cols.EstimatedAnnual)

	for r := 0; r < table.RowCount; r++ {
		rec := FixedRecord{
			Description:     cellText(descCol, r),
			PI:              cellText(piCol, r),
			ContractNumber:  cellText(contractCol, r),
			Supplier:        cellText(supplierCol, r),
			Status:          cellText(statusCol, r),
			MonthlyAverage:  cellNumber(avgCol, r),
			EstimatedAnnual: cellNumber(estimatedCol, r),
		}
		if end, warn := cellTime(endCol, r); warn == "" && end != nil {
			rec.EndDate = end
		}
		if rec == (FixedRecord{}) {
			continue
		}
		l.n++

		piKey := cleanMatchKey(rec.PI)
		descKey := cleanMatchKey(rec.Description)
		contractKey := cleanMatchKey(rec.ContractNumber)
		if piKey != "" {
			l.byPI[piKey] = append(l.byPI[piKey], rec)
			if descKey != "" {
				l.byCombo[comboKey{piKey, descKey}] = rec
			}
		}
		if contractKey != "" {
			l.byContract[contractKey] = rec
		}
	}
	return l
}

// HasData reports whether anything was indexed.
func (l *FixedLookup) HasData() bool {
	return l != nil && (len(l.byContract) > 0 || len(l.byPI) > 0)
}

// Len returns the number of indexed records.
func (l *FixedLookup) Len() int {
	if l == nil {
		return 0
	}
	return l.n
}

// Merge overlays row with its fixed-variables record, when one matches.
// Identification keys (PI, description) and the dynamic execution fields
// (months, empenho balances) always keep the uploaded values.
func (l *FixedLookup) Merge(row *contracts.Row) {
	rec, ok := l.match(row)
	if !ok {
		return
	}
	if rec.Supplier != "" {
		row.Supplier = rec.Supplier
	}
	if rec.Status != "" {
		row.Status = rec.Status
	}
	if rec.ContractNumber != "" {
		row.ContractNumber = rec.ContractNumber
	}
	if rec.EndDate != nil {
		row.EndDate = rec.EndDate
	}
	if rec.MonthlyAverage != 0 {
		row.MonthlyAverage = rec.MonthlyAverage
	}
	if rec.EstimatedAnnual != 0 {
		row.EstimatedAnnual = rec.EstimatedAnnual
	}
}

func (l *FixedLookup) match(row *contracts.Row) (FixedRecord, bool) {
	contractKey := cleanMatchKey(row.ContractNumber)
	if contractKey != "" {
		if rec, ok := l.byContract[contractKey]; ok {
			return rec, true
		}
	}

	piKey := cleanMatchKey(row.PI)
	if piKey == "" {
		return FixedRecord{}, false
	}
	candidates := l.byPI[piKey]
	if len(candidates) == 0 {
		return FixedRecord{}, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	if descKey := cleanMatchKey(row.Description); descKey != "" {
		if rec, ok := l.byCombo[comboKey{piKey, descKey}]; ok {
			return rec, true
		}
	}
	return candidates[0], true
}

// cleanMatchKey normalizes a match key: footnotes after a line break or an
// opening parenthesis are stripped before sanitizing, so "PI 123 (ver
// obs.)" and "PI 123" land on the same key.
func cleanMatchKey(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return ""
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	if idx := strings.IndexByte(text, '('); idx >= 0 {
		text = text[:idx]
	}
	return sanitizeHeader(text)
}
