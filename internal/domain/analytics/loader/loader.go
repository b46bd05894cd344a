// Package loader parses uploaded bytes into a typed in-memory Table with an
// inferred schema, across CSV/TSV/JSON/XLS/XLSX inputs.
package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

// Result is what a successful Load call produces.
type Result struct {
	Table  *analytics.Table
	Schema []analytics.SchemaEntry
}

// Load decodes raw into a Table, selecting a decoder by the filename
// suffix, case-insensitively.
func Load(filename string, raw []byte) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv", ".tsv", ".txt":
		return loadDelimited(raw)
	case ".json":
		return loadJSON(raw)
	case ".xls", ".xlsx":
		return loadSpreadsheet(raw)
	default:
		return nil, analytics.NewError(analytics.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported file extension %q", ext), nil)
	}
}

func loadDelimited(raw []byte) (*Result, error) {
	text := string(raw)
	headerLine, headerIdx := firstNonEmptyLine(text)
	if headerIdx < 0 {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "no non-empty lines", nil)
	}
	delim := sniffDelimiter(headerLine)

	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, analytics.NewError(analytics.CodeMalformed, "failed to parse delimited text", err)
	}
	// Skip any leading blank lines the CSV reader nonetheless emitted.
	for len(records) > 0 && isBlankRecord(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "zero rows", nil)
	}

	header := records[0]
	rows := records[1:]
	if len(rows) == 0 {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "zero data rows", nil)
	}

	return tableFromRows(header, rows)
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// jsonEnvelope accepts either a top-level array or {"data": [...]}.
type jsonEnvelope struct {
	Data []map[string]any `json:"data"`
}

func loadJSON(raw []byte) (*Result, error) {
	var rows []map[string]any

	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return nil, analytics.NewError(analytics.CodeEmptyInput, "empty JSON payload", nil)
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, analytics.NewError(analytics.CodeMalformed, "invalid JSON array", err)
		}
	default:
		var env jsonEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, analytics.NewError(analytics.CodeMalformed, "invalid JSON object", err)
		}
		rows = env.Data
	}
	if len(rows) == 0 {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "zero rows", nil)
	}

	// Keys across the union of all objects form the header, in first-seen
	// order.
	seen := make(map[string]bool)
	var header []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}

	strRows := make([][]string, len(rows))
	for i, row := range rows {
		rec := make([]string, len(header))
		for j, k := range header {
			if v, ok := row[k]; ok && v != nil {
				rec[j] = fmt.Sprintf("%v", v)
			}
		}
		strRows[i] = rec
	}

	return tableFromRows(header, strRows)
}

func loadSpreadsheet(raw []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, analytics.NewError(analytics.CodeMalformed, "failed to open spreadsheet", err)
	}
	defer f.Close()

	sheet := selectSheet(f)
	if sheet == "" {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, analytics.NewError(analytics.CodeMalformed, "failed to read sheet rows", err)
	}
	rows = trimBlankRows(rows)
	if len(rows) == 0 {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "zero rows", nil)
	}

	headerIdx := selectHeaderRow(rows)
	header := rows[headerIdx]
	dataRows := rows[headerIdx+1:]
	if len(dataRows) == 0 {
		return nil, analytics.NewError(analytics.CodeEmptyInput, "zero data rows", nil)
	}

	// Pad/truncate every row to the header width so ragged spreadsheet rows
	// (a common excelize artifact) don't panic downstream.
	for i, r := range dataRows {
		if len(r) < len(header) {
			padded := make([]string, len(header))
			copy(padded, r)
			dataRows[i] = padded
		} else if len(r) > len(header) {
			dataRows[i] = r[:len(header)]
		}
	}

	return tableFromRows(header, dataRows)
}

// preferredSheetNames take priority over positional sheet selection.
var preferredSheetNames = map[string]bool{
	"planilha1": true,
	"sheet1":    true,
}

// selectSheet picks the preferred default sheet if present, otherwise the
// highest-scoring sheet by sheetScore, falling back to the first sheet.
func selectSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}
	for _, s := range sheets {
		if preferredSheetNames[strings.ToLower(s)] {
			return s
		}
	}
	if len(sheets) == 1 {
		return sheets[0]
	}

	best := sheets[0]
	bestScore := -1
	for _, s := range sheets {
		score := sheetScore(f, s)
		if score > bestScore {
			bestScore = score
			best = s
		}
	}
	return best
}

// sheetScore rates how "table-like" a sheet is: wide, populated,
// rectangular sheets score higher than sparse ones.
func sheetScore(f *excelize.File, sheet string) int {
	rows, err := f.GetRows(sheet)
	if err != nil || len(rows) < 2 {
		return 0
	}
	maxCols := 0
	populated := 0
	for _, r := range rows {
		if len(r) > maxCols {
			maxCols = len(r)
		}
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				populated++
			}
		}
	}
	return len(rows)*maxCols + populated
}

// headerScanLimit bounds how many leading rows are considered when looking
// for the real header row of a spreadsheet.
const headerScanLimit = 5

// selectHeaderRow picks the header row of a spreadsheet: the first of the
// leading rows whose populated-cell count reaches half the sheet's width.
// Report sheets commonly open with a title or note spanning one or two
// cells before the actual column headers; those sparse rows are skipped.
func selectHeaderRow(rows [][]string) int {
	maxWidth := 0
	for _, r := range rows {
		if len(r) > maxWidth {
			maxWidth = len(r)
		}
	}
	required := maxWidth / 2
	if required < 1 {
		required = 1
	}

	limit := headerScanLimit
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		populated := 0
		for _, cell := range rows[i] {
			if strings.TrimSpace(cell) != "" {
				populated++
			}
		}
		if populated >= required {
			return i
		}
	}
	return 0
}

func trimBlankRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, r := range rows {
		if !isBlankRecord(r) {
			out = append(out, r)
		}
	}
	return out
}

// tableFromRows normalizes header into (label,key) pairs, infers column
// kinds, and builds the Table + Schema. header collisions past suffixing are
// not possible since uniqueKeys always resolves them, but a degenerate
// all-empty header is rejected as SchemaConflict.
func tableFromRows(rawHeader []string, rows [][]string) (*Result, error) {
	if len(rawHeader) == 0 {
		return nil, analytics.NewError(analytics.CodeSchemaConflict, "no header columns", nil)
	}

	labels, keys := uniqueKeys(rawHeader)
	columns := make([]*analytics.Column, len(labels))
	schema := make([]analytics.SchemaEntry, len(labels))

	for i := range labels {
		colValues := make([]string, len(rows))
		for r, row := range rows {
			if i < len(row) {
				colValues[r] = row[i]
			}
		}
		col := buildColumn(labels[i], keys[i], colValues)
		columns[i] = col
		schema[i] = analytics.SchemaEntry{
			Key:       keys[i],
			Label:     labels[i],
			Kind:      col.Kind,
			IsMeasure: isMeasure(col.Kind, keys[i]),
		}
	}

	return &Result{
		Table:  &analytics.Table{Columns: columns, RowCount: len(rows)},
		Schema: schema,
	}, nil
}
