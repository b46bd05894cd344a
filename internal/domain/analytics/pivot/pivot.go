// Package pivot implements the filter → pre-calc → group → aggregate →
// post-calc → totals pipeline that turns a PivotQuery against a stored
// Dataset into a PivotResult.
package pivot

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/evaluator"
)

const keySep = "\x1f"

// SoftDeadline is the query duration past which a warning is attached to
// the result. HardDeadline aborts the query entirely; callers bound the
// request context with it.
const (
	SoftDeadline = 30 * time.Second
	HardDeadline = 60 * time.Second
)

var collator = collate.New(language.BrazilianPortuguese, collate.IgnoreCase)

// currencyMeasureRe marks measure names that carry monetary values; sum,
// avg, min, and max over them render as currency.
var currencyMeasureRe = regexp.MustCompile(`valor|saldo|empenho|executado|estimado`)

// Plan runs the full pipeline for q against ds. Cancellation is observed
// between the filter, grouping, and materialization passes, every 1024 rows
// inside pre-calculation evaluation, and per result row (or, for cell-scoped
// expressions, per source column) inside post-calculation evaluation.
func Plan(ctx context.Context, ds *analytics.Dataset, q analytics.PivotQuery) (*analytics.PivotResult, error) {
	started := time.Now()

	if len(q.Measures) == 0 {
		return nil, analytics.NewError(analytics.CodeNoMeasure, "at least one measure is required", nil)
	}
	if len(q.Measures) > analytics.MaxMeasures {
		return nil, analytics.NewError(analytics.CodeNoMeasure, "too many measures requested", nil)
	}
	if !validAggregator(q.Aggregator) {
		return nil, analytics.NewError(analytics.CodeUnknownAggregator, string(q.Aggregator), nil)
	}

	table, warnings, err := applyPreCalculations(ctx, ds.Table, q.PreCalculations)
	if err != nil {
		return nil, err
	}

	for _, key := range append(append(append([]string{}, q.Rows...), q.Columns...), q.Measures...) {
		if table.ColumnByKey(key) == nil {
			return nil, analytics.NewError(analytics.CodeUnknownColumn, key, nil)
		}
	}

	eligible := filterRows(table, q.Filters)
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	rowIndex, rowOrder := groupIndex(table, eligible, q.Rows)
	colIndex, colOrder := groupIndex(table, eligible, q.Columns)
	sortKeys(rowOrder)
	sortKeys(colOrder)
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	result := materialize(table, q, eligible, rowIndex, rowOrder, colIndex, colOrder)

	postWarnings, err := applyPostCalculations(ctx, result, table, q)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, postWarnings...)

	if elapsed := time.Since(started); elapsed > SoftDeadline {
		warnings = append(warnings, "query exceeded the soft deadline of "+SoftDeadline.String())
	}
	result.Warnings = warnings
	return result, nil
}

// checkCtx translates context state into the engine's error taxonomy.
func checkCtx(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return analytics.NewError(analytics.CodeTimeout, "query deadline exceeded", err)
	default:
		return analytics.NewError(analytics.CodeCancelled, "query cancelled", err)
	}
}

func validAggregator(a analytics.Aggregator) bool {
	switch a {
	case analytics.AggSum, analytics.AggAvg, analytics.AggCount, analytics.AggDistinctCount, analytics.AggMin, analytics.AggMax:
		return true
	}
	return false
}

// materialize produces the result matrix: one visible column per distinct
// column tuple, cross-producted with measures when more than one measure is
// selected.
func materialize(table *analytics.Table, q analytics.PivotQuery, eligible []int, rowIndex map[string][]int, rowOrder []string, colIndex map[string][]int, colOrder []string) *analytics.PivotResult {
	primary := q.Measures[0]
	multi := len(q.Measures) > 1

	type visibleCol struct {
		colKey  string // group key in colIndex
		measure string
	}
	visible := make([]visibleCol, 0, len(colOrder)*len(q.Measures))
	columnHeaders := make([][]string, 0, cap(visible))
	columnKeys := make([]string, 0, cap(visible))
	for _, ck := range colOrder {
		tuple := splitKey(ck)
		if multi {
			for _, m := range q.Measures {
				visible = append(visible, visibleCol{colKey: ck, measure: m})
				columnHeaders = append(columnHeaders, append(append([]string{}, tuple...), measureLabel(table, m)))
				columnKeys = append(columnKeys, exposedKey(tuple, m))
			}
		} else {
			visible = append(visible, visibleCol{colKey: ck, measure: primary})
			columnHeaders = append(columnHeaders, tuple)
			columnKeys = append(columnKeys, exposedKey(tuple, ""))
		}
	}

	values := make([][]float64, len(rowOrder))
	for i, rk := range rowOrder {
		values[i] = make([]float64, len(visible))
		rowIdx := rowIndex[rk]
		for j, vc := range visible {
			cellIdx := intersect(rowIdx, colIndex[vc.colKey])
			values[i][j] = aggregate(table, cellIdx, vc.measure, q.Aggregator)
		}
	}

	// Totals are recomputed from the underlying row slices, not from the
	// visible cells, so non-additive aggregators (avg/min/max) stay exact.
	rowTotals := make([]float64, len(rowOrder))
	for i, rk := range rowOrder {
		rowTotals[i] = aggregate(table, rowIndex[rk], primary, q.Aggregator)
	}
	colTotals := make([]float64, len(visible))
	for j, vc := range visible {
		colTotals[j] = aggregate(table, colIndex[vc.colKey], vc.measure, q.Aggregator)
	}
	grandTotal := aggregate(table, eligible, primary, q.Aggregator)

	result := &analytics.PivotResult{
		Rows:          q.Rows,
		Columns:       q.Columns,
		RowHeaders:    splitKeys(rowOrder),
		ColumnHeaders: columnHeaders,
		ColumnKeys:    columnKeys,
		Values:        values,
		RowTotals:     rowTotals,
		ColumnTotals:  colTotals,
		GrandTotal:    grandTotal,
		Aggregator:    q.Aggregator,
		ValueFormat:   formatFor(table, primary, q.Aggregator),
		Calculations:  analytics.Calculations{Pre: q.PreCalculations, Post: q.PostCalculations},
	}

	if len(q.Rows) == 0 && len(q.Columns) == 0 {
		if multi {
			summary := make([]float64, len(q.Measures))
			for i, m := range q.Measures {
				summary[i] = aggregate(table, eligible, m, q.Aggregator)
			}
			result.SummaryValues = summary
		} else {
			gt := grandTotal
			result.SummaryValue = &gt
		}
	}

	return result
}

func measureLabel(table *analytics.Table, key string) string {
	if col := table.ColumnByKey(key); col != nil {
		return col.Name
	}
	return key
}

// exposedKey is the stable public identifier of a visible column: tuple
// parts joined with "|", suffixed with the measure key when the matrix is
// cross-producted by measure.
func exposedKey(tuple []string, measure string) string {
	parts := append([]string{}, tuple...)
	if measure != "" {
		parts = append(parts, measure)
	}
	if len(parts) == 0 {
		return "total"
	}
	return strings.Join(parts, "|")
}

// filterRows returns the indices of rows that satisfy every filter column
// (AND across columns, OR within the allowed-value set of a single column).
// A row whose cell is absent matches only if the allow-set includes the
// empty-cells sentinel.
func filterRows(table *analytics.Table, filters map[string][]string) []int {
	if len(filters) == 0 {
		out := make([]int, table.RowCount)
		for i := range out {
			out[i] = i
		}
		return out
	}

	type compiled struct {
		col     *analytics.Column
		allowed map[string]struct{}
	}
	specs := make([]compiled, 0, len(filters))
	for key, values := range filters {
		col := table.ColumnByKey(key)
		if col == nil {
			continue
		}
		allowed := make(map[string]struct{}, len(values))
		for _, v := range values {
			allowed[v] = struct{}{}
		}
		specs = append(specs, compiled{col: col, allowed: allowed})
	}

	out := make([]int, 0, table.RowCount)
	for r := 0; r < table.RowCount; r++ {
		match := true
		for _, spec := range specs {
			s := spec.col.Values[r].String()
			if s == "" {
				s = analytics.EmptyCellsLabel
			}
			if _, ok := spec.allowed[s]; !ok {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out
}

// groupIndex buckets rows (restricted to eligible) by the tuple of dims
// values, returning the bucket map and the distinct keys in first-seen
// order (sortKeys reorders them before display).
func groupIndex(table *analytics.Table, eligible []int, dims []string) (map[string][]int, []string) {
	if len(dims) == 0 {
		return map[string][]int{"": eligible}, []string{""}
	}

	cols := make([]*analytics.Column, len(dims))
	for i, d := range dims {
		cols[i] = table.ColumnByKey(d)
	}

	buckets := make(map[string][]int)
	order := make([]string, 0)
	for _, r := range eligible {
		parts := make([]string, len(cols))
		for i, c := range cols {
			s := c.Values[r].String()
			if s == "" {
				s = analytics.EmptyCellsLabel
			}
			parts[i] = s
		}
		key := strings.Join(parts, keySep)
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], r)
	}
	return buckets, order
}

// sortKeys orders keys using pt-BR collation on each tuple component, with
// the empty-cells label always sorted last.
func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a := strings.Split(keys[i], keySep)
		b := strings.Split(keys[j], keySep)
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		for k := 0; k < n; k++ {
			ae := a[k] == analytics.EmptyCellsLabel
			be := b[k] == analytics.EmptyCellsLabel
			if ae != be {
				return be // empty-cells sorts after anything else
			}
			if c := collator.CompareString(a[k], b[k]); c != 0 {
				return c < 0
			}
		}
		return len(a) < len(b)
	})
}

func splitKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, keySep)
}

func splitKeys(keys []string) [][]string {
	out := make([][]string, len(keys))
	for i, k := range keys {
		out[i] = splitKey(k)
	}
	return out
}

func intersect(a, b []int) []int {
	set := make(map[int]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]int, 0, len(a))
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func aggregate(table *analytics.Table, rows []int, measureKey string, agg analytics.Aggregator) float64 {
	col := table.ColumnByKey(measureKey)
	if col == nil || len(rows) == 0 {
		return 0
	}

	switch agg {
	case analytics.AggCount:
		count := 0
		for _, r := range rows {
			if col.Values[r].Present {
				count++
			}
		}
		return float64(count)
	case analytics.AggDistinctCount:
		seen := make(map[string]struct{})
		for _, r := range rows {
			cell := col.Values[r]
			if cell.Present {
				seen[cell.String()] = struct{}{}
			}
		}
		return float64(len(seen))
	}

	var sum float64
	var count int
	var min, max float64
	haveMinMax := false
	for _, r := range rows {
		cell := col.Values[r]
		if !cell.Present {
			continue
		}
		sum += cell.Number
		count++
		if !haveMinMax || cell.Number < min {
			min = cell.Number
		}
		if !haveMinMax || cell.Number > max {
			max = cell.Number
		}
		haveMinMax = true
	}

	switch agg {
	case analytics.AggAvg:
		if count == 0 {
			return 0
		}
		return sum / float64(count)
	case analytics.AggMin:
		return min
	case analytics.AggMax:
		return max
	default: // sum
		return sum
	}
}

// formatFor decides the result's rendering format: currency when the
// aggregator carries value semantics (sum/avg/min/max) over a monetary
// measure name; counts are always plain numbers.
func formatFor(table *analytics.Table, measureKey string, agg analytics.Aggregator) analytics.ValueFormat {
	if agg == analytics.AggCount || agg == analytics.AggDistinctCount {
		return analytics.FormatNumber
	}
	col := table.ColumnByKey(measureKey)
	if col == nil {
		return analytics.FormatNumber
	}
	if currencyMeasureRe.MatchString(strings.ToLower(col.Name)) || currencyMeasureRe.MatchString(strings.ToLower(col.Key)) {
		return analytics.FormatCurrency
	}
	return analytics.FormatNumber
}

// applyPreCalculations evaluates each pre-calc spec per row over table and
// returns a new table with the resulting columns appended, without mutating
// table itself. Query-scoped calculations are never persisted back to the
// Dataset Store; only store.UpdateCalculations does that.
func applyPreCalculations(ctx context.Context, table *analytics.Table, specs []analytics.CalculationSpec) (*analytics.Table, []string, error) {
	if len(specs) == 0 {
		return table, nil, nil
	}

	cols := make([]*analytics.Column, len(table.Columns))
	copy(cols, table.Columns)
	var warnings []string

	for _, spec := range specs {
		node, err := evaluator.Parse(spec.Expression)
		if err != nil {
			return nil, nil, analytics.NewError(analytics.CodeInvalidExpression, spec.Expression, err)
		}
		key := spec.ResultField
		if key == "" {
			key = spec.ResultKey
		}

		values := make([]analytics.Cell, table.RowCount)
		for r := 0; r < table.RowCount; r++ {
			if r%1024 == 0 {
				if err := checkCtx(ctx); err != nil {
					return nil, nil, err
				}
			}
			env := make(evaluator.MapEnvironment, len(table.Columns))
			for _, c := range table.Columns {
				cell := c.Values[r]
				if cell.Present {
					env[c.Key] = cell.Number
				} else {
					env[c.Key] = 0
				}
			}
			v, absent, w := evaluator.Eval(node, env)
			warnings = appendCalcWarnings(warnings, spec.Name, w)
			if spec.Decimals != nil {
				v = evaluator.ApplyDecimals(v, spec.Decimals)
			}
			if absent {
				values[r] = analytics.AbsentCell
			} else {
				values[r] = analytics.NumberCell(v)
			}
		}

		cols = append(cols, &analytics.Column{Name: spec.Name, Key: key, Kind: analytics.KindReal, Values: values})
	}

	return &analytics.Table{Columns: cols, RowCount: table.RowCount}, warnings, nil
}

// applyPostCalculations evaluates each post-calc spec over the
// already-aggregated result table. Placeholders resolve against the visible
// result columns — by stable column key first, then by the " / "-joined
// header label.
//
// An expression that references only result columns produces one value per
// row (the environment binds each visible column to that row's aggregated
// value) and appends a single calculated column. An expression that
// references a measure by its own name is cell-scoped: it is evaluated once
// per visible cell with the measure bound to that cell's value, appending
// one calculated column per aggregated source column, so a share-style
// expression degrades to 0 on a zero cell via division by zero instead of
// silently reusing a row total.
func applyPostCalculations(ctx context.Context, result *analytics.PivotResult, table *analytics.Table, q analytics.PivotQuery) ([]string, error) {
	if len(q.PostCalculations) == 0 {
		return nil, nil
	}

	// Only the originally aggregated columns participate in cell-scoped
	// fan-out; columns appended by earlier specs stay referenceable by key
	// or label like any other visible column.
	baseCols := len(result.ColumnKeys)
	measureNames := make(map[string]struct{}, 2*len(q.Measures))
	for _, m := range q.Measures {
		measureNames[m] = struct{}{}
		measureNames[measureLabel(table, m)] = struct{}{}
	}

	// columnEnv binds the first n visible columns' keys and " / "-joined
	// header labels to the given per-column values.
	columnEnv := func(values []float64, n int) evaluator.MapEnvironment {
		env := make(evaluator.MapEnvironment, 2*n)
		for j := 0; j < n; j++ {
			env[result.ColumnKeys[j]] = values[j]
			env[strings.Join(result.ColumnHeaders[j], " / ")] = values[j]
		}
		return env
	}

	var warnings []string
	for _, spec := range q.PostCalculations {
		node, err := evaluator.Parse(spec.Expression)
		if err != nil {
			return nil, analytics.NewError(analytics.CodeInvalidExpression, spec.Expression, err)
		}

		cellScoped := false
		for _, name := range evaluator.Placeholders(node) {
			if _, ok := measureNames[name]; ok {
				cellScoped = true
				break
			}
		}

		resultKey := spec.ResultKey
		if resultKey == "" {
			resultKey = spec.Name
		}

		evalCell := func(env evaluator.MapEnvironment) float64 {
			v, absent, w := evaluator.Eval(node, env)
			warnings = appendCalcWarnings(warnings, spec.Name, w)
			if spec.Decimals != nil {
				v = evaluator.ApplyDecimals(v, spec.Decimals)
			}
			if absent {
				v = 0
			}
			return v
		}

		visible := len(result.ColumnKeys)

		if cellScoped {
			// One calculated column per aggregated source column; the
			// measure placeholder binds to the current cell.
			for j := 0; j < baseCols; j++ {
				if err := checkCtx(ctx); err != nil {
					return nil, err
				}
				for i := range result.Values {
					env := columnEnv(result.Values[i][:visible], visible)
					for name := range measureNames {
						env[name] = result.Values[i][j]
					}
					result.Values[i] = append(result.Values[i], evalCell(env))
				}

				totalsEnv := columnEnv(result.ColumnTotals[:visible], visible)
				for name := range measureNames {
					totalsEnv[name] = result.ColumnTotals[j]
				}
				tv := evalCell(totalsEnv)
				result.ColumnTotals = append(result.ColumnTotals, tv)
				header := append(append([]string{}, result.ColumnHeaders[j]...), spec.Name)
				result.ColumnHeaders = append(result.ColumnHeaders, header)
				result.ColumnKeys = append(result.ColumnKeys, result.ColumnKeys[j]+"|"+resultKey)
				if result.SummaryValues != nil {
					result.SummaryValues = append(result.SummaryValues, tv)
				}
			}
			continue
		}

		for i := range result.Values {
			if err := checkCtx(ctx); err != nil {
				return nil, err
			}
			env := columnEnv(result.Values[i][:visible], visible)
			result.Values[i] = append(result.Values[i], evalCell(env))
		}

		tv := evalCell(columnEnv(result.ColumnTotals[:visible], visible))
		result.ColumnTotals = append(result.ColumnTotals, tv)
		result.ColumnHeaders = append(result.ColumnHeaders, []string{spec.Name})
		result.ColumnKeys = append(result.ColumnKeys, resultKey)
		if result.SummaryValues != nil {
			result.SummaryValues = append(result.SummaryValues, tv)
		}
	}

	return warnings, nil
}

// appendCalcWarnings deduplicates per-cell evaluation warnings so a 100k
// row dataset with one unknown placeholder reports it once, tagged with the
// calculation name.
func appendCalcWarnings(warnings []string, calcName string, cellWarnings []string) []string {
	for _, w := range cellWarnings {
		tagged := calcName + ": " + w
		dup := false
		for _, existing := range warnings {
			if existing == tagged {
				dup = true
				break
			}
		}
		if !dup {
			warnings = append(warnings, tagged)
		}
	}
	return warnings
}
