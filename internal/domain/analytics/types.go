// Package analytics holds the shared tabular analytics engine: column-typed
// tables, dataset storage, calculated-column specs, and pivot queries/results.
// It is consumed by the pivot workbench and by the contracts dashboard.
package analytics

import (
	"strconv"
	"sync"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindText    Kind = "text"
	KindInteger Kind = "integer"
	KindReal    Kind = "real"
	KindDate    Kind = "date"
	KindBoolean Kind = "boolean"
)

// Aggregator identifies a supported aggregation function.
type Aggregator string

const (
	AggSum           Aggregator = "sum"
	AggAvg           Aggregator = "avg"
	AggCount         Aggregator = "count"
	AggDistinctCount Aggregator = "distinctCount"
	AggMin           Aggregator = "min"
	AggMax           Aggregator = "max"
)

// ValueFormat controls how the pivot materializer and exporter render numbers.
type ValueFormat string

const (
	FormatNumber   ValueFormat = "number"
	FormatCurrency ValueFormat = "currency"
)

// AggregatorOption describes one selectable aggregator for a dataset.
type AggregatorOption struct {
	ID     Aggregator  `json:"id"`
	Label  string      `json:"label"`
	Format ValueFormat `json:"format"`
}

// EmptyCellsLabel is the sentinel column/row header used in place of the
// absent value, always sorted last.
const EmptyCellsLabel = "Células Vazias"

// Column is a dense, typed vector of cell values plus its schema metadata.
type Column struct {
	Name   string // original label
	Key    string // normalized, stable identifier
	Kind   Kind
	Values []Cell
}

// Cell is a tagged value: exactly one of the typed fields is meaningful,
// governed by Present and the owning Column's Kind. A zero Cell is absent.
type Cell struct {
	Present bool
	Text    string
	Number  float64
	Time    time.Time
	Bool    bool
}

// AbsentCell is the uniform representation of a missing value.
var AbsentCell = Cell{}

// NumberCell constructs a present numeric cell.
func NumberCell(v float64) Cell { return Cell{Present: true, Number: v} }

// TextCell constructs a present text cell.
func TextCell(v string) Cell { return Cell{Present: true, Text: v} }

// String renders a cell the way the pivot planner and filter index need for
// grouping/filtering: a stable stringification regardless of Kind.
func (c Cell) String() string {
	if !c.Present {
		return ""
	}
	switch {
	case !c.Time.IsZero():
		return c.Time.Format("2006-01-02")
	default:
		if c.Text != "" {
			return c.Text
		}
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	}
}

// Table is an ordered sequence of columns; rows are implicit by index.
type Table struct {
	Columns  []*Column
	RowCount int
}

// ColumnByKey returns the column with the given key, or nil.
func (t *Table) ColumnByKey(key string) *Column {
	for _, c := range t.Columns {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// SchemaEntry describes one column of a Dataset's current schema.
type SchemaEntry struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Kind       Kind   `json:"kind"`
	IsMeasure  bool   `json:"isMeasure"`
	Calculated bool   `json:"calculated"`
}

// Stage identifies when a CalculationSpec is evaluated.
type Stage string

const (
	StagePre  Stage = "pre"
	StagePost Stage = "post"
)

// CalculationSpec is a calculated-column definition.
type CalculationSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Stage       Stage  `json:"stage"`
	Operation   string `json:"operation"` // always "expression" today
	Expression  string `json:"expression"`
	Decimals    *int   `json:"decimals,omitempty"`
	ResultKey   string `json:"resultKey"`
	ResultField string `json:"resultField,omitempty"`
}

// ColumnRef is a minimal {key,label} pair used for availablePostColumns.
type ColumnRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Calculations groups the pre/post calculated-column lists of a Dataset.
type Calculations struct {
	Pre  []CalculationSpec `json:"pre"`
	Post []CalculationSpec `json:"post"`
}

// Dataset is an uploaded table plus derived metadata, identified by an
// opaque ID for the process lifetime.
type Dataset struct {
	ID                   string
	Name                 string
	CreatedAt            time.Time
	Table                *Table
	Schema               []SchemaEntry
	Aggregations         []AggregatorOption
	Calculations         Calculations
	AvailablePostColumns []ColumnRef

	// cachedFilterValues maps columnKey -> sorted distinct stringified
	// values. Populated lazily by the Filter Value Index and invalidated
	// whenever the schema changes.
	cachedFilterValues map[string][]string
	cacheMu            sync.RWMutex
}

// CachedFilterValues returns the memoized distinct values for columnKey and
// whether the cache currently holds an entry for it.
func (d *Dataset) CachedFilterValues(columnKey string) ([]string, bool) {
	d.cacheMu.RLock()
	defer d.cacheMu.RUnlock()
	v, ok := d.cachedFilterValues[columnKey]
	return v, ok
}

// SetCachedFilterValues memoizes the distinct values for columnKey.
func (d *Dataset) SetCachedFilterValues(columnKey string, values []string) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if d.cachedFilterValues == nil {
		d.cachedFilterValues = make(map[string][]string)
	}
	d.cachedFilterValues[columnKey] = values
}

// InvalidateFilterCache drops all memoized filter values, used whenever the
// dataset's schema changes (e.g. a pre-calc column is added or removed).
func (d *Dataset) InvalidateFilterCache() {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.cachedFilterValues = make(map[string][]string)
}

// PivotQuery is the input to the Pivot Planner.
type PivotQuery struct {
	DatasetID        string              `json:"datasetId"`
	Rows             []string            `json:"rows"`
	Columns          []string            `json:"columns"`
	Measures         []string            `json:"measures"`
	Aggregator       Aggregator          `json:"aggregator"`
	Filters          map[string][]string `json:"filters"`
	PreCalculations  []CalculationSpec   `json:"preCalculations"`
	PostCalculations []CalculationSpec   `json:"postCalculations"`
}

// MaxMeasures is the hard cap on PivotQuery.Measures.
const MaxMeasures = 6

// PivotResult is the output of the Pivot Planner.
type PivotResult struct {
	Rows          []string     `json:"rows"`
	Columns       []string     `json:"columns"`
	RowHeaders    [][]string   `json:"rowHeaders"`
	ColumnHeaders [][]string   `json:"columnHeaders"`
	ColumnKeys    []string     `json:"columnKeys"`
	Values        [][]float64  `json:"values"`
	RowTotals     []float64    `json:"rowTotals"`
	ColumnTotals  []float64    `json:"columnTotals"`
	GrandTotal    float64      `json:"grandTotal"`
	Aggregator    Aggregator   `json:"aggregator"`
	ValueFormat   ValueFormat  `json:"valueFormat"`
	SummaryValue  *float64     `json:"summaryValue,omitempty"`
	SummaryValues []float64    `json:"summaryValues,omitempty"`
	Calculations  Calculations `json:"calculations"`
	Warnings      []string     `json:"warnings,omitempty"`
}
