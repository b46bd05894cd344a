// Package store implements the Dataset Store and the filter value index:
// an in-memory, multi-dataset session store keyed by opaque dataset
// identifiers, with per-dataset distinct-value caches for filter dropdowns.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/evaluator"
)

// The currency-name heuristic (currencyHints) lives in aggregations.go
// alongside defaultAggregations, which this store attaches to every new
// Dataset.

// Store holds all datasets uploaded during the process lifetime. Reads
// proceed lock-free against the snapshot captured at entry; the only
// mutator (updateCalculations/delete) takes an exclusive lock and publishes
// a new Dataset pointer only after materialization completes, giving copy-on-write semantics — a concurrent reader never
// observes a half-applied schema transition.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*analytics.Dataset
	counter  uint64
}

// NewStore creates an empty Dataset Store.
func NewStore() *Store {
	return &Store{datasets: make(map[string]*analytics.Dataset)}
}

// Summary is the {id,name} pair used by List and several response envelopes.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Put registers a new dataset and returns it. Dataset IDs are never reused
// within a process lifetime: each ID mixes a
// monotonically increasing counter with a random token so IDs are both
// unique and non-guessable.
func (s *Store) Put(name string, table *analytics.Table, schema []analytics.SchemaEntry) *analytics.Dataset {
	id := s.nextID()
	ds := &analytics.Dataset{
		ID:           id,
		Name:         name,
		CreatedAt:    time.Now(),
		Table:        table,
		Schema:       schema,
		Aggregations: defaultAggregations(schema),
	}

	s.mu.Lock()
	s.datasets[id] = ds
	s.mu.Unlock()
	return ds
}

func (s *Store) nextID() string {
	n := atomic.AddUint64(&s.counter, 1)
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("ds_%d_%s", n, hex.EncodeToString(buf[:]))
}

// Get returns the dataset for id, or (nil, false) if it does not exist.
func (s *Store) Get(id string) (*analytics.Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[id]
	return ds, ok
}

// List returns {id,name} for every currently-stored dataset.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Summary, 0, len(s.datasets))
	for _, ds := range s.datasets {
		out = append(out, Summary{ID: ds.ID, Name: ds.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes a dataset. Deletion is idempotent: deleting an absent ID is
// not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.datasets, id)
}

// UpdateCalculations materializes the given pre-calculation specs into the
// stored table (so subsequent pivots need not re-evaluate them), replaces
// the dataset's Calculations, invalidates the filter-value cache, and
// publishes the updated Dataset under the same ID. Takes the store's
// exclusive lock for the whole operation so concurrent readers never see a
// half-applied schema.
func (s *Store) UpdateCalculations(id string, pre, post []analytics.CalculationSpec) (*analytics.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[id]
	if !ok {
		return nil, analytics.NewError(analytics.CodeUnknownDataset, id, nil)
	}

	for i := range pre {
		if pre[i].ID == "" {
			pre[i].ID = uuid.NewString()
		}
	}
	for i := range post {
		if post[i].ID == "" {
			post[i].ID = uuid.NewString()
		}
	}

	newTable, newSchema, err := materializePre(ds.Table, ds.Schema, pre)
	if err != nil {
		return nil, err
	}

	updated := &analytics.Dataset{
		ID:           ds.ID,
		Name:         ds.Name,
		CreatedAt:    ds.CreatedAt,
		Table:        newTable,
		Schema:       newSchema,
		Aggregations: defaultAggregations(newSchema),
		Calculations: analytics.Calculations{Pre: pre, Post: post},
	}
	updated.AvailablePostColumns = availablePostColumns(updated)

	s.datasets[id] = updated
	return updated, nil
}

// materializePre evaluates every pre-calc spec against table once per row
// and appends the resulting columns to a copy of table/schema, so the
// stored dataset carries the calculated measure from then on.
func materializePre(table *analytics.Table, schema []analytics.SchemaEntry, specs []analytics.CalculationSpec) (*analytics.Table, []analytics.SchemaEntry, error) {
	newCols := make([]*analytics.Column, len(table.Columns))
	copy(newCols, table.Columns)
	newSchema := make([]analytics.SchemaEntry, len(schema))
	copy(newSchema, schema)

	for _, spec := range specs {
		node, perr := evaluator.Parse(spec.Expression)
		if perr != nil {
			return nil, nil, analytics.NewError(analytics.CodeInvalidExpression, spec.Expression, perr)
		}

		key := spec.ResultField
		if key == "" {
			key = spec.ResultKey
		}

		values := make([]analytics.Cell, table.RowCount)
		for r := 0; r < table.RowCount; r++ {
			env := rowEnvironment(table, r)
			v, absent, _ := evaluator.Eval(node, env)
			if spec.Decimals != nil {
				v = evaluator.ApplyDecimals(v, spec.Decimals)
			}
			if absent {
				values[r] = analytics.AbsentCell
			} else {
				values[r] = analytics.NumberCell(v)
			}
		}

		col := &analytics.Column{Name: spec.Name, Key: key, Kind: analytics.KindReal, Values: values}
		newCols = appendOrReplace(newCols, col)
		newSchema = appendOrReplaceSchema(newSchema, analytics.SchemaEntry{
			Key: key, Label: spec.Name, Kind: analytics.KindReal, IsMeasure: true, Calculated: true,
		})
	}

	return &analytics.Table{Columns: newCols, RowCount: table.RowCount}, newSchema, nil
}

func appendOrReplace(cols []*analytics.Column, col *analytics.Column) []*analytics.Column {
	for i, c := range cols {
		if c.Key == col.Key {
			cols[i] = col
			return cols
		}
	}
	return append(cols, col)
}

func appendOrReplaceSchema(schema []analytics.SchemaEntry, entry analytics.SchemaEntry) []analytics.SchemaEntry {
	for i, e := range schema {
		if e.Key == entry.Key {
			schema[i] = entry
			return schema
		}
	}
	return append(schema, entry)
}

// rowEnvironment builds a placeholder environment for row r: key -> numeric
// value, with 0 for non-numeric or absent cells.
func rowEnvironment(table *analytics.Table, row int) evaluator.MapEnvironment {
	env := make(evaluator.MapEnvironment, len(table.Columns))
	for _, col := range table.Columns {
		cell := col.Values[row]
		if cell.Present {
			env[col.Key] = cell.Number
		} else {
			env[col.Key] = 0
		}
	}
	return env
}

func availablePostColumns(ds *analytics.Dataset) []analytics.ColumnRef {
	refs := make([]analytics.ColumnRef, 0, len(ds.Schema))
	for _, e := range ds.Schema {
		if e.IsMeasure {
			refs = append(refs, analytics.ColumnRef{Key: e.Key, Label: e.Label})
		}
	}
	return refs
}
