package store

import (
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

// collator orders distinct filter values the way a Brazilian-Portuguese
// spreadsheet user expects ("Álvares" before "Andrade", "são paulo" next to
// "São Paulo") rather than raw byte order.
var collator = collate.New(language.BrazilianPortuguese, collate.IgnoreCase)

// DistinctValues returns the sorted distinct stringified values of column
// columnKey in ds, memoizing the result on the dataset. The
// cache survives until the dataset's schema changes (InvalidateFilterCache).
func DistinctValues(ds *analytics.Dataset, columnKey string) ([]string, error) {
	if cached, ok := ds.CachedFilterValues(columnKey); ok {
		return cached, nil
	}

	col := ds.Table.ColumnByKey(columnKey)
	if col == nil {
		return nil, analytics.NewError(analytics.CodeUnknownColumn, columnKey, nil)
	}

	seen := make(map[string]struct{})
	values := make([]string, 0, 64)
	hasEmpty := false
	for _, cell := range col.Values {
		s := cell.String()
		if s == "" {
			hasEmpty = true
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		values = append(values, s)
	}

	sort.Slice(values, func(i, j int) bool { return collator.CompareString(values[i], values[j]) < 0 })
	if hasEmpty {
		values = append(values, analytics.EmptyCellsLabel)
	}

	ds.SetCachedFilterValues(columnKey, values)
	return values, nil
}

// filterDoc is the document shape indexed by bleve for filter-value
// typeahead search: bleve's standard analyzer tokenizes Value so a partial,
// out-of-order query ("paulo são") still matches "São Paulo".
type filterDoc struct {
	Value string `json:"value"`
}

// SearchFilterValues returns the distinct values of columnKey that match
// query, ranked by bleve relevance score. An empty query returns the
// distinct values in collated order, cut to the first limit values when
// limit is positive. The index is built fresh from the
// (already-cached) distinct value list on every call: with at most a few
// thousand distinct values per column this costs low milliseconds and keeps
// the Dataset Store free of long-lived bleve index lifecycle management.
func SearchFilterValues(ds *analytics.Dataset, columnKey, query string, limit int) ([]string, error) {
	values, err := DistinctValues(ds, columnKey)
	if err != nil {
		return nil, err
	}
	if query == "" {
		if limit > 0 && len(values) > limit {
			return values[:limit], nil
		}
		return values, nil
	}

	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "building filter-value index", err)
	}
	defer idx.Close()

	for i, v := range values {
		if err := idx.Index(docID(i), filterDoc{Value: v}); err != nil {
			return nil, analytics.NewError(analytics.CodeInternal, "indexing filter value", err)
		}
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("value")
	req := bleve.NewSearchRequest(q)
	if limit > 0 {
		req.Size = limit
	} else {
		req.Size = len(values)
	}

	result, err := idx.Search(req)
	if err != nil {
		return nil, analytics.NewError(analytics.CodeInternal, "searching filter values", err)
	}

	out := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		idxPos, ok := indexFromDocID(hit.ID)
		if !ok || idxPos >= len(values) {
			continue
		}
		out = append(out, values[idxPos])
	}
	return out, nil
}

func docID(i int) string {
	return "v" + strconv.Itoa(i)
}

func indexFromDocID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "v")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
