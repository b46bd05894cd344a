package store

import (
	"regexp"
	"strings"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

// currencyHints matches lowercased measure labels that carry monetary
// values, switching the sum/avg/min/max options to currency formatting.
var currencyHints = regexp.MustCompile(`valor|saldo|empenho|executado|estimado`)

// defaultAggregations returns the aggregator choices offered for a dataset,
// independent of which measures a later pivot query selects.
func defaultAggregations(schema []analytics.SchemaEntry) []analytics.AggregatorOption {
	format := analytics.FormatNumber
	for _, e := range schema {
		if e.IsMeasure && currencyHints.MatchString(strings.ToLower(e.Label)) {
			format = analytics.FormatCurrency
			break
		}
	}

	return []analytics.AggregatorOption{
		{ID: analytics.AggSum, Label: "Soma", Format: format},
		{ID: analytics.AggAvg, Label: "Média", Format: format},
		{ID: analytics.AggCount, Label: "Contagem", Format: analytics.FormatNumber},
		{ID: analytics.AggDistinctCount, Label: "Contagem distinta", Format: analytics.FormatNumber},
		{ID: analytics.AggMin, Label: "Mínimo", Format: format},
		{ID: analytics.AggMax, Label: "Máximo", Format: format},
	}
}
