package normalizer

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
)

// ColumnMapping names the table columns holding each semantic field of a
// contracts workbook. Months is indexed 0 = January; an empty entry means
// that month's column was not found.
type ColumnMapping struct {
	UGR              string
	PI               string
	Description      string
	Supplier         string
	ContractNumber   string
	Status           string
	EndDate          string
	MonthlyAverage   string
	EstimatedAnnual  string
	Executed         string
	CommittedCurrent string
	CommittedCarry   string
	CommittedTotal   string // combined "RAP + empenho" column, when present
	Months           [12]string
}

// fieldAliases maps each semantic field to the sanitized header spellings
// seen across contract workbooks. Resolution tries exact alias match first,
// then fuzzy similarity, then substring containment, so a workbook whose
// headers carry typos or extra qualifiers still maps.
var fieldAliases = map[string][]string{
	"description":     {"despesa", "descricao", "descricao_despesa", "descricao_das_despesas", "descricao_do_objeto", "historico", "item", "objeto"},
	"ugr":             {"ugr", "uorg", "uo", "unidade_gestora", "unidade_orcamentaria"},
	"pi":              {"pi_2025", "pi", "plano_interno", "plano"},
	"supplier":        {"fornecedor", "contratada", "cnpj", "cnpj_cpf"},
	"contract":        {"numero_contrato", "n_contrato", "contrato", "num_contrato", "no_contrato"},
	"status":          {"status_contrato", "status", "situacao_contrato", "situacao", "status_do_contrato"},
	"end_date":        {"data_vigencia_fim", "vigencia_final", "data_fim_vigencia", "vigencia", "fim_da_vigencia", "termino", "vencimento"},
	"monthly_avg":     {"valor_mensal_medio_contrato", "valor_mensal", "valor_medio_mensal", "media_mensal", "valor_contrato_media_mensal"},
	"estimated":       {"total_anual_estimado", "total_estimado", "estimado_anual", "total_estimado_anual", "valor_estimado_anual", "previsto"},
	"executed":        {"executado_total", "valor_executado", "executado", "liquidado", "pago"},
	"committed":       {"saldo_empenhos_2025", "saldo_2025", "saldo_empenho_2025", "empenhado", "valor_empenhado", "comprometido"},
	"carry":           {"saldo_empenhos_rap", "saldo_de_empenhos_rap", "saldo_rap", "rap", "restos_a_pagar"},
	"committed_total": {"total_empenho_rap", "valor_empenho_rap", "empenho_rap", "total_rap_empenho", "total_rap_mais_empenho"},
}

var nonAlnumKeyRe = regexp.MustCompile(`[^a-z0-9]+`)

// accentFolder maps the pt-BR accented letters (and the ordinal sign) onto
// plain ASCII so "Descrição" and "Descricao" sanitize to the same key.
var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
	"º", "o", "ª", "a",
)

// sanitizeHeader lowercases a header, folds accents, and collapses every
// non-alphanumeric run to "_", the shared normalization both sides of alias
// matching use.
func sanitizeHeader(label string) string {
	lower := strings.ToLower(strings.TrimSpace(label))
	lower = accentFolder.Replace(lower)
	return strings.Trim(nonAlnumKeyRe.ReplaceAllString(lower, "_"), "_")
}

// columnResolver resolves semantic fields against a schema's sanitized
// header keys.
type columnResolver struct {
	keys  []string          // sanitized, in schema order
	byKey map[string]string // sanitized -> column key
	taken map[string]bool   // column keys already claimed by a field
}

func newColumnResolver(schema []analytics.SchemaEntry) *columnResolver {
	r := &columnResolver{byKey: make(map[string]string), taken: make(map[string]bool)}
	for _, col := range schema {
		key := sanitizeHeader(col.Label)
		if key == "" {
			continue
		}
		if _, dup := r.byKey[key]; dup {
			continue
		}
		r.keys = append(r.keys, key)
		r.byKey[key] = col.Key
	}
	return r
}

// find resolves aliases to a column key: exact sanitized match first, then
// the closest fuzzy match, then substring containment either way.
func (r *columnResolver) find(aliases []string) string {
	for _, alias := range aliases {
		if col, ok := r.byKey[alias]; ok && !r.taken[col] {
			return r.claim(col)
		}
	}

	for _, alias := range aliases {
		// Subsequence matching is too permissive for short aliases; only
		// reasonably specific spellings go through the fuzzy pass.
		if len(alias) < 4 {
			continue
		}
		ranks := fuzzy.RankFindNormalizedFold(alias, r.available())
		if len(ranks) == 0 {
			continue
		}
		sort.Sort(ranks)
		if ranks[0].Distance <= len(alias) {
			return r.claim(r.byKey[ranks[0].Target])
		}
	}

	for _, alias := range aliases {
		for _, key := range r.keys {
			col := r.byKey[key]
			if r.taken[col] {
				continue
			}
			if strings.Contains(key, alias) || strings.Contains(alias, key) {
				return r.claim(col)
			}
		}
	}
	return ""
}

func (r *columnResolver) available() []string {
	out := make([]string, 0, len(r.keys))
	for _, key := range r.keys {
		if !r.taken[r.byKey[key]] {
			out = append(out, key)
		}
	}
	return out
}

func (r *columnResolver) claim(col string) string {
	r.taken[col] = true
	return col
}

// ptMonthNames maps pt-BR month abbreviations and full names to the
// 0-based month index.
var ptMonthNames = map[string]int{
	"jan": 0, "fev": 1, "mar": 2, "abr": 3, "mai": 4, "jun": 5,
	"jul": 6, "ago": 7, "set": 8, "out": 9, "nov": 10, "dez": 11,
	"janeiro": 0, "fevereiro": 1, "março": 2, "marco": 2, "abril": 3,
	"maio": 4, "junho": 5, "julho": 6, "agosto": 7, "setembro": 8,
	"outubro": 9, "novembro": 10, "dezembro": 11,
}

var (
	numericMonthRe = regexp.MustCompile(`^(\d{1,2})[/_-](\d{2,4})`)
	isoMonthRe     = regexp.MustCompile(`^(20\d{2})[/_-]?(0[1-9]|1[0-2])`)
	namedMonthRe   = regexp.MustCompile(`^([a-zçã]+)(?:[/_\-. ]*(\d{2,4}))?$`)
)

// monthIndex recognizes date-prefixed month headers in their common
// spellings: "Jan/25", "fev-2025", "01/2025", "2025-01", "Janeiro". Returns
// -1 when the label is not a month column.
func monthIndex(label string) int {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return -1
	}
	if m := isoMonthRe.FindStringSubmatch(l); m != nil {
		if mo := atoiSafe(m[2]); mo >= 1 && mo <= 12 {
			return mo - 1
		}
	}
	if m := numericMonthRe.FindStringSubmatch(l); m != nil {
		if mo := atoiSafe(m[1]); mo >= 1 && mo <= 12 {
			return mo - 1
		}
	}
	if m := namedMonthRe.FindStringSubmatch(l); m != nil {
		if idx, ok := ptMonthNames[m[1]]; ok {
			return idx
		}
	}
	return -1
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// reservedHeaders keeps alias-resolvable headers from being mistaken for
// month columns ("mar" in "margem" is already excluded by the regex; this
// guards full collisions such as a field alias that parses as a month).
var reservedHeaders = func() map[string]bool {
	out := make(map[string]bool)
	for _, aliases := range fieldAliases {
		for _, alias := range aliases {
			out[alias] = true
		}
	}
	return out
}()

// SuggestMapping infers a ColumnMapping from a table's schema labels.
// Contracts workbooks have no fixed header vocabulary across UGRs, so the
// dashboard upload endpoint never asks the client for a mapping: month
// columns are detected by their date-prefixed headers and every other
// semantic field resolves through the alias table.
func SuggestMapping(schema []analytics.SchemaEntry) ColumnMapping {
	var m ColumnMapping

	monthClaimed := make(map[string]bool)
	for _, col := range schema {
		if reservedHeaders[sanitizeHeader(col.Label)] {
			continue
		}
		if idx := monthIndex(col.Label); idx >= 0 && m.Months[idx] == "" {
			m.Months[idx] = col.Key
			monthClaimed[col.Key] = true
		}
	}

	remaining := make([]analytics.SchemaEntry, 0, len(schema))
	for _, col := range schema {
		if !monthClaimed[col.Key] {
			remaining = append(remaining, col)
		}
	}

	r := newColumnResolver(remaining)
	m.Description = r.find(fieldAliases["description"])
	m.UGR = r.find(fieldAliases["ugr"])
	m.PI = r.find(fieldAliases["pi"])
	m.Supplier = r.find(fieldAliases["supplier"])
	m.ContractNumber = r.find(fieldAliases["contract"])
	m.Status = r.find(fieldAliases["status"])
	m.EndDate = r.find(fieldAliases["end_date"])
	m.MonthlyAverage = r.find(fieldAliases["monthly_avg"])
	m.EstimatedAnnual = r.find(fieldAliases["estimated"])
	m.Executed = r.find(fieldAliases["executed"])
	// current-year and carry-over columns claim their headers before the
	// combined-total aliases, which substring-match "rap" too eagerly
	m.CommittedCurrent = r.find(fieldAliases["committed"])
	m.CommittedCarry = r.find(fieldAliases["carry"])
	m.CommittedTotal = r.find(fieldAliases["committed_total"])
	return m
}

// Today returns the wall-clock date truncated to midnight UTC, the "today"
// every derivation is anchored to when the caller does not inject one.
func Today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
