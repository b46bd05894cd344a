package loader

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/pkg/money"
)

const sampleSize = 500

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	brDateRe  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}$`)
)

// parseNumberRaw accepts both "," and "." as decimal separators and strips
// an "R$" currency prefix.
func parseNumberRaw(raw string) (float64, bool) {
	return money.ParseBRL(raw)
}

func parseIntRaw(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseDateRaw(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if isoDateRe.MatchString(s) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}
	if brDateRe.MatchString(s) {
		for _, layout := range []string{"02/01/2006", "2/1/2006", "02/01/06"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// inferKind samples up to sampleSize non-empty values of raw and classifies
// the column by share of parseable values: integer (at least 90%), then real
// (at least 90%), then date (at least 80%), then text.
func inferKind(raw []string) analytics.Kind {
	nonEmpty := make([]string, 0, len(raw))
	for _, v := range raw {
		if strings.TrimSpace(v) != "" {
			nonEmpty = append(nonEmpty, v)
			if len(nonEmpty) >= sampleSize {
				break
			}
		}
	}
	if len(nonEmpty) == 0 {
		return analytics.KindText
	}

	intHits, realHits, dateHits := 0, 0, 0
	zeroOneHits := 0
	for _, v := range nonEmpty {
		if _, ok := parseIntRaw(v); ok {
			intHits++
			realHits++
		} else if _, ok := parseNumberRaw(v); ok {
			realHits++
		}
		if _, ok := parseDateRaw(v); ok {
			dateHits++
		}
		if n, ok := parseNumberRaw(v); ok && (n == 0 || n == 1) {
			zeroOneHits++
		}
	}

	n := float64(len(nonEmpty))
	switch {
	case float64(intHits)/n >= 0.9:
		if zeroOneHits >= 4 && zeroOneHits == intHits {
			return analytics.KindBoolean
		}
		return analytics.KindInteger
	case float64(realHits)/n >= 0.9:
		return analytics.KindReal
	case float64(dateHits)/n >= 0.8:
		return analytics.KindDate
	default:
		return analytics.KindText
	}
}

// buildColumn converts a header label/key and its raw string values into a
// typed Column, per the inferred Kind.
func buildColumn(label, key string, raw []string) *analytics.Column {
	kind := inferKind(raw)
	col := &analytics.Column{Name: label, Key: key, Kind: kind, Values: make([]analytics.Cell, len(raw))}
	for i, v := range raw {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			col.Values[i] = analytics.AbsentCell
			continue
		}
		switch kind {
		case analytics.KindInteger, analytics.KindReal, analytics.KindBoolean:
			if n, ok := parseNumberRaw(v); ok {
				col.Values[i] = analytics.NumberCell(n)
			} else {
				col.Values[i] = analytics.AbsentCell
			}
		case analytics.KindDate:
			if t, ok := parseDateRaw(v); ok {
				col.Values[i] = analytics.Cell{Present: true, Time: t}
			} else {
				col.Values[i] = analytics.AbsentCell
			}
		default:
			col.Values[i] = analytics.TextCell(trimmed)
		}
	}
	return col
}

// isMeasure reports whether a column of the given kind/key should be
// offered as a pivot measure.
func isMeasure(kind analytics.Kind, key string) bool {
	if kind != analytics.KindInteger && kind != analytics.KindReal {
		return false
	}
	return !looksLikeIdentifier(key)
}
