package loader

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9]+`)
	repeatedUndRe = regexp.MustCompile(`_+`)
)

// normalizeLabel trims and collapses internal whitespace while preserving
// accented characters.
func normalizeLabel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	return whitespaceRe.ReplaceAllString(trimmed, " ")
}

// deriveKey lowercases, replaces non-alphanumerics with "_", and collapses
// repeated underscores. Collisions are resolved by the caller appending a
// numeric suffix.
func deriveKey(label string) string {
	lower := strings.ToLower(label)
	key := nonAlnumRe.ReplaceAllString(lower, "_")
	key = repeatedUndRe.ReplaceAllString(key, "_")
	key = strings.Trim(key, "_")
	if key == "" {
		key = "col"
	}
	return key
}

// uniqueKeys normalizes a list of raw labels into (label, key) pairs,
// appending a numeric suffix to keys that collide.
func uniqueKeys(rawLabels []string) (labels []string, keys []string) {
	seen := make(map[string]int)
	labels = make([]string, len(rawLabels))
	keys = make([]string, len(rawLabels))
	for i, raw := range rawLabels {
		label := normalizeLabel(raw)
		if label == "" {
			label = "Column"
		}
		key := deriveKey(label)
		base := key
		if n, ok := seen[base]; ok {
			for {
				n++
				key = base + "_" + strconv.Itoa(n)
				if _, taken := seen[key]; !taken {
					break
				}
			}
			seen[base] = n
			seen[key] = 1
		} else {
			seen[base] = 1
		}
		labels[i] = label
		keys[i] = key
	}
	return labels, keys
}

// identifierDenyList matches column-name patterns that disqualify an
// otherwise-numeric column from being a measure.
var identifierDenyList = []*regexp.Regexp{
	regexp.MustCompile(`^id$`),
	regexp.MustCompile(`^id_`),
	regexp.MustCompile(`_id$`),
	regexp.MustCompile(`cnpj`),
	regexp.MustCompile(`cpf`),
	regexp.MustCompile(`pi_`),
	regexp.MustCompile(`contrato`),
}

func looksLikeIdentifier(key string) bool {
	for _, re := range identifierDenyList {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}
