package normalizer

import (
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// OverrideStore lets a user correct a UGR/description spelling variant
// ("Pref. Municipal" -> "Prefeitura Municipal") once and have it applied to
// every subsequent upload. Corrections live in memory for the process
// lifetime; datasets are never persisted, so neither are their fixes.
type OverrideStore struct {
	mu         sync.RWMutex
	overrides  map[string]string // normalized raw term -> canonical term
	canonicals []string          // distinct canonical terms seen, for suggestion ranking
}

// NewOverrideStore creates an empty store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{overrides: make(map[string]string)}
}

// Set records that raw should be displayed/grouped as canonical.
func (s *OverrideStore) Set(raw, canonical string) {
	key := normalizeTerm(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[key] = canonical
	if !containsFold(s.canonicals, canonical) {
		s.canonicals = append(s.canonicals, canonical)
	}
}

// Apply returns the canonical form of raw if a correction was recorded for
// it, otherwise raw unchanged.
func (s *OverrideStore) Apply(raw string) string {
	key := normalizeTerm(raw)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if canonical, ok := s.overrides[key]; ok {
		return canonical
	}
	return raw
}

// Suggest ranks the known canonical terms by similarity to raw, for a
// "did you mean" UI when a new UGR name appears that closely resembles one
// already corrected. Only terms that contain raw's characters in order
// (case-insensitively) are returned; others are dropped, not ranked.
// limit <= 0 means no cap.
func (s *OverrideStore) Suggest(raw string, limit int) []string {
	s.mu.RLock()
	candidates := append([]string(nil), s.canonicals...)
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil
	}

	type scored struct {
		term  string
		score int
	}
	ranked := make([]scored, 0, len(candidates))
	target := normalizeTerm(raw)
	for _, c := range candidates {
		rank := fuzzy.RankMatchFold(target, normalizeTerm(c))
		if rank < 0 {
			continue
		}
		ranked = append(ranked, scored{term: c, score: rank})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.term
	}
	return out
}

func normalizeTerm(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
