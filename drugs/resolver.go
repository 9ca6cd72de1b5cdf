package drugs

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/metrics"
)

const (
	// DefaultMaxDistance caps the edit distance of a fuzzy match
	DefaultMaxDistance = 3
	// minSubstringLength is the shortest query allowed to match by containment
	minSubstringLength = 4
)

// Compile-time check to ensure Resolver implements DrugResolver
var _ interfaces.DrugResolver = (*Resolver)(nil)

// Resolver maps free-text names onto the current catalog snapshot
type Resolver struct {
	catalog     interfaces.CatalogSource
	extractor   interfaces.FingerprintExtractor
	maxDistance int
}

// NewResolver creates a resolver. extractor may be nil, in which case
// resolved drugs carry no fingerprint.
func NewResolver(catalog interfaces.CatalogSource, extractor interfaces.FingerprintExtractor, maxDistance int) *Resolver {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Resolver{catalog: catalog, extractor: extractor, maxDistance: maxDistance}
}

// Resolve returns the canonical drug for name. Exact canonical names win,
// then aliases, then catalog ids, then containment and fuzzy matches ranked
// by edit distance and canonical name.
func (r *Resolver) Resolve(name string) (entities.Drug, error) {
	cat := r.catalog.GetCatalog()
	if cat.Len() == 0 {
		return entities.Drug{}, &entities.UnknownDrugError{Name: name}
	}

	key := nameKey(name)
	if key == "" {
		metrics.ResolutionsTotal.WithLabelValues("unknown").Inc()
		return entities.Drug{}, &entities.UnknownDrugError{Name: name}
	}

	if idx, ok := cat.ByName[key]; ok {
		return r.found(cat.Drugs[idx], entities.MatchExact), nil
	}
	if idx, ok := cat.ByAlias[key]; ok {
		return r.found(cat.Drugs[idx], entities.MatchAlias), nil
	}
	if idx, ok := cat.ByID[strings.TrimSpace(name)]; ok {
		return r.found(cat.Drugs[idx], entities.MatchID), nil
	}

	if c, ok := r.closest(cat, key); ok {
		logging.Debug("Approximate drug match", "input", name, "matched", c.term, "drug", cat.Drugs[c.index].CanonicalName, "distance", c.distance)
		return r.found(cat.Drugs[c.index], c.match), nil
	}

	metrics.ResolutionsTotal.WithLabelValues("unknown").Inc()
	return entities.Drug{}, &entities.UnknownDrugError{Name: name}
}

func (r *Resolver) found(d entities.Drug, match string) entities.Drug {
	metrics.ResolutionsTotal.WithLabelValues(match).Inc()
	if r.extractor != nil && d.Fingerprint == nil && d.Structure != "" {
		if fp, err := r.extractor.Extract(d.Structure); err == nil {
			d.Fingerprint = fp
		}
	}
	return d
}

type candidate struct {
	index    int
	term     string
	match    string
	distance int
	name     string
	rank     int
}

func (r *Resolver) fuzzyThreshold(key string) int {
	return min(r.maxDistance, max(1, utf8.RuneCountInString(key)/3))
}

// approximate scores a catalog term against a query key. Containment matches
// are accepted regardless of distance; pure fuzzy matches must stay within
// the threshold.
func (r *Resolver) approximate(key string, term entities.CatalogTerm, threshold int) (candidate, bool) {
	c := candidate{index: term.Index, term: term.Key}
	switch {
	case strings.HasPrefix(term.Key, key) && len(key) >= minSubstringLength:
		c.match, c.rank = entities.MatchPrefix, 1
	case len(key) >= minSubstringLength && strings.Contains(term.Key, key):
		c.match, c.rank = entities.MatchSubstring, 2
	case len(term.Key) >= minSubstringLength && strings.Contains(" "+key+" ", " "+term.Key+" "):
		c.match, c.rank = entities.MatchSubstring, 2
	default:
		diff := utf8.RuneCountInString(key) - utf8.RuneCountInString(term.Key)
		if diff > threshold || -diff > threshold {
			return c, false
		}
		c.match, c.rank = entities.MatchFuzzy, 3
	}
	c.distance = levenshtein.ComputeDistance(key, term.Key)
	if c.match == entities.MatchFuzzy && c.distance > threshold {
		return c, false
	}
	return c, true
}

// closest picks the single best approximate match. Shorter edit distance
// wins, then the lexicographically first canonical name.
func (r *Resolver) closest(cat *entities.Catalog, key string) (candidate, bool) {
	threshold := r.fuzzyThreshold(key)
	best := candidate{index: -1}
	for _, term := range cat.Terms {
		c, ok := r.approximate(key, term, threshold)
		if !ok {
			continue
		}
		c.name = nameKey(cat.Drugs[c.index].CanonicalName)
		if best.index < 0 || compareCandidates(c, best) < 0 {
			best = c
		}
	}
	return best, best.index >= 0
}

func compareCandidates(a, b candidate) int {
	return cmp.Or(
		cmp.Compare(a.distance, b.distance),
		strings.Compare(a.name, b.name),
		cmp.Compare(a.index, b.index),
	)
}

// Search returns up to limit catalog drugs ranked by match quality: exact
// and alias hits first, then prefix, containment and fuzzy matches.
func (r *Resolver) Search(query string, limit int) []entities.SearchResult {
	cat := r.catalog.GetCatalog()
	key := nameKey(query)
	if cat.Len() == 0 || key == "" || limit <= 0 {
		return []entities.SearchResult{}
	}

	threshold := r.fuzzyThreshold(key)
	bestByDrug := make(map[int]candidate)
	consider := func(c candidate) {
		c.name = nameKey(cat.Drugs[c.index].CanonicalName)
		if prev, ok := bestByDrug[c.index]; !ok || c.rank < prev.rank || (c.rank == prev.rank && c.distance < prev.distance) {
			bestByDrug[c.index] = c
		}
	}

	if idx, ok := cat.ByName[key]; ok {
		consider(candidate{index: idx, term: key, match: entities.MatchExact})
	}
	if idx, ok := cat.ByAlias[key]; ok {
		consider(candidate{index: idx, term: key, match: entities.MatchAlias})
	}
	if idx, ok := cat.ByID[strings.TrimSpace(query)]; ok {
		consider(candidate{index: idx, term: cat.Drugs[idx].ID, match: entities.MatchID})
	}
	for _, term := range cat.Terms {
		if term.Key == key {
			continue
		}
		if c, ok := r.approximate(key, term, threshold); ok {
			consider(c)
		}
	}

	ranked := make([]candidate, 0, len(bestByDrug))
	for _, c := range bestByDrug {
		ranked = append(ranked, c)
	}
	slices.SortFunc(ranked, func(a, b candidate) int {
		return cmp.Or(cmp.Compare(a.rank, b.rank), compareCandidates(a, b))
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	results := make([]entities.SearchResult, len(ranked))
	for i, c := range ranked {
		results[i] = entities.SearchResult{
			Drug:     cat.Drugs[c.index].Ref(),
			Matched:  c.term,
			Match:    c.match,
			Distance: c.distance,
		}
	}
	return results
}
