package drugs

import (
	"cmp"
	"slices"
	"strings"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/logging"
)

// nameKey is the index key of a catalog name. Names that normalize to
// nothing keep their punctuation-free form.
func nameKey(name string) string {
	if key := Normalize(name); key != "" {
		return key
	}
	return NormalizeKey(name)
}

// BuildCatalog indexes drug entries for resolution. Entries without an id or
// a name are dropped, and the first entry wins on duplicate ids. Drugs are
// ordered by normalized canonical name then id, so whenever two drugs claim
// the same name or alias the lexicographically first canonical name owns it.
func BuildCatalog(entries []entities.Drug) *entities.Catalog {
	seen := make(map[string]bool, len(entries))
	kept := make([]entities.Drug, 0, len(entries))
	for _, d := range entries {
		d.ID = strings.TrimSpace(d.ID)
		d.CanonicalName = strings.TrimSpace(d.CanonicalName)
		d.Structure = strings.TrimSpace(d.Structure)
		if d.ID == "" || nameKey(d.CanonicalName) == "" {
			logging.Debug("Skipping catalog entry without id or name", "id", d.ID, "name", d.CanonicalName)
			continue
		}
		if seen[d.ID] {
			logging.Debug("Skipping duplicate catalog id", "id", d.ID)
			continue
		}
		seen[d.ID] = true
		kept = append(kept, d)
	}

	slices.SortStableFunc(kept, func(a, b entities.Drug) int {
		return cmp.Or(
			strings.Compare(nameKey(a.CanonicalName), nameKey(b.CanonicalName)),
			strings.Compare(a.ID, b.ID),
		)
	})

	cat := &entities.Catalog{
		Drugs:   kept,
		ByID:    make(map[string]int, len(kept)),
		ByName:  make(map[string]int, len(kept)),
		ByAlias: make(map[string]int, len(kept)),
	}

	for i, d := range kept {
		cat.ByID[d.ID] = i
		key := nameKey(d.CanonicalName)
		if _, taken := cat.ByName[key]; !taken {
			cat.ByName[key] = i
		}
	}

	for i, d := range kept {
		for _, alias := range d.Aliases {
			key := nameKey(alias)
			if key == "" {
				continue
			}
			if _, isName := cat.ByName[key]; isName {
				continue
			}
			if _, taken := cat.ByAlias[key]; !taken {
				cat.ByAlias[key] = i
			}
		}
	}

	cat.Terms = make([]entities.CatalogTerm, 0, len(cat.ByName)+len(cat.ByAlias))
	for key, idx := range cat.ByName {
		cat.Terms = append(cat.Terms, entities.CatalogTerm{Key: key, Index: idx})
	}
	for key, idx := range cat.ByAlias {
		cat.Terms = append(cat.Terms, entities.CatalogTerm{Key: key, Index: idx})
	}
	slices.SortFunc(cat.Terms, func(a, b entities.CatalogTerm) int {
		return cmp.Or(strings.Compare(a.Key, b.Key), cmp.Compare(a.Index, b.Index))
	})

	return cat
}

// NameCollisions lists normalized names claimed by more than one entry
func NameCollisions(cat *entities.Catalog) []string {
	if cat == nil {
		return nil
	}
	owners := make(map[string]int)
	for _, d := range cat.Drugs {
		owners[nameKey(d.CanonicalName)]++
	}
	var collisions []string
	for key, n := range owners {
		if n > 1 {
			collisions = append(collisions, key)
		}
	}
	slices.Sort(collisions)
	return collisions
}

// Lookup finds a drug by id, canonical name or alias, without approximate
// matching.
func Lookup(cat *entities.Catalog, name string) (entities.Drug, bool) {
	if cat.Len() == 0 {
		return entities.Drug{}, false
	}
	if idx, ok := cat.ByID[strings.TrimSpace(name)]; ok {
		return cat.Drugs[idx], true
	}
	key := nameKey(name)
	if key == "" {
		return entities.Drug{}, false
	}
	if idx, ok := cat.ByName[key]; ok {
		return cat.Drugs[idx], true
	}
	if idx, ok := cat.ByAlias[key]; ok {
		return cat.Drugs[idx], true
	}
	return entities.Drug{}, false
}
