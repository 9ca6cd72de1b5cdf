// Package curated provides the authoritative interaction store: an in-memory
// store over the loaded dataset, a Postgres store and a bulk importer.
package curated

import (
	"strings"

	"github.com/giygas/ddi-engine/drugs"
	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
)

const maxUnresolvedListed = 10

// Build resolves raw rows against the catalog and merges them per canonical
// pair: highest severity, union of side effects, smallest frequency score.
// Self-pairs and rows naming unknown drugs are skipped and counted.
func Build(cat *entities.Catalog, rows []entities.CuratedRow) (map[entities.InteractionKey]entities.CuratedInteraction, interfaces.CuratedBuildStats) {
	stats := interfaces.CuratedBuildStats{Rows: len(rows)}
	out := make(map[entities.InteractionKey]entities.CuratedInteraction)
	listed := make(map[string]bool)

	unresolved := func(name string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if listed[key] || len(stats.UnresolvedList) >= maxUnresolvedListed {
			return
		}
		listed[key] = true
		stats.UnresolvedList = append(stats.UnresolvedList, name)
	}

	for _, row := range rows {
		a, okA := drugs.Lookup(cat, row.DrugA)
		b, okB := drugs.Lookup(cat, row.DrugB)
		if !okA || !okB {
			stats.Unresolved++
			if !okA {
				unresolved(row.DrugA)
			}
			if !okB {
				unresolved(row.DrugB)
			}
			continue
		}
		if a.ID == b.ID {
			stats.SelfPairs++
			continue
		}

		lo, hi := entities.OrderIDs(a.ID, b.ID)
		key := entities.NewInteractionKey(lo, hi)
		existing, ok := out[key]
		if !ok {
			existing = entities.CuratedInteraction{
				DrugIDs:        [2]string{lo, hi},
				Severity:       row.Severity,
				FrequencyScore: row.Frequency,
				Dataset:        row.Dataset,
			}
		} else {
			existing.Severity = entities.MaxSeverity(existing.Severity, row.Severity)
			existing.FrequencyScore = min(existing.FrequencyScore, row.Frequency)
		}
		existing.SideEffects = appendSideEffect(existing.SideEffects, row.SideEffect)
		out[key] = existing
	}

	stats.Pairs = len(out)
	return out, stats
}

func appendSideEffect(list []string, effect string) []string {
	effect = strings.TrimSpace(effect)
	if effect == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, effect) {
			return list
		}
	}
	return append(list, effect)
}
