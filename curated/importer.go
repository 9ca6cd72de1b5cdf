package curated

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the curated interaction table and its pair index
const Schema = `
CREATE TABLE IF NOT EXISTS curated_interactions (
	id              uuid PRIMARY KEY,
	pair_key        text NOT NULL,
	drug_a_id       text NOT NULL,
	drug_b_id       text NOT NULL,
	severity        smallint NOT NULL,
	description     text,
	side_effects    text[],
	frequency_score double precision,
	source          text NOT NULL,
	imported_at     timestamptz NOT NULL DEFAULT now(),
	UNIQUE (pair_key, source)
);
CREATE INDEX IF NOT EXISTS curated_interactions_pair_idx ON curated_interactions (drug_a_id, drug_b_id);`

var importColumns = []string{
	"id", "pair_key", "drug_a_id", "drug_b_id", "severity",
	"description", "side_effects", "frequency_score", "source",
}

// TxBeginner is the part of *pgxpool.Pool the importer writes through
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ImportResult summarizes one import run
type ImportResult struct {
	Source   string
	Stats    interfaces.CuratedBuildStats
	Deleted  int64
	Inserted int64
}

// Importer bulk-loads a curated dataset into Postgres
type Importer struct {
	db TxBeginner
}

func NewImporter(db TxBeginner) *Importer {
	return &Importer{db: db}
}

// EnsureSchema creates the table when it does not exist
func (im *Importer) EnsureSchema(ctx context.Context) error {
	if _, err := im.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create curated schema: %w", err)
	}
	return nil
}

// Import resolves and merges the rows, then replaces every record of the
// dataset in one transaction. An empty source falls back to the dataset
// name carried by the rows.
func (im *Importer) Import(ctx context.Context, cat *entities.Catalog, rows []entities.CuratedRow, source string) (*ImportResult, error) {
	if source == "" && len(rows) > 0 {
		source = rows[0].Dataset
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("curated import needs a source name")
	}

	records, stats := Build(cat, rows)
	result := &ImportResult{Source: source, Stats: stats}

	keys := make([]entities.InteractionKey, 0, len(records))
	for key := range records {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b entities.InteractionKey) int {
		ra, rb := records[a], records[b]
		return cmp.Or(
			strings.Compare(ra.DrugIDs[0], rb.DrugIDs[0]),
			strings.Compare(ra.DrugIDs[1], rb.DrugIDs[1]),
		)
	})

	copyRows := make([][]any, 0, len(keys))
	for _, key := range keys {
		rec := records[key]
		var description any
		if rec.Description != "" {
			description = rec.Description
		}
		copyRows = append(copyRows, []any{
			uuid.New(), key.String(), rec.DrugIDs[0], rec.DrugIDs[1], int16(rec.Severity),
			description, rec.SideEffects, rec.FrequencyScore, source,
		})
	}

	tx, err := im.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin curated import: %w", err)
	}
	defer func() {
		// No-op once committed
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM curated_interactions WHERE source = $1`, source)
	if err != nil {
		return nil, fmt.Errorf("clear previous %s import: %w", source, err)
	}
	result.Deleted = tag.RowsAffected()

	if len(copyRows) > 0 {
		inserted, err := tx.CopyFrom(ctx, pgx.Identifier{"curated_interactions"}, importColumns, pgx.CopyFromRows(copyRows))
		if err != nil {
			return nil, fmt.Errorf("copy curated interactions: %w", err)
		}
		result.Inserted = inserted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit curated import: %w", err)
	}

	logging.Info("Curated import complete",
		"source", source,
		"rows", stats.Rows,
		"pairs", stats.Pairs,
		"self_pairs", stats.SelfPairs,
		"unresolved", stats.Unresolved,
		"deleted", result.Deleted,
		"inserted", result.Inserted,
	)
	if len(stats.UnresolvedList) > 0 {
		logging.Warn("Curated rows referenced unknown drugs", "examples", stats.UnresolvedList)
	}

	return result, nil
}
