package curated

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/jackc/pgx/v5"
)

// Compile-time check to ensure PostgresStore implements CuratedStore
var _ interfaces.CuratedStore = (*PostgresStore)(nil)

// Querier is the part of *pgxpool.Pool the store reads through
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const lookupQuery = `
SELECT drug_a_id, drug_b_id, severity, description, side_effects, frequency_score, source
FROM curated_interactions
WHERE (drug_a_id = $1 AND drug_b_id = $2) OR (drug_a_id = $2 AND drug_b_id = $1)
ORDER BY severity DESC
LIMIT 1`

const countQuery = `SELECT count(*) FROM curated_interactions`

// PostgresStore looks curated interactions up in the curated_interactions
// table. Its version is bumped by Invalidate after each import or reload.
type PostgresStore struct {
	db      Querier
	version atomic.Uint64
}

func NewPostgresStore(db Querier) *PostgresStore {
	s := &PostgresStore{db: db}
	s.version.Store(1)
	return s
}

func (s *PostgresStore) Lookup(ctx context.Context, idA, idB string) (*entities.CuratedInteraction, error) {
	var (
		rec         entities.CuratedInteraction
		severity    int16
		description *string
		sideEffects []string
		frequency   *float64
		source      *string
	)

	err := s.db.QueryRow(ctx, lookupQuery, idA, idB).Scan(
		&rec.DrugIDs[0], &rec.DrugIDs[1], &severity, &description, &sideEffects, &frequency, &source,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("curated lookup %s/%s: %w", idA, idB, err)
	}

	rec.DrugIDs[0], rec.DrugIDs[1] = entities.OrderIDs(rec.DrugIDs[0], rec.DrugIDs[1])
	rec.Severity = entities.Severity(severity)
	if rec.Severity < entities.SeverityMinor || rec.Severity > entities.SeverityMajor {
		rec.Severity = entities.SeverityMinor
	}
	rec.SideEffects = sideEffects
	if description != nil {
		rec.Description = *description
	}
	if frequency != nil {
		rec.FrequencyScore = *frequency
	}
	if source != nil {
		rec.Dataset = *source
	}
	return &rec, nil
}

func (s *PostgresStore) Version() uint64 {
	return s.version.Load()
}

// Invalidate marks every record cached under the previous version stale
func (s *PostgresStore) Invalidate() {
	s.version.Add(1)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("count curated interactions: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Name() string {
	return "postgres"
}
