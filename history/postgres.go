// Package history loads the patient context attached to a combination check
// when the caller asks for it. The records live in the EHR database, in the
// condition, allergy_intolerance and allergy_reaction tables.
package history

import (
	"context"
	"fmt"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Compile-time check to ensure PostgresProvider implements HistoryProvider
var _ interfaces.HistoryProvider = (*PostgresProvider)(nil)

// Queryer is the part of a pgx pool the provider needs
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const conditionsQuery = `SELECT code_display, severity_display, note
	FROM condition
	WHERE patient_id = $1 AND (clinical_status IS NULL OR clinical_status = 'active')
	ORDER BY recorded_date DESC NULLS LAST, code_display`

const allergiesQuery = `SELECT a.code_display, a.criticality,
		string_agg(DISTINCT r.manifestation_display, ', ')
	FROM allergy_intolerance a
	LEFT JOIN allergy_reaction r ON r.allergy_id = a.id
	WHERE a.patient_id = $1 AND (a.clinical_status IS NULL OR a.clinical_status = 'active')
	GROUP BY a.id, a.code_display, a.criticality
	ORDER BY a.code_display`

// PostgresProvider reads active conditions and allergies of a patient
type PostgresProvider struct {
	db Queryer
}

func NewPostgresProvider(db Queryer) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// PatientHistory returns the active conditions and allergies of patientID.
// A patient without records yields empty lists.
func (p *PostgresProvider) PatientHistory(ctx context.Context, patientID string) (*entities.PatientHistory, error) {
	id, err := uuid.Parse(patientID)
	if err != nil {
		return nil, fmt.Errorf("invalid patient id %q: %w", patientID, err)
	}

	conditions, err := p.conditions(ctx, id)
	if err != nil {
		return nil, err
	}
	allergies, err := p.allergies(ctx, id)
	if err != nil {
		return nil, err
	}

	return &entities.PatientHistory{
		PatientID:  patientID,
		Conditions: conditions,
		Allergies:  allergies,
	}, nil
}

func (p *PostgresProvider) conditions(ctx context.Context, id uuid.UUID) ([]entities.Condition, error) {
	rows, err := p.db.Query(ctx, conditionsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query conditions: %w", err)
	}
	defer rows.Close()

	conditions := []entities.Condition{}
	for rows.Next() {
		var (
			name     string
			severity *string
			note     *string
		)
		if err := rows.Scan(&name, &severity, &note); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		conditions = append(conditions, entities.Condition{
			Name:        name,
			Severity:    deref(severity),
			Description: deref(note),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read conditions: %w", err)
	}
	return conditions, nil
}

func (p *PostgresProvider) allergies(ctx context.Context, id uuid.UUID) ([]entities.Allergy, error) {
	rows, err := p.db.Query(ctx, allergiesQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query allergies: %w", err)
	}
	defer rows.Close()

	allergies := []entities.Allergy{}
	for rows.Next() {
		var allergen, criticality, reactions *string
		if err := rows.Scan(&allergen, &criticality, &reactions); err != nil {
			return nil, fmt.Errorf("scan allergy: %w", err)
		}
		// unnamed allergy entries carry nothing to explain
		if deref(allergen) == "" {
			continue
		}
		allergies = append(allergies, entities.Allergy{
			Allergen: *allergen,
			Reaction: deref(reactions),
			Severity: deref(criticality),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read allergies: %w", err)
	}
	return allergies, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
