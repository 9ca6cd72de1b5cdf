package entities

import (
	"fmt"
	"strings"
	"time"
)

// Source tags which variant an InteractionRecord carries
type Source string

const (
	SourceCurated   Source = "curated"
	SourcePredicted Source = "predicted"
)

// Label is one entry of the classifier's fixed label space
type Label struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// LabelScore is a label with its predicted probability
type LabelScore struct {
	Index       int     `json:"index"`
	Name        string  `json:"side_effect"`
	Probability float64 `json:"probability"`
	Significant bool    `json:"significant"`
	Weight      float64 `json:"-"`
}

// Prediction is the classifier output for one canonical pair
type Prediction struct {
	// Labels is ranked by descending probability and bounded by top_k
	Labels []LabelScore `json:"labels"`
	// Significant holds every label at or above Threshold, ranked the same way
	Significant []LabelScore `json:"significant"`
	Severity    Severity     `json:"severity"`
	Threshold   float64      `json:"threshold"`
}

// Operand is one side of a classifier input. Key orders the pair: the drug
// id when known, otherwise the structure string.
type Operand struct {
	Key         string
	Structure   string
	Fingerprint *Fingerprint
}

// PairInput is one classifier request
type PairInput struct {
	A    Operand
	B    Operand
	TopK int
}

// Canonical returns the input with the lower key first
func (p PairInput) Canonical() PairInput {
	if p.B.Key < p.A.Key {
		p.A, p.B = p.B, p.A
	}
	return p
}

// PredictionOutcome is one result-or-error of a batch prediction
type PredictionOutcome struct {
	Prediction Prediction
	Err        error
}

// CuratedInteraction is an authoritative record from the curated store
type CuratedInteraction struct {
	DrugIDs        [2]string `json:"drug_ids"`
	Severity       Severity  `json:"severity"`
	Description    string    `json:"description"`
	SideEffects    []string  `json:"side_effects,omitempty"`
	FrequencyScore float64   `json:"frequency_score"`
	Dataset        string    `json:"dataset,omitempty"`
}

// CuratedEvidence holds the fields only curated records carry
type CuratedEvidence struct {
	SideEffects    []string `json:"side_effects,omitempty"`
	FrequencyScore float64  `json:"frequency_score"`
	Dataset        string   `json:"dataset,omitempty"`
}

// PredictedEvidence holds the fields only predicted records carry
type PredictedEvidence struct {
	Labels    []LabelScore `json:"labels"`
	Threshold float64      `json:"threshold"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// InteractionRecord is the resolved finding for one canonical pair.
// Exactly one of Curated and Predicted is set, matching Source.
type InteractionRecord struct {
	Key         InteractionKey     `json:"key"`
	Drugs       [2]DrugRef         `json:"drugs"`
	Source      Source             `json:"source"`
	Severity    Severity           `json:"severity"`
	Description string             `json:"description"`
	ComputedAt  time.Time          `json:"computed_at"`
	Curated     *CuratedEvidence   `json:"curated,omitempty"`
	Predicted   *PredictedEvidence `json:"predicted,omitempty"`
}

// NewCuratedRecord builds the non-expiring variant
func NewCuratedRecord(pair DrugPair, c CuratedInteraction, now time.Time) InteractionRecord {
	description := c.Description
	if description == "" {
		description = fmt.Sprintf("Known interaction between %s and %s", pair.First.CanonicalName, pair.Second.CanonicalName)
		if len(c.SideEffects) > 0 {
			description += ". Associated side effects: " + strings.Join(c.SideEffects, ", ")
		}
	}
	return InteractionRecord{
		Key:         pair.Key(),
		Drugs:       pair.Refs(),
		Source:      SourceCurated,
		Severity:    c.Severity,
		Description: description,
		ComputedAt:  now,
		Curated: &CuratedEvidence{
			SideEffects:    c.SideEffects,
			FrequencyScore: c.FrequencyScore,
			Dataset:        c.Dataset,
		},
	}
}

// NewPredictedRecord builds the TTL-bounded variant
func NewPredictedRecord(pair DrugPair, p Prediction, now time.Time, ttl time.Duration) InteractionRecord {
	return InteractionRecord{
		Key:         pair.Key(),
		Drugs:       pair.Refs(),
		Source:      SourcePredicted,
		Severity:    p.Severity,
		Description: describePrediction(pair, p),
		ComputedAt:  now,
		Predicted: &PredictedEvidence{
			Labels:    p.Labels,
			Threshold: p.Threshold,
			ExpiresAt: now.Add(ttl),
		},
	}
}

func describePrediction(pair DrugPair, p Prediction) string {
	a, b := pair.First.CanonicalName, pair.Second.CanonicalName
	if len(p.Significant) == 0 {
		return fmt.Sprintf("No significant interaction predicted between %s and %s", a, b)
	}
	shown := p.Significant
	if len(shown) > 3 {
		shown = shown[:3]
	}
	parts := make([]string, len(shown))
	for i, l := range shown {
		parts[i] = fmt.Sprintf("%s (%.2f)", l.Name, l.Probability)
	}
	return fmt.Sprintf("Model-predicted interaction between %s and %s, not a curated finding: %s",
		a, b, strings.Join(parts, ", "))
}

// ExpiresAt returns the expiry of a predicted record. Curated records report false.
func (r InteractionRecord) ExpiresAt() (time.Time, bool) {
	if r.Predicted == nil {
		return time.Time{}, false
	}
	return r.Predicted.ExpiresAt, true
}

// Expired reports whether a predicted record is past its expiry at now
func (r InteractionRecord) Expired(now time.Time) bool {
	exp, ok := r.ExpiresAt()
	return ok && !now.Before(exp)
}

// Labels returns the ranked labels of a predicted record, nil for curated ones
func (r InteractionRecord) Labels() []LabelScore {
	if r.Predicted == nil {
		return nil
	}
	return r.Predicted.Labels
}

// CuratedRow is one raw line of a curated interaction dataset, before the
// drug names are resolved against the catalog and rows are grouped by pair.
type CuratedRow struct {
	DrugA      string
	DrugB      string
	SideEffect string
	// PValue is nil when the dataset carries no significance column
	PValue    *float64
	Frequency float64
	Severity  Severity
	Dataset   string
}
