package entities

import "time"

// CheckRequest is the application-level input of a combination check
type CheckRequest struct {
	Medications    []string `json:"medications"`
	IncludeHistory bool     `json:"include_history"`
	PatientID      string   `json:"patient_id,omitempty"`
}

// Failure stages
const (
	StageResolve = "resolve"
	StagePair    = "pair"
)

// Failure is a structured partial failure inside a report
type Failure struct {
	Stage   string    `json:"stage"`
	Input   string    `json:"input,omitempty"`
	Drugs   []DrugRef `json:"drugs,omitempty"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// InteractionReport is built fresh for each check and never persisted here
type InteractionReport struct {
	ID              string              `json:"id"`
	ResolvedDrugs   []DrugRef           `json:"resolved_drugs"`
	UnresolvedNames []string            `json:"unresolved_names"`
	PairwiseResults []InteractionRecord `json:"pairwise_results"`
	Failures        []Failure           `json:"failures,omitempty"`
	OverallSeverity Severity            `json:"overall_severity"`
	SeverityCounts  SeverityCounts      `json:"severity_counts"`
	SummaryText     string              `json:"summary_text"`
	PairsChecked    int                 `json:"pairs_checked"`
	History         *PatientHistory     `json:"history,omitempty"`
	Notes           []string            `json:"notes,omitempty"`
	CheckedAt       time.Time           `json:"checked_at"`
}

// PatientHistory is the context attached when a check includes history
type PatientHistory struct {
	PatientID  string      `json:"patient_id"`
	Conditions []Condition `json:"conditions"`
	Allergies  []Allergy   `json:"allergies"`
}

type Condition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

type Allergy struct {
	Allergen string `json:"allergen"`
	Reaction string `json:"reaction,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// CheckOutcome is the per-list result of a batch check
type CheckOutcome struct {
	Report  *InteractionReport `json:"report,omitempty"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
}
