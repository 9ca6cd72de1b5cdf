// Package engine is the combination resolver: it resolves a medication list,
// checks every unordered pair through the interaction cache and aggregates
// the findings into one report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Compile-time check to ensure Engine implements Checker
var _ interfaces.Checker = (*Engine)(nil)

// ErrSameDrug is returned when both names of a pair lookup are one drug
var ErrSameDrug = errors.New("both names resolve to the same drug")

// Defaults applied to zero Config fields
const (
	DefaultMaxMedications = 50
	DefaultConcurrency    = 8
	DefaultPairTimeout    = 5 * time.Second
	DefaultMaxBatchChecks = 20
	publishTimeout        = 2 * time.Second
)

type Config struct {
	MaxMedications int
	// Concurrency bounds the pair resolutions in flight for one check
	Concurrency    int
	PairTimeout    time.Duration
	MaxBatchChecks int
}

// Engine implements the combination check
type Engine struct {
	resolver  interfaces.DrugResolver
	cache     interfaces.InteractionCache
	history   interfaces.HistoryProvider
	publisher interfaces.ReportPublisher
	cfg       Config
	now       func() time.Time
}

type Option func(*Engine)

// WithHistory attaches patient context to checks that ask for it
func WithHistory(p interfaces.HistoryProvider) Option {
	return func(e *Engine) { e.history = p }
}

// WithPublisher hands every finished report to p
func WithPublisher(p interfaces.ReportPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func New(resolver interfaces.DrugResolver, cache interfaces.InteractionCache, cfg Config, opts ...Option) *Engine {
	if cfg.MaxMedications <= 0 {
		cfg.MaxMedications = DefaultMaxMedications
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = DefaultPairTimeout
	}
	if cfg.MaxBatchChecks <= 0 {
		cfg.MaxBatchChecks = DefaultMaxBatchChecks
	}
	e := &Engine{resolver: resolver, cache: cache, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check resolves the medication list and every pair of resolved drugs.
// Per-drug and per-pair failures are recorded in the report. Only a
// cancelled request or an oversized list fails the whole check.
func (e *Engine) Check(ctx context.Context, req entities.CheckRequest) (*entities.InteractionReport, error) {
	if len(req.Medications) > e.cfg.MaxMedications {
		return nil, &entities.BatchSizeExceededError{Requested: len(req.Medications), Max: e.cfg.MaxMedications}
	}

	report := &entities.InteractionReport{
		ID:              uuid.NewString(),
		ResolvedDrugs:   []entities.DrugRef{},
		UnresolvedNames: []string{},
		PairwiseResults: []entities.InteractionRecord{},
		CheckedAt:       e.now(),
	}

	resolved := e.resolveAll(req.Medications, report)

	if len(resolved) >= 2 {
		if err := e.checkPairs(ctx, resolved, report); err != nil {
			return nil, err
		}
	}

	aggregate(report)

	if req.IncludeHistory {
		e.attachHistory(ctx, req.PatientID, report)
	}

	metrics.ChecksTotal.WithLabelValues(report.OverallSeverity.String()).Inc()
	logging.Debug("Check complete",
		"report_id", report.ID,
		"medications", len(req.Medications),
		"resolved", len(report.ResolvedDrugs),
		"unresolved", len(report.UnresolvedNames),
		"pairs", report.PairsChecked,
		"failures", len(report.Failures),
		"overall_severity", report.OverallSeverity,
	)

	e.publish(ctx, report)
	return report, nil
}

// resolveAll deduplicates names case-insensitively in first-seen order and
// resolves each one. Names that resolve to an already resolved drug are
// noted and skipped.
func (e *Engine) resolveAll(names []string, report *entities.InteractionReport) []entities.Drug {
	seen := make(map[string]bool, len(names))
	byID := make(map[string]string, len(names))
	var resolved []entities.Drug

	for _, raw := range names {
		name := strings.TrimSpace(raw)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		d, err := e.resolver.Resolve(name)
		if err != nil {
			report.UnresolvedNames = append(report.UnresolvedNames, name)
			report.Failures = append(report.Failures, entities.Failure{
				Stage:   entities.StageResolve,
				Input:   name,
				Code:    entities.ErrorCode(err),
				Message: err.Error(),
			})
			continue
		}

		if first, dup := byID[d.ID]; dup {
			report.Notes = append(report.Notes,
				fmt.Sprintf("%q and %q both refer to %s", first, name, d.CanonicalName))
			continue
		}
		byID[d.ID] = name
		resolved = append(resolved, d)
		report.ResolvedDrugs = append(report.ResolvedDrugs, d.Ref())
	}
	return resolved
}

type pairOutcome struct {
	record entities.InteractionRecord
	err    error
}

// checkPairs fans out one resolution per unordered pair and joins them all
func (e *Engine) checkPairs(ctx context.Context, drugs []entities.Drug, report *entities.InteractionReport) error {
	pairs := make([]entities.DrugPair, 0, len(drugs)*(len(drugs)-1)/2)
	for i := 0; i < len(drugs); i++ {
		for j := i + 1; j < len(drugs); j++ {
			pairs = append(pairs, entities.NewDrugPair(drugs[i], drugs[j]))
		}
	}

	outcomes := make([]pairOutcome, len(pairs))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, p := range pairs {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, e.cfg.PairTimeout)
			defer cancel()
			rec, err := e.cache.GetOrCompute(pctx, p)
			outcomes[i] = pairOutcome{record: rec, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	report.PairsChecked = len(pairs)
	for i, out := range outcomes {
		if out.err != nil {
			refs := pairs[i].Refs()
			report.Failures = append(report.Failures, entities.Failure{
				Stage:   entities.StagePair,
				Drugs:   refs[:],
				Code:    entities.ErrorCode(out.err),
				Message: out.err.Error(),
			})
			logging.Warn("Pair resolution failed",
				"drug1", refs[0].ID, "drug2", refs[1].ID, "error", out.err)
			continue
		}
		report.PairwiseResults = append(report.PairwiseResults, out.record)
	}
	return nil
}

// aggregate fills the overall severity, bucket counts and summary
func aggregate(report *entities.InteractionReport) {
	report.OverallSeverity = entities.SeverityNone
	predicted := false
	for _, rec := range report.PairwiseResults {
		report.SeverityCounts.Add(rec.Severity)
		report.OverallSeverity = entities.MaxSeverity(report.OverallSeverity, rec.Severity)
		if rec.Source == entities.SourcePredicted && rec.Severity > entities.SeverityNone {
			predicted = true
		}
	}
	report.SummaryText = summarize(report, predicted)
}

func summarize(report *entities.InteractionReport, predicted bool) string {
	var b strings.Builder

	if len(report.ResolvedDrugs) < 2 {
		b.WriteString("Fewer than two medications were recognized, so there are no pairs to check.")
	} else {
		c := report.SeverityCounts
		fmt.Fprintf(&b, "Checked %d pairs among %d medications: %d major, %d moderate, %d minor, %d none. Overall severity: %s.",
			report.PairsChecked, len(report.ResolvedDrugs), c.Major, c.Moderate, c.Minor, c.None, report.OverallSeverity)
	}

	pairFailures := 0
	for _, f := range report.Failures {
		if f.Stage == entities.StagePair {
			pairFailures++
		}
	}
	if pairFailures > 0 {
		fmt.Fprintf(&b, " %d pairs could not be checked.", pairFailures)
	}
	if predicted {
		b.WriteString(" Some findings are model predictions, not curated records.")
	}
	if len(report.UnresolvedNames) > 0 {
		fmt.Fprintf(&b, " Unrecognized: %s.", strings.Join(report.UnresolvedNames, ", "))
	}
	return b.String()
}

func (e *Engine) attachHistory(ctx context.Context, patientID string, report *entities.InteractionReport) {
	patientID = strings.TrimSpace(patientID)
	switch {
	case patientID == "":
		report.Notes = append(report.Notes, "History was requested without a patient_id")
		return
	case e.history == nil:
		report.Notes = append(report.Notes, "Patient history is not available on this server")
		return
	}

	h, err := e.history.PatientHistory(ctx, patientID)
	if err != nil {
		logging.Warn("Failed to load patient history", "patient_id", patientID, "error", err)
		report.Notes = append(report.Notes, "Patient history could not be loaded")
		return
	}
	report.History = h
}

func (e *Engine) publish(ctx context.Context, report *entities.InteractionReport) {
	if e.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(pctx, report); err != nil {
		logging.Warn("Failed to publish report", "report_id", report.ID, "error", err)
	}
}

// CheckBatch runs independent checks. A failed list yields an error outcome
// and never fails its siblings.
func (e *Engine) MaxBatchChecks() int {
	return e.cfg.MaxBatchChecks
}

func (e *Engine) CheckBatch(ctx context.Context, reqs []entities.CheckRequest) ([]entities.CheckOutcome, error) {
	if len(reqs) > e.cfg.MaxBatchChecks {
		return nil, &entities.BatchSizeExceededError{Requested: len(reqs), Max: e.cfg.MaxBatchChecks}
	}

	outcomes := make([]entities.CheckOutcome, len(reqs))
	var g errgroup.Group
	g.SetLimit(max(1, e.cfg.Concurrency/2))
	for i, req := range reqs {
		g.Go(func() error {
			report, err := e.Check(ctx, req)
			if err != nil {
				outcomes[i] = entities.CheckOutcome{Code: entities.ErrorCode(err), Message: err.Error()}
				return nil
			}
			outcomes[i] = entities.CheckOutcome{Report: report}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Interaction resolves two names and returns their pair record
func (e *Engine) Interaction(ctx context.Context, name1, name2 string) (entities.InteractionRecord, error) {
	a, err := e.resolver.Resolve(name1)
	if err != nil {
		return entities.InteractionRecord{}, err
	}
	b, err := e.resolver.Resolve(name2)
	if err != nil {
		return entities.InteractionRecord{}, err
	}
	if a.ID == b.ID {
		return entities.InteractionRecord{}, ErrSameDrug
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PairTimeout)
	defer cancel()
	return e.cache.GetOrCompute(pctx, entities.NewDrugPair(a, b))
}
