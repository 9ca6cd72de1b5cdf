// Package scheduler runs the background jobs of the interaction engine: the
// catalog and curated reload at RELOAD_AT, the cache sweep and the data
// staleness check.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/giygas/ddi-engine/curated"
	"github.com/giygas/ddi-engine/drugs"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/validation"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	DefaultReloadAt      = "06:00;18:00"
	DefaultSweepInterval = 10 * time.Minute
	staleAfter           = 25 * time.Hour
)

// ErrEmptyCatalog keeps the previous data when a reload parses no drugs
var ErrEmptyCatalog = errors.New("catalog file contains no drugs")

// Invalidator is implemented by curated stores that memoize database state
type Invalidator interface {
	Invalidate()
}

// Options configures the jobs. Cache, Invalidator and Validator may be nil.
type Options struct {
	ReloadAt      string
	SweepInterval time.Duration
	Extractor     interfaces.FingerprintExtractor
	Cache         interfaces.InteractionCache
	Invalidator   Invalidator
	Validator     interfaces.DataValidator
}

// Scheduler handles data reloads and cache maintenance using dependency injection
type Scheduler struct {
	dataStore interfaces.DataStore
	parser    interfaces.Parser
	opts      Options
	scheduler *gocron.Scheduler
	now       func() time.Time
}

// NewScheduler creates a new scheduler instance with injected dependencies
func NewScheduler(dataStore interfaces.DataStore, parser interfaces.Parser, opts Options) *Scheduler {
	if opts.ReloadAt == "" {
		opts.ReloadAt = DefaultReloadAt
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Validator == nil {
		opts.Validator = validation.NewDataValidator()
	}
	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	return &Scheduler{
		dataStore: dataStore,
		parser:    parser,
		opts:      opts,
		scheduler: s,
		now:       time.Now,
	}
}

// Start loads the data once, then schedules the reload, sweep and
// staleness jobs. A failed initial load is returned and nothing is scheduled.
func (s *Scheduler) Start() error {
	if err := s.updateData(); err != nil {
		logging.Error("Failed to perform initial data load", "error", err)
		return fmt.Errorf("initial data load failed: %w", err)
	}

	if _, err := s.scheduler.Every(1).Days().At(s.opts.ReloadAt).Do(func() {
		if err := s.updateData(); err != nil {
			logging.Error("Failed to update data", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule reloads at %q: %w", s.opts.ReloadAt, err)
	}

	if s.opts.Cache != nil {
		if _, err := s.scheduler.Every(s.opts.SweepInterval).WaitForSchedule().Do(s.sweepCache); err != nil {
			return fmt.Errorf("failed to schedule cache sweep: %w", err)
		}
	}

	if _, err := s.scheduler.Every(1).Hour().WaitForSchedule().Do(func() { s.checkStaleness() }); err != nil {
		return fmt.Errorf("failed to schedule staleness check: %w", err)
	}

	s.scheduler.StartAsync()
	logging.Info("Scheduler started", "reload_at", s.opts.ReloadAt, "sweep_interval", s.opts.SweepInterval.String())
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// updateData parses both files, rebuilds the catalog and the curated
// records and swaps them in. The previous data stays on any failure.
func (s *Scheduler) updateData() error {
	// Prevent concurrent updates
	if !s.dataStore.BeginUpdate() {
		logging.Info("Update already in progress, skipping...")
		return nil
	}
	defer s.dataStore.EndUpdate()

	logging.Info(fmt.Sprintf("Starting data update at: %s", s.now().Format(time.RFC3339)))
	start := time.Now()

	entries, err := s.parser.ParseCatalog()
	if err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(entries) == 0 {
		return ErrEmptyCatalog
	}
	catalog := drugs.BuildCatalog(entries)

	rows, err := s.parser.ParseCurated()
	if err != nil {
		return fmt.Errorf("failed to parse curated interactions: %w", err)
	}
	records, stats := curated.Build(catalog, rows)

	report := s.opts.Validator.ReportDataQuality(entries, catalog, stats, s.opts.Extractor)
	logReport(report)

	s.dataStore.UpdateData(catalog, records, report)
	if s.opts.Invalidator != nil {
		s.opts.Invalidator.Invalidate()
	}

	logging.Info("Data update completed",
		"duration", time.Since(start).String(),
		"drug_count", catalog.Len(),
		"curated_pairs", len(records),
		"curated_version", s.dataStore.GetCuratedVersion(),
	)
	return nil
}

func logReport(report *interfaces.DataQualityReport) {
	if len(report.DuplicateDrugIDs) > 0 {
		logging.Warn("Duplicate drug ids detected",
			"total", len(report.DuplicateDrugIDs),
			"id_list", report.DuplicateDrugIDs,
		)
	}
	if len(report.NameCollisions) > 0 {
		logging.Warn("Drug names claimed by several entries",
			"total", len(report.NameCollisions),
			"names", report.NameCollisions,
		)
	}
	if report.InvalidStructures > 0 {
		logging.Warn("Drugs with unparsable structures",
			"count", report.InvalidStructures,
			"id_list", report.InvalidStructureIDs,
		)
	}
	if report.DrugsWithoutStructure > 0 {
		logging.Info("Drugs without structure", "count", report.DrugsWithoutStructure)
	}
	if report.CuratedUnresolved > 0 {
		logging.Warn("Curated rows with unknown drugs",
			"count", report.CuratedUnresolved,
			"names", report.CuratedUnresolvedList,
		)
	}
	if report.CuratedSelfPairs > 0 {
		logging.Debug("Curated self pairs skipped", "count", report.CuratedSelfPairs)
	}
}

func (s *Scheduler) sweepCache() {
	if removed := s.opts.Cache.Sweep(s.now()); removed > 0 {
		logging.Debug("Swept expired cache entries", "removed", removed)
	}
}

// checkStaleness warns when the last successful reload is over 25 hours old
func (s *Scheduler) checkStaleness() bool {
	lastUpdate := s.dataStore.GetLastUpdated()
	if s.now().Sub(lastUpdate) > staleAfter {
		logging.Warn("Data hasn't been updated in over 25 hours", "last_update", lastUpdate.Format(time.RFC3339))
		return true
	}
	return false
}
