// Package interfaces defines core abstractions for the interaction engine
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/ddi-engine/entities"
)

// DataQualityReport provides a summary of data quality issues found while
// loading the catalog and the curated dataset
type DataQualityReport struct {
	DuplicateDrugIDs      []string
	NameCollisions        []string // normalized names claimed by more than one drug
	DrugsWithoutStructure int
	InvalidStructures     int
	InvalidStructureIDs   []string // first 10
	CuratedRows           int
	CuratedPairs          int
	CuratedSelfPairs      int
	CuratedUnresolved     int
	CuratedUnresolvedList []string // first 10
}

// CuratedBuildStats counts what happened to raw curated rows during aggregation
type CuratedBuildStats struct {
	Rows           int
	Pairs          int
	SelfPairs      int
	Unresolved     int
	UnresolvedList []string
}

// DataStore defines the contract for data storage operations.
// It provides thread-safe access to the drug catalog and the curated
// interactions with atomic operations for zero-downtime updates.
type DataStore interface {
	// Data retrieval methods
	GetCatalog() *entities.Catalog
	GetCurated() map[entities.InteractionKey]entities.CuratedInteraction
	GetCuratedVersion() uint64
	GetDataQualityReport() *DataQualityReport
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	// Data update methods
	UpdateData(catalog *entities.Catalog, curated map[entities.InteractionKey]entities.CuratedInteraction,
		report *DataQualityReport)
	BeginUpdate() bool
	EndUpdate()
}

// CatalogSource is the read side of the catalog needed by the resolver
type CatalogSource interface {
	GetCatalog() *entities.Catalog
}

// Parser defines the contract for reading catalog and curated data files.
type Parser interface {
	// ParseCatalog reads all drug entries
	ParseCatalog() ([]entities.Drug, error)

	// ParseCurated reads the raw curated interaction rows
	ParseCurated() ([]entities.CuratedRow, error)
}

// FingerprintExtractor turns a structural notation into a fingerprint
type FingerprintExtractor interface {
	Extract(structure string) (*entities.Fingerprint, error)
	Dim() int
	Size() int
}

// DrugResolver maps free-text names to canonical catalog drugs
type DrugResolver interface {
	Resolve(name string) (entities.Drug, error)
	Search(query string, limit int) []entities.SearchResult
}

// CuratedStore is the authoritative lookup of known interacting pairs.
// Lookup returns nil, nil when the pair has no curated record.
type CuratedStore interface {
	Lookup(ctx context.Context, idA, idB string) (*entities.CuratedInteraction, error)
	// Version changes whenever the curated data changes
	Version() uint64
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Name() string
}

// Classifier is the neural interaction model
type Classifier interface {
	Predict(ctx context.Context, in entities.PairInput) (entities.Prediction, error)
	// PredictBatch returns one outcome per input, in input order
	PredictBatch(ctx context.Context, inputs []entities.PairInput) ([]entities.PredictionOutcome, error)
	Labels() []entities.Label
	Threshold() float64
	DefaultTopK() int
	MaxBatchPairs() int
	Ready() bool
}

// Predictor is the single-pair prediction entry point used by the cache
type Predictor interface {
	Predict(ctx context.Context, in entities.PairInput) (entities.Prediction, error)
}

// CacheStats is a point-in-time view of the interaction cache
type CacheStats struct {
	Entries        int     `json:"entries"`
	Curated        int     `json:"curated"`
	Predicted      int     `json:"predicted"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Shared         int64   `json:"shared"`
	Computations   int64   `json:"computations"`
	Evictions      int64   `json:"evictions"`
	HitRatio       float64 `json:"hit_ratio"`
	Capacity       int     `json:"capacity"`
	Backend        string  `json:"backend"`
	BackendHealthy bool    `json:"backend_healthy"`
}

// InteractionCache memoizes per-pair resolution results
type InteractionCache interface {
	GetOrCompute(ctx context.Context, pair entities.DrugPair) (entities.InteractionRecord, error)
	Stats() CacheStats
	Sweep(now time.Time) int
	Purge()
	Close() error
}

// RemoteCache is the optional shared tier for predicted records.
// Get returns nil, nil on a miss.
type RemoteCache interface {
	Get(ctx context.Context, key entities.InteractionKey) (*entities.InteractionRecord, error)
	Put(ctx context.Context, record entities.InteractionRecord, ttl time.Duration) error
	Ping(ctx context.Context) error
	Name() string
}

// HistoryProvider loads the patient context attached to a check
type HistoryProvider interface {
	PatientHistory(ctx context.Context, patientID string) (*entities.PatientHistory, error)
}

// ReportPublisher hands finished reports to downstream collaborators
type ReportPublisher interface {
	Publish(ctx context.Context, report *entities.InteractionReport) error
	Close() error
}

// Checker is the combination resolver consumed by the HTTP layer
type Checker interface {
	Check(ctx context.Context, req entities.CheckRequest) (*entities.InteractionReport, error)
	CheckBatch(ctx context.Context, reqs []entities.CheckRequest) ([]entities.CheckOutcome, error)
	Interaction(ctx context.Context, name1, name2 string) (entities.InteractionRecord, error)
	// MaxBatchChecks is the largest list CheckBatch accepts
	MaxBatchChecks() int
}

// Scheduler defines the contract for job scheduling and health monitoring.
// It manages automated data updates, cache sweeps and staleness checks.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HTTPHandler defines the contract for HTTP request handlers.
// It provides a consistent interface for all API endpoints.
type HTTPHandler interface {
	Predict(w http.ResponseWriter, r *http.Request)
	PredictBatch(w http.ResponseWriter, r *http.Request)
	PredictBatchByName(w http.ResponseWriter, r *http.Request)
	Check(w http.ResponseWriter, r *http.Request)
	CheckBatch(w http.ResponseWriter, r *http.Request)
	GetInteraction(w http.ResponseWriter, r *http.Request)
	SearchDrugs(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
// It provides system health monitoring and reporting.
type HealthChecker interface {
	// HealthCheck returns current system health status
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled data reload
	CalculateNextUpdate() time.Time
}

// DataValidator defines the contract for data validation operations.
// It ensures data integrity and safe user input.
type DataValidator interface {
	// ValidateDrug checks if a catalog entry is usable
	ValidateDrug(d *entities.Drug) error

	// ReportDataQuality generates a data quality report over the raw catalog
	// entries, the indexed catalog and the curated build statistics
	ReportDataQuality(entries []entities.Drug, catalog *entities.Catalog, stats CuratedBuildStats,
		extractor FingerprintExtractor) *DataQualityReport

	// ValidateInput validates free-text search input
	ValidateInput(input string) error

	// ValidateMedications validates the medication list of a check
	ValidateMedications(names []string, maxMedications int) error

	// ValidateStructure performs cheap syntactic checks on a structural notation
	ValidateStructure(structure string) error

	// ValidateTopK normalizes a requested top_k against the label space
	ValidateTopK(topK, labelCount int) (int, error)
}
