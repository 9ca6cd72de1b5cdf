// Package data provides thread-safe data storage for the interaction engine.
// It includes the DataContainer struct with atomic operations for zero-downtime
// updates of the drug catalog and the curated interaction records.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// DataContainer holds all the data with atomic pointers for zero-downtime updates
type DataContainer struct {
	catalog         atomic.Value // *entities.Catalog
	curated         atomic.Value // map[entities.InteractionKey]entities.CuratedInteraction
	report          atomic.Value // *interfaces.DataQualityReport
	curatedVersion  atomic.Uint64
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a new DataContainer with empty data
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.catalog.Store(&entities.Catalog{})
	dc.curated.Store(make(map[entities.InteractionKey]entities.CuratedInteraction))
	dc.report.Store(&interfaces.DataQualityReport{})
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{}) // Initialize with zero value
	return dc
}

// Thread-safe getters with type check

// GetCatalog returns the current catalog snapshot
func (dc *DataContainer) GetCatalog() *entities.Catalog {
	if v := dc.catalog.Load(); v != nil {
		if catalog, ok := v.(*entities.Catalog); ok && catalog != nil {
			return catalog
		}
	}

	logging.Warn("Catalog is empty or invalid")
	return &entities.Catalog{}
}

// GetCurated returns the curated records keyed by canonical pair
func (dc *DataContainer) GetCurated() map[entities.InteractionKey]entities.CuratedInteraction {
	if v := dc.curated.Load(); v != nil {
		if curated, ok := v.(map[entities.InteractionKey]entities.CuratedInteraction); ok {
			return curated
		}
	}

	logging.Warn("Curated interactions map is empty or invalid")
	return make(map[entities.InteractionKey]entities.CuratedInteraction)
}

// GetCuratedVersion returns a counter bumped by every data update
func (dc *DataContainer) GetCuratedVersion() uint64 {
	return dc.curatedVersion.Load()
}

// GetDataQualityReport returns the report of the last update
func (dc *DataContainer) GetDataQualityReport() *interfaces.DataQualityReport {
	if v := dc.report.Load(); v != nil {
		if report, ok := v.(*interfaces.DataQualityReport); ok && report != nil {
			return report
		}
	}

	logging.Warn("Data quality report is empty or invalid")
	return &interfaces.DataQualityReport{}
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a data update is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateData atomically replaces the catalog and curated records. Nil
// arguments are stored as empty values. The curated version is bumped after
// the swap so readers never pair a new version with old records.
func (dc *DataContainer) UpdateData(catalog *entities.Catalog,
	curated map[entities.InteractionKey]entities.CuratedInteraction,
	report *interfaces.DataQualityReport) {

	if catalog == nil {
		catalog = &entities.Catalog{}
	}
	if curated == nil {
		curated = make(map[entities.InteractionKey]entities.CuratedInteraction)
	}
	if report == nil {
		report = &interfaces.DataQualityReport{}
	}

	// Atomic swap (zero downtime replacement)
	dc.catalog.Store(catalog)
	dc.curated.Store(curated)
	dc.report.Store(report)
	dc.curatedVersion.Add(1)
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a data update operation
// Returns true if update can proceed, false if another update is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a data update operation
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
