// Package health reports the readiness of the classifier, the catalog, the
// curated store and the cache tiers.
package health

import (
	"context"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/giygas/ddi-engine/config"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	// StaleAfter marks loaded data as degraded
	StaleAfter = 48 * time.Hour
)

// Dependencies are the components inspected by the health check. Remote
// may be nil when no shared cache tier is configured.
type Dependencies struct {
	Data       interfaces.DataStore
	Classifier interfaces.Classifier
	Curated    interfaces.CuratedStore
	Cache      interfaces.InteractionCache
	Remote     interfaces.RemoteCache
}

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	deps    Dependencies
	reloads []time.Duration
	now     func() time.Time
}

// NewHealthChecker creates a health checker. reloadAt uses the RELOAD_AT
// format; an invalid value only disables next_update.
func NewHealthChecker(deps Dependencies, reloadAt string) *HealthCheckerImpl {
	reloads, err := config.ParseReloadTimes(reloadAt)
	if err != nil {
		logging.Warn("Health checker cannot compute the next reload", "reload_at", reloadAt, "error", err)
	}
	return &HealthCheckerImpl{deps: deps, reloads: reloads, now: time.Now}
}

// HealthCheck returns the overall status, the details served by /health and
// the HTTP status to answer with
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int) {
	now := h.now()
	catalog := h.deps.Data.GetCatalog()
	lastUpdate := h.deps.Data.GetLastUpdated()
	dataAge := now.Sub(lastUpdate)

	classifierReady := h.deps.Classifier != nil && h.deps.Classifier.Ready()
	curatedOK, curatedCount := h.checkCurated(ctx)
	remoteOK, remoteName := h.checkRemote(ctx)

	switch {
	case !classifierReady || catalog.Len() == 0:
		status, httpStatus = StatusUnhealthy, http.StatusServiceUnavailable
	case !curatedOK || !remoteOK || dataAge > StaleAfter:
		status, httpStatus = StatusDegraded, http.StatusOK
	default:
		status, httpStatus = StatusHealthy, http.StatusOK
	}

	classifier := map[string]any{"ready": classifierReady}
	if h.deps.Classifier != nil {
		classifier["labels"] = len(h.deps.Classifier.Labels())
		classifier["threshold"] = h.deps.Classifier.Threshold()
		classifier["max_batch_pairs"] = h.deps.Classifier.MaxBatchPairs()
	}

	curated := map[string]any{"healthy": curatedOK}
	if h.deps.Curated != nil {
		curated["store"] = h.deps.Curated.Name()
		curated["version"] = h.deps.Curated.Version()
		curated["pairs"] = curatedCount
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details = map[string]any{
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"uptime_seconds": math.Round(now.Sub(h.deps.Data.GetServerStartTime()).Seconds()),
		"data": map[string]any{
			"drugs":       catalog.Len(),
			"is_updating": h.deps.Data.IsUpdating(),
			"next_update": h.CalculateNextUpdate().Format(time.RFC3339),
		},
		"classifier": classifier,
		"curated":    curated,
		"backend":    map[string]any{"name": remoteName, "healthy": remoteOK},
		"system": map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"alloc_mb":   int(m.Alloc / 1024 / 1024),
		},
	}
	if h.deps.Cache != nil {
		details["cache"] = h.deps.Cache.Stats()
	}

	return status, details, httpStatus
}

func (h *HealthCheckerImpl) checkCurated(ctx context.Context) (bool, int) {
	if h.deps.Curated == nil {
		return true, 0
	}
	if err := h.deps.Curated.Ping(ctx); err != nil {
		logging.Warn("Curated store unreachable", "store", h.deps.Curated.Name(), "error", err)
		return false, 0
	}
	n, err := h.deps.Curated.Count(ctx)
	if err != nil {
		logging.Warn("Failed to count curated pairs", "store", h.deps.Curated.Name(), "error", err)
		return false, 0
	}
	return true, n
}

func (h *HealthCheckerImpl) checkRemote(ctx context.Context) (bool, string) {
	if h.deps.Remote == nil {
		return true, "none"
	}
	if err := h.deps.Remote.Ping(ctx); err != nil {
		logging.Warn("Shared cache tier unreachable", "backend", h.deps.Remote.Name(), "error", err)
		return false, h.deps.Remote.Name()
	}
	return true, h.deps.Remote.Name()
}

// CalculateNextUpdate returns the next scheduled data reload
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	return config.NextReload(h.now(), h.reloads)
}
