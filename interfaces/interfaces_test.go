package interfaces

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/giygas/ddi-engine/entities"
)

// MockDataStore implements DataStore interface for testing
type MockDataStore struct {
	catalog     *entities.Catalog
	curated     map[entities.InteractionKey]entities.CuratedInteraction
	report      *DataQualityReport
	version     uint64
	lastUpdated time.Time
	updating    bool
}

func (m *MockDataStore) GetCatalog() *entities.Catalog {
	if m.catalog == nil {
		return &entities.Catalog{}
	}
	return m.catalog
}

func (m *MockDataStore) GetCurated() map[entities.InteractionKey]entities.CuratedInteraction {
	return m.curated
}

func (m *MockDataStore) GetCuratedVersion() uint64 {
	return m.version
}

func (m *MockDataStore) GetDataQualityReport() *DataQualityReport {
	return m.report
}

func (m *MockDataStore) GetLastUpdated() time.Time {
	return m.lastUpdated
}

func (m *MockDataStore) IsUpdating() bool {
	return m.updating
}

func (m *MockDataStore) GetServerStartTime() time.Time {
	return time.Time{}
}

func (m *MockDataStore) UpdateData(catalog *entities.Catalog,
	curated map[entities.InteractionKey]entities.CuratedInteraction, report *DataQualityReport) {
	m.catalog = catalog
	m.curated = curated
	m.report = report
	m.version++
	m.lastUpdated = time.Now()
}

func (m *MockDataStore) BeginUpdate() bool {
	if m.updating {
		return false
	}
	m.updating = true
	return true
}

func (m *MockDataStore) EndUpdate() {
	m.updating = false
}

// MockParser implements Parser interface for testing
type MockParser struct {
	shouldFail bool
}

func (m *MockParser) ParseCatalog() ([]entities.Drug, error) {
	if m.shouldFail {
		return nil, &mockError{"catalog unreadable"}
	}
	return []entities.Drug{
		{ID: "DB00682", CanonicalName: "Warfarin"},
		{ID: "DB01050", CanonicalName: "Ibuprofen"},
	}, nil
}

func (m *MockParser) ParseCurated() ([]entities.CuratedRow, error) {
	if m.shouldFail {
		return nil, &mockError{"curated unreadable"}
	}
	return []entities.CuratedRow{{DrugA: "Warfarin", DrugB: "Ibuprofen", Severity: entities.SeverityMajor}}, nil
}

// MockScheduler implements Scheduler interface for testing
type MockScheduler struct {
	started bool
	stopped bool
}

func (m *MockScheduler) Start() error {
	m.started = true
	return nil
}

func (m *MockScheduler) Stop() {
	m.stopped = true
}

// MockHTTPHandler implements HTTPHandler interface for testing
type MockHTTPHandler struct {
	responseCode int
	responseBody string
}

func (m *MockHTTPHandler) respond(w http.ResponseWriter) {
	w.WriteHeader(m.responseCode)
	_, _ = w.Write([]byte(m.responseBody))
}

func (m *MockHTTPHandler) Predict(w http.ResponseWriter, r *http.Request)            { m.respond(w) }
func (m *MockHTTPHandler) PredictBatch(w http.ResponseWriter, r *http.Request)       { m.respond(w) }
func (m *MockHTTPHandler) PredictBatchByName(w http.ResponseWriter, r *http.Request) { m.respond(w) }
func (m *MockHTTPHandler) Check(w http.ResponseWriter, r *http.Request)              { m.respond(w) }
func (m *MockHTTPHandler) CheckBatch(w http.ResponseWriter, r *http.Request)         { m.respond(w) }
func (m *MockHTTPHandler) GetInteraction(w http.ResponseWriter, r *http.Request)     { m.respond(w) }
func (m *MockHTTPHandler) SearchDrugs(w http.ResponseWriter, r *http.Request)        { m.respond(w) }
func (m *MockHTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request)        { m.respond(w) }

// MockHealthChecker implements HealthChecker interface for testing
type MockHealthChecker struct {
	status  string
	details map[string]any
}

func (m *MockHealthChecker) HealthCheck(context.Context) (string, map[string]any, int) {
	return m.status, m.details, http.StatusOK
}

func (m *MockHealthChecker) CalculateNextUpdate() time.Time {
	return time.Now().Add(6 * time.Hour)
}

// MockCuratedStore implements CuratedStore interface for testing
type MockCuratedStore struct {
	records map[entities.InteractionKey]entities.CuratedInteraction
}

func (m *MockCuratedStore) Lookup(_ context.Context, idA, idB string) (*entities.CuratedInteraction, error) {
	rec, ok := m.records[entities.NewInteractionKey(idA, idB)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockCuratedStore) Version() uint64                    { return 1 }
func (m *MockCuratedStore) Count(context.Context) (int, error) { return len(m.records), nil }
func (m *MockCuratedStore) Ping(context.Context) error         { return nil }
func (m *MockCuratedStore) Name() string                       { return "mock" }

// MockRemoteCache implements RemoteCache interface for testing
type MockRemoteCache struct {
	records map[entities.InteractionKey]entities.InteractionRecord
}

func (m *MockRemoteCache) Get(_ context.Context, key entities.InteractionKey) (*entities.InteractionRecord, error) {
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockRemoteCache) Put(_ context.Context, record entities.InteractionRecord, _ time.Duration) error {
	if m.records == nil {
		m.records = make(map[entities.InteractionKey]entities.InteractionRecord)
	}
	m.records[record.Key] = record
	return nil
}

func (m *MockRemoteCache) Ping(context.Context) error { return nil }
func (m *MockRemoteCache) Name() string               { return "mock" }

type mockError struct {
	msg string
}

func (e *mockError) Error() string {
	return e.msg
}

func TestDataStoreInterface(t *testing.T) {
	store := &MockDataStore{}
	if !store.BeginUpdate() {
		t.Fatal("BeginUpdate should succeed on an idle store")
	}
	if store.BeginUpdate() {
		t.Error("BeginUpdate should refuse a second concurrent update")
	}

	catalog := &entities.Catalog{Drugs: []entities.Drug{{ID: "DB00682", CanonicalName: "Warfarin"}}}
	store.UpdateData(catalog, nil, &DataQualityReport{})
	store.EndUpdate()

	if store.GetCatalog().Len() != 1 {
		t.Errorf("Expected 1 drug, got %d", store.GetCatalog().Len())
	}
	if store.GetCuratedVersion() != 1 {
		t.Errorf("Expected version 1, got %d", store.GetCuratedVersion())
	}
}

func TestParserInterface(t *testing.T) {
	parser := &MockParser{}
	entries, err := parser.ParseCatalog()
	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 drugs, got %d", len(entries))
	}
	rows, err := parser.ParseCurated()
	if err != nil || len(rows) != 1 {
		t.Errorf("Expected 1 curated row, got %d (%v)", len(rows), err)
	}

	parser = &MockParser{shouldFail: true}
	if _, err := parser.ParseCatalog(); err == nil {
		t.Error("Expected error but got none")
	}
}

func TestSchedulerInterface(t *testing.T) {
	scheduler := &MockScheduler{}

	if err := scheduler.Start(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !scheduler.started {
		t.Error("Scheduler should be started")
	}

	scheduler.Stop()
	if !scheduler.stopped {
		t.Error("Scheduler should be stopped")
	}
}

func TestHTTPHandlerInterface(t *testing.T) {
	var handler HTTPHandler = &MockHTTPHandler{
		responseCode: http.StatusOK,
		responseBody: "test response",
	}

	req := httptest.NewRequest("POST", "/check", nil)
	w := httptest.NewRecorder()
	handler.Check(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Body.String() != "test response" {
		t.Errorf("Expected body 'test response', got '%s'", w.Body.String())
	}
}

func TestHealthCheckerInterface(t *testing.T) {
	checker := &MockHealthChecker{
		status:  "healthy",
		details: map[string]any{"uptime_seconds": 3600},
	}

	status, details, code := checker.HealthCheck(context.Background())
	if status != "healthy" || code != http.StatusOK {
		t.Errorf("Expected healthy/200, got %s/%d", status, code)
	}
	if details["uptime_seconds"] != 3600 {
		t.Errorf("Expected uptime 3600, got %v", details["uptime_seconds"])
	}
	if !checker.CalculateNextUpdate().After(time.Now()) {
		t.Error("Next update should be in the future")
	}
}

func TestCuratedStoreInterface(t *testing.T) {
	key := entities.NewInteractionKey("DB00682", "DB01050")
	var store CuratedStore = &MockCuratedStore{records: map[entities.InteractionKey]entities.CuratedInteraction{
		key: {DrugIDs: [2]string{"DB00682", "DB01050"}, Severity: entities.SeverityMajor},
	}}

	rec, err := store.Lookup(context.Background(), "DB01050", "DB00682")
	if err != nil || rec == nil {
		t.Fatalf("Expected a record for the reversed pair, got %v (%v)", rec, err)
	}
	rec, err = store.Lookup(context.Background(), "DB00682", "DB00722")
	if err != nil || rec != nil {
		t.Errorf("Expected nil, nil for an unknown pair, got %v (%v)", rec, err)
	}
}

func TestRemoteCacheInterface(t *testing.T) {
	var remote RemoteCache = &MockRemoteCache{}
	key := entities.NewInteractionKey("DB00682", "DB01050")

	if rec, err := remote.Get(context.Background(), key); rec != nil || err != nil {
		t.Errorf("Expected a miss, got %v (%v)", rec, err)
	}
	if err := remote.Put(context.Background(), entities.InteractionRecord{Key: key, Source: entities.SourcePredicted}, time.Hour); err != nil {
		t.Fatal(err)
	}
	if rec, _ := remote.Get(context.Background(), key); rec == nil || rec.Source != entities.SourcePredicted {
		t.Errorf("Expected the stored record, got %v", rec)
	}
}

// Service shows how the interfaces compose under dependency injection
type Service struct {
	dataStore DataStore
	parser    Parser
	scheduler Scheduler
}

func NewService(dataStore DataStore, parser Parser, scheduler Scheduler) *Service {
	return &Service{
		dataStore: dataStore,
		parser:    parser,
		scheduler: scheduler,
	}
}

func (s *Service) DrugCount() int {
	return s.dataStore.GetCatalog().Len()
}

func TestServiceWithDependencyInjection(t *testing.T) {
	mockStore := &MockDataStore{
		catalog: &entities.Catalog{Drugs: []entities.Drug{{ID: "DB00682"}, {ID: "DB01050"}}},
	}
	service := NewService(mockStore, &MockParser{}, &MockScheduler{})

	if count := service.DrugCount(); count != 2 {
		t.Errorf("Expected 2 drugs, got %d", count)
	}
}

// Compile-time checks to ensure our implementations implement the interfaces
func TestCompileTimeChecks(t *testing.T) {
	var _ DataStore = (*MockDataStore)(nil)
	var _ Parser = (*MockParser)(nil)
	var _ Scheduler = (*MockScheduler)(nil)
	var _ HTTPHandler = (*MockHTTPHandler)(nil)
	var _ HealthChecker = (*MockHealthChecker)(nil)
	var _ CuratedStore = (*MockCuratedStore)(nil)
	var _ RemoteCache = (*MockRemoteCache)(nil)
}
