package data

import (
	"sync"
	"testing"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
)

func testCatalog(ids ...string) *entities.Catalog {
	cat := &entities.Catalog{
		ByID:    make(map[string]int),
		ByName:  make(map[string]int),
		ByAlias: make(map[string]int),
	}
	for i, id := range ids {
		cat.Drugs = append(cat.Drugs, entities.Drug{ID: id, CanonicalName: "Drug " + id})
		cat.ByID[id] = i
	}
	return cat
}

func testCurated(idA, idB string) map[entities.InteractionKey]entities.CuratedInteraction {
	return map[entities.InteractionKey]entities.CuratedInteraction{
		entities.NewInteractionKey(idA, idB): {
			DrugIDs:  [2]string{idA, idB},
			Severity: entities.SeverityMajor,
		},
	}
}

func TestNewDataContainer(t *testing.T) {
	logging.InitLogger("")

	dc := NewDataContainer()

	if dc == nil {
		t.Fatal("NewDataContainer returned nil")
	}

	// Test initial state
	if dc.IsUpdating() {
		t.Error("NewDataContainer should not be updating")
	}

	if !dc.GetLastUpdated().IsZero() {
		t.Error("NewDataContainer should have zero lastUpdated time")
	}

	if dc.GetCatalog().Len() != 0 {
		t.Error("NewDataContainer should have an empty catalog")
	}

	if len(dc.GetCurated()) != 0 {
		t.Error("NewDataContainer should have no curated records")
	}

	if dc.GetCuratedVersion() != 0 {
		t.Error("NewDataContainer should start at curated version 0")
	}
}

func TestUpdateData(t *testing.T) {
	logging.InitLogger("")

	dc := NewDataContainer()
	report := &interfaces.DataQualityReport{CuratedRows: 3, CuratedPairs: 1}

	dc.UpdateData(testCatalog("A", "B"), testCurated("A", "B"), report)

	if dc.GetCatalog().Len() != 2 {
		t.Errorf("Expected 2 drugs, got %d", dc.GetCatalog().Len())
	}

	if _, ok := dc.GetCurated()[entities.NewInteractionKey("B", "A")]; !ok {
		t.Error("Expected curated record to be found by canonical key")
	}

	if dc.GetDataQualityReport().CuratedRows != 3 {
		t.Error("Expected report to be stored")
	}

	if dc.GetCuratedVersion() != 1 {
		t.Errorf("Expected curated version 1, got %d", dc.GetCuratedVersion())
	}

	if dc.GetLastUpdated().IsZero() {
		t.Error("Expected lastUpdated to be set")
	}

	dc.UpdateData(testCatalog("A"), nil, nil)
	if dc.GetCuratedVersion() != 2 {
		t.Errorf("Expected curated version 2, got %d", dc.GetCuratedVersion())
	}
}

func TestBeginUpdateEndUpdate(t *testing.T) {
	logging.InitLogger("")

	dc := NewDataContainer()

	// Test BeginUpdate
	if !dc.BeginUpdate() {
		t.Error("BeginUpdate should return true first time")
	}

	if !dc.IsUpdating() {
		t.Error("Should be updating after BeginUpdate")
	}

	// Test that second BeginUpdate fails
	if dc.BeginUpdate() {
		t.Error("BeginUpdate should return false when already updating")
	}

	dc.EndUpdate()

	if dc.IsUpdating() {
		t.Error("Should not be updating after EndUpdate")
	}

	// Test that BeginUpdate works again after EndUpdate
	if !dc.BeginUpdate() {
		t.Error("BeginUpdate should return true after EndUpdate")
	}

	dc.EndUpdate()
}

func TestConcurrentAccess(t *testing.T) {
	logging.InitLogger("")

	dc := NewDataContainer()
	dc.UpdateData(testCatalog("A", "B"), testCurated("A", "B"), nil)

	var wg sync.WaitGroup
	numReaders := 10
	numWriters := 3

	// Start concurrent readers
	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				catalog := dc.GetCatalog()
				curated := dc.GetCurated()
				lastUpdated := dc.GetLastUpdated()

				// Basic sanity checks
				if catalog.Len() == 0 {
					t.Errorf("Reader %d: Expected non-empty catalog", id)
				}
				if len(curated) == 0 {
					t.Errorf("Reader %d: Expected curated records", id)
				}
				if lastUpdated.IsZero() {
					t.Errorf("Reader %d: Expected non-zero lastUpdated", id)
				}

				time.Sleep(time.Microsecond)
			}
		}(i)
	}

	// Start concurrent writers
	for i := 0; i < numWriters; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if dc.BeginUpdate() {
					time.Sleep(time.Microsecond * 100)
					dc.UpdateData(testCatalog("A", "B", "C"), testCurated("A", "C"), nil)
					dc.EndUpdate()
				}

				time.Sleep(time.Microsecond * 200)
			}
		}(i)
	}

	wg.Wait()

	if dc.GetCatalog().Len() == 0 {
		t.Error("Final catalog should not be empty")
	}
}

func TestAtomicSwapZeroDowntime(t *testing.T) {
	logging.InitLogger("")

	dc := NewDataContainer()
	dc.UpdateData(testCatalog("initial"), nil, nil)

	// Start a reader that continuously reads data
	stop := make(chan bool)
	readCount := 0
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if dc.GetCatalog().Len() > 0 {
					readCount++
				}
				time.Sleep(time.Microsecond)
			}
		}
	}()

	// Let the reader run for a bit
	time.Sleep(time.Microsecond * 100)

	// Update data multiple times rapidly
	for i := 0; i < 100; i++ {
		dc.UpdateData(testCatalog("update"), nil, nil)
	}

	// Stop the reader
	stop <- true
	wg.Wait()

	if readCount == 0 {
		t.Error("Reader should have read some data during updates")
	}

	if dc.GetCuratedVersion() != 101 {
		t.Errorf("Expected 101 version bumps, got %d", dc.GetCuratedVersion())
	}
}

func BenchmarkGetCatalog(b *testing.B) {
	logging.InitLogger("")
	dc := NewDataContainer()
	dc.UpdateData(testCatalog("A", "B", "C"), nil, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = dc.GetCatalog()
	}
}
