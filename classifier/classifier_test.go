package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/fingerprint"
	"github.com/giygas/ddi-engine/logging"
)

const (
	testRadius = 1
	testBits   = 8
	testDim    = testBits + entities.DescriptorCount
)

// testWeights returns a deterministic, asymmetric out x in matrix
func testWeights(out, in, seed int) [][]float32 {
	w := make([][]float32, out)
	for j := range w {
		w[j] = make([]float32, in)
		for k := range w[j] {
			w[j][k] = float32(math.Sin(float64(seed+j*31+k*7)) * 0.05)
		}
	}
	return w
}

// testModel reads the molecular weight of each operand through its own
// hidden unit and weighs the two units differently, so it is order sensitive.
func testModel(t *testing.T, labels int) *Model {
	t.Helper()
	hidden := testWeights(6, 2*testDim, 1)
	for k := range hidden[0] {
		hidden[0][k], hidden[1][k] = 0, 0
	}
	hidden[0][testBits] = 0.01
	hidden[1][testDim+testBits] = 0.01
	output := testWeights(labels, 6, 2)
	output[0][0], output[0][1] = 1, -1

	m, err := NewModel(2*testDim,
		[][][]float32{hidden, output},
		[][]float32{make([]float32, 6), make([]float32, labels)},
	)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

// biasModel outputs sigmoid(logits) whatever the input
func biasModel(t *testing.T, logits []float32) *Model {
	t.Helper()
	weights := make([][]float32, len(logits))
	for i := range weights {
		weights[i] = make([]float32, 2*testDim)
	}
	m, err := NewModel(2*testDim, [][][]float32{weights}, [][]float32{logits})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func testLabels(names ...string) []entities.Label {
	labels := make([]entities.Label, len(names))
	for i, n := range names {
		labels[i] = entities.Label{Index: i, Name: n, Weight: categoryWeight(n)}
	}
	return labels
}

func operand(smiles string) entities.Operand {
	return entities.Operand{Key: smiles, Structure: smiles}
}

func TestNewModelValidation(t *testing.T) {
	testCases := []struct {
		name     string
		inputDim int
		weights  [][][]float32
		biases   [][]float32
	}{
		{"no layers", 2, nil, nil},
		{"bias count", 2, [][][]float32{{{1, 1}}}, nil},
		{"bias length", 2, [][][]float32{{{1, 1}}}, [][]float32{{0, 0}}},
		{"row length", 2, [][][]float32{{{1, 1, 1}}}, [][]float32{{0}}},
		{"second layer width", 2, [][][]float32{{{1, 1}, {1, 1}}, {{1}}}, [][]float32{{0, 0}, {0}}},
		{"zero input", 0, [][][]float32{{{}}}, [][]float32{{0}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewModel(tc.inputDim, tc.weights, tc.biases); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestForward(t *testing.T) {
	// relu(x0 - x1), relu(x1 - x0) -> sigmoid(h0 + h1)
	m, err := NewModel(2,
		[][][]float32{{{1, -1}, {-1, 1}}, {{1, 1}}},
		[][]float32{{0, 0}, {0}},
	)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	out, err := m.Forward([][]float32{{2, 2}, {3, 1}})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if out[0][0] != 0.5 {
		t.Errorf("Expected sigmoid(0) = 0.5, got %v", out[0][0])
	}
	if want := float32(1 / (1 + math.Exp(-2))); math.Abs(float64(out[1][0]-want)) > 1e-6 {
		t.Errorf("Expected %v, got %v", want, out[1][0])
	}

	if _, err := m.Forward([][]float32{{1}}); err == nil {
		t.Error("Expected error for short input")
	}
}

func TestRankTopKAndTies(t *testing.T) {
	logging.InitLogger("")

	// probabilities 0.5, 0.88, 0.88, 0.12
	model := biasModel(t, []float32{0, 2, 2, -2})
	c, err := New(model, testLabels("Nausea", "Bleeding", "Rash", "Cough"),
		fingerprint.NewExtractor(testRadius, testBits), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pred, err := c.Predict(context.Background(), entities.PairInput{A: operand("CCO"), B: operand("CC#N"), TopK: 2})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if len(pred.Labels) != 2 {
		t.Fatalf("Expected top 2 labels, got %d", len(pred.Labels))
	}
	if pred.Labels[0].Index != 1 || pred.Labels[1].Index != 2 {
		t.Errorf("Expected tie broken by lower index, got %d then %d", pred.Labels[0].Index, pred.Labels[1].Index)
	}
	if len(pred.Significant) != 3 {
		t.Errorf("Expected 3 labels at or above 0.5, got %d", len(pred.Significant))
	}
	if pred.Significant[2].Name != "Nausea" {
		t.Errorf("Expected Nausea at exactly the threshold to be significant, got %s", pred.Significant[2].Name)
	}
	if pred.Threshold != DefaultThreshold {
		t.Errorf("Expected default threshold, got %v", pred.Threshold)
	}
	// Bleeding: 0.88 x 1.0
	if pred.Severity != entities.SeverityMajor {
		t.Errorf("Expected major severity, got %v", pred.Severity)
	}

	pred, _ = c.Predict(context.Background(), entities.PairInput{A: operand("CCO"), B: operand("CC#N")})
	if len(pred.Labels) != 4 {
		t.Errorf("Expected default top_k capped at label count, got %d", len(pred.Labels))
	}
}

func TestPredictIsSymmetric(t *testing.T) {
	logging.InitLogger("")

	extractor := fingerprint.NewExtractor(testRadius, testBits)
	model := testModel(t, 5)

	a, err := extractor.Extract("CC(=O)Oc1ccccc1C(=O)O")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	b, err := extractor.Extract("CCO")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	ab, _ := model.Forward([][]float32{b.AppendTo(a.AppendTo(nil))})
	ba, _ := model.Forward([][]float32{a.AppendTo(b.AppendTo(nil))})
	if reflect.DeepEqual(ab, ba) {
		t.Fatal("Test model should be order sensitive")
	}

	c, err := New(model, testLabels("a", "b", "c", "d", "e"), extractor, Config{BatchWindow: 2 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)

	in := entities.PairInput{A: operand("CC(=O)Oc1ccccc1C(=O)O"), B: operand("CCO"), TopK: 5}
	swapped := entities.PairInput{A: in.B, B: in.A, TopK: 5}

	p1, err := c.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	p2, err := c.Predict(context.Background(), swapped)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Errorf("Predict(A,B) != Predict(B,A):\n%+v\n%+v", p1, p2)
	}

	outcomes, err := c.PredictBatch(context.Background(), []entities.PairInput{in, swapped})
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	if !reflect.DeepEqual(outcomes[0].Prediction, p1) || !reflect.DeepEqual(outcomes[1].Prediction, p1) {
		t.Error("Batch predictions should match single predictions in both orders")
	}
}

func TestPredictBatchPartialFailure(t *testing.T) {
	logging.InitLogger("")

	c, err := New(testModel(t, 3), testLabels("a", "b", "c"), fingerprint.NewExtractor(testRadius, testBits), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	inputs := []entities.PairInput{
		{A: operand("CCO"), B: operand("CC#N")},
		{A: operand("CCO"), B: operand("C1CC")},
		{A: operand("c1ccccc1"), B: operand("CC(=O)O")},
	}

	outcomes, err := c.PredictBatch(context.Background(), inputs)
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}

	var invalid *entities.InvalidStructureError
	if !errors.As(outcomes[1].Err, &invalid) {
		t.Errorf("Expected InvalidStructureError for pair 2, got %v", outcomes[1].Err)
	}
	for _, i := range []int{0, 2} {
		if outcomes[i].Err != nil {
			t.Errorf("Pair %d failed: %v", i+1, outcomes[i].Err)
		}
		if len(outcomes[i].Prediction.Labels) != 3 {
			t.Errorf("Pair %d: expected 3 labels, got %d", i+1, len(outcomes[i].Prediction.Labels))
		}
	}
}

func TestPredictBatchTooLarge(t *testing.T) {
	c, err := New(testModel(t, 3), testLabels("a", "b", "c"), fingerprint.NewExtractor(testRadius, testBits),
		Config{MaxBatchPairs: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	inputs := make([]entities.PairInput, 3)
	_, err = c.PredictBatch(context.Background(), inputs)

	var tooLarge *entities.BatchSizeExceededError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("Expected BatchSizeExceededError, got %v", err)
	}
	if tooLarge.Requested != 3 || tooLarge.Max != 2 {
		t.Errorf("Unexpected error fields %+v", tooLarge)
	}
}

func TestFingerprintDimensionMismatch(t *testing.T) {
	c, err := New(testModel(t, 3), testLabels("a", "b", "c"), fingerprint.NewExtractor(testRadius, testBits), Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	short := &entities.Fingerprint{Bits: make([]float32, 4)}
	_, err = c.Predict(context.Background(), entities.PairInput{
		A: entities.Operand{Key: "x", Fingerprint: short},
		B: operand("CCO"),
	})

	var invalid *entities.InvalidStructureError
	if !errors.As(err, &invalid) {
		t.Errorf("Expected InvalidStructureError, got %v", err)
	}
}

func TestNewRejectsMismatchedModel(t *testing.T) {
	extractor := fingerprint.NewExtractor(testRadius, testBits)

	if _, err := New(testModel(t, 3), testLabels("a", "b"), extractor, Config{}); err == nil {
		t.Error("Expected error for label count mismatch")
	}
	if _, err := New(testModel(t, 3), testLabels("a", "b", "c"), fingerprint.NewExtractor(testRadius, 16), Config{}); err == nil {
		t.Error("Expected error for input dimension mismatch")
	}
}

func writeModelFile(t *testing.T, dir string, labels int, embedded []string) string {
	t.Helper()
	w1 := testWeights(4, 2*testDim, 3)
	w2 := testWeights(labels, 4, 4)
	mf := map[string]any{
		"input_dim": 2 * testDim,
		"layers": []map[string]any{
			{"weights": w1, "bias": make([]float32, 4)},
			{"weights": w2, "bias": make([]float32, labels)},
		},
	}
	if embedded != nil {
		mf["labels"] = embedded
	}
	raw, err := json.Marshal(mf)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}
	path := filepath.Join(dir, "model.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	logging.InitLogger("")

	dir := t.TempDir()
	extractor := fingerprint.NewExtractor(testRadius, testBits)

	t.Run("fallback labels", func(t *testing.T) {
		path := writeModelFile(t, dir, 45, nil)
		c, err := Load(path, "", extractor, Config{})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		labels := c.Labels()
		if labels[0].Name != "Nausea" || labels[37].Name != "Bleeding" {
			t.Errorf("Unexpected fallback names %q, %q", labels[0].Name, labels[37].Name)
		}
		if labels[44].Name != "Side Effect 45" {
			t.Errorf("Expected generated name, got %q", labels[44].Name)
		}
		if labels[37].Weight != 1.0 || labels[44].Weight != DefaultLabelWeight {
			t.Errorf("Unexpected weights %v, %v", labels[37].Weight, labels[44].Weight)
		}
		if !c.Ready() {
			t.Error("Loaded classifier should be ready")
		}
	})

	t.Run("embedded labels", func(t *testing.T) {
		path := writeModelFile(t, dir, 3, []string{"Bleeding", "Rash"})
		c, err := Load(path, "", extractor, Config{})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		got := []string{c.Labels()[0].Name, c.Labels()[1].Name, c.Labels()[2].Name}
		if !reflect.DeepEqual(got, []string{"Bleeding", "Rash", "Side Effect 3"}) {
			t.Errorf("Unexpected labels %v", got)
		}
	})

	t.Run("labels file", func(t *testing.T) {
		path := writeModelFile(t, dir, 2, []string{"ignored", "ignored"})
		labelsPath := filepath.Join(dir, "labels.json")
		if err := os.WriteFile(labelsPath, []byte(`["Hypotension", {"name": "Pruritus", "weight": 0.3}]`), 0o644); err != nil {
			t.Fatal(err)
		}
		c, err := Load(path, labelsPath, extractor, Config{})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if c.Labels()[0].Name != "Hypotension" || c.Labels()[0].Weight != 0.8 {
			t.Errorf("Unexpected first label %+v", c.Labels()[0])
		}
		if c.Labels()[1].Name != "Pruritus" || c.Labels()[1].Weight != 0.3 {
			t.Errorf("Unexpected second label %+v", c.Labels()[1])
		}
	})

	t.Run("text labels file", func(t *testing.T) {
		path := writeModelFile(t, dir, 2, nil)
		labelsPath := filepath.Join(dir, "labels.txt")
		if err := os.WriteFile(labelsPath, []byte("# names\nHeadache\r\n\nTremor\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		c, err := Load(path, labelsPath, extractor, Config{})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if c.Labels()[0].Name != "Headache" || c.Labels()[1].Name != "Tremor" {
			t.Errorf("Unexpected labels %+v", c.Labels())
		}
	})

	failures := map[string]func(t *testing.T) (string, string){
		"missing model": func(t *testing.T) (string, string) { return filepath.Join(dir, "nope.json"), "" },
		"no path":       func(t *testing.T) (string, string) { return "", "" },
		"too many labels": func(t *testing.T) (string, string) {
			return writeModelFile(t, dir, 1, []string{"a", "b"}), ""
		},
		"corrupt model": func(t *testing.T) (string, string) {
			p := filepath.Join(dir, "corrupt.json")
			if err := os.WriteFile(p, []byte("{"), 0o644); err != nil {
				t.Fatal(err)
			}
			return p, ""
		},
		"missing labels": func(t *testing.T) (string, string) {
			return writeModelFile(t, dir, 2, nil), filepath.Join(dir, "missing-labels.json")
		},
	}
	for name, setup := range failures {
		t.Run(name, func(t *testing.T) {
			modelPath, labelsPath := setup(t)
			_, err := Load(modelPath, labelsPath, extractor, Config{})
			var unavailable *entities.ModelUnavailableError
			if !errors.As(err, &unavailable) {
				t.Errorf("Expected ModelUnavailableError, got %v", err)
			}
		})
	}

	t.Run("dimension mismatch", func(t *testing.T) {
		path := writeModelFile(t, dir, 2, nil)
		_, err := Load(path, "", fingerprint.NewExtractor(testRadius, 32), Config{})
		var unavailable *entities.ModelUnavailableError
		if !errors.As(err, &unavailable) {
			t.Errorf("Expected ModelUnavailableError, got %v", err)
		}
	})
}

func TestMapSeverity(t *testing.T) {
	score := func(p, w float64) entities.LabelScore {
		return entities.LabelScore{Probability: p, Weight: w, Significant: true}
	}

	testCases := []struct {
		name   string
		labels []entities.LabelScore
		want   entities.Severity
	}{
		{"no significant labels", nil, entities.SeverityNone},
		{"high weight high probability", []entities.LabelScore{score(0.9, 1.0)}, entities.SeverityMajor},
		{"exactly major", []entities.LabelScore{score(0.75, 1.0)}, entities.SeverityMajor},
		{"moderate", []entities.LabelScore{score(0.95, 0.6)}, entities.SeverityModerate},
		{"exactly moderate", []entities.LabelScore{score(0.55, 1.0)}, entities.SeverityModerate},
		{"minor", []entities.LabelScore{score(0.6, 0.5)}, entities.SeverityMinor},
		{"max over labels", []entities.LabelScore{score(0.99, 0.5), score(0.8, 1.0)}, entities.SeverityMajor},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MapSeverity(tc.labels); got != tc.want {
				t.Errorf("MapSeverity = %v, want %v", got, tc.want)
			}
		})
	}
}

// countingInference records how many batched calls it served
type countingInference struct {
	calls atomic.Int32
	sizes []int
	mu    sync.Mutex
	gate  chan struct{}
	err   error
}

func (f *countingInference) run(inputs [][]float32) ([][]float32, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.calls.Add(1)
	f.mu.Lock()
	f.sizes = append(f.sizes, len(inputs))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{in[0] * 2}
	}
	return out, nil
}

func TestBatcherCoalescesRequests(t *testing.T) {
	logging.InitLogger("")

	inf := &countingInference{}
	b := NewBatcher(inf.run, time.Second, 8)
	defer b.Close()

	var wg sync.WaitGroup
	results := make([]float32, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := b.Submit(context.Background(), []float32{float32(i)})
			if err != nil {
				t.Errorf("Submit %d: %v", i, err)
				return
			}
			results[i] = out[0]
		}(i)
	}
	wg.Wait()

	if inf.calls.Load() != 1 {
		t.Errorf("Expected one inference call, got %d", inf.calls.Load())
	}
	for i, r := range results {
		if r != float32(2*i) {
			t.Errorf("Result %d routed to the wrong waiter: %v", i, r)
		}
	}
}

func TestBatcherSplitsAtMaxSize(t *testing.T) {
	inf := &countingInference{}
	b := NewBatcher(inf.run, time.Second, 4)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = b.Submit(context.Background(), []float32{float32(i)})
		}(i)
	}
	wg.Wait()

	if inf.calls.Load() != 2 {
		t.Errorf("Expected 2 inference calls, got %d", inf.calls.Load())
	}
	for _, size := range inf.sizes {
		if size != 4 {
			t.Errorf("Expected batches of 4, got %v", inf.sizes)
		}
	}
}

func TestBatcherFlushesAfterWindow(t *testing.T) {
	inf := &countingInference{}
	b := NewBatcher(inf.run, 5*time.Millisecond, 100)
	defer b.Close()

	start := time.Now()
	if _, err := b.Submit(context.Background(), []float32{1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Single request waited %v", elapsed)
	}
}

func TestBatcherErrors(t *testing.T) {
	logging.InitLogger("")

	inf := &countingInference{err: errors.New("model exploded")}
	b := NewBatcher(inf.run, time.Millisecond, 4)

	if _, err := b.Submit(context.Background(), []float32{1}); err == nil {
		t.Error("Expected inference error to reach the waiter")
	}

	b.Close()
	if _, err := b.Submit(context.Background(), []float32{1}); !errors.Is(err, entities.ErrBatcherClosed) {
		t.Errorf("Expected ErrBatcherClosed, got %v", err)
	}
}

func TestBatcherCallerCancellationDoesNotCancelBatch(t *testing.T) {
	inf := &countingInference{gate: make(chan struct{})}
	b := NewBatcher(inf.run, time.Millisecond, 4)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.Submit(ctx, []float32{1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	close(inf.gate)
	deadline := time.Now().Add(2 * time.Second)
	for inf.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if inf.calls.Load() != 1 {
		t.Error("The abandoned batch should still run")
	}
}
