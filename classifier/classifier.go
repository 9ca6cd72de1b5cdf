package classifier

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
)

// Compile-time check to ensure Classifier implements the model contract
var _ interfaces.Classifier = (*Classifier)(nil)

// Defaults applied to zero Config fields
const (
	DefaultThreshold     = 0.5
	DefaultTopK          = 5
	DefaultMaxBatchPairs = 100
)

// Config tunes prediction output and batching
type Config struct {
	Threshold     float64
	DefaultTopK   int
	MaxBatchPairs int
	// BatchWindow <= 0 disables micro-batching of single predictions
	BatchWindow  time.Duration
	BatchMaxSize int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 || c.Threshold > 1 {
		c.Threshold = DefaultThreshold
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = DefaultTopK
	}
	if c.MaxBatchPairs <= 0 {
		c.MaxBatchPairs = DefaultMaxBatchPairs
	}
	return c
}

// Classifier predicts side effect labels for a pair of molecules. Inputs
// are ordered by operand key before their features are concatenated, so
// Predict(A, B) and Predict(B, A) feed the model the same vector.
type Classifier struct {
	model     *Model
	labels    []entities.Label
	extractor interfaces.FingerprintExtractor
	cfg       Config
	batcher   *Batcher
}

// New checks that the model fits the extractor and the label space
func New(model *Model, labels []entities.Label, extractor interfaces.FingerprintExtractor, cfg Config) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("no model")
	}
	if want := 2 * extractor.Dim(); model.InputDim() != want {
		return nil, fmt.Errorf("model input dimension %d does not match two %d-feature fingerprints", model.InputDim(), extractor.Dim())
	}
	if model.OutputDim() != len(labels) {
		return nil, fmt.Errorf("model has %d outputs but %d labels", model.OutputDim(), len(labels))
	}

	c := &Classifier{
		model:     model,
		labels:    labels,
		extractor: extractor,
		cfg:       cfg.withDefaults(),
	}
	if c.cfg.BatchWindow > 0 {
		c.batcher = NewBatcher(model.Forward, c.cfg.BatchWindow, c.cfg.BatchMaxSize)
	}
	return c, nil
}

// Load reads the weights file and the optional labels file. Every failure
// is a ModelUnavailableError.
func Load(modelPath, labelsPath string, extractor interfaces.FingerprintExtractor, cfg Config) (*Classifier, error) {
	unavailable := func(err error) error {
		return &entities.ModelUnavailableError{Path: modelPath, Err: err}
	}

	if modelPath == "" {
		return nil, unavailable(fmt.Errorf("no model path configured"))
	}

	model, embedded, err := LoadModel(modelPath)
	if err != nil {
		return nil, unavailable(err)
	}

	named := embedded
	if labelsPath != "" {
		named, err = readLabelFile(labelsPath)
		if err != nil {
			return nil, unavailable(err)
		}
	}
	if len(named) == 0 {
		logging.Warn("No label names available, using built-in side effect names", "labels", model.OutputDim())
	}

	labels, err := buildLabels(named, model.OutputDim())
	if err != nil {
		return nil, unavailable(err)
	}

	c, err := New(model, labels, extractor, cfg)
	if err != nil {
		return nil, unavailable(err)
	}

	logging.Info("Classifier loaded",
		"path", modelPath,
		"input_dim", model.InputDim(),
		"layers", len(model.layers),
		"labels", len(labels),
		"threshold", c.cfg.Threshold,
		"batching", c.batcher != nil,
	)
	return c, nil
}

// Predict runs one pair, through the micro-batcher when enabled
func (c *Classifier) Predict(ctx context.Context, in entities.PairInput) (entities.Prediction, error) {
	features, err := c.features(in)
	if err != nil {
		return entities.Prediction{}, err
	}

	var probs []float32
	if c.batcher != nil {
		probs, err = c.batcher.Submit(ctx, features)
	} else {
		var out [][]float32
		out, err = c.model.Forward([][]float32{features})
		if err == nil {
			probs = out[0]
		}
	}
	if err != nil {
		return entities.Prediction{}, err
	}

	return c.rank(probs, in.TopK), nil
}

// PredictBatch runs every valid input in one inference call. An input whose
// structure cannot be used fails alone.
func (c *Classifier) PredictBatch(ctx context.Context, inputs []entities.PairInput) ([]entities.PredictionOutcome, error) {
	if len(inputs) > c.cfg.MaxBatchPairs {
		return nil, &entities.BatchSizeExceededError{Requested: len(inputs), Max: c.cfg.MaxBatchPairs}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]entities.PredictionOutcome, len(inputs))
	valid := make([]int, 0, len(inputs))
	rows := make([][]float32, 0, len(inputs))
	for i, in := range inputs {
		features, err := c.features(in)
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		valid = append(valid, i)
		rows = append(rows, features)
	}

	if len(rows) == 0 {
		return outcomes, nil
	}

	probs, err := c.model.Forward(rows)
	if err != nil {
		return nil, fmt.Errorf("batch inference: %w", err)
	}
	for j, i := range valid {
		outcomes[i].Prediction = c.rank(probs[j], inputs[i].TopK)
	}
	return outcomes, nil
}

// features builds the model input: both fingerprints in canonical order
func (c *Classifier) features(in entities.PairInput) ([]float32, error) {
	in = in.Canonical()

	a, err := c.fingerprint(in.A)
	if err != nil {
		return nil, err
	}
	b, err := c.fingerprint(in.B)
	if err != nil {
		return nil, err
	}

	out := make([]float32, 0, c.model.InputDim())
	out = a.AppendTo(out)
	return b.AppendTo(out), nil
}

func (c *Classifier) fingerprint(op entities.Operand) (*entities.Fingerprint, error) {
	fp := op.Fingerprint
	if fp == nil {
		var err error
		fp, err = c.extractor.Extract(op.Structure)
		if err != nil {
			return nil, err
		}
	}
	if fp.Dim() != c.extractor.Dim() {
		return nil, &entities.InvalidStructureError{
			Structure: op.Structure,
			Reason:    fmt.Sprintf("fingerprint has %d features, model expects %d", fp.Dim(), c.extractor.Dim()),
		}
	}
	return fp, nil
}

// rank orders labels by descending probability, lower index first on ties
func (c *Classifier) rank(probs []float32, topK int) entities.Prediction {
	scores := make([]entities.LabelScore, len(probs))
	for i, p := range probs {
		scores[i] = entities.LabelScore{
			Index:       i,
			Name:        c.labels[i].Name,
			Probability: float64(p),
			Significant: float64(p) >= c.cfg.Threshold,
			Weight:      c.labels[i].Weight,
		}
	}
	slices.SortFunc(scores, func(a, b entities.LabelScore) int {
		return cmp.Or(cmp.Compare(b.Probability, a.Probability), cmp.Compare(a.Index, b.Index))
	})

	significant := make([]entities.LabelScore, 0)
	for _, s := range scores {
		if !s.Significant {
			break
		}
		significant = append(significant, s)
	}

	k := c.topK(topK)
	return entities.Prediction{
		Labels:      slices.Clone(scores[:k]),
		Significant: significant,
		Severity:    MapSeverity(significant),
		Threshold:   c.cfg.Threshold,
	}
}

func (c *Classifier) topK(requested int) int {
	if requested <= 0 {
		requested = c.cfg.DefaultTopK
	}
	return min(requested, len(c.labels))
}

func (c *Classifier) Labels() []entities.Label {
	return c.labels
}

func (c *Classifier) Threshold() float64 {
	return c.cfg.Threshold
}

func (c *Classifier) DefaultTopK() int {
	return c.cfg.DefaultTopK
}

func (c *Classifier) MaxBatchPairs() int {
	return c.cfg.MaxBatchPairs
}

func (c *Classifier) Ready() bool {
	return c != nil && c.model != nil
}

// Close stops the micro-batcher
func (c *Classifier) Close() {
	if c.batcher != nil {
		c.batcher.Close()
	}
}
