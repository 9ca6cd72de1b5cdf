package classifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/metrics"
)

// Default micro-batching bounds
const (
	DefaultBatchWindow  = 15 * time.Millisecond
	DefaultBatchMaxSize = 32
)

// InferenceFunc runs one batched inference call, one output row per input
type InferenceFunc func(inputs [][]float32) ([][]float32, error)

type batchResult struct {
	probs []float32
	err   error
}

type batchRequest struct {
	input  []float32
	result chan batchResult
}

// Batcher collects single predictions for up to window, or until maxSize
// requests are pending, and runs them as one inference call. A caller that
// gives up after submitting does not cancel the batch.
type Batcher struct {
	run      InferenceFunc
	window   time.Duration
	maxSize  int
	requests chan *batchRequest
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewBatcher starts the collecting goroutine. Stop it with Close.
func NewBatcher(run InferenceFunc, window time.Duration, maxSize int) *Batcher {
	if window <= 0 {
		window = DefaultBatchWindow
	}
	if maxSize <= 0 {
		maxSize = DefaultBatchMaxSize
	}
	b := &Batcher{
		run:      run,
		window:   window,
		maxSize:  maxSize,
		requests: make(chan *batchRequest),
		done:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Submit queues one input and waits for its probabilities
func (b *Batcher) Submit(ctx context.Context, input []float32) ([]float32, error) {
	req := &batchRequest{input: input, result: make(chan batchResult, 1)}

	select {
	case b.requests <- req:
	case <-b.done:
		return nil, entities.ErrBatcherClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.result:
		return res.probs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting requests. Requests already collected are still run.
func (b *Batcher) Close() {
	b.once.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}

func (b *Batcher) loop() {
	defer b.wg.Done()

	for {
		var first *batchRequest
		select {
		case <-b.done:
			return
		case first = <-b.requests:
		}

		batch := []*batchRequest{first}
		timer := time.NewTimer(b.window)
	collect:
		for len(batch) < b.maxSize {
			select {
			case req := <-b.requests:
				batch = append(batch, req)
			case <-timer.C:
				break collect
			case <-b.done:
				break collect
			}
		}
		timer.Stop()

		b.flush(batch)
	}
}

func (b *Batcher) flush(batch []*batchRequest) {
	inputs := make([][]float32, len(batch))
	for i, req := range batch {
		inputs[i] = req.input
	}

	start := time.Now()
	outputs, err := b.runSafely(inputs)
	metrics.BatchSize.Observe(float64(len(batch)))
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	if err == nil && len(outputs) != len(batch) {
		err = fmt.Errorf("inference returned %d rows for %d inputs", len(outputs), len(batch))
	}
	if err != nil {
		logging.Error("Batched inference failed", "batch_size", len(batch), "error", err)
	}

	for i, req := range batch {
		if err != nil {
			req.result <- batchResult{err: err}
			continue
		}
		req.result <- batchResult{probs: outputs[i]}
	}
}

func (b *Batcher) runSafely(inputs [][]float32) (out [][]float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference panic: %v", r)
		}
	}()
	return b.run(inputs)
}
