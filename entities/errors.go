package entities

import (
	"context"
	"errors"
	"fmt"
)

// Error codes reported in partial failures and HTTP error bodies
const (
	CodeUnknownDrug       = "unknown_drug"
	CodeInvalidStructure  = "invalid_structure"
	CodeModelUnavailable  = "model_unavailable"
	CodeCacheBackend      = "cache_backend"
	CodeBatchSizeExceeded = "batch_size_exceeded"
	CodeTimeout           = "timeout"
	CodeCanceled          = "canceled"
	CodeInternal          = "internal"
)

// ErrBatcherClosed is returned by predictions submitted after shutdown
var ErrBatcherClosed = errors.New("prediction batcher closed")

// UnknownDrugError means a free-text name matched no catalog entry
type UnknownDrugError struct {
	Name string
}

func (e *UnknownDrugError) Error() string {
	return fmt.Sprintf("unknown drug %q", e.Name)
}

// InvalidStructureError means a structural notation could not be parsed
// into a valid molecular graph, or a fingerprint does not fit the model.
type InvalidStructureError struct {
	Structure string
	Reason    string
}

func (e *InvalidStructureError) Error() string {
	s := e.Structure
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return fmt.Sprintf("invalid structure %q: %s", s, e.Reason)
}

// ModelUnavailableError means the classifier failed to initialize
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable (%s): %v", e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// CacheBackendError means the shared cache tier could not be reached
type CacheBackendError struct {
	Op  string
	Err error
}

func (e *CacheBackendError) Error() string {
	return fmt.Sprintf("cache backend %s failed: %v", e.Op, e.Err)
}

func (e *CacheBackendError) Unwrap() error {
	return e.Err
}

// BatchSizeExceededError rejects a batch before any work begins
type BatchSizeExceededError struct {
	Requested int
	Max       int
}

func (e *BatchSizeExceededError) Error() string {
	return fmt.Sprintf("batch of %d pairs exceeds the maximum of %d", e.Requested, e.Max)
}

// ErrorCode maps err to a stable machine-readable code
func ErrorCode(err error) string {
	var (
		unknown   *UnknownDrugError
		structure *InvalidStructureError
		model     *ModelUnavailableError
		backend   *CacheBackendError
		batch     *BatchSizeExceededError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknown):
		return CodeUnknownDrug
	case errors.As(err, &structure):
		return CodeInvalidStructure
	case errors.As(err, &model):
		return CodeModelUnavailable
	case errors.As(err, &batch):
		return CodeBatchSizeExceeded
	case errors.As(err, &backend):
		return CodeCacheBackend
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return CodeInternal
	}
}
