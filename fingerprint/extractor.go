// Package fingerprint turns structural notations into the fixed-length
// numeric vectors the interaction model consumes.
package fingerprint

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/metrics"
)

const (
	DefaultRadius = 2
	DefaultBits   = 512
)

type memoEntry struct {
	fp  *entities.Fingerprint
	err error
}

// Extractor computes fingerprints and memoizes them per structure. Failures
// are memoized too, so a bad structure is only parsed once.
type Extractor struct {
	radius int
	nBits  int
	memo   sync.Map
	size   atomic.Int64
}

func NewExtractor(radius, nBits int) *Extractor {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if nBits <= 0 {
		nBits = DefaultBits
	}
	return &Extractor{radius: radius, nBits: nBits}
}

// Dim is the length of the vectors produced by Extract
func (e *Extractor) Dim() int {
	return e.nBits + entities.DescriptorCount
}

// Size is the number of memoized structures
func (e *Extractor) Size() int {
	return int(e.size.Load())
}

// Extract returns the fingerprint of structure. The returned value is shared
// between callers and must not be modified.
func (e *Extractor) Extract(structure string) (*entities.Fingerprint, error) {
	key := strings.TrimSpace(structure)
	if v, ok := e.memo.Load(key); ok {
		me := v.(*memoEntry)
		return me.fp, me.err
	}

	fp, err := Compute(key, e.radius, e.nBits)
	outcome := "ok"
	if err != nil {
		outcome = "invalid"
	}

	v, loaded := e.memo.LoadOrStore(key, &memoEntry{fp: fp, err: err})
	if !loaded {
		e.size.Add(1)
		metrics.FingerprintsComputed.WithLabelValues(outcome).Inc()
	}
	me := v.(*memoEntry)
	return me.fp, me.err
}

// Compute parses structure and builds its fingerprint without memoization
func Compute(structure string, radius, nBits int) (*entities.Fingerprint, error) {
	mol, err := Parse(structure)
	if err != nil {
		return nil, &entities.InvalidStructureError{Structure: structure, Reason: err.Error()}
	}
	return &entities.Fingerprint{
		Bits:            mol.morganBits(radius, nBits),
		MolecularWeight: float32(mol.MolecularWeight()),
		LogP:            float32(mol.LogP()),
		TPSA:            float32(mol.TPSA()),
	}, nil
}
