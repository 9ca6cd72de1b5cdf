// Package entities holds the data types shared by every component of the
// interaction engine: drugs and their fingerprints, canonical pair keys,
// interaction records, predictions and check reports.
package entities

import (
	"crypto/sha256"
	"encoding/hex"
)

// Drug is a canonical catalog entry. Fingerprint is derived from Structure
// and is nil when the structure could not be parsed.
type Drug struct {
	ID            string       `json:"id"`
	CanonicalName string       `json:"canonical_name"`
	Aliases       []string     `json:"aliases,omitempty"`
	Structure     string       `json:"structure_notation,omitempty"`
	Fingerprint   *Fingerprint `json:"-"`
}

// DrugRef is the compact reference used inside records and reports
type DrugRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ref returns the compact reference for d
func (d Drug) Ref() DrugRef {
	return DrugRef{ID: d.ID, Name: d.CanonicalName}
}

// CatalogTerm is one searchable normalized name (canonical or alias) of a drug
type CatalogTerm struct {
	Key   string
	Index int
}

// Catalog is an immutable, indexed snapshot of the drug catalog.
// All map keys are normalized names.
type Catalog struct {
	Drugs   []Drug
	ByID    map[string]int
	ByName  map[string]int
	ByAlias map[string]int
	Terms   []CatalogTerm
}

// Len returns the number of drugs, zero for a nil catalog
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Drugs)
}

// Get looks a drug up by id
func (c *Catalog) Get(id string) (Drug, bool) {
	if c == nil {
		return Drug{}, false
	}
	idx, ok := c.ByID[id]
	if !ok {
		return Drug{}, false
	}
	return c.Drugs[idx], true
}

// InteractionKey identifies an unordered pair of drug ids
type InteractionKey string

func (k InteractionKey) String() string {
	return string(k)
}

// NewInteractionKey hashes the two ids in a fixed total order so that
// (a, b) and (b, a) produce the same key.
func NewInteractionKey(idA, idB string) InteractionKey {
	lo, hi := OrderIDs(idA, idB)
	sum := sha256.Sum256([]byte(lo + "|" + hi))
	return InteractionKey(hex.EncodeToString(sum[:16]))
}

// OrderIDs returns the two ids lowest first
func OrderIDs(idA, idB string) (string, string) {
	if idB < idA {
		return idB, idA
	}
	return idA, idB
}

// DrugPair is an unordered pair stored with the lower id first
type DrugPair struct {
	First  Drug
	Second Drug
}

// NewDrugPair builds the canonical pair for a and b
func NewDrugPair(a, b Drug) DrugPair {
	if b.ID < a.ID {
		a, b = b, a
	}
	return DrugPair{First: a, Second: b}
}

// Key returns the pair's interaction key
func (p DrugPair) Key() InteractionKey {
	return NewInteractionKey(p.First.ID, p.Second.ID)
}

// Refs returns the pair as compact references, lower id first
func (p DrugPair) Refs() [2]DrugRef {
	return [2]DrugRef{p.First.Ref(), p.Second.Ref()}
}

// Match kinds reported by catalog search
const (
	MatchExact     = "exact"
	MatchAlias     = "alias"
	MatchID        = "id"
	MatchPrefix    = "prefix"
	MatchSubstring = "substring"
	MatchFuzzy     = "fuzzy"
)

// SearchResult is one ranked catalog search hit
type SearchResult struct {
	Drug     DrugRef `json:"drug"`
	Matched  string  `json:"matched"`
	Match    string  `json:"match"`
	Distance int     `json:"distance"`
}
