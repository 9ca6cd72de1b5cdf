// Package validation checks request input and reports catalog and curated
// data quality after each load.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/giygas/ddi-engine/drugs"
	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
)

const (
	maxNameLength      = 200
	maxQueryLength     = 100
	maxQueryWords      = 8
	maxStructureLength = 4096
	maxListed          = 10
)

// Pre-compiled once and shared by every request
var (
	// letters of any script, digits, spaces and the punctuation drug names use
	nameRegex = regexp.MustCompile(`^[\p{L}\p{M}0-9\s\-\.\+'(),/%]+$`)

	// SMILES alphabet: element symbols, bonds, branches, rings, charges, stereo
	structureRegex = regexp.MustCompile(`^[A-Za-z0-9@+\-\[\]()=#$:/\\.%*]+$`)

	// Substrings that never occur in a medication name
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"eval(", "expression(", "@import",
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"--", "/*", "*/", "exec(", "execute(",
		"; ", "| ", "`", "$(", "${",
		"../", "..\\", "%2e%2e", "file://",
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:",
	}
)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateDrug checks a catalog entry has what the resolver needs
func (v *DataValidatorImpl) ValidateDrug(d *entities.Drug) error {
	if d == nil {
		return fmt.Errorf("drug is nil")
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("drug id cannot be empty")
	}
	if strings.TrimSpace(d.CanonicalName) == "" {
		return fmt.Errorf("drug %s has no name", d.ID)
	}
	if utf8.RuneCountInString(d.CanonicalName) > maxNameLength {
		return fmt.Errorf("drug %s name too long: maximum %d characters", d.ID, maxNameLength)
	}
	for _, alias := range d.Aliases {
		if utf8.RuneCountInString(alias) > maxNameLength {
			return fmt.Errorf("drug %s alias too long: maximum %d characters", d.ID, maxNameLength)
		}
	}
	if d.Structure != "" {
		if err := v.ValidateStructure(d.Structure); err != nil {
			return fmt.Errorf("drug %s: %w", d.ID, err)
		}
	}
	return nil
}

// ReportDataQuality summarizes what the last load skipped or could not use.
// Extracting each structure here also warms the fingerprint memo before the
// first request needs it.
func (v *DataValidatorImpl) ReportDataQuality(
	entries []entities.Drug,
	catalog *entities.Catalog,
	stats interfaces.CuratedBuildStats,
	extractor interfaces.FingerprintExtractor,
) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		DuplicateDrugIDs:      []string{},
		NameCollisions:        []string{},
		InvalidStructureIDs:   []string{},
		CuratedRows:           stats.Rows,
		CuratedPairs:          stats.Pairs,
		CuratedSelfPairs:      stats.SelfPairs,
		CuratedUnresolved:     stats.Unresolved,
		CuratedUnresolvedList: append([]string{}, stats.UnresolvedList...),
	}

	// Check 1: duplicate ids in the raw file, the catalog keeps the first
	seen := make(map[string]bool, len(entries))
	reported := make(map[string]bool)
	for _, d := range entries {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		if seen[id] && !reported[id] {
			report.DuplicateDrugIDs = append(report.DuplicateDrugIDs, id)
			reported[id] = true
		}
		seen[id] = true
	}

	if catalog == nil {
		return report
	}

	// Check 2: canonical names shared by several drugs
	if collisions := drugs.NameCollisions(catalog); collisions != nil {
		report.NameCollisions = collisions
	}

	// Check 3: structures that are missing or do not parse (first 10 ids)
	for _, d := range catalog.Drugs {
		if d.Structure == "" {
			report.DrugsWithoutStructure++
			continue
		}
		if extractor == nil {
			continue
		}
		if _, err := extractor.Extract(d.Structure); err != nil {
			report.InvalidStructures++
			if len(report.InvalidStructureIDs) < maxListed {
				report.InvalidStructureIDs = append(report.InvalidStructureIDs, d.ID)
			}
		}
	}

	return report
}

// ValidateInput validates a free-text search query
func (v *DataValidatorImpl) ValidateInput(input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if utf8.RuneCountInString(trimmed) < 2 {
		return fmt.Errorf("input too short: minimum 2 characters")
	}

	if utf8.RuneCountInString(trimmed) > maxQueryLength {
		return fmt.Errorf("input too long: maximum %d characters", maxQueryLength)
	}

	if len(strings.Fields(trimmed)) > maxQueryWords {
		return fmt.Errorf("search query too complex: maximum %d words allowed", maxQueryWords)
	}

	return v.checkName(trimmed)
}

// ValidateMedications validates the medication list of one check
func (v *DataValidatorImpl) ValidateMedications(names []string, maxMedications int) error {
	if len(names) == 0 {
		return fmt.Errorf("medications cannot be empty")
	}
	if maxMedications > 0 && len(names) > maxMedications {
		return &entities.BatchSizeExceededError{Requested: len(names), Max: maxMedications}
	}

	blank := 0
	for i, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			blank++
			continue
		}
		if utf8.RuneCountInString(trimmed) > maxNameLength {
			return fmt.Errorf("medication %d too long: maximum %d characters", i+1, maxNameLength)
		}
		if err := v.checkName(trimmed); err != nil {
			return fmt.Errorf("medication %d: %w", i+1, err)
		}
	}
	if blank == len(names) {
		return fmt.Errorf("medications cannot all be blank")
	}
	return nil
}

func (v *DataValidatorImpl) checkName(name string) error {
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("input contains control characters")
		}
	}

	lower := strings.ToLower(name)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !nameRegex.MatchString(name) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces and - . + ' ( ) , / %% are allowed")
	}

	if hasExcessiveRepetition(name) {
		return fmt.Errorf("input contains excessive character repetition")
	}
	return nil
}

// ValidateStructure performs cheap syntactic checks before the parser runs.
// Failures are InvalidStructureError.
func (v *DataValidatorImpl) ValidateStructure(structure string) error {
	invalid := func(reason string) error {
		return &entities.InvalidStructureError{Structure: structure, Reason: reason}
	}

	if strings.TrimSpace(structure) == "" {
		return invalid("structure cannot be empty")
	}
	if len(structure) > maxStructureLength {
		return invalid(fmt.Sprintf("structure too long: maximum %d characters", maxStructureLength))
	}
	if !structureRegex.MatchString(structure) {
		return invalid("structure contains characters outside the SMILES alphabet")
	}

	depth := 0
	for _, r := range structure {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return invalid("unbalanced parentheses")
			}
		}
	}
	if depth != 0 {
		return invalid("unbalanced parentheses")
	}
	if strings.Count(structure, "[") != strings.Count(structure, "]") {
		return invalid("unbalanced brackets")
	}
	return nil
}

// ValidateTopK returns 0 (use the default) for 0, caps at the label count
// and rejects negatives
func (v *DataValidatorImpl) ValidateTopK(topK, labelCount int) (int, error) {
	if topK < 0 {
		return 0, fmt.Errorf("top_k cannot be negative, got %d", topK)
	}
	if labelCount > 0 && topK > labelCount {
		return labelCount, nil
	}
	return topK, nil
}

// hasExcessiveRepetition reports a character repeated more than 10 times in a row
func hasExcessiveRepetition(input string) bool {
	run := 0
	var prev rune = -1
	for _, r := range input {
		if r == prev {
			run++
			if run > 10 {
				return true
			}
			continue
		}
		prev, run = r, 1
	}
	return false
}
