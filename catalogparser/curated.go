package catalogparser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/logging"
)

var (
	curatedDrug1Columns      = []string{"drug_1_name", "drug1_name", "drug_1_concept_name", "drug_1", "drug1", "stitch_id1"}
	curatedDrug2Columns      = []string{"drug_2_name", "drug2_name", "drug_2_concept_name", "drug_2", "drug2", "stitch_id2"}
	curatedSideEffectColumns = []string{"side_effect_name", "condition_concept_name", "event_name", "side_effect", "event"}
	curatedPValueColumns     = []string{"p_value", "pvalue", "p_val", "fisher_p"}
	curatedFrequencyColumns  = []string{"mean_reporting_frequency", "frequency_score", "frequency"}
	curatedSeverityColumns   = []string{"severity"}
)

// SeverityFromPValue maps the significance of a curated signal to a
// severity bucket. A missing p-value is Minor.
func SeverityFromPValue(p *float64) entities.Severity {
	switch {
	case p == nil:
		return entities.SeverityMinor
	case *p <= 0.001:
		return entities.SeverityMajor
	case *p <= 0.01:
		return entities.SeverityModerate
	default:
		return entities.SeverityMinor
	}
}

// ParseCuratedFile reads raw curated interaction rows. Drug columns may hold
// names or catalog ids; they are resolved later against the catalog.
func ParseCuratedFile(path string) ([]entities.CuratedRow, error) {
	r, err := openDecoded(path)
	if err != nil {
		return nil, err
	}
	reader, err := newTableReader(path, r)
	if err != nil {
		return nil, err
	}

	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read curated header from %s: %w", path, err)
	}
	h := newHeader(first)

	drug1Col := h.find(curatedDrug1Columns)
	drug2Col := h.find(curatedDrug2Columns, drug1Col)
	if drug1Col < 0 || drug2Col < 0 {
		return nil, fmt.Errorf("curated %s: could not identify drug columns in %v", path, []string(h))
	}
	sideEffectCol := h.find(curatedSideEffectColumns, drug1Col, drug2Col)
	pValueCol := h.find(curatedPValueColumns, drug1Col, drug2Col, sideEffectCol)
	frequencyCol := h.find(curatedFrequencyColumns, drug1Col, drug2Col, sideEffectCol, pValueCol)
	severityCol := h.find(curatedSeverityColumns, drug1Col, drug2Col, sideEffectCol, pValueCol, frequencyCol)

	logging.Info("Curated columns detected",
		"path", path,
		"drug1", columnName(h, drug1Col),
		"drug2", columnName(h, drug2Col),
		"side_effect", columnName(h, sideEffectCol),
		"p_value", columnName(h, pValueCol),
		"frequency", columnName(h, frequencyCol),
		"severity", columnName(h, severityCol))

	dataset := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var rows []entities.CuratedRow
	lineCount := 0
	skippedMissingColumns := 0
	skippedEmptyDrugs := 0
	skippedFormatErrors := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineCount++
		if err != nil || len(record) <= max(drug1Col, drug2Col) {
			skippedMissingColumns++
			continue
		}

		row := entities.CuratedRow{
			DrugA:      field(record, drug1Col),
			DrugB:      field(record, drug2Col),
			SideEffect: field(record, sideEffectCol),
			Dataset:    dataset,
		}
		if row.DrugA == "" || row.DrugB == "" {
			skippedEmptyDrugs++
			continue
		}

		if raw := field(record, pValueCol); raw != "" {
			p, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				skippedFormatErrors++
				continue
			}
			row.PValue = &p
		}

		row.Frequency = 1.0
		if row.PValue != nil {
			row.Frequency = *row.PValue
		}
		if raw := field(record, frequencyCol); raw != "" {
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				row.Frequency = f
			}
		}

		row.Severity = SeverityFromPValue(row.PValue)
		if raw := field(record, severityCol); raw != "" {
			if s, err := entities.ParseSeverity(raw); err == nil {
				row.Severity = s
			}
		}

		rows = append(rows, row)
	}

	if skippedMissingColumns > 0 || skippedEmptyDrugs > 0 || skippedFormatErrors > 0 {
		logging.Info("Curated skip statistics",
			"path", path,
			"missing_columns", skippedMissingColumns,
			"empty_drugs", skippedEmptyDrugs,
			"format_errors", skippedFormatErrors,
			"total_lines", lineCount,
			"records_parsed", len(rows))
	}

	logging.Info("Curated file parsed", "path", path, "records_parsed", len(rows))
	return rows, nil
}

func columnName(h header, idx int) string {
	if idx < 0 {
		return ""
	}
	return h[idx]
}
