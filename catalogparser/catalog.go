package catalogparser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/logging"
)

var (
	catalogIDColumns        = []string{"drugbank_id", "drug_id", "rxcui", "id"}
	catalogNameColumns      = []string{"canonical_name", "generic_name", "drug_name", "name"}
	catalogAliasColumns     = []string{"aliases", "synonyms", "brand_names", "brands"}
	catalogStructureColumns = []string{"structure_notation", "canonical_smiles", "smiles", "structure"}
)

// ParseCatalogFile reads drug entries from a CSV/TSV table or a JSON array
func ParseCatalogFile(path string) ([]entities.Drug, error) {
	r, err := openDecoded(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var drugs []entities.Drug
		if err := json.NewDecoder(r).Decode(&drugs); err != nil {
			return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
		}
		logging.Info("Catalog file parsed", "path", path, "records_parsed", len(drugs))
		return drugs, nil
	}

	reader, err := newTableReader(path, r)
	if err != nil {
		return nil, err
	}

	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog header from %s: %w", path, err)
	}
	h := newHeader(first)

	nameCol := h.find(catalogNameColumns)
	idCol := h.find(catalogIDColumns, nameCol)
	if idCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("catalog %s: could not identify id and name columns in %v", path, []string(h))
	}
	aliasCol := h.find(catalogAliasColumns, idCol, nameCol)
	structureCol := h.find(catalogStructureColumns, idCol, nameCol, aliasCol)

	var drugs []entities.Drug
	lineCount := 0
	skippedMissingColumns := 0
	skippedEmptyFields := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineCount++
		if err != nil {
			skippedMissingColumns++
			continue
		}
		if len(record) <= max(idCol, nameCol) {
			skippedMissingColumns++
			continue
		}

		d := entities.Drug{
			ID:            field(record, idCol),
			CanonicalName: field(record, nameCol),
			Aliases:       splitList(field(record, aliasCol)),
			Structure:     field(record, structureCol),
		}
		if d.ID == "" || d.CanonicalName == "" {
			skippedEmptyFields++
			continue
		}
		drugs = append(drugs, d)
	}

	if skippedMissingColumns > 0 || skippedEmptyFields > 0 {
		logging.Info("Catalog skip statistics",
			"path", path,
			"missing_columns", skippedMissingColumns,
			"empty_fields", skippedEmptyFields,
			"total_lines", lineCount,
			"records_parsed", len(drugs))
	}

	logging.Info("Catalog file parsed", "path", path, "records_parsed", len(drugs))
	return drugs, nil
}
