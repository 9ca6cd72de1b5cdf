package catalogparser

import (
	"fmt"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
)

// Compile-time check to ensure CatalogParser implements Parser interface
var _ interfaces.Parser = (*CatalogParser)(nil)

// CatalogParser implements the Parser interface over local data files
type CatalogParser struct {
	catalogPath string
	curatedPath string
}

// NewCatalogParser creates a parser. curatedPath may be empty when curated
// interactions come from Postgres instead of a file.
func NewCatalogParser(catalogPath, curatedPath string) *CatalogParser {
	return &CatalogParser{catalogPath: catalogPath, curatedPath: curatedPath}
}

// ParseCatalog implements the Parser interface
func (p *CatalogParser) ParseCatalog() ([]entities.Drug, error) {
	if p.catalogPath == "" {
		return nil, fmt.Errorf("no catalog path configured")
	}
	return ParseCatalogFile(p.catalogPath)
}

// ParseCurated implements the Parser interface
func (p *CatalogParser) ParseCurated() ([]entities.CuratedRow, error) {
	if p.curatedPath == "" {
		return nil, nil
	}
	return ParseCuratedFile(p.curatedPath)
}
