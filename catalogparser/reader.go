// Package catalogparser reads the drug catalog and curated interaction
// datasets from disk.
package catalogparser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// openDecoded reads a whole file and returns a UTF-8 reader over it
func openDecoded(path string) (io.Reader, error) {
	cleanPath := filepath.Clean(path)
	content, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cleanPath, err)
	}
	return decode(content), nil
}

// decode handles the mix of UTF-8 and ISO-8859-1 exports found in public
// drug datasets
func decode(content []byte) io.Reader {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return bytes.NewReader(content)
	}
	return charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(content))
}

// newTableReader returns a csv reader with the delimiter guessed from the
// file extension, or from the first line when the extension says nothing.
func newTableReader(path string, r io.Reader) (*csv.Reader, error) {
	buffered, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	comma := ','
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt":
		comma = '\t'
	case ".csv":
	default:
		firstLine, _, _ := bytes.Cut(buffered, []byte("\n"))
		if bytes.Count(firstLine, []byte("\t")) > bytes.Count(firstLine, []byte(",")) {
			comma = '\t'
		}
	}

	reader := csv.NewReader(bytes.NewReader(buffered))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true
	return reader, nil
}

// header maps lowercased column names to their position
type header []string

func newHeader(record []string) header {
	h := make(header, len(record))
	for i, name := range record {
		h[i] = strings.ToLower(strings.TrimSpace(name))
	}
	return h
}

// find returns the column matching a pattern, trying patterns in priority
// order. Exact names win over columns that merely contain a pattern.
// Columns listed in taken are ignored.
func (h header) find(patterns []string, taken ...int) int {
	for _, match := range []func(name, pattern string) bool{
		func(name, pattern string) bool { return name == pattern },
		strings.Contains,
	} {
		for _, pattern := range patterns {
			for i, name := range h {
				if containsInt(taken, i) {
					continue
				}
				if match(name, pattern) {
					return i
				}
			}
		}
	}
	return -1
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
