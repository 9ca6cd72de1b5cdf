package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is totally ordered: None < Minor < Moderate < Major.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityModerate
	SeverityMajor
)

var severityNames = [...]string{"none", "minor", "moderate", "major"}

func (s Severity) String() string {
	if s < SeverityNone || s > SeverityMajor {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity accepts the lowercase names used on the wire and in the curated files
func ParseSeverity(value string) (Severity, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for i, name := range severityNames {
		if v == name {
			return Severity(i), nil
		}
	}
	if v == "low" {
		return SeverityMinor, nil
	}
	if v == "high" {
		return SeverityMajor, nil
	}
	return SeverityNone, fmt.Errorf("unknown severity %q", value)
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MaxSeverity returns the more severe of the two
func MaxSeverity(a, b Severity) Severity {
	if b > a {
		return b
	}
	return a
}

// SeverityCounts holds the number of pairwise records per severity bucket
type SeverityCounts struct {
	None     int `json:"none"`
	Minor    int `json:"minor"`
	Moderate int `json:"moderate"`
	Major    int `json:"major"`
}

// Add increments the bucket for s
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityMajor:
		c.Major++
	case SeverityModerate:
		c.Moderate++
	case SeverityMinor:
		c.Minor++
	default:
		c.None++
	}
}

// Total returns the sum of all buckets
func (c SeverityCounts) Total() int {
	return c.None + c.Minor + c.Moderate + c.Major
}
