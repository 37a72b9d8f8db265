package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"featurepipe/internal/schema"
)

// Statistics is the finalized, serializable result of a statistics pass.
type Statistics struct {
	NumRows  int64               `json:"num_rows"`
	Features []FeatureStatistics `json:"features"`
}

// FeatureStatistics describes one column.
type FeatureStatistics struct {
	Name string `json:"name"`
	// Type is the type supported by the observed values, not the declared one.
	Type    schema.Type `json:"type"`
	Count   int64       `json:"count"`
	Missing int64       `json:"missing_count"`

	Numeric *NumericStats `json:"numeric,omitempty"`

	// TopValues and Unique are only set for STRING columns. Unique is the
	// number of distinct values saturated at the table bound K, which makes it
	// the same for any partitioning of the input. Counts in TopValues are exact
	// until a partition sees more than 4K distinct values; past that they are
	// lower bounds.
	TopValues []ValueCount `json:"top_values,omitempty"`
	Unique    int64        `json:"unique,omitempty"`
}

// NumericStats summarizes a numeric column.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
}

// Lookup returns the statistics of column name.
func (s *Statistics) Lookup(name string) (FeatureStatistics, bool) {
	for _, f := range s.Features {
		if f.Name == name {
			return f, true
		}
	}
	return FeatureStatistics{}, false
}

// WriteFile stores s as indented JSON at path, replacing any previous file
// atomically.
func WriteFile(path string, s *Statistics) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("stats: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("stats: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".stats-*.tmp")
	if err != nil {
		return fmt.Errorf("stats: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("stats: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stats: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("stats: publish %s: %w", path, err)
	}
	return nil
}

// ReadFile loads statistics written by WriteFile.
func ReadFile(path string) (*Statistics, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stats: read %s: %w", path, err)
	}
	var s Statistics
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("stats: decode %s: %w", path, err)
	}
	return &s, nil
}
