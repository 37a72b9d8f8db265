// Package anomaly compares statistics against a reference schema. Findings
// are data, never errors: Validate always succeeds and an empty result means
// the data matched the schema.
package anomaly

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"featurepipe/internal/schema"
	"featurepipe/internal/stats"
)

// Kind classifies an anomaly.
type Kind string

const (
	KindMissingValues Kind = "unexpected missing values"
	KindTypeMismatch  Kind = "type mismatch"
	KindMissingColumn Kind = "column missing from data"
	KindNewColumn     Kind = "new column"
)

// Anomaly is one finding for one column.
type Anomaly struct {
	Column      string `yaml:"column" json:"column"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Description string `yaml:"description" json:"description"`
}

// Validate reports every discrepancy between st and s. Findings follow schema
// column order, followed by columns the schema does not know in name order.
// Neither argument is modified.
func Validate(st *stats.Statistics, s *schema.Schema) []Anomaly {
	var out []Anomaly

	for _, c := range s.Columns() {
		fs, ok := st.Lookup(c.Name)
		if !ok {
			out = append(out, Anomaly{
				Column:      c.Name,
				Kind:        KindMissingColumn,
				Description: fmt.Sprintf("column %q is in the schema but absent from the data", c.Name),
			})
			continue
		}
		if conflicts(c.Type, fs.Type) {
			out = append(out, Anomaly{
				Column: c.Name,
				Kind:   KindTypeMismatch,
				Description: fmt.Sprintf("expected %s values but observed %s (%d of %d present values)",
					c.Type, fs.Type, fs.Count, fs.Count+fs.Missing),
			})
		}
		if c.Presence == schema.Required && fs.Missing > 0 {
			out = append(out, Anomaly{
				Column:      c.Name,
				Kind:        KindMissingValues,
				Description: fmt.Sprintf("column is REQUIRED but %d of %d rows have no value", fs.Missing, fs.Count+fs.Missing),
			})
		}
	}

	var extra []string
	for _, fs := range st.Features {
		if s.Index(fs.Name) < 0 {
			extra = append(extra, fs.Name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, Anomaly{
			Column:      name,
			Kind:        KindNewColumn,
			Description: fmt.Sprintf("column %q is not in the schema", name),
		})
	}
	return out
}

// conflicts reports whether values of type observed cannot be stored in a
// column declared as want. Integers fit FLOAT columns and anything fits a
// STRING column.
func conflicts(want, observed schema.Type) bool {
	switch want {
	case schema.TypeInt:
		return observed != schema.TypeInt
	case schema.TypeFloat:
		return !observed.Numeric()
	default:
		return false
	}
}

type document struct {
	Anomalies []Anomaly `yaml:"anomalies"`
}

// Marshal renders anomalies in their YAML text form. An empty list renders as
// "anomalies: []".
func Marshal(as []Anomaly) ([]byte, error) {
	if as == nil {
		as = []Anomaly{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document{Anomalies: as}); err != nil {
		return nil, fmt.Errorf("anomaly: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("anomaly: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses the YAML text form.
func Unmarshal(b []byte) ([]Anomaly, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("anomaly: decode: %w", err)
	}
	return doc.Anomalies, nil
}

// WriteFile writes anomalies to path, creating parent directories.
func WriteFile(path string, as []Anomaly) error {
	b, err := Marshal(as)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("anomaly: mkdir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("anomaly: write %s: %w", path, err)
	}
	return nil
}
