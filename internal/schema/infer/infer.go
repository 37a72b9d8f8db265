// Package infer derives a Schema from collected statistics. The rules are
// deliberately simple and predictable:
//
//   - A column is INT or FLOAT when every observed value parses as a number
//     (FLOAT as soon as one non-integer literal was seen), STRING otherwise.
//   - A column is REQUIRED when it had no missing values over the whole pass,
//     OPTIONAL otherwise.
//
// Domains, value ranges and shapes are not inferred.
package infer

import (
	"fmt"

	"featurepipe/internal/schema"
	"featurepipe/internal/stats"
)

// FromStatistics returns a schema with one column per statistics entry, in
// the same order.
func FromStatistics(st *stats.Statistics) (*schema.Schema, error) {
	if st == nil || len(st.Features) == 0 {
		return nil, fmt.Errorf("infer: statistics describe no columns")
	}
	cols := make([]schema.Column, 0, len(st.Features))
	for _, f := range st.Features {
		cols = append(cols, schema.Column{
			Name:     f.Name,
			Type:     columnType(f),
			Presence: presence(f),
		})
	}
	s, err := schema.New(cols)
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	return s, nil
}

func columnType(f stats.FeatureStatistics) schema.Type {
	if !f.Type.Valid() {
		return schema.TypeString
	}
	return f.Type
}

func presence(f stats.FeatureStatistics) schema.Presence {
	if f.Missing == 0 && f.Count > 0 {
		return schema.Required
	}
	return schema.Optional
}
