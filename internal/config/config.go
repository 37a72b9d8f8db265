// Package config defines the JSON-serializable configuration of a feature
// pipeline run. It is small and explicit so that pipeline files can be loaded
// from disk and passed through the program without additional glue code.
//
// Example (trimmed):
//
//	{
//	  "job":    "bookings",
//	  "source": { "kind": "file", "file": { "path": "data/train.csv" } },
//	  "parser": { "kind": "csv", "options": { "has_header": true } },
//	  "features": {
//	    "label": "bookings",
//	    "scale": ["clicks", "cost"],
//	    "bucketize": ["latitude"],
//	    "vocabulary": ["market"],
//	    "passthrough": ["city_id"],
//	    "vocab_size": 2000, "oov_size": 10, "bucket_count": 10
//	  },
//	  "runtime": { "workers": 4, "shards": 2, "shuffle_seed": 42 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Defaults for the feature encoding constants.
const (
	DefaultVocabSize   = 2000
	DefaultOOVSize     = 10
	DefaultBucketCount = 10
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics grouping.
	Job string `json:"job"`

	// Source describes where raw rows come from. Command-line input paths
	// override Source.File.Path.
	Source Source `json:"source"`

	// Parser configures how raw bytes are turned into rows.
	Parser Parser `json:"parser"`

	// Features declares which columns receive which transform.
	Features Features `json:"features"`

	// Storage optionally exports statistics and anomalies to a SQL database.
	Storage Storage `json:"storage"`

	Runtime RuntimeConfig `json:"runtime"`
}

// Source identifies the data source. Current kind: "file".
type Source struct {
	Kind string     `json:"kind"`
	File SourceFile `json:"file"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path"`
}

// Parser selects how to split the raw source into rows.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind"`

	// Options is interpreted by the parser. For CSV:
	//   has_header (bool), comma (string), trim_space (bool), lazy_quotes (bool)
	Options Options `json:"options"`
}

// Features lists raw column names per transform kind plus the encoding
// constants. A column may appear in at most one list.
type Features struct {
	Label       string   `json:"label"`
	Scale       []string `json:"scale"`
	Vocabulary  []string `json:"vocabulary"`
	Bucketize   []string `json:"bucketize"`
	Passthrough []string `json:"passthrough"`

	VocabSize   int `json:"vocab_size"`
	OOVSize     int `json:"oov_size"`
	BucketCount int `json:"bucket_count"`

	// TopK bounds the frequency table kept per string column by the
	// statistics collector. Zero means VocabSize; smaller values are raised to
	// VocabSize so the table never drops terms the analyzer would keep.
	TopK int `json:"top_k"`
}

// WithDefaults returns f with zero constants replaced by their defaults.
// OOVSize is left alone: zero OOV buckets is a valid choice, and Load
// already defaults an absent oov_size.
func (f Features) WithDefaults() Features {
	if f.VocabSize == 0 {
		f.VocabSize = DefaultVocabSize
	}
	if f.BucketCount == 0 {
		f.BucketCount = DefaultBucketCount
	}
	if f.TopK < f.VocabSize {
		f.TopK = f.VocabSize
	}
	return f
}

// Storage selects the SQL sink used to export statistics and anomalies.
// Kind "" disables the export.
type Storage struct {
	Kind string   `json:"kind"`
	DB   DBConfig `json:"db"`
}

// DBConfig configures the SQL sink.
type DBConfig struct {
	// DSN is the connection string (pgx for postgres, file path for sqlite,
	// sqlserver:// URL for mssql).
	DSN string `json:"dsn"`

	// StatisticsTable receives one row per column per run.
	StatisticsTable string `json:"statistics_table"`

	// AnomaliesTable receives one row per anomaly per run.
	AnomaliesTable string `json:"anomalies_table"`

	// AutoCreateTable creates both tables when missing.
	AutoCreateTable bool `json:"auto_create_table"`
}

// RuntimeConfig controls parallelism and buffering.
type RuntimeConfig struct {
	// Workers is the number of partitions used by the analyze and statistics
	// passes. Zero falls back to FEATUREPIPE_WORKERS, then GOMAXPROCS.
	Workers int `json:"workers"`

	// Shards is the number of output files written by a transform run.
	Shards int `json:"shards"`

	// ShuffleSeed seeds the assignment of rows to output shards.
	ShuffleSeed uint64 `json:"shuffle_seed"`

	ChannelBuffer int `json:"channel_buffer"`
}

// Load reads and decodes a pipeline file.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	// oov_size defaults to DefaultOOVSize only when the key is absent; an
	// explicit 0 is kept.
	var p Pipeline
	p.Features.OOVSize = DefaultOOVSize
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if p.Parser.Options == nil {
		p.Parser.Options = Options{}
	}
	return p, nil
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs only minimal type coercion and returns the provided default when
// a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// so both float64 and int are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def. Useful for
// single-character settings such as a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// UnmarshalJSON makes a missing or null "options" object decode to an empty,
// non-nil Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
