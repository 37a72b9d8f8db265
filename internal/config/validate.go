// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "features.scale[1]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains at least one SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Callers may decide whether to treat
// warnings as fatal or not.
//
// Example:
//
//	p, err := config.Load(path)
//	if err != nil { ... }
//	for _, iss := range config.ValidatePipeline(p) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateSource(p.Source)...)
	issues = append(issues, validateParser(p.Parser)...)
	issues = append(issues, validateFeatures(p.Features)...)
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

// ValidateColumns checks that every configured feature names a column in
// names. It is separate from ValidatePipeline because the schema is only
// known once it has been read or derived.
func ValidateColumns(f Features, names []string) []Issue {
	known := make(map[string]struct{}, len(names))
	for _, n := range names {
		known[n] = struct{}{}
	}

	var issues []Issue
	check := func(path, name string) {
		if name == "" {
			return
		}
		if _, ok := known[name]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("feature %q is not a schema column", name),
			})
		}
	}
	check("features.label", f.Label)
	for list, cols := range f.lists() {
		for i, c := range cols {
			check(fmt.Sprintf("features.%s[%d]", list, i), c)
		}
	}
	return issues
}

// lists returns the per-kind column lists keyed by their JSON name.
func (f Features) lists() map[string][]string {
	return map[string][]string{
		"scale":       f.Scale,
		"vocabulary":  f.Vocabulary,
		"bucketize":   f.Bucketize,
		"passthrough": f.Passthrough,
	}
}

// validateSource validates Source configuration. The source is optional since
// command-line input paths take precedence.
func validateSource(s Source) []Issue {
	var issues []Issue

	switch s.Kind {
	case "":
		if s.File.Path != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.kind",
				Message:  `source.file.path is set but source.kind is empty; assuming "file"`,
			})
		}
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "source.file.path",
				Message:  "file source has no path; -input must be given on the command line",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q", s.Kind),
		})
	}

	return issues
}

// validateParser validates parser configuration.
func validateParser(p Parser) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  "parser.kind must not be empty",
		})
		return issues
	}
	if p.Kind != "csv" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unsupported parser kind %q; only csv is implemented", p.Kind),
		})
		return issues
	}

	if c := p.Options.String("comma", ","); len([]rune(c)) != 1 || c == "\n" || c == "\r" || c == `"` {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "parser.options.comma",
			Message:  fmt.Sprintf("comma %q must be a single non-quote, non-newline character", c),
		})
	}
	if !p.Options.Bool("has_header", true) {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.options.has_header",
			Message:  "has_header=false; a schema file is required since column names cannot be derived",
		})
	}

	return issues
}

// validateFeatures validates the feature declaration and encoding constants.
func validateFeatures(f Features) []Issue {
	var issues []Issue

	seen := map[string]string{}
	if f.Label != "" {
		seen[f.Label] = "features.label"
	}

	total := 0
	for _, list := range []string{"scale", "vocabulary", "bucketize", "passthrough"} {
		for i, c := range f.lists()[list] {
			path := fmt.Sprintf("features.%s[%d]", list, i)
			if strings.TrimSpace(c) == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  "feature name must not be empty",
				})
				continue
			}
			if prev, dup := seen[c]; dup {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  fmt.Sprintf("feature %q already declared at %s", c, prev),
				})
				continue
			}
			seen[c] = path
			total++
		}
	}
	if total == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "features",
			Message:  "no features declared; transform output will only carry the label",
		})
	}
	if f.Label == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "features.label",
			Message:  "no label declared",
		})
	}

	if f.VocabSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "features.vocab_size",
			Message:  "vocab_size must not be negative",
		})
	}
	if f.OOVSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "features.oov_size",
			Message:  "oov_size must not be negative",
		})
	} else if f.OOVSize == 0 && len(f.Vocabulary) > 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "features.oov_size",
			Message:  "oov_size=0; out-of-vocabulary values map to -1",
		})
	}
	if f.BucketCount < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "features.bucket_count",
			Message:  "bucket_count must not be negative",
		})
	}
	if f.TopK < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "features.top_k",
			Message:  "top_k must not be negative",
		})
	} else if f.TopK > 0 && f.TopK < f.WithDefaults().VocabSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "features.top_k",
			Message:  "top_k is below vocab_size and will be raised to it",
		})
	}

	return issues
}

// validateStorage validates the optional statistics export sink.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return issues
	}

	known := map[string]struct{}{
		"postgres": {},
		"sqlite":   {},
		"mssql":    {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	db := s.DB
	if strings.TrimSpace(db.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.dsn",
			Message:  "storage.db.dsn must not be empty",
		})
	}
	if strings.TrimSpace(db.StatisticsTable) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.db.statistics_table",
			Message:  "storage.db.statistics_table must not be empty",
		})
	}
	if strings.TrimSpace(db.AnomaliesTable) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.db.anomalies_table",
			Message:  "storage.db.anomalies_table is empty; anomalies will not be exported",
		})
	}

	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations.
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.Shards < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.shards",
			Message:  "shards must not be negative",
		})
	} else if r.Shards > 99999 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.shards",
			Message:  fmt.Sprintf("shards=%d exceeds the five-digit shard name limit", r.Shards),
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must not be negative",
		})
	}

	return issues
}
