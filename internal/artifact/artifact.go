// Package artifact persists the parameters learned by the analyze phase.
//
// Layout under a transform directory:
//
//	transform_fn/artifact.json              per-feature parameters
//	transform_fn/MANIFEST.json              run id, checksum, schema fingerprint
//	transformed_metadata/feature_spec.yaml  output feature description
//
// An artifact is written once and only ever read afterwards.
package artifact

import (
	"errors"
	"fmt"

	"featurepipe/internal/feature"
	"featurepipe/internal/schema"
)

// ErrArtifactExists is returned by Write when the directory already holds an
// artifact.
var ErrArtifactExists = errors.New("artifact: transform artifact already exists")

// MissingArtifactError reports an artifact that is absent, incomplete or
// inconsistent with the schema or feature declaration of the current run.
type MissingArtifactError struct {
	Dir     string
	Feature string // empty when the whole artifact is affected
	Reason  string
	Err     error
}

func (e *MissingArtifactError) Error() string {
	msg := "missing artifact in " + e.Dir
	if e.Feature != "" {
		msg += fmt.Sprintf(" for feature %q", e.Feature)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MissingArtifactError) Unwrap() error { return e.Err }

// ScaleParams are the moments of a scaled feature.
type ScaleParams struct {
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
}

// VocabularyParams hold the selected terms in id order.
type VocabularyParams struct {
	Terms          []string `json:"terms"`
	OOVBucketCount int      `json:"oov_bucket_count"`
}

// BucketizeParams hold the sorted quantile boundaries.
type BucketizeParams struct {
	Boundaries []float64 `json:"boundaries"`
}

// Feature is the tagged parameter set of one feature. Exactly the member
// matching Kind is set; passthrough and label features carry none.
type Feature struct {
	Name string       `json:"name"`
	Kind feature.Kind `json:"kind"`
	Type schema.Type  `json:"type"`

	Scale      *ScaleParams      `json:"scale,omitempty"`
	Vocabulary *VocabularyParams `json:"vocabulary,omitempty"`
	Bucketize  *BucketizeParams  `json:"bucketize,omitempty"`
}

// Artifact is the complete output of one analyze run.
type Artifact struct {
	VocabSize   int       `json:"vocab_size"`
	OOVSize     int       `json:"oov_size"`
	BucketCount int       `json:"bucket_count"`
	Features    []Feature `json:"features"`
}

// Feature returns the parameters of the named raw feature.
func (a *Artifact) Feature(name string) (Feature, bool) {
	for _, f := range a.Features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// Check verifies that every feature declared in cfg has parameters of the
// right kind and that the encoding constants agree.
func (a *Artifact) Check(dir string, cfg feature.Config) error {
	if a.VocabSize != cfg.VocabSize() || a.OOVSize != cfg.OOVSize() || a.BucketCount != cfg.BucketCount() {
		return &MissingArtifactError{Dir: dir, Reason: fmt.Sprintf(
			"constants vocab_size=%d oov_size=%d bucket_count=%d differ from the configured %d/%d/%d",
			a.VocabSize, a.OOVSize, a.BucketCount, cfg.VocabSize(), cfg.OOVSize(), cfg.BucketCount())}
	}
	for _, spec := range cfg.Specs() {
		f, ok := a.Feature(spec.Name)
		if !ok {
			return &MissingArtifactError{Dir: dir, Feature: spec.Name, Reason: "no entry"}
		}
		if f.Kind != spec.Kind {
			return &MissingArtifactError{Dir: dir, Feature: spec.Name,
				Reason: fmt.Sprintf("entry is %s, feature is declared %s", f.Kind, spec.Kind)}
		}
		if err := f.validate(); err != nil {
			return &MissingArtifactError{Dir: dir, Feature: spec.Name, Reason: "incomplete entry", Err: err}
		}
	}
	return nil
}

func (f Feature) validate() error {
	switch f.Kind {
	case feature.KindScale:
		if f.Scale == nil {
			return errors.New("scale parameters absent")
		}
	case feature.KindVocabulary:
		if f.Vocabulary == nil {
			return errors.New("vocabulary absent")
		}
	case feature.KindBucketize:
		if f.Bucketize == nil {
			return errors.New("boundaries absent")
		}
		b := f.Bucketize.Boundaries
		for i := 1; i < len(b); i++ {
			if b[i] < b[i-1] {
				return fmt.Errorf("boundaries not sorted at %d", i)
			}
		}
	}
	return nil
}

// DType is the value kind of the transformed feature: "float", "int64" or
// "bytes".
func (f Feature) DType() string {
	switch f.Kind {
	case feature.KindScale:
		return "float"
	case feature.KindVocabulary, feature.KindBucketize:
		return "int64"
	}
	switch f.Type {
	case schema.TypeFloat:
		return "float"
	case schema.TypeInt:
		return "int64"
	default:
		return "bytes"
	}
}
