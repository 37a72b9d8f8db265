package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"featurepipe/internal/feature"
)

const (
	fnDir       = "transform_fn"
	metaDir     = "transformed_metadata"
	paramsFile  = "artifact.json"
	manifest    = "MANIFEST.json"
	featureSpec = "feature_spec.yaml"
)

// Manifest identifies one persisted artifact.
type Manifest struct {
	RunID             string    `json:"run_id"`
	CreatedAt         time.Time `json:"created_at"`
	Checksum          string    `json:"checksum"`
	SchemaFingerprint string    `json:"schema_fingerprint"`
	Features          int       `json:"features"`
}

// SpecEntry describes one transformed output feature for downstream model
// wiring.
type SpecEntry struct {
	Name       string `yaml:"name" json:"name"`
	Source     string `yaml:"source" json:"source"`
	Kind       string `yaml:"kind" json:"kind"`
	DType      string `yaml:"dtype" json:"dtype"`
	NumBuckets int    `yaml:"num_buckets,omitempty" json:"num_buckets,omitempty"`
}

// FeatureSpec returns the transformed feature description of a.
func (a *Artifact) FeatureSpec() []SpecEntry {
	out := make([]SpecEntry, 0, len(a.Features))
	for _, f := range a.Features {
		e := SpecEntry{
			Name:   feature.TransformedName(f.Name),
			Source: f.Name,
			Kind:   string(f.Kind),
			DType:  f.DType(),
		}
		switch f.Kind {
		case feature.KindVocabulary:
			e.NumBuckets = a.VocabSize + a.OOVSize
		case feature.KindBucketize:
			e.NumBuckets = a.BucketCount
		}
		out = append(out, e)
	}
	return out
}

func checksum(b []byte) string { return fmt.Sprintf("xxh3:%016x", xxh3.Hash(b)) }

// Write persists a under dir. The parameters appear all at once: files are
// staged in a temporary sibling directory and renamed into place, the
// transform_fn rename being the commit point. Write fails with
// ErrArtifactExists when dir already holds an artifact.
func Write(dir string, a *Artifact, schemaFingerprint string) (Manifest, error) {
	final := filepath.Join(dir, fnDir)
	if _, err := os.Stat(final); err == nil {
		return Manifest{}, fmt.Errorf("%w: %s", ErrArtifactExists, final)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, fmt.Errorf("artifact: mkdir %s: %w", dir, err)
	}

	params, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("artifact: encode params: %w", err)
	}
	m := Manifest{
		RunID:             uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		Checksum:          checksum(params),
		SchemaFingerprint: schemaFingerprint,
		Features:          len(a.Features),
	}
	mb, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("artifact: encode manifest: %w", err)
	}
	var spec bytes.Buffer
	enc := yaml.NewEncoder(&spec)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"features": a.FeatureSpec()}); err != nil {
		return Manifest{}, fmt.Errorf("artifact: encode feature spec: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Manifest{}, fmt.Errorf("artifact: encode feature spec: %w", err)
	}

	tmp, err := os.MkdirTemp(dir, ".artifact-*")
	if err != nil {
		return Manifest{}, fmt.Errorf("artifact: staging dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	files := []struct {
		sub, name string
		data      []byte
	}{
		{fnDir, paramsFile, params},
		{fnDir, manifest, mb},
		{metaDir, featureSpec, spec.Bytes()},
	}
	for _, f := range files {
		p := filepath.Join(tmp, f.sub, f.name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return Manifest{}, fmt.Errorf("artifact: mkdir: %w", err)
		}
		if err := os.WriteFile(p, f.data, 0o644); err != nil {
			return Manifest{}, fmt.Errorf("artifact: write %s: %w", f.name, err)
		}
	}

	// Metadata left behind by an interrupted run without a committed
	// transform_fn is stale.
	meta := filepath.Join(dir, metaDir)
	if err := os.RemoveAll(meta); err != nil {
		return Manifest{}, fmt.Errorf("artifact: clear %s: %w", meta, err)
	}
	if err := os.Rename(filepath.Join(tmp, metaDir), meta); err != nil {
		return Manifest{}, fmt.Errorf("artifact: publish metadata: %w", err)
	}
	if err := os.Rename(filepath.Join(tmp, fnDir), final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrArtifactExists, final)
		}
		return Manifest{}, fmt.Errorf("artifact: publish: %w", err)
	}
	return m, nil
}

// Load reads the artifact under dir. A non-empty schemaFingerprint must match
// the one recorded at write time. Any absence or mismatch is reported as a
// *MissingArtifactError.
func Load(dir, schemaFingerprint string) (*Artifact, Manifest, error) {
	missing := func(reason string, err error) (*Artifact, Manifest, error) {
		return nil, Manifest{}, &MissingArtifactError{Dir: dir, Reason: reason, Err: err}
	}

	mb, err := os.ReadFile(filepath.Join(dir, fnDir, manifest))
	if err != nil {
		return missing("manifest unreadable", err)
	}
	var m Manifest
	if err := json.Unmarshal(mb, &m); err != nil {
		return missing("manifest corrupt", err)
	}
	params, err := os.ReadFile(filepath.Join(dir, fnDir, paramsFile))
	if err != nil {
		return missing("parameters unreadable", err)
	}
	if got := checksum(params); got != m.Checksum {
		return missing(fmt.Sprintf("checksum %s does not match manifest %s", got, m.Checksum), nil)
	}
	if schemaFingerprint != "" && m.SchemaFingerprint != schemaFingerprint {
		return missing(fmt.Sprintf("written for schema %s, current schema is %s", m.SchemaFingerprint, schemaFingerprint), nil)
	}
	var a Artifact
	if err := json.Unmarshal(params, &a); err != nil {
		return missing("parameters corrupt", err)
	}
	return &a, m, nil
}
