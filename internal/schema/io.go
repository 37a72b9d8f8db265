package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrExists is returned by WriteFile when the destination already holds a
// schema. Schemas are versioned artifacts; a new version goes to a new path.
var ErrExists = errors.New("schema: artifact already exists")

// document is the on-disk text form.
type document struct {
	Version int      `yaml:"version"`
	Columns []Column `yaml:"columns"`
}

const currentVersion = 1

// Marshal renders s in its YAML text form.
func Marshal(s *Schema) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document{Version: currentVersion, Columns: s.columns}); err != nil {
		return nil, fmt.Errorf("schema: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("schema: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses the YAML text form.
func Unmarshal(b []byte) (*Schema, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	if doc.Version != 0 && doc.Version != currentVersion {
		return nil, fmt.Errorf("schema: unsupported version %d", doc.Version)
	}
	return New(doc.Columns)
}

// ReadFile loads a schema artifact from path.
func ReadFile(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// WriteFile materializes s at path. The file appears atomically and an
// existing file is never replaced (ErrExists).
func WriteFile(path string, s *Schema) error {
	b, err := Marshal(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("schema: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".schema-*.tmp")
	if err != nil {
		return fmt.Errorf("schema: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("schema: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("schema: close: %w", err)
	}
	// Link fails when path exists, which keeps the artifact write-once.
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("schema: publish %s: %w", path, err)
	}
	return nil
}
