// Package feature holds the declarative feature configuration: which raw
// columns are transformed how, and the encoding constants. A Config is built
// once from the pipeline file and passed by value to every component; it has
// no mutable state.
package feature

import (
	"fmt"
	"sort"

	"featurepipe/internal/config"
	"featurepipe/internal/schema"
)

// Kind tags the transform applied to a feature.
type Kind string

const (
	KindScale       Kind = "scale"
	KindVocabulary  Kind = "vocabulary"
	KindBucketize   Kind = "bucketize"
	KindPassthrough Kind = "passthrough"
	KindLabel       Kind = "label"
)

// TransformedSuffix marks output keys so they never collide with raw names.
const TransformedSuffix = "_xf"

// TransformedName returns the output key for raw column name.
func TransformedName(name string) string { return name + TransformedSuffix }

// Spec declares one feature.
type Spec struct {
	Name string
	Kind Kind
	Type schema.Type // raw column type
}

// Numeric reports whether the raw column is numeric, which selects the fill
// used for missing values.
func (s Spec) Numeric() bool { return s.Type.Numeric() }

// Config is the immutable feature declaration.
type Config struct {
	specs       []Spec
	vocabSize   int
	oovSize     int
	bucketCount int
	topK        int
}

// FromConfig resolves the declared feature lists against s. Every feature must
// name a schema column and no column may be declared twice. Features are kept
// in schema column order so that iteration is deterministic.
func FromConfig(f config.Features, s *schema.Schema) (Config, error) {
	f = f.WithDefaults()
	if f.OOVSize < 0 || f.VocabSize < 0 || f.BucketCount < 1 {
		return Config{}, fmt.Errorf("feature: invalid constants vocab_size=%d oov_size=%d bucket_count=%d",
			f.VocabSize, f.OOVSize, f.BucketCount)
	}

	kinds := map[string]Kind{}
	add := func(k Kind, names ...string) error {
		for _, n := range names {
			if prev, dup := kinds[n]; dup {
				return fmt.Errorf("feature: %q declared as both %s and %s", n, prev, k)
			}
			if s.Index(n) < 0 {
				return fmt.Errorf("feature: %s feature %q is not a schema column", k, n)
			}
			kinds[n] = k
		}
		return nil
	}
	if f.Label != "" {
		if err := add(KindLabel, f.Label); err != nil {
			return Config{}, err
		}
	}
	for _, g := range []struct {
		k     Kind
		names []string
	}{
		{KindScale, f.Scale},
		{KindVocabulary, f.Vocabulary},
		{KindBucketize, f.Bucketize},
		{KindPassthrough, f.Passthrough},
	} {
		if err := add(g.k, g.names...); err != nil {
			return Config{}, err
		}
	}

	c := Config{
		vocabSize:   f.VocabSize,
		oovSize:     f.OOVSize,
		bucketCount: f.BucketCount,
		topK:        f.TopK,
	}
	for _, col := range s.Columns() {
		if k, ok := kinds[col.Name]; ok {
			c.specs = append(c.specs, Spec{Name: col.Name, Kind: k, Type: col.Type})
		}
	}
	return c, nil
}

// Specs returns a copy of the declared features in schema order.
func (c Config) Specs() []Spec { return append([]Spec(nil), c.specs...) }

// Len returns the number of declared features, label included.
func (c Config) Len() int { return len(c.specs) }

// Label returns the label spec, if one is declared.
func (c Config) Label() (Spec, bool) {
	for _, s := range c.specs {
		if s.Kind == KindLabel {
			return s, true
		}
	}
	return Spec{}, false
}

// Names returns the declared raw names of kind k, sorted.
func (c Config) Names(k Kind) []string {
	var out []string
	for _, s := range c.specs {
		if s.Kind == k {
			out = append(out, s.Name)
		}
	}
	sort.Strings(out)
	return out
}

func (c Config) VocabSize() int   { return c.vocabSize }
func (c Config) OOVSize() int     { return c.oovSize }
func (c Config) BucketCount() int { return c.bucketCount }
func (c Config) TopK() int        { return c.topK }
