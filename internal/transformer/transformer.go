// Package transformer applies a persisted artifact to decoded records.
//
// New compiles the artifact into a per-feature plan once; Apply then runs one
// small closure per feature with no map lookups into the artifact. Apply is
// pure: the same record always produces the same output, whichever goroutine
// calls it, so one Transformer may be shared freely.
package transformer

import (
	"sort"
	"strconv"

	"github.com/zeebo/xxh3"

	"featurepipe/internal/artifact"
	"featurepipe/internal/feature"
	"featurepipe/internal/record"
)

// Kind is the value kind of a transformed feature.
type Kind uint8

const (
	KindFloat Kind = iota
	KindInt
	KindBytes
)

// Value is one transformed scalar.
type Value struct {
	Kind  Kind
	Float float64
	Int   int64
	Bytes string
}

func floatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func intValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }

// Any returns the scalar as float64, int64 or string.
func (v Value) Any() any {
	switch v.Kind {
	case KindFloat:
		return v.Float
	case KindInt:
		return v.Int
	default:
		return v.Bytes
	}
}

// Record maps transformed feature names to values.
type Record map[string]Value

// Keys returns the feature names of r in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scale returns the z-score of x, or 0 when stddev is 0.
func Scale(x, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return (x - mean) / stddev
}

// OOVBucket returns the out-of-vocabulary id of v: vocabSize plus a stable
// hash of v modulo oovSize. With no OOV buckets it returns -1.
func OOVBucket(v string, vocabSize, oovSize int) int64 {
	if oovSize <= 0 {
		return -1
	}
	return int64(vocabSize) + int64(xxh3.HashString(v)%uint64(oovSize))
}

// Bucket returns the index of the first boundary >= x, so values equal to a
// boundary fall in the lower bucket. The result is in [0, len(boundaries)].
func Bucket(x float64, boundaries []float64) int64 {
	return int64(sort.SearchFloat64s(boundaries, x))
}

type step struct {
	in    string
	out   string
	apply func(record.Value) Value
}

// Transformer is a compiled artifact.
type Transformer struct {
	steps []step
}

// New compiles a against the declared features. Every declared feature must
// have a matching artifact entry; otherwise New returns a
// *artifact.MissingArtifactError.
func New(a *artifact.Artifact, cfg feature.Config, dir string) (*Transformer, error) {
	if err := a.Check(dir, cfg); err != nil {
		return nil, err
	}
	t := &Transformer{}
	for _, spec := range cfg.Specs() {
		f, _ := a.Feature(spec.Name)
		t.steps = append(t.steps, step{
			in:    spec.Name,
			out:   feature.TransformedName(spec.Name),
			apply: compile(f, a.VocabSize, a.OOVSize),
		})
	}
	return t, nil
}

func compile(f artifact.Feature, vocabSize, oovSize int) func(record.Value) Value {
	numeric := f.Type.Numeric()
	switch f.Kind {
	case feature.KindScale:
		mean, sd := f.Scale.Mean, f.Scale.Stddev
		return func(v record.Value) Value {
			x, _ := v.Fill(numeric).Float()
			return floatValue(Scale(x, mean, sd))
		}
	case feature.KindVocabulary:
		ids := make(map[string]int64, len(f.Vocabulary.Terms))
		for i, term := range f.Vocabulary.Terms {
			ids[term] = int64(i)
		}
		return func(v record.Value) Value {
			s := v.Fill(numeric).Raw
			if id, ok := ids[s]; ok {
				return intValue(id)
			}
			return intValue(OOVBucket(s, vocabSize, oovSize))
		}
	case feature.KindBucketize:
		b := f.Bucketize.Boundaries
		return func(v record.Value) Value {
			x, _ := v.Fill(numeric).Float()
			return intValue(Bucket(x, b))
		}
	}

	// Passthrough and label: fill only.
	dtype := f.DType()
	return func(v record.Value) Value {
		v = v.Fill(numeric)
		switch dtype {
		case "float":
			x, _ := v.Float()
			return floatValue(x)
		case "int64":
			if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
				return intValue(i)
			}
			x, _ := v.Float()
			return intValue(int64(x))
		}
		return Value{Kind: KindBytes, Bytes: v.Raw}
	}
}

// Apply transforms one record. Every declared feature yields one output value.
func (t *Transformer) Apply(r record.Raw) Record {
	out := make(Record, len(t.steps))
	for _, s := range t.steps {
		out[s.out] = s.apply(r.Get(s.in))
	}
	return out
}
