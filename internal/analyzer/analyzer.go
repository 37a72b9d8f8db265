// Package analyzer learns transform parameters from the full decoded record
// stream. Like the statistics collector it is a combiner: partitions
// accumulate independently, merge in any order, and Finalize produces the
// artifact. Every result is a function of the merged multiset of values only,
// never of partition layout or record order.
package analyzer

import (
	"fmt"
	"sort"

	"featurepipe/internal/artifact"
	"featurepipe/internal/feature"
	"featurepipe/internal/record"
	"featurepipe/internal/stats"
)

type column struct {
	spec feature.Spec

	moments stats.Moments     // scale
	terms   map[string]int64  // vocabulary
	hist    map[float64]int64 // bucketize
}

// State is the partial analysis of one partition.
type State struct {
	cfg  feature.Config
	rows int64
	cols []column
}

// NewState returns an empty state for the features declared in cfg.
func NewState(cfg feature.Config) *State {
	st := &State{cfg: cfg}
	for _, spec := range cfg.Specs() {
		c := column{spec: spec}
		switch spec.Kind {
		case feature.KindVocabulary:
			c.terms = make(map[string]int64)
		case feature.KindBucketize:
			c.hist = make(map[float64]int64)
		case feature.KindScale:
		default:
			// Passthrough and label learn nothing.
			continue
		}
		st.cols = append(st.cols, c)
	}
	return st
}

// Rows returns the number of records folded into st.
func (st *State) Rows() int64 { return st.rows }

// Accumulate folds one record into st. Missing values are filled before they
// are counted: 0 for numeric columns and "" for strings.
func (st *State) Accumulate(r record.Raw) {
	st.rows++
	for i := range st.cols {
		c := &st.cols[i]
		v := r.Get(c.spec.Name).Fill(c.spec.Numeric())
		switch c.spec.Kind {
		case feature.KindScale:
			// A non-numeric token in a STRING-typed scale column counts as 0.
			f, _ := v.Float()
			c.moments.Add(f)
		case feature.KindVocabulary:
			c.terms[v.Raw]++
		case feature.KindBucketize:
			f, _ := v.Float()
			c.hist[f]++
		}
	}
}

// Merge folds o into st. o is left unchanged.
func (st *State) Merge(o *State) error {
	if len(st.cols) != len(o.cols) {
		return fmt.Errorf("analyzer: merge of states with different features")
	}
	st.rows += o.rows
	for i := range st.cols {
		a, b := &st.cols[i], &o.cols[i]
		if a.spec != b.spec {
			return fmt.Errorf("analyzer: merge of %q with %q", a.spec.Name, b.spec.Name)
		}
		a.moments.Merge(&b.moments)
		for k, n := range b.terms {
			a.terms[k] += n
		}
		for k, n := range b.hist {
			a.hist[k] += n
		}
	}
	return nil
}

// MergeAll reduces states pairwise into the first one.
func MergeAll(states []*State) (*State, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("analyzer: nothing to merge")
	}
	for step := 1; step < len(states); step *= 2 {
		for i := 0; i+step < len(states); i += 2 * step {
			if err := states[i].Merge(states[i+step]); err != nil {
				return nil, err
			}
		}
	}
	return states[0], nil
}

// Finalize computes the artifact covering every declared feature.
func (st *State) Finalize() *artifact.Artifact {
	cfg := st.cfg
	a := &artifact.Artifact{
		VocabSize:   cfg.VocabSize(),
		OOVSize:     cfg.OOVSize(),
		BucketCount: cfg.BucketCount(),
	}
	learned := make(map[string]*column, len(st.cols))
	for i := range st.cols {
		learned[st.cols[i].spec.Name] = &st.cols[i]
	}

	for _, spec := range cfg.Specs() {
		f := artifact.Feature{Name: spec.Name, Kind: spec.Kind, Type: spec.Type}
		c := learned[spec.Name]
		switch spec.Kind {
		case feature.KindScale:
			mean, sd := c.moments.MeanStddev()
			f.Scale = &artifact.ScaleParams{Mean: mean, Stddev: sd}
		case feature.KindVocabulary:
			f.Vocabulary = &artifact.VocabularyParams{
				Terms:          SelectVocabulary(c.terms, cfg.VocabSize()),
				OOVBucketCount: cfg.OOVSize(),
			}
		case feature.KindBucketize:
			f.Bucketize = &artifact.BucketizeParams{Boundaries: Quantiles(c.hist, cfg.BucketCount())}
		}
		a.Features = append(a.Features, f)
	}
	return a
}

// SelectVocabulary orders terms by descending count, ties by ascending value,
// and keeps the first size entries. The id of a term is its index.
func SelectVocabulary(counts map[string]int64, size int) []string {
	ordered := stats.SortedCounts(counts)
	if len(ordered) > size {
		ordered = ordered[:size]
	}
	terms := make([]string, len(ordered))
	for i, vc := range ordered {
		terms[i] = vc.Value
	}
	return terms
}

// Quantiles returns buckets-1 equal-frequency boundaries over the multiset
// described by hist (value -> count). Boundary i is the i/buckets quantile,
// linearly interpolated between the two closest ranks. An empty histogram
// yields all-zero boundaries.
func Quantiles(hist map[float64]int64, buckets int) []float64 {
	if buckets < 2 {
		return []float64{}
	}
	out := make([]float64, buckets-1)

	values := make([]float64, 0, len(hist))
	var n int64
	for v, c := range hist {
		values = append(values, v)
		n += c
	}
	if n == 0 {
		return out
	}
	sort.Float64s(values)

	// cum[i] is the number of observations <= values[i].
	cum := make([]int64, len(values))
	var run int64
	for i, v := range values {
		run += hist[v]
		cum[i] = run
	}
	// at returns the value of rank k (0-based) in the sorted multiset.
	at := func(k int64) float64 {
		i := sort.Search(len(cum), func(i int) bool { return cum[i] > k })
		return values[i]
	}

	for i := 1; i < buckets; i++ {
		pos := float64(i) * float64(n-1) / float64(buckets)
		lo := int64(pos)
		frac := pos - float64(lo)
		q := at(lo)
		if frac > 0 && lo+1 < n {
			q += frac * (at(lo+1) - q)
		}
		out[i-1] = q
	}
	return out
}
