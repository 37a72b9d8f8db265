// Package stats computes per-column aggregate statistics in a single pass.
//
// A State is a pure combiner: Accumulate folds one record into a partition's
// state, Merge folds another partition in, and Finalize turns the merged state
// into Statistics. Merge is associative and commutative so partitions can be
// reduced in any tree shape.
package stats

import (
	"fmt"
	"strconv"

	"featurepipe/internal/record"
	"featurepipe/internal/schema"
)

// column is the accumulator of one column.
type column struct {
	name     string
	declared schema.Type

	count      int64 // present values
	missing    int64
	nonNumeric int64 // present values that do not parse as a number
	fractional bool  // a numeric value was seen that is not an integer literal

	moments Moments
	top     *TopK // nil for columns declared numeric
}

// State is the partial statistics of one partition.
type State struct {
	fingerprint string
	rows        int64
	cols        []column
}

// NewState returns an empty state for s. topK bounds the frequency table kept
// per STRING column; callers pass at least the vocabulary size.
func NewState(s *schema.Schema, topK int) *State {
	st := &State{fingerprint: s.Fingerprint(), cols: make([]column, s.Len())}
	for i, c := range s.Columns() {
		st.cols[i] = column{name: c.Name, declared: c.Type}
		if !c.Type.Numeric() {
			st.cols[i].top = NewTopK(topK)
		}
	}
	return st
}

// Rows returns the number of records folded into st.
func (st *State) Rows() int64 { return st.rows }

// Accumulate folds one decoded record into st.
func (st *State) Accumulate(r record.Raw) {
	st.rows++
	for i := range st.cols {
		c := &st.cols[i]
		v := r.Get(c.name)
		if v.Missing() {
			c.missing++
			continue
		}
		c.count++
		if c.top != nil {
			c.top.Add(v.Raw)
		}
		f, ok := v.Float()
		if !ok || !c.moments.Add(f) {
			c.nonNumeric++
			continue
		}
		if !c.fractional {
			if _, err := strconv.ParseInt(v.Raw, 10, 64); err != nil {
				c.fractional = true
			}
		}
	}
}

// Merge folds o into st. Both states must have been created from the same
// schema. o is left unchanged.
func (st *State) Merge(o *State) error {
	if st.fingerprint != o.fingerprint || len(st.cols) != len(o.cols) {
		return fmt.Errorf("stats: merge of states built from different schemas")
	}
	st.rows += o.rows
	for i := range st.cols {
		a, b := &st.cols[i], &o.cols[i]
		a.count += b.count
		a.missing += b.missing
		a.nonNumeric += b.nonNumeric
		a.fractional = a.fractional || b.fractional
		a.moments.Merge(&b.moments)
		if a.top != nil {
			a.top.Merge(b.top)
		}
	}
	return nil
}

// MergeAll reduces states pairwise, level by level, the way a distributed
// combiner tree would. The first element receives the result. An empty slice
// yields nil.
func MergeAll(states []*State) (*State, error) {
	if len(states) == 0 {
		return nil, nil
	}
	level := append([]*State(nil), states...)
	for len(level) > 1 {
		next := level[:0:0]
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			if err := level[i].Merge(level[i+1]); err != nil {
				return nil, err
			}
			next = append(next, level[i])
		}
		level = next
	}
	return level[0], nil
}

// Finalize derives Statistics from st. st stays usable.
func (st *State) Finalize() *Statistics {
	out := &Statistics{NumRows: st.rows, Features: make([]FeatureStatistics, len(st.cols))}
	for i := range st.cols {
		c := &st.cols[i]
		fs := FeatureStatistics{
			Name:    c.name,
			Type:    c.inferredType(),
			Count:   c.count,
			Missing: c.missing,
		}
		if fs.Type.Numeric() && c.moments.Count > 0 {
			mean, sd := c.moments.MeanStddev()
			fs.Numeric = &NumericStats{Min: c.moments.Min, Max: c.moments.Max, Mean: mean, Stddev: sd}
		}
		if c.top != nil && fs.Type == schema.TypeString {
			fs.TopValues = c.top.Top()
			fs.Unique = int64(len(fs.TopValues))
		}
		out.Features[i] = fs
	}
	return out
}

// inferredType is the type the observed values support: numeric when every
// present value parses as a number, INT unless a fractional value was seen.
// A column with no present values keeps its declared type.
func (c *column) inferredType() schema.Type {
	switch {
	case c.count == 0:
		return c.declared
	case c.nonNumeric > 0:
		return schema.TypeString
	case c.fractional:
		return schema.TypeFloat
	default:
		return schema.TypeInt
	}
}
