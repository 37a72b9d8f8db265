package stats

import "sort"

// ValueCount is one entry of a frequency table.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// TopK is a bounded frequency table. It keeps exact counts until the table
// grows past four times its bound, then prunes back to the K most frequent
// values. Merge sums counts per key and truncates to K. Once pruning has
// happened the retained counts are approximate: occurrences seen before a
// value was pruned are lost.
type TopK struct {
	k      int
	counts map[string]int64
}

// NewTopK returns an empty table bounded to k entries.
func NewTopK(k int) *TopK {
	if k < 1 {
		k = 1
	}
	return &TopK{k: k, counts: make(map[string]int64)}
}

// Add counts one occurrence of v.
func (t *TopK) Add(v string) {
	t.counts[v]++
	if len(t.counts) > 4*t.k {
		t.prune()
	}
}

// Merge adds o's counts into t and truncates to t's bound.
func (t *TopK) Merge(o *TopK) {
	for v, c := range o.counts {
		t.counts[v] += c
	}
	if len(t.counts) > t.k {
		t.prune()
	}
}

// Len returns the number of distinct values currently tracked. It depends on
// when pruning ran; min(Len, K) does not.
func (t *TopK) Len() int { return len(t.counts) }

// Top returns at most K entries ordered by descending count, ties broken by
// ascending value.
func (t *TopK) Top() []ValueCount {
	out := sorted(t.counts)
	if len(out) > t.k {
		out = out[:t.k]
	}
	return out
}

func (t *TopK) prune() {
	keep := sorted(t.counts)
	if len(keep) <= t.k {
		return
	}
	for _, vc := range keep[t.k:] {
		delete(t.counts, vc.Value)
	}
}

// sorted returns counts ordered by descending count then ascending value.
func sorted(counts map[string]int64) []ValueCount {
	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// SortedCounts exposes the frequency ordering used by TopK for callers that
// keep their own exact tables.
func SortedCounts(counts map[string]int64) []ValueCount { return sorted(counts) }
