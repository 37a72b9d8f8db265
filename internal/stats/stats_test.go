package stats

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featurepipe/internal/record"
	"featurepipe/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.Column{
		{Name: "cost", Type: schema.TypeFloat},
		{Name: "city", Type: schema.TypeString},
		{Name: "raw_num", Type: schema.TypeString},
	})
	require.NoError(t, err)
	return s
}

func testRecords() []record.Raw {
	var out []record.Raw
	cities := []string{"prague", "brno", "prague", "ostrava", "brno", "prague"}
	for i := 0; i < 30; i++ {
		r := record.Raw{"city": record.String(cities[i%len(cities)])}
		if i%7 != 3 {
			f := float64(i)*1.25 - 4
			r["cost"] = record.Number(fmt.Sprint(f), f)
		}
		r["raw_num"] = record.String(fmt.Sprint(i * 3))
		out = append(out, r)
	}
	return out
}

func accumulate(s *schema.Schema, recs []record.Raw) *State {
	st := NewState(s, 10)
	for _, r := range recs {
		st.Accumulate(r)
	}
	return st
}

func TestMoments_MeanAndPopulationStddev(t *testing.T) {
	t.Parallel()

	var m Moments
	for _, f := range []float64{10, 20, 0, 30} {
		m.Add(f)
	}
	mean, sd := m.MeanStddev()
	assert.InDelta(t, 15.0, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(125), sd, 1e-9)
	assert.Equal(t, 0.0, m.Min)
	assert.Equal(t, 30.0, m.Max)
}

func TestMoments_AddRejectsNonFinite(t *testing.T) {
	t.Parallel()

	var m Moments
	require.True(t, m.Add(2))
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.False(t, m.Add(f), "%v", f)
	}
	require.True(t, m.Add(4))

	mean, sd := m.MeanStddev()
	assert.Equal(t, int64(2), m.Count)
	assert.InDelta(t, 3.0, mean, 1e-12)
	assert.InDelta(t, 1.0, sd, 1e-12)
	assert.Equal(t, 4.0, m.Max)
}

func TestMoments_EmptyAndConstant(t *testing.T) {
	t.Parallel()

	var empty Moments
	mean, sd := empty.MeanStddev()
	assert.Zero(t, mean)
	assert.Zero(t, sd)

	var c Moments
	for i := 0; i < 5; i++ {
		c.Add(0.1)
	}
	mean, sd = c.MeanStddev()
	assert.InDelta(t, 0.1, mean, 1e-15)
	assert.Zero(t, sd, "constant column must have exactly zero stddev")
}

func TestMoments_CloneDoesNotAlias(t *testing.T) {
	t.Parallel()

	var m Moments
	m.Add(2)
	c := m.Clone()
	m.Add(100)

	mean, _ := c.MeanStddev()
	assert.Equal(t, int64(1), c.Count)
	assert.InDelta(t, 2.0, mean, 0)
}

func TestState_MergeIsPartitionIndependent(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	recs := testRecords()
	whole := accumulate(s, recs).Finalize()

	for _, parts := range []int{2, 3, 7} {
		parts := parts
		t.Run(fmt.Sprintf("parts=%d", parts), func(t *testing.T) {
			t.Parallel()

			// Round-robin partitioning, merged in reverse order.
			buckets := make([][]record.Raw, parts)
			for i, r := range recs {
				buckets[i%parts] = append(buckets[i%parts], r)
			}
			states := make([]*State, 0, parts)
			for i := parts - 1; i >= 0; i-- {
				states = append(states, accumulate(s, buckets[i]))
			}
			merged, err := MergeAll(states)
			require.NoError(t, err)
			got := merged.Finalize()

			require.Equal(t, whole.NumRows, got.NumRows)
			for i, w := range whole.Features {
				g := got.Features[i]
				assert.Equal(t, w.Type, g.Type, w.Name)
				assert.Equal(t, w.Count, g.Count, w.Name)
				assert.Equal(t, w.Missing, g.Missing, w.Name)
				assert.Equal(t, w.TopValues, g.TopValues, w.Name)
				if w.Numeric == nil {
					assert.Nil(t, g.Numeric, w.Name)
					continue
				}
				require.NotNil(t, g.Numeric, w.Name)
				assert.Equal(t, w.Numeric.Min, g.Numeric.Min)
				assert.Equal(t, w.Numeric.Max, g.Numeric.Max)
				assert.InDelta(t, w.Numeric.Mean, g.Numeric.Mean, 1e-9)
				assert.InDelta(t, w.Numeric.Stddev, g.Numeric.Stddev, 1e-9)
			}
		})
	}
}

func TestState_Finalize(t *testing.T) {
	t.Parallel()

	st := accumulate(testSchema(t), testRecords()).Finalize()

	cost, ok := st.Lookup("cost")
	require.True(t, ok)
	assert.Equal(t, schema.TypeFloat, cost.Type)
	assert.Equal(t, int64(4), cost.Missing) // i = 3, 10, 17, 24
	assert.Equal(t, int64(26), cost.Count)

	city, _ := st.Lookup("city")
	assert.Equal(t, schema.TypeString, city.Type)
	assert.Nil(t, city.Numeric)
	require.Len(t, city.TopValues, 3)
	assert.Equal(t, ValueCount{Value: "prague", Count: 15}, city.TopValues[0])
	assert.Equal(t, ValueCount{Value: "brno", Count: 10}, city.TopValues[1])

	// Declared STRING but every value is an integer literal.
	num, _ := st.Lookup("raw_num")
	assert.Equal(t, schema.TypeInt, num.Type)
	require.NotNil(t, num.Numeric)
	assert.Equal(t, 87.0, num.Numeric.Max)
}

func TestState_MergeRejectsOtherSchema(t *testing.T) {
	t.Parallel()

	other, err := schema.New([]schema.Column{{Name: "x", Type: schema.TypeInt}})
	require.NoError(t, err)
	a := NewState(testSchema(t), 5)
	assert.Error(t, a.Merge(NewState(other, 5)))
}

func TestTopK_TieBreakAndBound(t *testing.T) {
	t.Parallel()

	tk := NewTopK(2)
	for _, v := range []string{"b", "a", "c", "b", "a", "d"} {
		tk.Add(v)
	}
	assert.Equal(t, []ValueCount{{"a", 2}, {"b", 2}}, tk.Top())

	other := NewTopK(2)
	other.Add("c")
	other.Add("c")
	other.Add("c")
	tk.Merge(other)
	assert.Equal(t, []ValueCount{{"c", 4}, {"a", 2}}, tk.Top())
	assert.LessOrEqual(t, tk.Len(), 2)
}

func TestStatistics_WriteReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "stats.json")
	want := accumulate(testSchema(t), testRecords()).Finalize()
	require.NoError(t, WriteFile(path, want))
	// Overwrite is allowed for statistics.
	require.NoError(t, WriteFile(path, want))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestState_NonFiniteTokensAreText(t *testing.T) {
	t.Parallel()

	s, err := schema.FromHeader([]string{"score"})
	require.NoError(t, err)
	for _, bad := range []string{"NaN", "nan", "Inf", "-infinity"} {
		st := NewState(s, 10)
		for _, v := range []string{"1.5", bad, "2"} {
			st.Accumulate(record.Raw{"score": record.String(v)})
		}
		got := st.Finalize()

		score, ok := got.Lookup("score")
		require.True(t, ok)
		assert.Equal(t, schema.TypeString, score.Type, bad)
		assert.Nil(t, score.Numeric, bad)
		assert.Equal(t, int64(3), score.Count, bad)
		require.NoError(t, WriteFile(filepath.Join(t.TempDir(), "stats.json"), got), bad)
	}
}

func TestState_UniqueIsPartitionIndependent(t *testing.T) {
	t.Parallel()

	s, err := schema.FromHeader([]string{"city"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		distinct int
		want     int64
	}{
		{"below bound", 3, 3},
		{"above bound", 10, 4},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var recs []record.Raw
			for i := 0; i < tt.distinct; i++ {
				recs = append(recs, record.Raw{"city": record.String(fmt.Sprintf("c%02d", i))})
			}
			single := NewState(s, 4)
			parts := []*State{NewState(s, 4), NewState(s, 4), NewState(s, 4)}
			for i, r := range recs {
				single.Accumulate(r)
				parts[i%len(parts)].Accumulate(r)
			}
			merged, err := MergeAll(parts)
			require.NoError(t, err)

			one, _ := single.Finalize().Lookup("city")
			many, _ := merged.Finalize().Lookup("city")
			assert.Equal(t, tt.want, one.Unique)
			assert.Equal(t, one.Unique, many.Unique)
		})
	}
}
