package stats

import (
	"math"

	"github.com/cockroachdb/apd/v3"
)

// precision of the decimal accumulators. Squares of float64 values need about
// 34 significant digits; the rest is headroom for long sums.
const precision = 50

var decCtx = apd.BaseContext.WithPrecision(precision)

// Moments is the sufficient-statistics combiner for numeric columns: count,
// sum and sum of squares plus the observed range. Sums are kept as decimals so
// that merging partitions in any order yields the same totals for all
// practical inputs.
//
// The zero Moments is empty and ready to use.
type Moments struct {
	Count int64
	Sum   apd.Decimal
	SumSq apd.Decimal
	Min   float64
	Max   float64
}

// Add folds one value into m and reports whether it was counted. Non-finite
// values and values the decimal context cannot represent leave m unchanged.
func (m *Moments) Add(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	var d, sq, sum, sumSq apd.Decimal
	if _, err := d.SetFloat64(f); err != nil || d.Form != apd.Finite {
		return false
	}
	if _, err := decCtx.Mul(&sq, &d, &d); err != nil {
		return false
	}
	if _, err := decCtx.Add(&sum, &m.Sum, &d); err != nil {
		return false
	}
	if _, err := decCtx.Add(&sumSq, &m.SumSq, &sq); err != nil {
		return false
	}
	m.Sum.Set(&sum)
	m.SumSq.Set(&sumSq)

	if m.Count == 0 || f < m.Min {
		m.Min = f
	}
	if m.Count == 0 || f > m.Max {
		m.Max = f
	}
	m.Count++
	return true
}

// Merge folds o into m. o is not modified.
func (m *Moments) Merge(o *Moments) {
	if o.Count == 0 {
		return
	}
	_, _ = decCtx.Add(&m.Sum, &m.Sum, &o.Sum)
	_, _ = decCtx.Add(&m.SumSq, &m.SumSq, &o.SumSq)
	if m.Count == 0 || o.Min < m.Min {
		m.Min = o.Min
	}
	if m.Count == 0 || o.Max > m.Max {
		m.Max = o.Max
	}
	m.Count += o.Count
}

// Clone returns a deep copy of m.
func (m *Moments) Clone() Moments {
	c := Moments{Count: m.Count, Min: m.Min, Max: m.Max}
	c.Sum.Set(&m.Sum)
	c.SumSq.Set(&m.SumSq)
	return c
}

// MeanStddev returns the mean and the population standard deviation
// sqrt(sumSq/n - mean^2). An empty combiner yields (0, 0).
func (m *Moments) MeanStddev() (mean, stddev float64) {
	if m.Count == 0 {
		return 0, 0
	}
	var n, mu, ex2, mu2, v apd.Decimal
	n.SetInt64(m.Count)
	_, _ = decCtx.Quo(&mu, &m.Sum, &n)
	_, _ = decCtx.Quo(&ex2, &m.SumSq, &n)
	_, _ = decCtx.Mul(&mu2, &mu, &mu)
	_, _ = decCtx.Sub(&v, &ex2, &mu2)

	mean, _ = mu.Float64()
	if v.Sign() <= 0 {
		return mean, 0
	}
	var sd apd.Decimal
	_, _ = decCtx.Sqrt(&sd, &v)
	stddev, _ = sd.Float64()
	if math.IsNaN(stddev) {
		stddev = 0
	}
	return mean, stddev
}
