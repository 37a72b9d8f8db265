// Package record defines the decoded, per-column representation of one input
// row. Every column carries at most one scalar; an absent scalar is "missing"
// and is filled with a type default only when a consumer asks for it.
package record

import (
	"math"
	"strconv"
)

// Value is an optional raw scalar. The zero Value is missing.
//
// Raw always holds the token as read from the input. Num is populated by the
// decoder for FLOAT and INT columns; STRING columns leave it zero.
type Value struct {
	Raw     string
	Num     float64
	Numeric bool
	Present bool
}

// String returns a present string Value.
func String(s string) Value { return Value{Raw: s, Present: true} }

// Number returns a present numeric Value. raw is kept for vocabulary lookups
// and hashing so the original spelling of the number survives.
func Number(raw string, f float64) Value {
	return Value{Raw: raw, Num: f, Numeric: true, Present: true}
}

// Missing reports whether v carries no scalar.
func (v Value) Missing() bool { return !v.Present }

// Fill returns v when present, otherwise the type default: 0 for numeric
// columns and "" for string columns.
func (v Value) Fill(numeric bool) Value {
	if v.Present {
		return v
	}
	if numeric {
		return Value{Raw: "0", Num: 0, Numeric: true, Present: true}
	}
	return Value{Raw: "", Present: true}
}

// Float returns the numeric value of v. For string values it attempts a parse
// and reports ok=false when the token is not a finite number, so "NaN" and
// "Inf" read as text.
func (v Value) Float() (float64, bool) {
	if !v.Present {
		return 0, false
	}
	f := v.Num
	if !v.Numeric {
		var err error
		if f, err = strconv.ParseFloat(v.Raw, 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Raw maps column name to its optional scalar. Columns absent from the map are
// treated as missing.
type Raw map[string]Value

// Get returns the value for name; the zero (missing) Value when absent.
func (r Raw) Get(name string) Value { return r[name] }
