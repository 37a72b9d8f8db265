package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"featurepipe/internal/config"
	"featurepipe/internal/record"
	"featurepipe/internal/schema"
)

// DecodeError reports a row that does not fit the schema. It is fatal for the
// run: no partial record is returned alongside it.
type DecodeError struct {
	Line   int    // 1-based line number when known
	Want   int    // schema column count
	Got    int    // token count
	Column string // offending column for value-level failures
	Err    error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode")
	if e.Line > 0 {
		fmt.Fprintf(&b, ": line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ": column %q", e.Column)
	}
	if e.Want != e.Got {
		fmt.Fprintf(&b, ": got %d fields, schema has %d", e.Got, e.Want)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder maps token slices onto schema columns positionally.
type Decoder struct {
	schema *schema.Schema
	comma  rune
	trim   bool
}

// NewDecoder returns a Decoder for s. opt supplies the delimiter and trimming
// rules used by Decode for single lines.
func NewDecoder(s *schema.Schema, opt config.Options) *Decoder {
	return &Decoder{
		schema: s,
		comma:  opt.Rune("comma", ','),
		trim:   opt.Bool("trim_space", true),
	}
}

// Schema returns the schema the decoder maps onto.
func (d *Decoder) Schema() *schema.Schema { return d.schema }

// Decode splits a single text line and decodes it.
func (d *Decoder) Decode(line string) (record.Raw, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = d.comma
	cr.FieldsPerRecord = -1

	fields, err := cr.Read()
	if errors.Is(err, io.EOF) {
		// encoding/csv skips blank lines; a blank line is a row of one empty
		// token.
		fields, err = []string{""}, nil
	}
	if err != nil {
		return nil, &DecodeError{Want: d.schema.Len(), Got: d.schema.Len(), Err: err}
	}
	if d.trim {
		for i, f := range fields {
			fields[i] = strings.TrimSpace(f)
		}
	}
	return d.DecodeFields(0, fields)
}

// DecodeFields decodes an already split row. Each column yields a missing
// value for an empty token and one value otherwise. Numeric columns must hold
// finite numbers.
func (d *Decoder) DecodeFields(line int, fields []string) (record.Raw, error) {
	n := d.schema.Len()
	if len(fields) != n {
		return nil, &DecodeError{Line: line, Want: n, Got: len(fields)}
	}
	out := make(record.Raw, n)
	for i := 0; i < n; i++ {
		col := d.schema.At(i)
		tok := fields[i]
		if tok == "" {
			continue
		}
		switch col.Type {
		case schema.TypeFloat:
			f, err := strconv.ParseFloat(tok, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, &DecodeError{Line: line, Want: n, Got: n, Column: col.Name, Err: fmt.Errorf("not a finite FLOAT: %q", tok)}
			}
			out[col.Name] = record.Number(tok, f)
		case schema.TypeInt:
			v, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return nil, &DecodeError{Line: line, Want: n, Got: n, Column: col.Name, Err: fmt.Errorf("not an INT: %q", tok)}
			}
			out[col.Name] = record.Number(tok, float64(v))
		default:
			out[col.Name] = record.String(tok)
		}
	}
	return out, nil
}
