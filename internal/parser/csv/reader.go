// Package csv streams delimited text rows and decodes them into typed
// records according to a schema. The reader never buffers the whole input;
// it reuses encoding/csv record buffers and hands out copies only of the rows
// it emits.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"featurepipe/internal/config"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Row is one data line split into tokens. Line is the 1-based physical line
// number of the row's first field, header included.
type Row struct {
	Line   int
	Fields []string
}

// Reader yields data rows from delimited text.
//
// Options (all optional):
//   - has_header (bool; default true): the first line is a header and is skipped
//     for data purposes but exposed via Header.
//   - comma (string; first rune used; default ',')
//   - trim_space (bool; default true): trim leading/trailing spaces per token
//   - lazy_quotes (bool; default false) → csv.Reader.LazyQuotes
//
// Field counts are NOT enforced here; the Decoder owns that check so the error
// can name the schema.
type Reader struct {
	cr     *csv.Reader
	header []string
	trim   bool
}

// NewReader wraps r and consumes the header line when has_header is set.
func NewReader(r io.Reader, opt config.Options) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	rd := &Reader{cr: cr, trim: opt.Bool("trim_space", true)}

	if opt.Bool("has_header", true) {
		hdr, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read header: input is empty")
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		rd.header = make([]string, len(hdr))
		for i, h := range hdr {
			if i == 0 {
				h = strings.TrimPrefix(h, utf8BOM)
			}
			rd.header[i] = strings.TrimSpace(h)
		}
	}
	return rd, nil
}

// Header returns the header cells, or nil when the input has none.
func (r *Reader) Header() []string { return r.header }

// Next returns the next data row or io.EOF. A syntactically broken line (for
// example an unterminated quote) is reported as a *DecodeError.
func (r *Reader) Next() (Row, error) {
	rec, err := r.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return Row{}, &DecodeError{Line: pe.StartLine, Err: pe.Err}
		}
		return Row{}, fmt.Errorf("csv read: %w", err)
	}
	line, _ := r.cr.FieldPos(0)

	fields := make([]string, len(rec))
	for i, v := range rec {
		if r.trim && hasEdgeSpace(v) {
			v = strings.TrimSpace(v)
		}
		fields[i] = v
	}
	return Row{Line: line, Fields: fields}, nil
}

// hasEdgeSpace reports whether s starts or ends with an ASCII space or tab.
// It lets the hot path skip strings.TrimSpace for the common clean token.
func hasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return first == ' ' || first == '\t' || last == ' ' || last == '\t' || last == '\r'
}
