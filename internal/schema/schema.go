// Package schema holds the immutable column-descriptor list that describes the
// expected shape of raw input rows. Column order is significant: the decoder
// maps delimited tokens to columns positionally.
package schema

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// Type is the scalar type of a column.
type Type string

const (
	TypeFloat  Type = "FLOAT"
	TypeInt    Type = "INT"
	TypeString Type = "STRING"
)

// Numeric reports whether values of t decode to numbers.
func (t Type) Numeric() bool { return t == TypeFloat || t == TypeInt }

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeFloat, TypeInt, TypeString:
		return true
	}
	return false
}

// Presence states whether a column may be missing.
type Presence string

const (
	Required Presence = "REQUIRED"
	Optional Presence = "OPTIONAL"
)

// Valid reports whether p is a known presence.
func (p Presence) Valid() bool { return p == Required || p == Optional }

// Column describes one column of the raw data.
type Column struct {
	Name     string   `yaml:"name" json:"name"`
	Type     Type     `yaml:"type" json:"type"`
	Presence Presence `yaml:"presence" json:"presence"`
}

// Schema is an ordered, immutable list of columns. Construct it with New; the
// zero value is an empty schema.
type Schema struct {
	columns []Column
	index   map[string]int
}

// New validates cols and returns a Schema holding a private copy of them.
// Names must be non-empty and unique, types and presences known.
func New(cols []Column) (*Schema, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("schema: at least one column is required")
	}
	s := &Schema{
		columns: make([]Column, len(cols)),
		index:   make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("schema: column %d has an empty name", i)
		}
		if _, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("schema: column %q has unknown type %q", c.Name, c.Type)
		}
		if c.Presence == "" {
			c.Presence = Optional
		}
		if !c.Presence.Valid() {
			return nil, fmt.Errorf("schema: column %q has unknown presence %q", c.Name, c.Presence)
		}
		s.columns[i] = c
		s.index[c.Name] = i
	}
	return s, nil
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.columns) }

// Columns returns a copy of the column list in declaration order.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// At returns the i-th column.
func (s *Schema) At(i int) Column { return s.columns[i] }

// Column looks up a column by name.
func (s *Schema) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// Index returns the position of name, or -1.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}
	return out
}

// Fingerprint is a stable identifier of the column list. Artifacts record it
// so a transform run can detect that it was handed a different schema.
func (s *Schema) Fingerprint() string {
	var b strings.Builder
	for _, c := range s.columns {
		b.WriteString(c.Name)
		b.WriteByte(0x1f)
		b.WriteString(string(c.Type))
		b.WriteByte(0x1f)
		b.WriteString(string(c.Presence))
		b.WriteByte(0x1e)
	}
	return fmt.Sprintf("%016x", xxh3.HashString(b.String()))
}

// FromHeader builds a provisional schema from a header row: every column is an
// OPTIONAL STRING named after the normalized header cell. It is used when
// statistics are computed before any schema exists.
func FromHeader(header []string) (*Schema, error) {
	cols := make([]Column, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := NormalizeName(h)
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[name]++
		cols[i] = Column{Name: name, Type: TypeString, Presence: Optional}
	}
	return New(cols)
}
