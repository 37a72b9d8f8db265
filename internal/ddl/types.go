package ddl

import "strings"

// ColumnDef describes a single column in a rendered table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, TIMESTAMPTZ)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the table name (FQN, dotted form allowed) and an ordered
// list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Dialect carries the backend-specific parts of rendering.
type Dialect struct {
	// Name prefixes error messages, e.g. "postgres ddl".
	Name string

	// Quote quotes one identifier segment. Nil emits identifiers verbatim.
	Quote func(string) string

	// MapType maps a logical storage type to the backend SQL type.
	MapType func(string) string

	IfNotExists bool
}

// QuoteDouble is the ANSI identifier quote shared by Postgres and SQLite.
func QuoteDouble(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
