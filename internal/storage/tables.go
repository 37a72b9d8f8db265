package storage

// Logical column types. Backends map them to their own SQL types.
const (
	TypeText      = "text"
	TypeBigint    = "bigint"
	TypeDouble    = "double"
	TypeTimestamp = "timestamp"
)

// Column describes one column of an export table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Key      bool
}

// Table is a backend-neutral export table definition.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// StatisticsTable is one row per (run, feature).
func StatisticsTable(name string) Table {
	return Table{
		Name: name,
		Columns: []Column{
			{Name: "run_id", Type: TypeText, Key: true},
			{Name: "job", Type: TypeText},
			{Name: "created_at", Type: TypeTimestamp},
			{Name: "feature", Type: TypeText, Key: true},
			{Name: "type", Type: TypeText},
			{Name: "num_rows", Type: TypeBigint},
			{Name: "count", Type: TypeBigint},
			{Name: "missing_count", Type: TypeBigint},
			{Name: "min", Type: TypeDouble, Nullable: true},
			{Name: "max", Type: TypeDouble, Nullable: true},
			{Name: "mean", Type: TypeDouble, Nullable: true},
			{Name: "stddev", Type: TypeDouble, Nullable: true},
			{Name: "unique_count", Type: TypeBigint, Nullable: true},
			{Name: "top_values", Type: TypeText, Nullable: true},
		},
	}
}

// AnomaliesTable is one row per (run, anomaly). seq keeps the report order.
func AnomaliesTable(name string) Table {
	return Table{
		Name: name,
		Columns: []Column{
			{Name: "run_id", Type: TypeText, Key: true},
			{Name: "seq", Type: TypeBigint, Key: true},
			{Name: "job", Type: TypeText},
			{Name: "created_at", Type: TypeTimestamp},
			{Name: "column_name", Type: TypeText},
			{Name: "kind", Type: TypeText},
			{Name: "description", Type: TypeText},
		},
	}
}
