// Package ddl renders CREATE TABLE statements for the export tables. Backends
// supply a Dialect (quoting and type mapping); the model and the rendering
// rules are shared.
package ddl

import (
	"context"
	"fmt"
	"strings"

	"featurepipe/internal/storage"
)

// FromTable maps a logical export table onto a TableDef using d.MapType.
// Key columns are never nullable.
func FromTable(t storage.Table, d Dialect) TableDef {
	mapType := d.MapType
	if mapType == nil {
		mapType = strings.ToUpper
	}
	def := TableDef{FQN: t.Name, Columns: make([]ColumnDef, 0, len(t.Columns))}
	for _, c := range t.Columns {
		def.Columns = append(def.Columns, ColumnDef{
			Name:       c.Name,
			SQLType:    mapType(c.Type),
			Nullable:   c.Nullable && !c.Key,
			PrimaryKey: c.Key,
		})
	}
	return def
}

// BuildCreateTableSQL renders:
//
//	CREATE TABLE [IF NOT EXISTS] <fqn> (
//	  <name> <type> [NOT NULL],
//	  ...,
//	  [PRIMARY KEY (<pk-cols>)]
//	);
//
// FQN and column names are trimmed; each dotted FQN segment is quoted on its
// own. Primary-key columns keep declaration order.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	name := d.Name
	if name == "" {
		name = "ddl"
	}
	quote := d.Quote
	if quote == nil {
		quote = func(s string) string { return s }
	}

	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", name)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", name)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		col := strings.TrimSpace(c.Name)
		if col == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", name, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", name, col)
		}

		var sb strings.Builder
		sb.WriteString(quote(col))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(col))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	parts := strings.Split(fqn, ".")
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			quoted = append(quoted, quote(p))
		}
	}

	create := "CREATE TABLE "
	if d.IfNotExists {
		create += "IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (\n  %s\n);", create, strings.Join(quoted, "."), strings.Join(cols, ",\n  ")), nil
}

// Bootstrapper returns a storage.DDLBootstrapper that renders t with d and
// applies it through repo.Exec.
func Bootstrapper(d Dialect) storage.DDLBootstrapper {
	return func(ctx context.Context, repo storage.Repository, t storage.Table) error {
		sql, err := BuildCreateTableSQL(FromTable(t, d), d)
		if err != nil {
			return err
		}
		return repo.Exec(ctx, sql)
	}
}
