// Package mssql implements the export Repository on Microsoft SQL Server
// using the go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"featurepipe/internal/ddl"
	"featurepipe/internal/storage"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("mssql: DSN must not be empty")
	}
	// Fail fast on malformed DSNs before dialing.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg}, close, nil
}

// CopyFrom bulk-inserts rows into table inside one transaction. Either every
// row lands or none does.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(msFQN(table), mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk into %s: %w", table, err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d into %s: %w", i, table, err)
		}
	}
	res, err := stmt.ExecContext(ctx) // flush
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Exec implements storage.Repository.Exec for MSSQL.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func msFQN(name string) string {
	parts := strings.Split(name, ".")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, msIdent(p))
		}
	}
	return strings.Join(out, ".")
}

// MapType maps an export column type onto a SQL Server type.
//
//	text      -> NVARCHAR(MAX)
//	bigint    -> BIGINT
//	double    -> FLOAT
//	timestamp -> DATETIMEOFFSET
func MapType(kind string) string {
	switch kind {
	case storage.TypeBigint:
		return "BIGINT"
	case storage.TypeDouble:
		return "FLOAT"
	case storage.TypeTimestamp:
		return "DATETIMEOFFSET"
	default:
		return "NVARCHAR(MAX)"
	}
}

// keyText is the widest NVARCHAR SQL Server accepts in a clustered key.
const keyText = "NVARCHAR(450)"

// Dialect renders export tables for SQL Server. It has no CREATE TABLE IF NOT
// EXISTS; CreateTableSQL guards the statement with OBJECT_ID instead.
var Dialect = ddl.Dialect{
	Name:    "mssql ddl",
	Quote:   msIdent,
	MapType: MapType,
}

// CreateTableSQL renders an idempotent CREATE TABLE for t. Text key columns
// are narrowed to NVARCHAR(450) so they can form the primary key.
func CreateTableSQL(t storage.Table) (string, error) {
	def := ddl.FromTable(t, Dialect)
	for i, c := range def.Columns {
		if c.PrimaryKey && c.SQLType == MapType(storage.TypeText) {
			def.Columns[i].SQLType = keyText
		}
	}
	create, err := ddl.BuildCreateTableSQL(def, Dialect)
	if err != nil {
		return "", err
	}
	name := strings.ReplaceAll(msFQN(t.Name), `'`, `''`)
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\n%s", name, create), nil
}

func bootstrap(ctx context.Context, repo storage.Repository, t storage.Table) error {
	sqlText, err := CreateTableSQL(t)
	if err != nil {
		return err
	}
	return repo.Exec(ctx, sqlText)
}
