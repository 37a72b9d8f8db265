package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"featurepipe/internal/anomaly"
	"featurepipe/internal/config"
	"featurepipe/internal/stats"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize bounds one CopyFrom call.
const DefaultBatchSize = 500

// Run identifies one statistics pass in the export tables.
type Run struct {
	ID  string
	Job string
	At  time.Time
}

// Exporter writes statistics and anomalies of a run into the configured
// tables.
type Exporter struct {
	Repo Repository
	Kind string

	StatisticsTable string
	AnomaliesTable  string // empty disables the anomaly export
	AutoCreate      bool
	BatchSize       int
}

// NewExporter maps the pipeline storage section onto an Exporter.
func NewExporter(repo Repository, s config.Storage) *Exporter {
	return &Exporter{
		Repo:            repo,
		Kind:            s.Kind,
		StatisticsTable: s.DB.StatisticsTable,
		AnomaliesTable:  s.DB.AnomaliesTable,
		AutoCreate:      s.DB.AutoCreateTable,
		BatchSize:       DefaultBatchSize,
	}
}

// Export persists st and, when an anomalies table is configured, as. A nil
// anomaly slice still exports statistics.
func (e *Exporter) Export(ctx context.Context, run Run, st *stats.Statistics, as []anomaly.Anomaly) error {
	if e.StatisticsTable == "" {
		return fmt.Errorf("export: statistics table not configured")
	}
	jobs := []struct {
		table Table
		rows  [][]any
	}{{StatisticsTable(e.StatisticsTable), StatisticsRows(run, st)}}
	if e.AnomaliesTable != "" {
		jobs = append(jobs, struct {
			table Table
			rows  [][]any
		}{AnomaliesTable(e.AnomaliesTable), AnomalyRows(run, as)})
	}

	for _, j := range jobs {
		if e.AutoCreate {
			if err := EnsureTable(ctx, e.Kind, e.Repo, j.table); err != nil {
				return fmt.Errorf("export: create %s: %w", j.table.Name, err)
			}
		}
		if err := e.load(ctx, j.table, j.rows); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) load(ctx context.Context, t Table, rows [][]any) error {
	batch := e.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	g, gctx := errgroup.WithContext(ctx)
	in := make(chan []any, batch)
	g.Go(func() error {
		defer close(in)
		for _, r := range rows {
			select {
			case in <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		n, err := LoadBatches(gctx, t, in, batch, e.Repo.CopyFrom)
		if err != nil {
			return fmt.Errorf("export: %s: %w", t.Name, err)
		}
		if n != int64(len(rows)) {
			return fmt.Errorf("export: %s: wrote %d of %d rows", t.Name, n, len(rows))
		}
		return nil
	})
	return g.Wait()
}

// StatisticsRows flattens st into rows aligned with StatisticsTable.
func StatisticsRows(run Run, st *stats.Statistics) [][]any {
	rows := make([][]any, 0, len(st.Features))
	for _, f := range st.Features {
		row := []any{
			run.ID, run.Job, run.At.UTC(), f.Name, string(f.Type),
			st.NumRows, f.Count, f.Missing,
			nil, nil, nil, nil, nil, nil,
		}
		if n := f.Numeric; n != nil {
			row[8], row[9], row[10], row[11] = n.Min, n.Max, n.Mean, n.Stddev
		}
		if len(f.TopValues) > 0 {
			row[12] = f.Unique
			// Marshal of []ValueCount cannot fail.
			b, _ := json.Marshal(f.TopValues)
			row[13] = string(b)
		}
		rows = append(rows, row)
	}
	return rows
}

// AnomalyRows flattens as into rows aligned with AnomaliesTable.
func AnomalyRows(run Run, as []anomaly.Anomaly) [][]any {
	rows := make([][]any, 0, len(as))
	for i, a := range as {
		rows = append(rows, []any{
			run.ID, int64(i), run.Job, run.At.UTC(), a.Column, string(a.Kind), a.Description,
		})
	}
	return rows
}
