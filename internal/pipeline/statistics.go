// Package pipeline runs the two command surfaces of featurepipe over local
// delimited input: ComputeStatistics (statistics, schema inference, anomaly
// validation and optional SQL export) and Transform (analyze or load an
// artifact, then transform and encode into sharded record files).
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"featurepipe/internal/anomaly"
	"featurepipe/internal/config"
	"featurepipe/internal/metrics"
	csvparser "featurepipe/internal/parser/csv"
	"featurepipe/internal/schema"
	"featurepipe/internal/schema/infer"
	"featurepipe/internal/stats"
	"featurepipe/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// newRepositoryFn is a test seam for the statistics export.
var newRepositoryFn = storage.New

// StatsOptions are the arguments of ComputeStatistics.
type StatsOptions struct {
	Input     string // file, comma-separated globs or @listfile
	StatsPath string

	// SchemaPath is written when InferSchema is set and read when
	// ValidateStats is set. Without a header it also names the columns.
	SchemaPath    string
	InferSchema   bool
	ValidateStats bool
	AnomaliesPath string

	Verbose bool
}

// StatsResult summarizes a ComputeStatistics run.
type StatsResult struct {
	RunID      string
	Statistics *stats.Statistics
	Schema     *schema.Schema // inferred or read for validation; nil otherwise
	Anomalies  []anomaly.Anomaly
}

// ComputeStatistics computes statistics over the input, then optionally
// infers and writes a schema, then optionally validates the statistics
// against the schema at SchemaPath and writes the anomalies. Anomalies are
// data, not errors: a run with findings still succeeds.
func ComputeStatistics(ctx context.Context, p config.Pipeline, o StatsOptions) (*StatsResult, error) {
	if o.StatsPath == "" {
		return nil, fmt.Errorf("statistics: stats path is required")
	}
	if (o.InferSchema || o.ValidateStats) && o.SchemaPath == "" {
		return nil, fmt.Errorf("statistics: schema path is required to infer or validate")
	}
	if o.ValidateStats && o.AnomaliesPath == "" {
		return nil, fmt.Errorf("statistics: anomalies path is required to validate")
	}

	job := p.Job
	start := time.Now()
	res := &StatsResult{RunID: uuid.NewString()}

	st, err := collect(ctx, p, o)
	metrics.RecordStep(job, "statistics", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	res.Statistics = st
	metrics.RecordRows(job, "decoded", st.NumRows)
	if err := stats.WriteFile(o.StatsPath, st); err != nil {
		return nil, err
	}
	log.Printf("statistics: rows=%d features=%d path=%s", st.NumRows, len(st.Features), o.StatsPath)

	if o.InferSchema {
		s, err := infer.FromStatistics(st)
		if err != nil {
			return nil, fmt.Errorf("statistics: infer schema: %w", err)
		}
		if err := schema.WriteFile(o.SchemaPath, s); err != nil {
			return nil, fmt.Errorf("statistics: %w", err)
		}
		res.Schema = s
		log.Printf("statistics: inferred schema columns=%d path=%s", s.Len(), o.SchemaPath)
	}

	if o.ValidateStats {
		s, err := schema.ReadFile(o.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("statistics: %w", err)
		}
		res.Schema = s
		res.Anomalies = anomaly.Validate(st, s)
		if err := anomaly.WriteFile(o.AnomaliesPath, res.Anomalies); err != nil {
			return nil, fmt.Errorf("statistics: %w", err)
		}
		metrics.RecordRows(job, "anomalies", int64(len(res.Anomalies)))
		log.Printf("statistics: anomalies=%d path=%s", len(res.Anomalies), o.AnomaliesPath)
		for _, a := range res.Anomalies {
			log.Printf("statistics: anomaly column=%s kind=%q: %s", a.Column, a.Kind, a.Description)
		}
	}

	if p.Storage.Kind != "" {
		if err := export(ctx, p, res); err != nil {
			return nil, err
		}
	}

	log.Printf("summary: job=%s rows=%d anomalies=%d elapsed=%s",
		job, st.NumRows, len(res.Anomalies), time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

// collect runs the statistics pass. Columns are decoded as raw strings so that
// the observed type is inferred from the tokens instead of being enforced.
func collect(ctx context.Context, p config.Pipeline, o StatsOptions) (*stats.Statistics, error) {
	rt := newRuntimeConfig(p)
	topK := p.Features.WithDefaults().TopK

	var (
		states = make([]*stats.State, rt.workers)
		chans  = make([]chan line, rt.workers)
	)
	for i := range chans {
		chans[i] = make(chan line, rt.bufferSize)
	}
	ready := make(chan *csvparser.Decoder, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()
		defer close(ready)

		_, err := scanInputs(gctx, o.Input, p.Parser.Options, func(hdr []string) error {
			s, err := rawSchema(hdr, o.SchemaPath)
			if err != nil {
				return err
			}
			if o.Verbose {
				log.Printf("statistics: columns=%v workers=%d", s.Names(), rt.workers)
			}
			ready <- csvparser.NewDecoder(s, p.Parser.Options)
			return nil
		}, func(l line) error {
			return send(gctx, chans[l.seq%int64(rt.workers)], l)
		})
		return err
	})

	// Workers start once the header fixed the schema.
	g.Go(func() error {
		dec, ok := <-ready
		if !ok {
			return nil
		}
		wg, wctx := errgroup.WithContext(gctx)
		for i := range chans {
			i := i
			st := stats.NewState(dec.Schema(), topK)
			states[i] = st
			wg.Go(func() error {
				for l := range chans[i] {
					r, err := l.decode(dec)
					if err != nil {
						return err
					}
					st.Accumulate(r)
				}
				return wctx.Err()
			})
		}
		return wg.Wait()
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	if states[0] == nil {
		return nil, fmt.Errorf("statistics: input produced no header")
	}
	merged, err := stats.MergeAll(states)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return merged.Finalize(), nil
}

// rawSchema names the statistics columns: from the header when there is one,
// otherwise from the schema file. Every column is an OPTIONAL STRING.
func rawSchema(header []string, schemaPath string) (*schema.Schema, error) {
	if header != nil {
		return schema.FromHeader(header)
	}
	if schemaPath == "" {
		return nil, fmt.Errorf("input has no header and no schema path names the columns")
	}
	s, err := schema.ReadFile(schemaPath)
	if err != nil {
		return nil, err
	}
	cols := s.Columns()
	for i := range cols {
		cols[i].Type, cols[i].Presence = schema.TypeString, schema.Optional
	}
	return schema.New(cols)
}

func export(ctx context.Context, p config.Pipeline, res *StatsResult) error {
	start := time.Now()
	repo, err := newRepositoryFn(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DB.DSN})
	if err != nil {
		return fmt.Errorf("statistics: open storage: %w", err)
	}
	defer repo.Close()

	run := storage.Run{ID: res.RunID, Job: p.Job, At: time.Now()}
	err = storage.NewExporter(repo, p.Storage).Export(ctx, run, res.Statistics, res.Anomalies)
	metrics.RecordStep(p.Job, "export", err, time.Since(start))
	if err != nil {
		return err
	}
	log.Printf("statistics: exported run=%s storage=%s", run.ID, p.Storage.Kind)
	return nil
}
