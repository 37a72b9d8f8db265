package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"featurepipe/internal/analyzer"
	"featurepipe/internal/artifact"
	"featurepipe/internal/config"
	"featurepipe/internal/encoder"
	"featurepipe/internal/feature"
	"featurepipe/internal/metrics"
	csvparser "featurepipe/internal/parser/csv"
	"featurepipe/internal/schema"
	"featurepipe/internal/transformer"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

// ShardSuffix ends every output record file name.
const ShardSuffix = ".gz"

// TransformOptions are the arguments of Transform.
type TransformOptions struct {
	Input         string // file, comma-separated globs or @listfile
	SchemaFile    string
	OutputDir     string
	OutfilePrefix string

	// TransformDir, when set, names a persisted artifact to load instead of
	// analyzing the input. Otherwise the artifact is written to OutputDir.
	TransformDir string

	Verbose bool
}

// TransformResult summarizes a Transform run.
type TransformResult struct {
	Rows        int64
	Files       []string
	ArtifactDir string
	Manifest    artifact.Manifest
	Analyzed    bool
}

// counters holds cross-goroutine totals for the transform pass.
type counters struct {
	decoded     atomic.Int64
	transformed atomic.Int64
	written     atomic.Int64
}

// Transform runs INIT -> DECODE -> (ANALYZE | LOAD_ARTIFACT) -> TRANSFORM ->
// ENCODE -> DONE. The artifact is complete and immutable before the first
// record is transformed. Output shard files appear only when every shard was
// written successfully.
func Transform(ctx context.Context, p config.Pipeline, o TransformOptions) (*TransformResult, error) {
	switch {
	case o.Input == "":
		return nil, fmt.Errorf("transform: input is required")
	case o.SchemaFile == "":
		return nil, fmt.Errorf("transform: schema file is required")
	case o.OutputDir == "":
		return nil, fmt.Errorf("transform: output dir is required")
	case o.OutfilePrefix == "":
		return nil, fmt.Errorf("transform: outfile prefix is required")
	}

	start := time.Now()
	job := p.Job
	m := newMachine(job, "transform", o.Verbose)
	rt := newRuntimeConfig(p)

	// INIT
	s, err := schema.ReadFile(o.SchemaFile)
	if err != nil {
		return nil, m.fail(fmt.Errorf("transform: %w", err))
	}
	cfg, err := feature.FromConfig(p.Features.WithDefaults(), s)
	if err != nil {
		return nil, m.fail(fmt.Errorf("transform: %w", err))
	}
	dec := csvparser.NewDecoder(s, p.Parser.Options)
	if err := os.MkdirAll(o.OutputDir, 0o755); err != nil {
		return nil, m.fail(fmt.Errorf("transform: %w", err))
	}
	if err := m.advance(PhaseDecode); err != nil {
		return nil, err
	}

	res := &TransformResult{}
	var a *artifact.Artifact
	if o.TransformDir == "" {
		if err := m.advance(PhaseAnalyze); err != nil {
			return nil, err
		}
		a, err = analyze(ctx, p, o, dec, cfg, rt)
		if err != nil {
			return nil, m.fail(err)
		}
		res.Manifest, err = artifact.Write(o.OutputDir, a, s.Fingerprint())
		if err != nil {
			return nil, m.fail(fmt.Errorf("transform: %w", err))
		}
		res.Analyzed, res.ArtifactDir = true, o.OutputDir
		log.Printf("transform: analyzed features=%d run=%s dir=%s", len(a.Features), res.Manifest.RunID, o.OutputDir)
	} else {
		if err := m.advance(PhaseLoadArtifact); err != nil {
			return nil, err
		}
		a, res.Manifest, err = artifact.Load(o.TransformDir, s.Fingerprint())
		if err != nil {
			return nil, m.fail(fmt.Errorf("transform: %w", err))
		}
		res.ArtifactDir = o.TransformDir
		log.Printf("transform: loaded artifact run=%s dir=%s", res.Manifest.RunID, o.TransformDir)
	}
	logZeroVariance(a)

	t, err := transformer.New(a, cfg, res.ArtifactDir)
	if err != nil {
		return nil, m.fail(fmt.Errorf("transform: %w", err))
	}
	if err := m.advance(PhaseTransform); err != nil {
		return nil, err
	}

	var c counters
	shards, err := transformShards(ctx, p, o, dec, t, rt, &c)
	if err != nil {
		removeAll(shards)
		return nil, m.fail(err)
	}
	if err := m.advance(PhaseEncode); err != nil {
		removeAll(shards)
		return nil, err
	}
	res.Files, err = commitShards(shards)
	if err != nil {
		removeAll(shards)
		return nil, m.fail(err)
	}
	if err := m.advance(PhaseDone); err != nil {
		return nil, err
	}

	res.Rows = c.written.Load()
	metrics.RecordRows(job, "decoded", c.decoded.Load())
	metrics.RecordRows(job, "transformed", c.transformed.Load())
	metrics.RecordRows(job, "written", res.Rows)
	metrics.RecordShards(job, int64(len(res.Files)))
	log.Printf("summary: job=%s rows=%d shards=%d analyzed=%t elapsed=%s",
		job, res.Rows, len(res.Files), res.Analyzed, time.Since(start).Truncate(time.Millisecond))
	return res, nil
}

// analyze runs the analysis pass over rt.workers partitions and merges the
// partial states into one artifact.
func analyze(ctx context.Context, p config.Pipeline, o TransformOptions, dec *csvparser.Decoder, cfg feature.Config, rt runtimeConfig) (*artifact.Artifact, error) {
	states := make([]*analyzer.State, rt.workers)
	chans := make([]chan line, rt.workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range chans {
		i := i
		chans[i] = make(chan line, rt.bufferSize)
		st := analyzer.NewState(cfg)
		states[i] = st
		g.Go(func() error {
			for l := range chans[i] {
				r, err := l.decode(dec)
				if err != nil {
					return err
				}
				st.Accumulate(r)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()
		_, err := scanInputs(gctx, o.Input, p.Parser.Options, skipHeader, func(l line) error {
			return send(gctx, chans[l.seq%int64(rt.workers)], l)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("transform: analyze: %w", err)
	}

	merged, err := analyzer.MergeAll(states)
	if err != nil {
		return nil, fmt.Errorf("transform: analyze: %w", err)
	}
	if o.Verbose {
		log.Printf("transform: analyzed rows=%d partitions=%d", merged.Rows(), len(states))
	}
	return merged.Finalize(), nil
}

func skipHeader([]string) error { return nil }

// shard is one output file being written under a temporary name.
type shard struct {
	tmp, final string
	w          *encoder.Writer
}

// ShardName returns the file name of shard i of n.
func ShardName(prefix string, i, n int) string {
	return fmt.Sprintf("%s-%05d-of-%05d%s", prefix, i, n, ShardSuffix)
}

// shardOf assigns a row to an output shard. The assignment depends only on
// the row text and the seed, so reruns reproduce the same files.
func shardOf(fields []string, seed uint64, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxh3.HashStringSeed(strings.Join(fields, "\x1f"), seed) % uint64(n))
}

// transformShards streams the input once more. Each shard has its own
// decode -> apply -> encode chain, so records keep input order within a
// shard.
func transformShards(ctx context.Context, p config.Pipeline, o TransformOptions, dec *csvparser.Decoder, t *transformer.Transformer, rt runtimeConfig, c *counters) ([]*shard, error) {
	n := rt.shards
	shards := make([]*shard, 0, n)
	for i := 0; i < n; i++ {
		final := filepath.Join(o.OutputDir, ShardName(o.OutfilePrefix, i, n))
		tmp := final + ".tmp"
		w, err := encoder.Create(tmp)
		if err != nil {
			return shards, fmt.Errorf("transform: %w", err)
		}
		shards = append(shards, &shard{tmp: tmp, final: final, w: w})
	}

	g, gctx := errgroup.WithContext(ctx)
	ins := make([]chan line, n)
	for i := range shards {
		i := i
		ins[i] = make(chan line, rt.bufferSize)
		items := make(chan transformer.Item, rt.bufferSize)
		results := make(chan transformer.Result, rt.bufferSize)

		g.Go(func() error {
			defer close(items)
			for l := range ins[i] {
				r, err := l.decode(dec)
				if err != nil {
					return err
				}
				c.decoded.Add(1)
				if err := send(gctx, items, transformer.Item{Seq: l.seq, Raw: r}); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			defer close(results)
			return t.ApplyLoop(gctx, items, results)
		})
		g.Go(func() error {
			w := shards[i].w
			for r := range results {
				c.transformed.Add(1)
				if err := w.Write(encoder.Encode(r.Record)); err != nil {
					return fmt.Errorf("transform: shard %d: %w", i, err)
				}
				c.written.Add(1)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			for _, ch := range ins {
				close(ch)
			}
		}()
		_, err := scanInputs(gctx, o.Input, p.Parser.Options, skipHeader, func(l line) error {
			return send(gctx, ins[shardOf(l.Fields, rt.seed, n)], l)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return shards, fmt.Errorf("transform: %w", err)
	}
	return shards, nil
}

// commitShards flushes every writer and renames the temporary files into
// place.
func commitShards(shards []*shard) ([]string, error) {
	for _, s := range shards {
		if err := s.w.Close(); err != nil {
			return nil, fmt.Errorf("transform: close %s: %w", s.tmp, err)
		}
	}
	files := make([]string, 0, len(shards))
	for _, s := range shards {
		if err := os.Rename(s.tmp, s.final); err != nil {
			return nil, fmt.Errorf("transform: publish %s: %w", s.final, err)
		}
		files = append(files, s.final)
	}
	return files, nil
}

func removeAll(shards []*shard) {
	for _, s := range shards {
		_ = s.w.Close()
		if err := os.Remove(s.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("transform: remove %s: %v", s.tmp, err)
		}
	}
}

// logZeroVariance reports every scaled feature whose output is constant 0.
func logZeroVariance(a *artifact.Artifact) {
	for _, f := range a.Features {
		if f.Kind == feature.KindScale && f.Scale != nil && f.Scale.Stddev == 0 {
			log.Printf("transform: feature %s has zero variance (mean=%g); scaled output is 0", f.Name, f.Scale.Mean)
		}
	}
}
