// Command stats computes column statistics over delimited input and can infer
// a schema from them or validate them against an existing schema.
//
// Usage:
//
//	go run ./cmd/stats -config configs/sample.json -input data/train.csv \
//	    -stats-path out/stats.json -infer-schema -schema-path out/schema.yaml
//
// Engine flags forwarded by wrapper scripts, such as --runner=DirectRunner,
// must come after "--"; they are logged and ignored:
//
//	go run ./cmd/stats -config configs/sample.json -- --runner=DirectRunner
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"featurepipe/internal/cli"
	"featurepipe/internal/pipeline"

	// register all backends with the storage factory.
	_ "featurepipe/internal/storage/all"
)

// computeStatistics is swapped in tests.
var computeStatistics = pipeline.ComputeStatistics

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], log.Default()); err != nil {
		if errors.Is(err, cli.ErrValidateOnly) {
			return
		}
		fmt.Fprintln(os.Stderr, "stats:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logger *log.Logger) error {
	var (
		c cli.Common
		o pipeline.StatsOptions
	)
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	c.Register(fs)
	fs.StringVar(&o.Input, "input", "", "input file, comma-separated globs or @listfile (default source.file.path)")
	fs.StringVar(&o.StatsPath, "stats-path", "", "where to write the statistics")
	fs.StringVar(&o.SchemaPath, "schema-path", "", "schema written by -infer-schema and read by -validate-stats")
	fs.BoolVar(&o.InferSchema, "infer-schema", false, "infer a schema from the statistics")
	fs.BoolVar(&o.ValidateStats, "validate-stats", false, "validate the statistics against -schema-path")
	fs.StringVar(&o.AnomaliesPath, "anomalies-path", "", "where to write anomalies found by -validate-stats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cli.Passthrough(logger, fs.Args())

	p, err := c.Load(os.Stderr)
	if err != nil {
		if errors.Is(err, cli.ErrValidateOnly) {
			logger.Printf("Configuration is valid: %v", c.ConfigPath)
		}
		return err
	}
	if o.Input == "" {
		o.Input = p.Source.File.Path
	}
	o.Verbose = c.Verbose

	flush := c.SetupMetrics(p.Job, logger)
	defer flush()

	res, err := computeStatistics(ctx, p, o)
	if err != nil {
		return err
	}
	logger.Printf("stats: run=%s rows=%d columns=%d anomalies=%d",
		res.RunID, res.Statistics.NumRows, len(res.Statistics.Features), len(res.Anomalies))
	return nil
}
