// Command transform analyzes the input (or loads a persisted artifact),
// transforms every row and writes gzip TFRecord shards of tf.Example records.
//
// Usage:
//
//	go run ./cmd/transform -config configs/sample.json -input data/train.csv \
//	    -schema-file out/schema.yaml -output-dir out/train -outfile-prefix train
//
// Engine flags forwarded by wrapper scripts, such as --runner=DirectRunner,
// must come after "--"; they are logged and ignored:
//
//	go run ./cmd/transform -config configs/sample.json -- --runner=DirectRunner
//
// Pass -transform-dir to reuse the artifact written by an earlier run.
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
	"time"

	"featurepipe/internal/cli"
	"featurepipe/internal/pipeline"
)

// transform is swapped in tests.
var transform = pipeline.Transform

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], log.Default()); err != nil {
		if errors.Is(err, cli.ErrValidateOnly) {
			return
		}
		fmt.Fprintln(os.Stderr, "transform:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, logger *log.Logger) error {
	var (
		c cli.Common
		o pipeline.TransformOptions
	)
	fs := flag.NewFlagSet("transform", flag.ContinueOnError)
	c.Register(fs)
	fs.StringVar(&o.Input, "input", "", "input file, comma-separated globs or @listfile (default source.file.path)")
	fs.StringVar(&o.SchemaFile, "schema-file", "", "schema of the input")
	fs.StringVar(&o.OutputDir, "output-dir", "", "directory for output shards (and the artifact when analyzing)")
	fs.StringVar(&o.OutfilePrefix, "outfile-prefix", "", "output shard file name prefix")
	fs.StringVar(&o.TransformDir, "transform-dir", "", "load the artifact from here instead of analyzing")
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

	start := time.Now()
	res, err := transform(ctx, p, o)
	if err != nil {
		return err
	}
	for _, f := range res.Files {
		logger.Printf("transform: wrote %s", f)
	}
	if c.Verbose {
		logger.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	return nil
}
