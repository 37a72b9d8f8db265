// Command serve exposes a persisted transform artifact over HTTP.
//
// Usage:
//
//	go run ./cmd/serve -config configs/sample.json -schema-file out/schema.yaml \
//	    -transform-dir out/train -addr :8080
//
// Trailing arguments after "--" are logged and ignored.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"featurepipe/internal/cli"
	"featurepipe/internal/config"
	"featurepipe/internal/server"
)

// httpServer is the subset of *server.Server that run needs.
type httpServer interface {
	ListenAndServe() error
}

// newServer is swapped in tests.
var newServer = func(p config.Pipeline, cfg server.Config) (httpServer, error) {
	return server.New(p, cfg)
}

func main() {
	if err := run(os.Args[1:], log.Default()); err != nil {
		if errors.Is(err, cli.ErrValidateOnly) {
			return
		}
		fmt.Fprintln(os.Stderr, "serve:", err)
		os.Exit(1)
	}
}

func run(args []string, logger *log.Logger) error {
	var (
		c   cli.Common
		cfg server.Config
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	c.Register(fs)
	fs.StringVar(&cfg.Addr, "addr", ":8080", "listen address")
	fs.StringVar(&cfg.SchemaFile, "schema-file", "", "schema the artifact was analyzed with")
	fs.StringVar(&cfg.TransformDir, "transform-dir", "", "directory holding the persisted artifact")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", server.DefaultMaxBodyBytes, "largest accepted request body")
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

	flush := c.SetupMetrics(p.Job, logger)
	defer flush()

	srv, err := newServer(p, cfg)
	if err != nil {
		return err
	}
	logger.Printf("listening on %s", cfg.Addr)
	return srv.ListenAndServe()
}
