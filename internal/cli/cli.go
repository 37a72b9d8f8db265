// Package cli holds the flag handling shared by the featurepipe commands:
// loading and linting the pipeline config and choosing a metrics backend.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"featurepipe/internal/config"
	"featurepipe/internal/metrics"
	"featurepipe/internal/metrics/datadog"
	"featurepipe/internal/metrics/prompush"
)

// ErrValidateOnly is returned by Load when -validate was given and the config
// is valid. Commands exit 0 on it.
var ErrValidateOnly = errors.New("configuration is valid")

// Common are the flags every command accepts.
type Common struct {
	ConfigPath     string
	Validate       bool
	Verbose        bool
	MetricsBackend string
	PushgatewayURL string
	StatsdAddr     string
}

// Register binds the common flags to fs and installs a usage message that
// shows where pass-through arguments go.
func (c *Common) Register(fs *flag.FlagSet) {
	fs.Usage = func() { usage(fs) }
	fs.StringVar(&c.ConfigPath, "config", "configs/sample.json", "pipeline config JSON path")
	fs.BoolVar(&c.Validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&c.Verbose, "v", false, "enable verbose logs")
	fs.StringVar(&c.MetricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (env METRICS_BACKEND)")
	fs.StringVar(&c.PushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	fs.StringVar(&c.StatsdAddr, "statsd-addr", "", "DogStatsD address (env DD_AGENT_ADDR)")
}

// usage prints the flag defaults. Engine flags such as --runner=DirectRunner
// are not featurepipe flags: the flag package rejects them unless they come
// after a bare "--".
func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "Usage: %s [flags] [-- engine-args...]\n\n", fs.Name())
	fmt.Fprintln(w, "Engine arguments (for example --runner=DirectRunner) must follow --.")
	fmt.Fprintln(w, "They are logged and ignored; before -- they fail as undefined flags.")
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
}

// Load reads the pipeline file and prints every lint issue to w. Errors block
// the run. With -validate a clean config yields ErrValidateOnly.
func (c *Common) Load(w io.Writer) (config.Pipeline, error) {
	p, err := config.Load(c.ConfigPath)
	if err != nil {
		return config.Pipeline{}, err
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, fmt.Errorf("configuration is invalid: %s", c.ConfigPath)
	}
	if c.Validate {
		return p, ErrValidateOnly
	}
	return p, nil
}

// pick returns the first non-empty of flag, env var and fallback.
func pick(flagVal, env, fallback string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

// SetupMetrics installs the selected backend and returns the flush to defer.
// A backend that fails to start is logged and metrics stay disabled.
func (c *Common) SetupMetrics(job string, logger *log.Logger) (flush func()) {
	flush = func() {}
	if job == "" {
		job = "featurepipe"
	}
	name := pick(c.MetricsBackend, "METRICS_BACKEND", "none")

	var b metrics.Backend
	switch name {
	case "pushgateway":
		url := pick(c.PushgatewayURL, "PUSHGATEWAY_URL", "http://localhost:9091")
		pb, err := prompush.NewBackend(job, url)
		if err != nil {
			logger.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return flush
		}
		logger.Printf("metrics: url=%v, backend=%v, job_name=%v", url, name, job)
		b = pb
	case "datadog":
		addr := pick(c.StatsdAddr, "DD_AGENT_ADDR", "127.0.0.1:8125")
		db, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "featurepipe.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return flush
		}
		logger.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, name, job)
		b = db
	case "none":
		if c.Verbose {
			logger.Printf("metrics: disabled")
		}
		return flush
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", name)
		return flush
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Printf("metrics: flush error: %v", err)
		}
	}
}

// Passthrough logs trailing arguments that featurepipe does not interpret.
// They are accepted so wrapper scripts can forward engine flags unchanged,
// provided the flags follow "--".
func Passthrough(logger *log.Logger, args []string) {
	if len(args) > 0 {
		logger.Printf("ignoring pass-through arguments: %v", args)
	}
}
