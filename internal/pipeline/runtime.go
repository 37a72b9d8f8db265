package pipeline

import (
	"os"
	"runtime"
	"strconv"

	"featurepipe/internal/config"
)

// runtimeConfig contains the resolved concurrency and buffering configuration
// for a run. Values come from the pipeline spec with environment overrides
// (12-factor style) and built-in defaults, in that order.
type runtimeConfig struct {
	workers    int
	shards     int
	seed       uint64
	bufferSize int
}

func newRuntimeConfig(spec config.Pipeline) runtimeConfig {
	return runtimeConfig{
		workers:    pickInt(spec.Runtime.Workers, getenvInt("FEATUREPIPE_WORKERS", runtime.GOMAXPROCS(0))),
		shards:     pickInt(spec.Runtime.Shards, getenvInt("FEATUREPIPE_SHARDS", 1)),
		seed:       spec.Runtime.ShuffleSeed,
		bufferSize: pickInt(spec.Runtime.ChannelBuffer, getenvInt("FEATUREPIPE_CH_BUFFER", 1024)),
	}
}

func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	if b > 0 {
		return b
	}
	return 1
}
