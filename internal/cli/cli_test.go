package cli

import (
	"bytes"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `{
  "job": "cli-test",
  "source": {"kind": "file", "file": {"path": "train.csv"}},
  "parser": {"kind": "csv", "options": {"has_header": true}},
  "features": {"label": "booked", "scale": ["clicks"], "vocabulary": ["market"]}
}`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func parse(t *testing.T, args ...string) *Common {
	t.Helper()
	var c Common
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.Register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return &c
}

func TestLoad(t *testing.T) {
	t.Parallel()

	good := writeConfig(t, validConfig)
	bad := writeConfig(t, `{"job": "x", "parser": {"kind": "xml"}}`)

	tests := []struct {
		name     string
		args     []string
		wantErr  error
		anyErr   bool
		wantJob  string
		wantWarn string
	}{
		{name: "valid", args: []string{"-config", good}, wantJob: "cli-test"},
		{name: "validate only", args: []string{"-config", good, "-validate"}, wantErr: ErrValidateOnly, wantJob: "cli-test"},
		{name: "invalid", args: []string{"-config", bad}, anyErr: true, wantWarn: "error"},
		{name: "missing file", args: []string{"-config", filepath.Join(t.TempDir(), "nope.json")}, anyErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			p, err := parse(t, tt.args...).Load(&buf)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v; want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Fatalf("expected an error")
				}
			case err != nil:
				t.Fatalf("Load: %v", err)
			}
			if tt.wantJob != "" && p.Job != tt.wantJob {
				t.Fatalf("job=%q; want %q", p.Job, tt.wantJob)
			}
			if tt.wantWarn != "" && !strings.Contains(buf.String(), tt.wantWarn) {
				t.Fatalf("issues %q lack %q", buf.String(), tt.wantWarn)
			}
		})
	}
}

func TestPick(t *testing.T) {
	t.Setenv("FEATUREPIPE_TEST_PICK", "from-env")

	if got := pick("from-flag", "FEATUREPIPE_TEST_PICK", "def"); got != "from-flag" {
		t.Fatalf("flag must win, got %q", got)
	}
	if got := pick("", "FEATUREPIPE_TEST_PICK", "def"); got != "from-env" {
		t.Fatalf("env must beat default, got %q", got)
	}
	if got := pick("", "FEATUREPIPE_TEST_PICK_UNSET", "def"); got != "def" {
		t.Fatalf("default expected, got %q", got)
	}
}

func TestSetupMetrics_DisabledBackends(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "")

	tests := []struct {
		args    []string
		wantLog string
	}{
		{[]string{"-v"}, "metrics: disabled"},
		{[]string{"-metrics-backend", "carrier-pigeon"}, "unknown backend"},
		{[]string{"-metrics-backend", "datadog", "-statsd-addr", "unix:///nonexistent/dsd.socket"}, "datadog"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		flush := parse(t, tt.args...).SetupMetrics("job", log.New(&buf, "", 0))
		flush()
		if !strings.Contains(buf.String(), tt.wantLog) {
			t.Fatalf("args %v: log %q lacks %q", tt.args, buf.String(), tt.wantLog)
		}
	}
}

func TestPassthrough(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	Passthrough(logger, nil)
	if buf.Len() != 0 {
		t.Fatalf("no args must log nothing, got %q", buf.String())
	}
	Passthrough(logger, []string{"--runner=DirectRunner"})
	if !strings.Contains(buf.String(), "--runner=DirectRunner") {
		t.Fatalf("log %q lacks the forwarded flag", buf.String())
	}
}

func TestRegister_EngineFlagsNeedSeparator(t *testing.T) {
	t.Parallel()

	newFS := func(out *bytes.Buffer) *flag.FlagSet {
		var c Common
		fs := flag.NewFlagSet("stats", flag.ContinueOnError)
		fs.SetOutput(out)
		c.Register(fs)
		return fs
	}

	var buf bytes.Buffer
	if err := newFS(&buf).Parse([]string{"--runner=DirectRunner"}); err == nil {
		t.Fatalf("engine flag before -- must be rejected")
	}
	for _, want := range []string{"Usage: stats [flags] [-- engine-args...]", "must follow --", "-config"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("usage %q lacks %q", buf.String(), want)
		}
	}

	buf.Reset()
	fs := newFS(&buf)
	if err := fs.Parse([]string{"-v", "--", "--runner=DirectRunner"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := fs.Args(); len(got) != 1 || got[0] != "--runner=DirectRunner" {
		t.Fatalf("args=%v; want [--runner=DirectRunner]", got)
	}
}
