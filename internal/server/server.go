// Package server exposes a persisted transform artifact over HTTP so that
// serving-time inputs go through exactly the transformation used in training.
//
// Routes:
//
//	POST /v1/transform    → CSV data lines in, JSON transformed records out
//	GET  /v1/feature-spec → transformed feature description of the artifact
//	GET  /healthz         → liveness plus artifact identity
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"featurepipe/internal/artifact"
	"featurepipe/internal/config"
	"featurepipe/internal/feature"
	"featurepipe/internal/metrics"
	csvparser "featurepipe/internal/parser/csv"
	"featurepipe/internal/schema"
	"featurepipe/internal/transformer"

	"github.com/gorilla/mux"
)

// DefaultMaxBodyBytes bounds one /v1/transform request body.
const DefaultMaxBodyBytes = 8 << 20

// Config controls server startup.
type Config struct {
	Addr         string
	SchemaFile   string
	TransformDir string

	// MaxBodyBytes caps request bodies; zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Server serves one compiled artifact. It is immutable after New and safe
// for concurrent requests.
type Server struct {
	cfg      Config
	job      string
	router   *mux.Router
	dec      *csvparser.Decoder
	opts     config.Options
	t        *transformer.Transformer
	spec     []artifact.SpecEntry
	manifest artifact.Manifest
	served   atomic.Int64
}

// New loads the schema and the artifact named by cfg and compiles the
// transformer. A missing or mismatched artifact is a *artifact.MissingArtifactError.
func New(p config.Pipeline, cfg Config) (*Server, error) {
	if cfg.SchemaFile == "" || cfg.TransformDir == "" {
		return nil, fmt.Errorf("server: schema file and transform dir are required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s, err := schema.ReadFile(cfg.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	fc, err := feature.FromConfig(p.Features.WithDefaults(), s)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	a, m, err := artifact.Load(cfg.TransformDir, s.Fingerprint())
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	t, err := transformer.New(a, fc, cfg.TransformDir)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	// Request bodies carry data lines only.
	opts := config.Options{}
	for k, v := range p.Parser.Options {
		opts[k] = v
	}
	opts["has_header"] = false

	srv := &Server{
		cfg:      cfg,
		job:      p.Job,
		router:   mux.NewRouter(),
		dec:      csvparser.NewDecoder(s, p.Parser.Options),
		opts:     opts,
		t:        t,
		spec:     a.FeatureSpec(),
		manifest: m,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	hs := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return hs.ListenAndServe()
}

func (s *Server) routes() {
	s.router.HandleFunc("/v1/transform", s.handleTransform).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/feature-spec", s.handleFeatureSpec).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

type transformResponse struct {
	Records []map[string]any `json:"records"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Line   int    `json:"line,omitempty"`
	Column string `json:"column,omitempty"`
}

// handleTransform decodes every line of the body and returns the transformed
// records in input order. One bad line rejects the whole request.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer body.Close()

	recs, err := s.transform(body)
	metrics.RecordStep(s.job, "serve_transform", err, time.Since(start))
	if err != nil {
		var de *csvparser.DecodeError
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &de):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: de.Error(), Line: de.Line, Column: de.Column})
		case errors.As(err, &mbe):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return
	}
	n := s.served.Add(int64(len(recs)))
	metrics.RecordRows(s.job, "served", int64(len(recs)))
	if n%10000 < int64(len(recs)) {
		log.Printf("serve: transformed %d records so far", n)
	}
	writeJSON(w, http.StatusOK, transformResponse{Records: recs})
}

func (s *Server) transform(body io.Reader) ([]map[string]any, error) {
	rd, err := csvparser.NewReader(body, s.opts)
	if err != nil {
		return nil, err
	}
	recs := []map[string]any{}
	for {
		row, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		raw, err := s.dec.DecodeFields(row.Line, row.Fields)
		if err != nil {
			return nil, err
		}
		out := s.t.Apply(raw)
		m := make(map[string]any, len(out))
		for k, v := range out {
			m[k] = v.Any()
		}
		recs = append(recs, m)
	}
}

func (s *Server) handleFeatureSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.spec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"run_id":             s.manifest.RunID,
		"schema_fingerprint": s.manifest.SchemaFingerprint,
		"features":           s.manifest.Features,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("serve: encode response:", err)
	}
}
