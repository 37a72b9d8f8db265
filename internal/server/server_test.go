package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"featurepipe/internal/artifact"
	"featurepipe/internal/config"
	"featurepipe/internal/pipeline"
	"featurepipe/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainCSV = `clicks,market,price,city,booked
10,cz,1,7,1
20,de,2,7,0
,cz,3,8,1
30,at,4,9,0
12,cz,5,7,1
18,de,6,8,0
`

func testPipeline() config.Pipeline {
	return config.Pipeline{
		Job:    "serve-test",
		Parser: config.Parser{Kind: "csv", Options: config.Options{}},
		Features: config.Features{
			Label:       "booked",
			Scale:       []string{"clicks"},
			Vocabulary:  []string{"market"},
			Bucketize:   []string{"price"},
			Passthrough: []string{"city"},
			VocabSize:   2,
			OOVSize:     1,
			BucketCount: 2,
		},
		Runtime: config.RuntimeConfig{Workers: 2, Shards: 1},
	}
}

// analyzed runs a transform over trainCSV so the test server loads a real
// artifact from disk.
func analyzed(t *testing.T) (Config, *pipeline.TransformResult) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(in, []byte(trainCSV), 0o644))

	s, err := schema.New([]schema.Column{
		{Name: "clicks", Type: schema.TypeFloat},
		{Name: "market", Type: schema.TypeString, Presence: schema.Required},
		{Name: "price", Type: schema.TypeFloat, Presence: schema.Required},
		{Name: "city", Type: schema.TypeInt, Presence: schema.Required},
		{Name: "booked", Type: schema.TypeInt, Presence: schema.Required},
	})
	require.NoError(t, err)
	schemaPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, schema.WriteFile(schemaPath, s))

	out := filepath.Join(dir, "out")
	res, err := pipeline.Transform(context.Background(), testPipeline(), pipeline.TransformOptions{
		Input:         in,
		SchemaFile:    schemaPath,
		OutputDir:     out,
		OutfilePrefix: "train",
	})
	require.NoError(t, err)
	return Config{Addr: ":0", SchemaFile: schemaPath, TransformDir: out}, res
}

func newTestServer(t *testing.T) (*httptest.Server, *pipeline.TransformResult) {
	t.Helper()
	cfg, res := analyzed(t)
	s, err := New(testPipeline(), cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, res
}

func TestTransformEndpoint(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/transform", "text/csv", strings.NewReader("10,cz,1,7,1\n,zz,6,9,0\n"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Records, 2)

	first, second := body.Records[0], body.Records[1]
	for _, k := range []string{"clicks_xf", "market_xf", "price_xf", "city_xf", "booked_xf"} {
		assert.Contains(t, first, k)
	}
	// cz is the most frequent term; zz is unseen and lands in the only OOV bucket.
	assert.EqualValues(t, 0, first["market_xf"])
	assert.EqualValues(t, 2, second["market_xf"])
	assert.EqualValues(t, 7, first["city_xf"])
	// Missing clicks fill to 0, which is below the mean.
	assert.Less(t, second["clicks_xf"].(float64), 0.0)
	assert.EqualValues(t, 1, second["price_xf"])
}

func TestTransformEndpoint_BadLine(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		column string
	}{
		{"too few fields", "10,cz,1\n", ""},
		{"bad number", "10,cz,1,seven,1\n", "city"},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/v1/transform", "text/csv", strings.NewReader(tt.body))
		require.NoError(t, err, tt.name)
		var e errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&e), tt.name)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, tt.name)
		assert.Equal(t, 1, e.Line, tt.name)
		assert.Equal(t, tt.column, e.Column, tt.name)
		assert.Contains(t, e.Error, "decode", tt.name)
	}
}

func TestTransformEndpoint_EmptyBody(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/transform", "text/csv", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body transformResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Empty(t, body.Records)
}

func TestFeatureSpecAndHealth(t *testing.T) {
	t.Parallel()
	ts, res := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/feature-spec")
	require.NoError(t, err)
	var spec []artifact.SpecEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spec))
	resp.Body.Close()
	byName := map[string]artifact.SpecEntry{}
	for _, e := range spec {
		byName[e.Name] = e
	}
	assert.Equal(t, 3, byName["market_xf"].NumBuckets)
	assert.Equal(t, 2, byName["price_xf"].NumBuckets)
	assert.Equal(t, "float", byName["clicks_xf"].DType)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var h map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	resp.Body.Close()
	assert.Equal(t, "ok", h["status"])
	assert.Equal(t, res.Manifest.RunID, h["run_id"])
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/transform")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNew_MissingArtifact(t *testing.T) {
	t.Parallel()
	cfg, _ := analyzed(t)
	cfg.TransformDir = t.TempDir()

	_, err := New(testPipeline(), cfg)
	var me *artifact.MissingArtifactError
	require.True(t, errors.As(err, &me), "err=%v", err)
}

func TestNew_RequiresPaths(t *testing.T) {
	t.Parallel()

	_, err := New(testPipeline(), Config{})
	require.Error(t, err)
}
