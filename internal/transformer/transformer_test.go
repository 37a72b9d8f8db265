package transformer

import (
	"context"
	"errors"
	"testing"

	"featurepipe/internal/artifact"
	"featurepipe/internal/config"
	"featurepipe/internal/feature"
	"featurepipe/internal/record"
	"featurepipe/internal/schema"
)

func testSetup(t *testing.T) (*artifact.Artifact, feature.Config) {
	t.Helper()
	s, err := schema.New([]schema.Column{
		{Name: "clicks", Type: schema.TypeFloat},
		{Name: "market", Type: schema.TypeString},
		{Name: "lat", Type: schema.TypeFloat},
		{Name: "city_id", Type: schema.TypeInt},
		{Name: "hotel", Type: schema.TypeString},
		{Name: "y", Type: schema.TypeFloat},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	cfg, err := feature.FromConfig(config.Features{
		Label:       "y",
		Scale:       []string{"clicks"},
		Vocabulary:  []string{"market"},
		Bucketize:   []string{"lat"},
		Passthrough: []string{"city_id", "hotel"},
		VocabSize:   3,
		OOVSize:     4,
		BucketCount: 3,
	}, s)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	a := &artifact.Artifact{
		VocabSize: 3, OOVSize: 4, BucketCount: 3,
		Features: []artifact.Feature{
			{Name: "clicks", Kind: feature.KindScale, Type: schema.TypeFloat, Scale: &artifact.ScaleParams{Mean: 2, Stddev: 4}},
			{Name: "market", Kind: feature.KindVocabulary, Type: schema.TypeString, Vocabulary: &artifact.VocabularyParams{Terms: []string{"cz", "de"}, OOVBucketCount: 4}},
			{Name: "lat", Kind: feature.KindBucketize, Type: schema.TypeFloat, Bucketize: &artifact.BucketizeParams{Boundaries: []float64{10, 20}}},
			{Name: "city_id", Kind: feature.KindPassthrough, Type: schema.TypeInt},
			{Name: "hotel", Kind: feature.KindPassthrough, Type: schema.TypeString},
			{Name: "y", Kind: feature.KindLabel, Type: schema.TypeFloat},
		},
	}
	return a, cfg
}

func TestApply(t *testing.T) {
	t.Parallel()

	a, cfg := testSetup(t)
	tr, err := New(a, cfg, "mem")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := tr.Apply(record.Raw{
		"clicks":  record.Number("10", 10),
		"market":  record.String("de"),
		"lat":     record.Number("20", 20),
		"city_id": record.Number("9007199254740993", 9007199254740993),
		"hotel":   record.String("Ritz"),
		"y":       record.Number("1.5", 1.5),
	})
	want := Record{
		"clicks_xf":  {Kind: KindFloat, Float: 2},
		"market_xf":  {Kind: KindInt, Int: 1},
		"lat_xf":     {Kind: KindInt, Int: 1},
		"city_id_xf": {Kind: KindInt, Int: 9007199254740993},
		"hotel_xf":   {Kind: KindBytes, Bytes: "Ritz"},
		"y_xf":       {Kind: KindFloat, Float: 1.5},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d features; want %d: %+v", len(got), len(want), got)
	}
	for k, w := range want {
		if got[k] != w {
			t.Fatalf("%s = %+v; want %+v", k, got[k], w)
		}
	}
}

func TestApply_MissingValuesAreFilled(t *testing.T) {
	t.Parallel()

	a, cfg := testSetup(t)
	tr, err := New(a, cfg, "mem")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := tr.Apply(record.Raw{})

	if v := got["clicks_xf"]; v.Float != -0.5 {
		t.Fatalf("clicks_xf = %+v; want (0-2)/4", v)
	}
	if v := got["lat_xf"]; v.Int != 0 {
		t.Fatalf("lat_xf = %+v; want bucket 0", v)
	}
	if v := got["market_xf"]; v.Int != OOVBucket("", 3, 4) {
		t.Fatalf("market_xf = %+v; want OOV bucket of empty string", v)
	}
	if v := got["hotel_xf"]; v.Kind != KindBytes || v.Bytes != "" {
		t.Fatalf("hotel_xf = %+v", v)
	}
	if v := got["city_id_xf"]; v.Kind != KindInt || v.Int != 0 {
		t.Fatalf("city_id_xf = %+v", v)
	}
}

func TestNew_MissingArtifactEntry(t *testing.T) {
	t.Parallel()

	a, cfg := testSetup(t)
	a.Features = a.Features[1:]
	_, err := New(a, cfg, "dir")
	var me *artifact.MissingArtifactError
	if !errors.As(err, &me) || me.Feature != "clicks" {
		t.Fatalf("err = %v; want MissingArtifactError for clicks", err)
	}
}

func TestPureFunctions(t *testing.T) {
	t.Parallel()

	if got := Scale(5, 5, 0); got != 0 {
		t.Fatalf("Scale with zero stddev = %v", got)
	}
	if got := OOVBucket("x", 10, 0); got != -1 {
		t.Fatalf("OOVBucket without buckets = %d", got)
	}
	for _, v := range []string{"", "a", "zzz", "Prague"} {
		id := OOVBucket(v, 10, 3)
		if id < 10 || id >= 13 {
			t.Fatalf("OOVBucket(%q) = %d; want in [10,13)", v, id)
		}
		if id != OOVBucket(v, 10, 3) {
			t.Fatalf("OOVBucket(%q) not stable", v)
		}
	}
	tests := []struct {
		x    float64
		want int64
	}{
		{-100, 0}, {10, 0}, {10.01, 1}, {20, 1}, {21, 2},
	}
	for _, tt := range tests {
		if got := Bucket(tt.x, []float64{10, 20}); got != tt.want {
			t.Fatalf("Bucket(%v) = %d; want %d", tt.x, got, tt.want)
		}
	}
}

func TestApplyLoop(t *testing.T) {
	t.Parallel()

	a, cfg := testSetup(t)
	tr, err := New(a, cfg, "mem")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	in := make(chan Item, 3)
	out := make(chan Result, 3)
	for i := int64(0); i < 3; i++ {
		in <- Item{Seq: i, Raw: record.Raw{"market": record.String("cz")}}
	}
	close(in)
	if err := tr.ApplyLoop(context.Background(), in, out); err != nil {
		t.Fatalf("ApplyLoop: %v", err)
	}
	close(out)
	var seq int64
	for r := range out {
		if r.Seq != seq || r.Record["market_xf"].Int != 0 {
			t.Fatalf("result %+v", r)
		}
		seq++
	}
	if seq != 3 {
		t.Fatalf("results = %d", seq)
	}
}
