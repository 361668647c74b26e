package storage

import (
	"math"
	"testing"
)

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0, 1.5, -2.25, math.MaxFloat32}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for misaligned byte slice")
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0}
	tests := []struct {
		name string
		b    []float32
		want float32
	}{
		{"identical", []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{0, 1, 0}, 0},
		{"opposite", []float32{-1, 0, 0}, -1},
		{"zero vector", []float32{0, 0, 0}, 0},
		{"length mismatch", []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosine(a, tt.b, norm(a))
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimilarCaptures(t *testing.T) {
	s := openTestStore(t)

	mk := func(id string, vec []float32) {
		t.Helper()
		c := Capture{ID: id, URL: "https://example.com/" + id, Title: id, Status: StatusCompleted, Embedding: vec}
		if err := s.CreateCapture(c); err != nil {
			t.Fatalf("CreateCapture %s: %v", id, err)
		}
	}
	mk("exact", []float32{1, 0, 0})
	mk("close", []float32{0.9, 0.1, 0})
	mk("far", []float32{0, 0, 1})
	// No embedding: must never match.
	if err := s.CreateCapture(Capture{ID: "no-vec", URL: "https://example.com/no-vec", Title: "n", Status: StatusCompleted}); err != nil {
		t.Fatalf("CreateCapture: %v", err)
	}

	results, err := s.SimilarCaptures([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SimilarCaptures: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "exact" || results[1].ID != "close" {
		t.Errorf("order = [%s %s], want [exact close]", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score descending")
	}
	if results[0].Score < 0.999 {
		t.Errorf("exact match score = %v", results[0].Score)
	}
}

func TestSimilarCapturesEmpty(t *testing.T) {
	s := openTestStore(t)

	results, err := s.SimilarCaptures([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("SimilarCaptures: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}

	if got, _ := s.SimilarCaptures([]float32{0, 0, 0}, 5); got != nil {
		t.Errorf("zero query vector: results = %v, want nil", got)
	}
	if got, _ := s.SimilarCaptures([]float32{1, 0, 0}, 0); got != nil {
		t.Errorf("topK 0: results = %v, want nil", got)
	}
}
