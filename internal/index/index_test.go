package index

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spigell/cv-matcher/internal/postings"
)

// hashEncoder is a deterministic stand-in for a real embedding model: the
// vector depends only on the input text, so identical texts always match with
// similarity 1.
type hashEncoder struct {
	version string
}

func (e *hashEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r)
	}
	return vec, nil
}

func (e *hashEncoder) Version() string { return e.version }

func testPostings() *postings.Table {
	return postings.New(
		[]string{"Title", "Skills"},
		[][]string{
			{"Backend Engineer", "Go, PostgreSQL"},
			{"Data Analyst", "SQL, Python"},
			{"SRE", "Kubernetes, Terraform"},
		},
	)
}

func TestBuildAlignsVectorsWithRows(t *testing.T) {
	t.Parallel()

	enc := &hashEncoder{version: "test/v1"}
	idx, err := Build(context.Background(), testPostings(), []string{"Title", "Skills"}, enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if idx.Len() != 3 {
		t.Fatalf("expected 3 vectors, got %d", idx.Len())
	}

	if idx.EncoderVersion != "test/v1" {
		t.Fatalf("expected encoder version tag, got %q", idx.EncoderVersion)
	}
}

func TestBuildRejectsMissingColumns(t *testing.T) {
	t.Parallel()

	enc := &hashEncoder{version: "test/v1"}
	_, err := Build(context.Background(), testPostings(), []string{"Title", "Salary"}, enc)

	var mismatch *postings.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
}

func TestBestMatchSelectsIdenticalText(t *testing.T) {
	t.Parallel()

	table := testPostings()
	enc := &hashEncoder{version: "test/v1"}
	cols := []string{"Title", "Skills"}

	idx, err := Build(context.Background(), table, cols, enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	query, err := enc.Encode(context.Background(), table.Concat(1, cols))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row, score, err := idx.BestMatch(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if row != 1 {
		t.Fatalf("expected row 1, got %d", row)
	}

	if math.Abs(score-1.0) > 1e-6 {
		t.Fatalf("expected similarity ~1.0, got %f", score)
	}
}

func TestBestMatchTieKeepsFirstRow(t *testing.T) {
	t.Parallel()

	idx := &Index{
		EncoderVersion: "test/v1",
		Vectors: [][]float32{
			{1, 0},
			{1, 0},
			{0, 1},
		},
	}

	row, _, err := idx.BestMatch([]float32{2, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if row != 0 {
		t.Fatalf("expected first of the tied rows, got %d", row)
	}
}

func TestBestMatchEmptyIndex(t *testing.T) {
	t.Parallel()

	idx := &Index{EncoderVersion: "test/v1"}
	if _, _, err := idx.BestMatch([]float32{1}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "embeddings.bin")

	original := &Index{
		EncoderVersion: "test/v1",
		Vectors:        [][]float32{{1, 2, 3}, {4, 5, 6}},
	}
	if err := original.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loaded.EncoderVersion != original.EncoderVersion {
		t.Fatalf("expected version %q, got %q", original.EncoderVersion, loaded.EncoderVersion)
	}

	if loaded.Len() != 2 || loaded.Vectors[1][2] != 6 {
		t.Fatalf("unexpected vectors after reload: %v", loaded.Vectors)
	}
}

func TestLoadMissingCache(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.bin"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestCheckVersion(t *testing.T) {
	t.Parallel()

	idx := &Index{EncoderVersion: "test/v1"}

	if err := idx.CheckVersion(&hashEncoder{version: "test/v1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := idx.CheckVersion(&hashEncoder{version: "test/v2"})
	if !errors.Is(err, ErrEncoderMismatch) {
		t.Fatalf("expected ErrEncoderMismatch, got %v", err)
	}
	for _, version := range []string{"test/v1", "test/v2"} {
		if !strings.Contains(err.Error(), version) {
			t.Fatalf("expected %q in error message, got %q", version, err.Error())
		}
	}
}
