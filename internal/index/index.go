package index

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/spigell/cv-matcher/internal/encoder"
	"github.com/spigell/cv-matcher/internal/postings"
)

// ErrEncoderMismatch is returned when a cached index was produced by a
// different encoder than the one configured. Mixing vectors from different
// encoders is undefined, so the cache must be rebuilt instead.
var ErrEncoderMismatch = errors.New("embedding index was built by a different encoder")

// ErrEmpty is returned when a match is requested against an index with no rows.
var ErrEmpty = errors.New("embedding index is empty")

// Index holds one embedding vector per posting row, aligned with the postings
// table it was computed from, plus the version tag of the encoder that
// produced the vectors.
type Index struct {
	EncoderVersion string
	Vectors        [][]float32
}

// Build encodes the configured columns of every posting row into the index.
// The columns are concatenated with single spaces before encoding.
func Build(ctx context.Context, table *postings.Table, cols []string, enc encoder.Encoder) (*Index, error) {
	if err := table.Require("columns.embeddings", cols); err != nil {
		return nil, err
	}

	texts := make([]string, 0, table.Len())
	for row := 0; row < table.Len(); row++ {
		texts = append(texts, table.Concat(row, cols))
	}

	vectors, err := encoder.EncodeAll(ctx, enc, texts)
	if err != nil {
		return nil, fmt.Errorf("encode postings: %w", err)
	}

	return &Index{EncoderVersion: enc.Version(), Vectors: vectors}, nil
}

// Save persists the index to the cache artifact.
func (i *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index cache %q: %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(i); err != nil {
		return fmt.Errorf("encode index cache: %w", err)
	}

	return nil
}

// Load reads a previously saved index. A missing cache wraps fs.ErrNotExist.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index cache %q: %w", path, err)
	}
	defer f.Close()

	var idx Index
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decode index cache %q: %w", path, err)
	}

	return &idx, nil
}

// Len returns the number of indexed rows.
func (i *Index) Len() int { return len(i.Vectors) }

// CheckVersion verifies that the index was produced by the given encoder.
func (i *Index) CheckVersion(enc encoder.Encoder) error {
	if i.EncoderVersion != enc.Version() {
		return fmt.Errorf("%w: cache has %q, configured encoder is %q",
			ErrEncoderMismatch, i.EncoderVersion, enc.Version())
	}
	return nil
}

// BestMatch returns the row whose vector has the highest cosine similarity to
// the query. Ties keep the first occurrence in table order.
func (i *Index) BestMatch(query []float32) (int, float64, error) {
	if i.Len() == 0 {
		return 0, 0, ErrEmpty
	}

	best := 0
	bestScore := math.Inf(-1)
	for row, vec := range i.Vectors {
		score := Cosine(query, vec)
		if score > bestScore {
			best = row
			bestScore = score
		}
	}

	return best, bestScore, nil
}

// Cosine returns the cosine similarity of two vectors, in [-1, 1]. Vectors of
// different lengths are compared over the shorter prefix; a zero vector
// yields 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
