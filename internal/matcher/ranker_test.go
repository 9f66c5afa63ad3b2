package matcher

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/index"
	"github.com/spigell/cv-matcher/internal/postings"
)

// stubGenerator answers predict prompts with a fixed descriptor and opinion
// prompts with a fixed opinion, recording every prompt it sees.
type stubGenerator struct {
	descriptor string
	opinion    string
	err        error
	prompts    []string
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if strings.Contains(prompt, "predict the most suitable job") {
		return s.descriptor, nil
	}
	return s.opinion, nil
}

type stubEncoder struct {
	vectors map[string][]float32
	version string
}

func (s *stubEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	vec, ok := s.vectors[text]
	if !ok {
		return []float32{0, 0, 1}, nil
	}
	return vec, nil
}

func (s *stubEncoder) Version() string { return s.version }

func rankerFixture() (*postings.Table, *index.Index, *stubEncoder) {
	table := postings.New(
		[]string{"Title", "Description", "Skills"},
		[][]string{
			{"Backend Engineer", "Builds APIs", "Go, SQL"},
			{"Data Analyst", "Dashboards", "SQL, Python"},
			{"SRE", "Keeps things up", "Kubernetes"},
		},
	)

	idx := &index.Index{
		EncoderVersion: "stub/v1",
		Vectors: [][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.5, 0.5, 0},
		},
	}

	enc := &stubEncoder{
		version: "stub/v1",
		vectors: map[string][]float32{
			"data analyst, sql": {0, 1, 0},
		},
	}

	return table, idx, enc
}

func TestRankTableSelectsBestPosting(t *testing.T) {
	t.Parallel()

	table, idx, enc := rankerFixture()
	gen := &stubGenerator{descriptor: "data analyst, sql", opinion: "Good fit, 85% similarity."}

	ranker := NewRanker(gen, enc, RankerConfig{
		DetailColumns:  []string{"Title", "Skills"},
		OpinionColumns: []string{"Title", "Description"},
	}, zap.NewNop())

	match, err := ranker.RankTable(context.Background(), "cv text", table, idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if match.Row != 1 {
		t.Fatalf("expected row 1, got %d", match.Row)
	}

	if math.Abs(match.Score-1.0) > 1e-6 {
		t.Fatalf("expected similarity ~1.0, got %f", match.Score)
	}

	if !strings.Contains(match.Details, "Title: Data Analyst") {
		t.Fatalf("expected detail columns in output, got %q", match.Details)
	}

	if !strings.Contains(match.Details, OpinionHeading+"\nGood fit, 85% similarity.") {
		t.Fatalf("expected opinion under heading, got %q", match.Details)
	}

	// The opinion prompt must carry the opinion-context columns, not the
	// detail set.
	last := gen.prompts[len(gen.prompts)-1]
	if !strings.Contains(last, "Description: Dashboards") {
		t.Fatalf("expected opinion context in prompt, got %q", last)
	}
}

func TestRankTableRejectsMissingColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  RankerConfig
	}{
		{
			name: "missing detail column",
			cfg: RankerConfig{
				DetailColumns:  []string{"Title", "Salary"},
				OpinionColumns: []string{"Title"},
			},
		},
		{
			name: "missing opinion column",
			cfg: RankerConfig{
				DetailColumns:  []string{"Title"},
				OpinionColumns: []string{"Location"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			table, idx, enc := rankerFixture()
			gen := &stubGenerator{descriptor: "anything", opinion: "n/a"}
			ranker := NewRanker(gen, enc, tt.cfg, zap.NewNop())

			_, err := ranker.RankTable(context.Background(), "cv text", table, idx)

			var mismatch *postings.SchemaMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("expected SchemaMismatchError, got %v", err)
			}

			if len(gen.prompts) != 0 {
				t.Fatalf("expected no API calls on schema mismatch, got %d", len(gen.prompts))
			}
		})
	}
}

func TestRankTableRejectsEncoderMismatch(t *testing.T) {
	t.Parallel()

	table, idx, _ := rankerFixture()
	enc := &stubEncoder{version: "stub/v2"}
	gen := &stubGenerator{descriptor: "anything", opinion: "n/a"}

	ranker := NewRanker(gen, enc, RankerConfig{
		DetailColumns:  []string{"Title"},
		OpinionColumns: []string{"Title"},
	}, zap.NewNop())

	_, err := ranker.RankTable(context.Background(), "cv text", table, idx)
	if !errors.Is(err, index.ErrEncoderMismatch) {
		t.Fatalf("expected ErrEncoderMismatch, got %v", err)
	}
}

func TestRankTablePropagatesPredictorFailure(t *testing.T) {
	t.Parallel()

	table, idx, enc := rankerFixture()
	gen := &stubGenerator{err: errors.New("boom")}

	ranker := NewRanker(gen, enc, RankerConfig{
		DetailColumns:  []string{"Title"},
		OpinionColumns: []string{"Title"},
	}, zap.NewNop())

	_, err := ranker.RankTable(context.Background(), "cv text", table, idx)
	if err == nil || !strings.Contains(err.Error(), "predict job") {
		t.Fatalf("expected wrapped predictor error, got %v", err)
	}
}

func TestPredictorBuildsPromptFromTemplate(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{descriptor: "golang, backend"}
	predictor := NewPredictor(gen)

	got, err := predictor.Predict(context.Background(), "ten years of Go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "golang, backend" {
		t.Fatalf("unexpected descriptor: %q", got)
	}

	if !strings.Contains(gen.prompts[0], "ten years of Go") {
		t.Fatalf("expected CV text in prompt, got %q", gen.prompts[0])
	}
}

func TestSummarizerBuildsPromptFromTemplate(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{opinion: "short summary"}
	summarizer := NewSummarizer(gen)

	got, err := summarizer.Summarize(context.Background(), "long extracted text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "short summary" {
		t.Fatalf("unexpected summary: %q", got)
	}

	if !strings.Contains(gen.prompts[0], "Please summarize the following text: long extracted text") {
		t.Fatalf("unexpected prompt: %q", gen.prompts[0])
	}
}
