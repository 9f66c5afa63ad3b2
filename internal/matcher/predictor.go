package matcher

import (
	"context"
	"fmt"
	"strings"

	_ "embed"
)

//go:embed prompt_predict.md
var predictTemplate string

//go:embed prompt_summary.md
var summaryTemplate string

// Generator produces text for a prompt. Satisfied by the gemini client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Predictor turns free-form CV text into a compact, keyword-style job
// descriptor suitable for embedding.
type Predictor struct {
	generator Generator
}

func NewPredictor(generator Generator) *Predictor {
	return &Predictor{generator: generator}
}

// Predict returns the job descriptor for the given CV text.
func (p *Predictor) Predict(ctx context.Context, cvText string) (string, error) {
	prompt := strings.ReplaceAll(predictTemplate, "{{CV_TEXT}}", cvText)

	descriptor, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("predict job: %w", err)
	}

	return descriptor, nil
}

// Summarizer condenses extracted document text before matching.
type Summarizer struct {
	generator Generator
}

func NewSummarizer(generator Generator) *Summarizer {
	return &Summarizer{generator: generator}
}

// Summarize returns a short summary of the given text.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	prompt := strings.ReplaceAll(summaryTemplate, "{{TEXT}}", text)

	summary, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize text: %w", err)
	}

	return summary, nil
}
