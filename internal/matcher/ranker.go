package matcher

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/encoder"
	"github.com/spigell/cv-matcher/internal/index"
	"github.com/spigell/cv-matcher/internal/postings"
	"github.com/spigell/cv-matcher/internal/utils"
)

//go:embed prompt_opinion.md
var opinionTemplate string

// OpinionHeading precedes the generated commentary in the match details.
const OpinionHeading = "Opinion on matched job:"

const defaultMaxLogLength = 200

// Match is the outcome of ranking one CV against the postings corpus.
type Match struct {
	// Row is the winning posting's row index in the postings table.
	Row int
	// Score is the raw cosine similarity between the descriptor and the
	// winning posting, in [-1, 1].
	Score float64
	// Descriptor is the predicted keyword-style job description.
	Descriptor string
	// Details combines the configured detail columns of the winning posting
	// with the generated opinion.
	Details string
}

// Ranker matches CV text against the embedding index and assembles the
// human-readable match details.
type Ranker struct {
	generator   Generator
	encoder     encoder.Encoder
	predictor   *Predictor
	detailCols  []string
	opinionCols []string
	logger      *zap.Logger
	maxLogLen   int
}

// RankerConfig carries the externally configured column sets.
type RankerConfig struct {
	DetailColumns  []string
	OpinionColumns []string
	MaxLogLength   int
}

func NewRanker(generator Generator, enc encoder.Encoder, cfg RankerConfig, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Ranker{
		generator:   generator,
		encoder:     enc,
		predictor:   NewPredictor(generator),
		detailCols:  cfg.DetailColumns,
		opinionCols: cfg.OpinionColumns,
		logger:      logger,
		maxLogLen:   maxLogLen,
	}
}

// Rank reloads the postings table from source and matches the CV text against
// the given embedding index.
func (r *Ranker) Rank(ctx context.Context, cvText, source string, idx *index.Index) (*Match, error) {
	table, err := postings.Load(source)
	if err != nil {
		return nil, err
	}

	return r.RankTable(ctx, cvText, table, idx)
}

// RankTable matches the CV text against an already loaded postings table.
func (r *Ranker) RankTable(ctx context.Context, cvText string, table *postings.Table, idx *index.Index) (*Match, error) {
	if err := table.Require("columns.detail", r.detailCols); err != nil {
		return nil, err
	}
	if err := table.Require("columns.opinion", r.opinionCols); err != nil {
		return nil, err
	}

	if err := idx.CheckVersion(r.encoder); err != nil {
		return nil, err
	}

	if table.Len() != idx.Len() {
		return nil, fmt.Errorf("postings table has %d rows but the index has %d, rebuild the index",
			table.Len(), idx.Len())
	}

	descriptor, err := r.predictor.Predict(ctx, cvText)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("predicted job descriptor",
		zap.Int("descriptor_length", utf8.RuneCountInString(descriptor)),
		zap.String("descriptor_preview", utils.TruncateForLog(descriptor, r.maxLogLen)),
	)

	query, err := r.encoder.Encode(ctx, descriptor)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}

	best, score, err := idx.BestMatch(query)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("selected best posting",
		zap.Int("row", best),
		zap.Float64("cosine_similarity", score),
	)

	opinion, err := r.opinion(ctx, cvText, table.FormatRow(best, r.opinionCols))
	if err != nil {
		return nil, err
	}

	var details strings.Builder
	details.WriteString(table.FormatRow(best, r.detailCols))
	details.WriteString("\n\n")
	details.WriteString(OpinionHeading)
	details.WriteString("\n")
	details.WriteString(opinion)

	return &Match{
		Row:        best,
		Score:      score,
		Descriptor: descriptor,
		Details:    details.String(),
	}, nil
}

func (r *Ranker) opinion(ctx context.Context, cvText, job string) (string, error) {
	prompt := strings.ReplaceAll(opinionTemplate, "{{CV_TEXT}}", cvText)
	prompt = strings.ReplaceAll(prompt, "{{JOB}}", job)

	opinion, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate opinion: %w", err)
	}

	return opinion, nil
}
