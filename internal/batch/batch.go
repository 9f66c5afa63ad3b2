package batch

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/matcher"
)

// TextExtractor pulls plain text out of a document on disk.
type TextExtractor interface {
	ExtractText(path string) (string, error)
}

// Summarizer condenses extracted text before matching.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Matcher ranks CV text against the postings corpus.
type Matcher interface {
	Match(ctx context.Context, cvText string) (*matcher.Match, error)
}

// Category buckets a match by its reported similarity percentage.
type Category int

const (
	// CategoryUnknown marks rows whose similarity could not be parsed from
	// the match text. They are reported but not counted.
	CategoryUnknown Category = iota
	CategoryLow
	CategoryMedium
	CategoryHigh
)

func (c Category) String() string {
	switch c {
	case CategoryLow:
		return "low"
	case CategoryMedium:
		return "medium"
	case CategoryHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Categorize maps a similarity percentage to its bucket.
func Categorize(similarity int) Category {
	switch {
	case similarity < 50:
		return CategoryLow
	case similarity < 60:
		return CategoryMedium
	default:
		return CategoryHigh
	}
}

// Row is one processed document in the batch report.
type Row struct {
	File          string
	Similarity    int
	HasSimilarity bool
	Details       string
	Category      Category
}

// SimilarityLabel renders the similarity column for the report.
func (r Row) SimilarityLabel() string {
	if !r.HasSimilarity {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", r.Similarity)
}

// Report is the ordered outcome of a batch run plus per-category counters.
// Documents that failed mid-pipeline are omitted.
type Report struct {
	Rows   []Row
	Low    int
	Medium int
	High   int

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// CountedTotal returns the number of rows included in the three counters.
func (r *Report) CountedTotal() int {
	return r.Low + r.Medium + r.High
}

// Summary renders the end-of-run report text.
func (r *Report) Summary() string {
	return fmt.Sprintf(
		"--- Processing Report ---\n"+
			"Total files processed: %d\n"+
			"Low similarity (< 50%%): %d\n"+
			"Medium similarity (50%%-60%%): %d\n"+
			"High similarity (>= 60%%): %d",
		r.CountedTotal(), r.Low, r.Medium, r.High,
	)
}

// Progress describes the state of a running batch after each document.
type Progress struct {
	Processed int
	Total     int
	Elapsed   time.Duration
	Remaining time.Duration
}

// ProgressFunc observes batch progress. It must not block for long; it is
// called synchronously between documents.
type ProgressFunc func(Progress)

var (
	percentRe  = regexp.MustCompile(`(\d+)%`)
	nearZeroRe = regexp.MustCompile(`(?i)similarity.*?near zero percent`)
	sortKeyRe  = regexp.MustCompile(`^([a-zA-Z_]*)(\d*)`)
)

// ExtractSimilarity parses the similarity percentage out of a match text. A
// phrase like "similarity near zero percent" counts as 0. The second return
// value is false when no percentage can be recognized.
func ExtractSimilarity(text string) (int, bool) {
	if m := percentRe.FindStringSubmatch(text); m != nil {
		value, err := strconv.Atoi(m[1])
		if err == nil {
			return value, true
		}
	}

	if nearZeroRe.MatchString(text) {
		return 0, true
	}

	return 0, false
}

// SortKey splits a file name into its alphabetic prefix (lowercased) and
// numeric suffix, so that cv2.pdf orders before cv10.pdf. Names without a
// number sort after numbered ones within the same prefix.
func SortKey(fileName string) (string, int) {
	m := sortKeyRe.FindStringSubmatch(fileName)
	prefix, number := m[1], m[2]

	n := math.MaxInt
	if number != "" {
		if parsed, err := strconv.Atoi(number); err == nil {
			n = parsed
		}
	}

	return strings.ToLower(prefix), n
}

// SortFiles orders document paths by the natural sort key of their base name.
func SortFiles(files []string) {
	sort.SliceStable(files, func(i, j int) bool {
		pi, ni := SortKey(filepath.Base(files[i]))
		pj, nj := SortKey(filepath.Base(files[j]))
		if pi != pj {
			return pi < pj
		}
		return ni < nj
	})
}

// Pipeline drives the per-document chain extract -> summarize -> match over a
// collection of documents, sequentially. A failure in one document is logged
// and the document skipped; the run continues.
type Pipeline struct {
	extractor  TextExtractor
	summarizer Summarizer
	matcher    Matcher
	logger     *zap.Logger
	progress   ProgressFunc

	now func() time.Time
}

func NewPipeline(extractor TextExtractor, summarizer Summarizer, m Matcher, logger *zap.Logger, progress ProgressFunc) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		extractor:  extractor,
		summarizer: summarizer,
		matcher:    m,
		logger:     logger,
		progress:   progress,
		now:        time.Now,
	}
}

// Run processes the documents in natural order and returns the finished
// report. Cancellation is honored between documents.
func (p *Pipeline) Run(ctx context.Context, files []string) (*Report, error) {
	sorted := make([]string, len(files))
	copy(sorted, files)
	SortFiles(sorted)

	report := &Report{}
	start := p.now()

	for i, path := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := filepath.Base(path)

		if row, err := p.process(ctx, path, name); err != nil {
			p.logger.Warn("skipping document",
				zap.String("file", name),
				zap.Error(err),
			)
		} else {
			switch row.Category {
			case CategoryLow:
				report.Low++
			case CategoryMedium:
				report.Medium++
			case CategoryHigh:
				report.High++
			}
			report.Rows = append(report.Rows, row)
		}

		p.report(i+1, len(sorted), start)
	}

	report.Elapsed = p.now().Sub(start)

	return report, nil
}

func (p *Pipeline) process(ctx context.Context, path, name string) (Row, error) {
	extracted, err := p.extractor.ExtractText(path)
	if err != nil {
		return Row{}, fmt.Errorf("extract text: %w", err)
	}

	cvText, err := p.summarizer.Summarize(ctx, extracted)
	if err != nil {
		return Row{}, err
	}

	match, err := p.matcher.Match(ctx, cvText)
	if err != nil {
		return Row{}, err
	}

	row := Row{
		File:    name,
		Details: match.Details,
	}

	if similarity, ok := ExtractSimilarity(match.Details); ok {
		row.Similarity = similarity
		row.HasSimilarity = true
		row.Category = Categorize(similarity)
	} else {
		p.logger.Warn("no similarity percentage in match text, excluding from counters",
			zap.String("file", name),
		)
	}

	return row, nil
}

func (p *Pipeline) report(processed, total int, start time.Time) {
	if p.progress == nil {
		return
	}

	elapsed := p.now().Sub(start)
	average := elapsed / time.Duration(processed)
	remaining := average * time.Duration(total-processed)

	p.progress(Progress{
		Processed: processed,
		Total:     total,
		Elapsed:   elapsed,
		Remaining: remaining,
	})
}
