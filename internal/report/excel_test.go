package report

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/cv-matcher/internal/batch"
)

func TestWriteProducesTaggedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.xlsx")

	rep := &batch.Report{
		Rows: []batch.Row{
			{
				File:          "cv1.pdf",
				Similarity:    67,
				HasSimilarity: true,
				Category:      batch.CategoryHigh,
				Details:       "Title: Backend Engineer\n\nOpinion on matched job:\nStrong fit, 67% match.",
			},
			{
				File:     "cv2.pdf",
				Category: batch.CategoryUnknown,
				Details:  "No percentage here.",
			},
		},
		High: 1,
	}

	if err := Write(path, rep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("opening written workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("reading sheet: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}

	if rows[0][0] != "File Name" || rows[0][1] != "Similarity" || rows[0][2] != "Details" {
		t.Fatalf("unexpected header: %v", rows[0])
	}

	if rows[1][0] != "cv1.pdf" || rows[1][1] != "67%" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}

	if rows[2][1] != "n/a" {
		t.Fatalf("expected n/a similarity for unknown category, got %q", rows[2][1])
	}
}

func TestLongestLine(t *testing.T) {
	t.Parallel()

	if got := longestLine("short\na much longer line\nmid"); got != len("a much longer line") {
		t.Fatalf("unexpected width: %d", got)
	}
}
