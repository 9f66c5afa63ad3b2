package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/cv-matcher/internal/batch"
)

const sheetName = "Job Matches"

var header = []string{"File Name", "Similarity", "Details"}

// Category row fills, matching the classic traffic-light scheme.
var categoryFills = map[batch.Category]string{
	batch.CategoryLow:    "FF9999",
	batch.CategoryMedium: "FFD580",
	batch.CategoryHigh:   "99FF99",
}

// Write renders the batch report as an Excel workbook: one row per processed
// document, the file-name cell filled by category, column widths sized to
// content.
func Write(path string, rep *batch.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetList()[0], sheetName)

	centered, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create cell style: %w", err)
	}

	wrapped, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true},
	})
	if err != nil {
		return fmt.Errorf("create cell style: %w", err)
	}

	fills := make(map[batch.Category]int, len(categoryFills))
	for category, color := range categoryFills {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		})
		if err != nil {
			return fmt.Errorf("create fill style: %w", err)
		}
		fills[category] = style
	}

	widths := make([]int, len(header))

	writeRow := func(rowNum int, values []string) error {
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
			if w := longestLine(value); w > widths[col] {
				widths[col] = w
			}
		}
		return nil
	}

	if err := writeRow(1, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rep.Rows {
		rowNum := i + 2

		if err := writeRow(rowNum, []string{row.File, row.SimilarityLabel(), row.Details}); err != nil {
			return fmt.Errorf("write row %d: %w", rowNum, err)
		}

		fileCell, _ := excelize.CoordinatesToCellName(1, rowNum)
		similarityCell, _ := excelize.CoordinatesToCellName(2, rowNum)
		detailsCell, _ := excelize.CoordinatesToCellName(3, rowNum)

		fileStyle := centered
		if style, ok := fills[row.Category]; ok {
			fileStyle = style
		}

		if err := f.SetCellStyle(sheetName, fileCell, fileCell, fileStyle); err != nil {
			return fmt.Errorf("style row %d: %w", rowNum, err)
		}
		if err := f.SetCellStyle(sheetName, similarityCell, similarityCell, centered); err != nil {
			return fmt.Errorf("style row %d: %w", rowNum, err)
		}
		if err := f.SetCellStyle(sheetName, detailsCell, detailsCell, wrapped); err != nil {
			return fmt.Errorf("style row %d: %w", rowNum, err)
		}
	}

	for col, width := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, name, name, float64(width+2)); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %q: %w", path, err)
	}

	return nil
}

// longestLine measures multi-line cell content by its widest line, so the
// details column is not sized to the whole text length.
func longestLine(value string) int {
	longest := 0
	for _, line := range strings.Split(value, "\n") {
		if n := len([]rune(line)); n > longest {
			longest = n
		}
	}
	return longest
}
