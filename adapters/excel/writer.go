// Package excel writes the durable export artifact for a research: one
// workbook with a Comments sheet and a Threads sheet, regenerated after
// finalize and after every expand/add/remove mutation.
package excel

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"threadlens/models"
	"threadlens/ports"
)

// Writer exports research data as .xlsx workbooks in a fixed directory.
type Writer struct {
	exportDir string
}

// NewWriter creates an export writer, ensuring the export directory exists.
func NewWriter(exportDir string) (*Writer, error) {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &Writer{exportDir: exportDir}, nil
}

var _ ports.Exporter = (*Writer)(nil)

var commentHeaders = []string{"id", "thread_id", "author", "body", "score", "relevancy_score", "reasoning", "user_note", "permalink", "depth", "created_utc"}
var threadHeaders = []string{"id", "title", "subreddit", "score", "num_comments", "url", "permalink", "author", "created_utc"}

// Export writes the workbook and returns its path. The filename embeds the
// research id and a sanitized slice of the question. An existing file for
// the research is overwritten.
func (w *Writer) Export(ctx context.Context, research *models.Research, threads []models.Thread, comments []models.Comment) (string, error) {
	_ = ctx

	f := excelize.NewFile()
	defer f.Close()

	const commentSheet = "Comments"
	f.SetSheetName("Sheet1", commentSheet)
	writeRow(f, commentSheet, 1, toCells(commentHeaders))
	for i, c := range comments {
		relevancy := interface{}(nil)
		if c.RelevancyScore != nil {
			relevancy = *c.RelevancyScore
		}
		writeRow(f, commentSheet, i+2, []interface{}{
			c.ID, c.ThreadID, c.Author, c.Body, c.Score, relevancy, c.Reasoning, c.UserNote, c.Permalink, c.Depth, c.CreatedUTC,
		})
	}

	const threadSheet = "Threads"
	if _, err := f.NewSheet(threadSheet); err != nil {
		return "", fmt.Errorf("failed to create threads sheet: %w", err)
	}
	writeRow(f, threadSheet, 1, toCells(threadHeaders))
	for i, t := range threads {
		writeRow(f, threadSheet, i+2, []interface{}{
			t.ID, t.Title, t.Subreddit, t.Score, t.NumComments, t.URL, t.Permalink, t.Author, t.CreatedUTC,
		})
	}

	filename := fmt.Sprintf("research_%s_%s.xlsx", research.ID, SanitizeFilename(research.Question))
	path := filepath.Join(w.exportDir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save export workbook: %w", err)
	}

	log.Printf("[Export] Wrote %s (%d comments, %d threads)", path, len(comments), len(threads))
	return path, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		f.SetCellValue(sheet, cell, v)
	}
}

func toCells(headers []string) []interface{} {
	cells := make([]interface{}, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	return cells
}

// SanitizeFilename keeps alphanumerics, spaces, hyphens and underscores from
// the question, truncated to 50 characters.
func SanitizeFilename(question string) string {
	var sb strings.Builder
	for _, r := range question {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ', r == '-', r == '_':
			sb.WriteRune(r)
		}
	}
	name := strings.TrimSpace(sb.String())
	if len(name) > 50 {
		name = strings.TrimSpace(name[:50])
	}
	return name
}
