package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/houzhh15/minutes/cmd/minutes/internal/summary"
)

// Summarizer turns a finished transcript into meeting notes.
type Summarizer interface {
	Run(ctx context.Context, raw string) (*summary.Document, error)
}

// WriteSummary summarizes text and writes the notes as Markdown to path.
// Nothing is written when summarization fails.
func WriteSummary(ctx context.Context, s Summarizer, text, path string) (*summary.Document, error) {
	doc, err := s.Run(ctx, text)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create summary dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(doc.Markdown()), 0o644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	return doc, nil
}
