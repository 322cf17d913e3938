package document

import (
	"context"
	"regexp"
	"strings"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// Processor converts one format to canonical text and back.
//
// Canonical text is UTF-8 with paragraphs separated by a single blank line.
// Parse fails with UnsupportedFormat or Corrupt, Render with RenderError.
type Processor interface {
	Format() models.Format
	Parse(ctx context.Context, raw []byte) (string, error)
	Render(ctx context.Context, text string) ([]byte, error)
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

// SplitParagraphs splits canonical text into non-empty paragraphs.
func SplitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "\n")
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinParagraphs is the inverse of SplitParagraphs.
func JoinParagraphs(paragraphs []string) string {
	return strings.Join(paragraphs, "\n\n")
}
