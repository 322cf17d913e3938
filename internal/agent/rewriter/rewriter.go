// Package rewriter sends canonical document text to a language model and
// returns the improved text.
package rewriter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// Options tune a single rewrite call. Zero values fall back to the backend defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Rewriter improves document text. Implementations never retry; failures are
// reported as RateLimited, Timeout or InvalidResponse and the caller decides.
type Rewriter interface {
	Rewrite(ctx context.Context, text string, opts Options) (string, error)
	Name() string
}

const SystemPrompt = `You are an assistant that improves documents before they are printed.
Correct grammar and spelling, improve clarity and structure, and keep a consistent style.
Preserve the original meaning, the author's voice and the original language.
Keep paragraphs separated by a single blank line.`

const (
	improvedMarker = "IMPROVED DOCUMENT:"
	summaryMarker  = "CHANGES SUMMARY:"
)

// UserPrompt wraps the document text with the expected response layout.
func UserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Please improve the following document.\n\nDocument to improve:\n---\n")
	b.WriteString(text)
	b.WriteString("\n---\n\nFormat your response as:\n")
	b.WriteString(improvedMarker)
	b.WriteString("\n[the improved document]\n\n")
	b.WriteString(summaryMarker)
	b.WriteString("\n[a brief summary of the changes]\n")
	return b.String()
}

var refusalPhrases = []string{
	"i am unable to",
	"i'm unable to",
	"i cannot fulfill",
	"i cannot help with",
	"i can't help with",
	"i cannot provide",
	"as a large language model",
	"as an ai language model",
}

// Result is a parsed model answer.
type Result struct {
	Content string
	Summary string
}

// ParseResponse extracts the improved document from a raw model answer.
// Answers that ignore the layout are taken whole.
func ParseResponse(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}, models.NewError(models.ErrInvalidResponse, "empty model output")
	}

	res := Result{Content: raw}
	if i := strings.Index(raw, improvedMarker); i >= 0 {
		body := raw[i+len(improvedMarker):]
		if j := strings.Index(body, summaryMarker); j >= 0 {
			res.Summary = strings.TrimSpace(body[j+len(summaryMarker):])
			body = body[:j]
		}
		res.Content = strings.TrimSpace(body)
	} else if j := strings.Index(raw, summaryMarker); j >= 0 {
		res.Summary = strings.TrimSpace(raw[j+len(summaryMarker):])
		res.Content = strings.TrimSpace(raw[:j])
	}

	if res.Content == "" {
		return Result{}, models.NewError(models.ErrInvalidResponse, "model output has no document body")
	}
	lower := strings.ToLower(res.Content)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return Result{}, models.NewError(models.ErrInvalidResponse, "model refused: %q", phrase)
		}
	}
	return res, nil
}

// classifyStatus maps a non-2xx HTTP status to the taxonomy.
func classifyStatus(provider string, code int, body []byte) error {
	detail := fmt.Sprintf("%s: status %d: %s", provider, code, truncate(string(body), 200))
	switch {
	case code == 429:
		return models.NewError(models.ErrRateLimited, "%s", detail)
	case code == 408 || code >= 500:
		return models.NewError(models.ErrTimeout, "%s", detail)
	default:
		return models.NewError(models.ErrInvalidResponse, "%s", detail)
	}
}

// classifyTransport maps a failed round trip to the taxonomy.
func classifyTransport(ctx context.Context, provider string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.WrapError(models.ErrCancelled, err, provider+": request cancelled")
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return models.WrapError(models.ErrTimeout, err, provider+": request timed out")
	}
	// Connection failures are transient from the pipeline's point of view.
	return models.WrapError(models.ErrTimeout, err, provider+": request failed")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
