package rewriter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

var mockReplacer = strings.NewReplacer(
	" i ", " I ",
	"dont", "don't",
	"cant", "can't",
	"wont", "won't",
)

// MockRewriter is a deterministic stand-in used by tests and LLM_PROVIDER=mock.
type MockRewriter struct {
	suffix string
	delay  time.Duration

	mu       sync.Mutex
	failures []error
	calls    int
}

type MockOption func(*MockRewriter)

// WithSuffix appends " <suffix>" to every paragraph.
func WithSuffix(s string) MockOption {
	return func(m *MockRewriter) { m.suffix = s }
}

// WithDelay makes every call take d unless the context ends first.
func WithDelay(d time.Duration) MockOption {
	return func(m *MockRewriter) { m.delay = d }
}

// WithFailures scripts errors returned by the first calls, in order.
// A nil entry lets that call succeed.
func WithFailures(errs ...error) MockOption {
	return func(m *MockRewriter) { m.failures = append(m.failures, errs...) }
}

func NewMockRewriter(opts ...MockOption) *MockRewriter {
	m := &MockRewriter{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockRewriter) Name() string { return "mock" }

// Calls reports how many times Rewrite was invoked.
func (m *MockRewriter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockRewriter) Rewrite(ctx context.Context, text string, _ Options) (string, error) {
	m.mu.Lock()
	m.calls++
	var scripted error
	if len(m.failures) > 0 {
		scripted = m.failures[0]
		m.failures = m.failures[1:]
	}
	m.mu.Unlock()

	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", models.WrapError(models.ErrTimeout, ctx.Err(), "mock: call abandoned")
		}
	}
	if scripted != nil {
		return "", scripted
	}

	paragraphs := document.SplitParagraphs(text)
	if len(paragraphs) == 0 {
		return "", models.NewError(models.ErrInvalidResponse, "empty model output")
	}
	for i, p := range paragraphs {
		p = mockReplacer.Replace(p)
		for strings.Contains(p, "  ") {
			p = strings.ReplaceAll(p, "  ", " ")
		}
		p = strings.TrimSpace(p)
		if m.suffix != "" {
			p += " " + m.suffix
		}
		paragraphs[i] = p
	}
	return document.JoinParagraphs(paragraphs), nil
}
