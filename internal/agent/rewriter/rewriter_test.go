package rewriter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		content string
		summary string
		kind    models.ErrorKind
	}{
		{
			name:    "both markers",
			raw:     "IMPROVED DOCUMENT:\nHello there.\n\nSecond.\n\nCHANGES SUMMARY:\nFixed case.",
			content: "Hello there.\n\nSecond.",
			summary: "Fixed case.",
		},
		{name: "no markers", raw: "  Just text.  ", content: "Just text."},
		{name: "summary only", raw: "Body\n\nCHANGES SUMMARY: none", content: "Body", summary: "none"},
		{name: "empty", raw: "   ", kind: models.ErrInvalidResponse},
		{name: "empty body", raw: "IMPROVED DOCUMENT:\n\nCHANGES SUMMARY: x", kind: models.ErrInvalidResponse},
		{name: "refusal", raw: "I am unable to help with this request.", kind: models.ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResponse(tt.raw)
			if tt.kind != "" {
				assert.True(t, models.IsKind(err, tt.kind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.content, res.Content)
			assert.Equal(t, tt.summary, res.Summary)
		})
	}
}

func TestOpenAIClient(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "IMPROVED DOCUMENT:\nFixed.\nCHANGES SUMMARY:\nx"}},
			},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/", "sk-test", "gpt-3.5-turbo", srv.Client())
	out, err := c.Rewrite(context.Background(), "fixd.", Options{MaxTokens: 100, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "Fixed.", out)
	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "fixd.")
	assert.Equal(t, 100, got.MaxTokens)
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   models.ErrorKind
	}{
		{http.StatusTooManyRequests, models.ErrRateLimited},
		{http.StatusInternalServerError, models.ErrTimeout},
		{http.StatusBadGateway, models.ErrTimeout},
		{http.StatusUnauthorized, models.ErrInvalidResponse},
		{http.StatusBadRequest, models.ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer srv.Close()

			for _, rw := range []Rewriter{
				NewOpenAIClient(srv.URL, "k", "m", srv.Client()),
				NewAnthropicClient(srv.URL, "k", "m", srv.Client()),
				NewOllamaClient(srv.URL, "m", srv.Client()),
			} {
				_, err := rw.Rewrite(context.Background(), "text", Options{})
				assert.True(t, models.IsKind(err, tt.kind), "%s: got %v", rw.Name(), err)
			}
		})
	}
}

func TestUnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL, "k", "m", srv.Client()).Rewrite(context.Background(), "t", Options{})
	assert.True(t, models.IsKind(err, models.ErrInvalidResponse), "got %v", err)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond
	_, err := NewAnthropicClient(srv.URL, "k", "m", client).Rewrite(context.Background(), "t", Options{})
	assert.True(t, models.IsKind(err, models.ErrTimeout), "got %v", err)
}

func TestAnthropicClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2000, req.MaxTokens)
		assert.Equal(t, SystemPrompt, req.System)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": "IMPROVED DOCUMENT:\nDone."}},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	out, err := NewAnthropicClient(srv.URL, "key", "claude", srv.Client()).Rewrite(context.Background(), "t", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Done.", out)
}

func TestOllamaClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3", req.Model)
		_ = json.NewEncoder(w).Encode(OllamaResponse{Response: "", Error: "model not found"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "mistral", srv.Client())
	defer c.Close()
	_, err := c.Rewrite(context.Background(), "t", Options{Model: "llama3"})
	assert.True(t, models.IsKind(err, models.ErrInvalidResponse))
}

func TestVertexClassification(t *testing.T) {
	tests := []struct {
		err  error
		kind models.ErrorKind
	}{
		{status.Error(codes.ResourceExhausted, "quota"), models.ErrRateLimited},
		{status.Error(codes.DeadlineExceeded, "slow"), models.ErrTimeout},
		{status.Error(codes.Unavailable, "down"), models.ErrTimeout},
		{status.Error(codes.InvalidArgument, "bad"), models.ErrInvalidResponse},
		{context.DeadlineExceeded, models.ErrTimeout},
		{errors.New("dial tcp: connection refused"), models.ErrTimeout},
	}
	for _, tt := range tests {
		c := &VertexClient{generate: func(context.Context, Options, string) (*genai.GenerateContentResponse, error) {
			return nil, tt.err
		}}
		_, err := c.Rewrite(context.Background(), "t", Options{})
		assert.True(t, models.IsKind(err, tt.kind), "%v: got %v", tt.err, err)
	}
}

func TestVertexExtraction(t *testing.T) {
	c := &VertexClient{generate: func(_ context.Context, _ Options, prompt string) (*genai.GenerateContentResponse, error) {
		assert.Contains(t, prompt, "original")
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("IMPROVED DOCUMENT:\n"), genai.Text("Better.")}},
		}}}, nil
	}}
	out, err := c.Rewrite(context.Background(), "original", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Better.", out)

	blocked := &VertexClient{generate: func(context.Context, Options, string) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}, nil
	}}
	_, err = blocked.Rewrite(context.Background(), "original", Options{})
	assert.True(t, models.IsKind(err, models.ErrInvalidResponse))
}

func TestMockRewriter(t *testing.T) {
	m := NewMockRewriter(WithSuffix("[edited]"))
	out, err := m.Rewrite(context.Background(), "so i dont  know\n\nwe cant go\n\nend", Options{})
	require.NoError(t, err)
	assert.Equal(t, "so I don't know [edited]\n\nwe can't go [edited]\n\nend [edited]", out)
	assert.Equal(t, 1, m.Calls())
}

func TestMockRewriterScriptedFailures(t *testing.T) {
	rateLimited := models.NewError(models.ErrRateLimited, "slow down")
	m := NewMockRewriter(WithFailures(rateLimited, nil))

	_, err := m.Rewrite(context.Background(), "a", Options{})
	assert.True(t, models.IsKind(err, models.ErrRateLimited))
	out, err := m.Rewrite(context.Background(), "a", Options{})
	require.NoError(t, err)
	assert.Equal(t, "a", out)
	assert.Equal(t, 2, m.Calls())
}

func TestMockRewriterHonorsContext(t *testing.T) {
	m := NewMockRewriter(WithDelay(time.Minute))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Rewrite(ctx, "a", Options{})
	assert.True(t, models.IsKind(err, models.ErrTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewFactory(t *testing.T) {
	cfg := config.Default().AI

	cfg.Provider = "mock"
	rw, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "mock", rw.Name())

	cfg.Provider = "openai"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err, "missing key")

	cfg.OpenAIKey = "sk"
	rw, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", rw.Name())

	cfg.Provider = "ollama"
	rw, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama", rw.Name())

	cfg.Provider = "gpt-9"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	opts := OptionsFrom(config.Default().AI)
	assert.Equal(t, 2000, opts.MaxTokens)
}
