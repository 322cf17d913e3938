package rewriter

import (
	"context"
	"net/http"
	"strings"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// AnthropicClient talks to the Messages API.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewAnthropicClient(baseURL, apiKey, model string, httpClient *http.Client) *AnthropicClient {
	return &AnthropicClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) Rewrite(ctx context.Context, text string, opts Options) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		// required by the API
		maxTokens = 2000
	}
	req := anthropicRequest{
		Model:       pick(opts.Model, c.model),
		System:      SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: UserPrompt(text)}},
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, c.httpClient, c.Name(), c.baseURL+"/messages", headers, req, &resp); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", models.NewError(models.ErrInvalidResponse, "anthropic: no text content (stop_reason=%s)", resp.StopReason)
	}

	res, err := ParseResponse(b.String())
	if err != nil {
		return "", err
	}
	return res.Content, nil
}
