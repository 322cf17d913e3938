package rewriter

import (
	"context"
	"net/http"
	"strings"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// OpenAIClient talks to an OpenAI compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIClient(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Rewrite(ctx context.Context, text string, opts Options) (string, error) {
	req := openAIRequest{
		Model: pick(opts.Model, c.model),
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: UserPrompt(text)},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp openAIResponse
	if err := postJSON(ctx, c.httpClient, c.Name(), c.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", models.NewError(models.ErrInvalidResponse, "openai error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", models.NewError(models.ErrInvalidResponse, "openai: no choices in response")
	}

	res, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}
