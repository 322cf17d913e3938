package rewriter

import (
	"context"
	"net/http"
	"strings"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// OllamaResponse 定义 Ollama API 响应结构
type OllamaResponse struct {
	Response        string `json:"response"`
	Model           string `json:"model"`
	Done            bool   `json:"done"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// OllamaClient uses a local Ollama server's generate API.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

func NewOllamaClient(endpoint, model string, httpClient *http.Client) *OllamaClient {
	return &OllamaClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

func (c *OllamaClient) Rewrite(ctx context.Context, text string, opts Options) (string, error) {
	req := ollamaRequest{
		Model:  pick(opts.Model, c.model),
		System: SystemPrompt,
		Prompt: UserPrompt(text),
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}

	var result OllamaResponse
	if err := postJSON(ctx, c.httpClient, c.Name(), c.endpoint+"/api/generate", nil, req, &result); err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", models.NewError(models.ErrInvalidResponse, "ollama error: %s", result.Error)
	}

	res, err := ParseResponse(result.Response)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
