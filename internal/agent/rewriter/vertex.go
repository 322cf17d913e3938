package rewriter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

type generateFunc func(ctx context.Context, opts Options, prompt string) (*genai.GenerateContentResponse, error)

// VertexClient rewrites through a Gemini model on Vertex AI.
type VertexClient struct {
	model      string
	generate   generateFunc
	baseClient *genai.Client
}

func NewVertexClient(ctx context.Context, projectID, region, model string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	c := &VertexClient{model: model, baseClient: baseClient}
	c.generate = func(ctx context.Context, opts Options, prompt string) (*genai.GenerateContentResponse, error) {
		m := baseClient.GenerativeModel(pick(opts.Model, c.model))
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(SystemPrompt)},
		}
		m.SetTemperature(float32(opts.Temperature))
		if opts.MaxTokens > 0 {
			m.SetMaxOutputTokens(int32(opts.MaxTokens))
		}
		return m.GenerateContent(ctx, genai.Text(prompt))
	}
	return c, nil
}

func (c *VertexClient) Name() string { return "vertex" }

func (c *VertexClient) Rewrite(ctx context.Context, text string, opts Options) (string, error) {
	resp, err := c.generate(ctx, opts, UserPrompt(text))
	if err != nil {
		return "", classifyVertex(ctx, err)
	}

	raw, err := extractText(resp)
	if err != nil {
		return "", err
	}
	res, err := ParseResponse(raw)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", models.NewError(models.ErrInvalidResponse, "vertex: no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", models.NewError(models.ErrInvalidResponse, "vertex: response blocked by safety filters")
	}
	if cand.Content == nil {
		return "", models.NewError(models.ErrInvalidResponse, "vertex: candidate has no content")
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func classifyVertex(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.WrapError(models.ErrCancelled, err, "vertex: request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.WrapError(models.ErrTimeout, err, "vertex: request timed out")
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return models.WrapError(models.ErrRateLimited, err, "vertex: quota exhausted")
		case codes.DeadlineExceeded, codes.Unavailable, codes.Internal, codes.Aborted:
			return models.WrapError(models.ErrTimeout, err, "vertex: "+st.Code().String())
		case codes.Unknown:
		default:
			return models.WrapError(models.ErrInvalidResponse, err, "vertex: "+st.Code().String())
		}
	}
	return models.WrapError(models.ErrTimeout, err, "vertex: request failed")
}
