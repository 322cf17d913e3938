package ocr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// DetectAPI is the slice of the Textract client we use.
type DetectAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractRecognizer runs synchronous Textract text detection. The sync API
// accepts single-page PDFs, which covers phone scans sent over messaging.
type TextractRecognizer struct {
	client        DetectAPI
	logger        logger.Logger
	MinConfidence float32
}

func NewTextractRecognizer(ctx context.Context, c config.TextractConfig, log logger.Logger) (*TextractRecognizer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})
	return NewTextractRecognizerWithClient(client, log), nil
}

func NewTextractRecognizerWithClient(client DetectAPI, log logger.Logger) *TextractRecognizer {
	return &TextractRecognizer{client: client, logger: log, MinConfidence: 80}
}

func (r *TextractRecognizer) Recognize(ctx context.Context, raw []byte) (string, error) {
	out, err := r.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: raw},
	})
	if err != nil {
		var throttled *types.ThrottlingException
		var limit *types.ProvisionedThroughputExceededException
		if errors.As(err, &throttled) || errors.As(err, &limit) {
			return "", models.WrapError(models.ErrTimeout, err, "textract throttled")
		}
		var unsupported *types.UnsupportedDocumentException
		if errors.As(err, &unsupported) {
			return "", models.WrapError(models.ErrUnsupportedFormat, err, "textract cannot read this document")
		}
		return "", models.WrapError(models.ErrCorrupt, err, "textract failed")
	}
	return r.linesToText(out.Blocks), nil
}

type line struct {
	text   string
	top    float32
	height float32
}

// linesToText keeps LINE blocks above the confidence floor, orders them top
// down and starts a new paragraph where the vertical gap exceeds a line.
func (r *TextractRecognizer) linesToText(blocks []types.Block) string {
	var lines []line
	for _, b := range blocks {
		if b.BlockType != types.BlockTypeLine || b.Text == nil {
			continue
		}
		if b.Confidence != nil && *b.Confidence < r.MinConfidence {
			continue
		}
		l := line{text: *b.Text}
		if b.Geometry != nil && b.Geometry.BoundingBox != nil {
			l.top = b.Geometry.BoundingBox.Top
			l.height = b.Geometry.BoundingBox.Height
		}
		lines = append(lines, l)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].top < lines[j].top })

	var (
		paragraphs []string
		current    []string
	)
	for i, l := range lines {
		if i > 0 {
			prev := lines[i-1]
			if gap := l.top - (prev.top + prev.height); prev.height > 0 && gap > prev.height {
				paragraphs = append(paragraphs, strings.Join(current, "\n"))
				current = nil
			}
		}
		current = append(current, l.text)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
	}
	return document.JoinParagraphs(paragraphs)
}
