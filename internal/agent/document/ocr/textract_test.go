package ocr

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

type fakeTextract struct {
	out *textract.DetectDocumentTextOutput
	err error
}

func (f *fakeTextract) DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	return f.out, f.err
}

func lineBlock(text string, top, height, confidence float32) types.Block {
	return types.Block{
		BlockType:  types.BlockTypeLine,
		Text:       aws.String(text),
		Confidence: aws.Float32(confidence),
		Geometry:   &types.Geometry{BoundingBox: &types.BoundingBox{Top: top, Height: height}},
	}
}

func TestRecognizeGroupsParagraphs(t *testing.T) {
	client := &fakeTextract{out: &textract.DetectDocumentTextOutput{Blocks: []types.Block{
		{BlockType: types.BlockTypePage},
		lineBlock("second line", 0.13, 0.02, 99),
		lineBlock("first line", 0.10, 0.02, 99),
		lineBlock("smudge", 0.20, 0.02, 30),
		lineBlock("new paragraph", 0.30, 0.02, 95),
	}}}

	text, err := NewTextractRecognizerWithClient(client, logger.NewTestLogger()).Recognize(context.Background(), []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line\n\nnew paragraph", text)
}

func TestRecognizeClassifiesErrors(t *testing.T) {
	tests := []struct {
		err  error
		kind models.ErrorKind
	}{
		{&types.ThrottlingException{Message: aws.String("slow down")}, models.ErrTimeout},
		{&types.UnsupportedDocumentException{Message: aws.String("multi page")}, models.ErrUnsupportedFormat},
		{&types.BadDocumentException{Message: aws.String("bad")}, models.ErrCorrupt},
	}
	for _, tt := range tests {
		_, err := NewTextractRecognizerWithClient(&fakeTextract{err: tt.err}, logger.NewTestLogger()).Recognize(context.Background(), nil)
		assert.True(t, models.IsKind(err, tt.kind), "got %v", err)
	}
}
