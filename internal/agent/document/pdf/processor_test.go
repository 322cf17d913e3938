package pdf

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(ctx context.Context, raw []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestRenderProducesPDF(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger(), Options{PaperSize: "letter"})
	out, err := p.Render(context.Background(), "Quarterly report\n\nAll numbers are final.")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderUncompressedKeepsParagraphText(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger(), Options{PaperSize: "A4"})
	out, err := p.Render(context.Background(), "alpha [edited]\n\nbeta [edited]\n\ngamma [edited]")
	require.NoError(t, err)
	assert.Equal(t, 3, bytes.Count(out, []byte("[edited]")))
}

func TestParseRenderedPDF(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger(), Options{Compress: true})
	ctx := context.Background()

	raw, err := p.Render(ctx, "Hello printer\n\nSecond paragraph")
	require.NoError(t, err)

	text, err := p.Parse(ctx, raw)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
	assert.Contains(t, text, "Second")
}

func TestParseRejectsCorruptInput(t *testing.T) {
	p := NewProcessor(logger.NewTestLogger(), Options{})
	for name, raw := range map[string][]byte{
		"not a pdf": []byte("GIF89a..."),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse(context.Background(), raw)
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.ErrCorrupt), "got %v", err)
		})
	}
}

func TestParseWithoutTextLayer(t *testing.T) {
	ctx := context.Background()
	blank, err := NewProcessor(logger.NewTestLogger(), Options{}).Render(ctx, "")
	require.NoError(t, err)

	t.Run("ocr disabled", func(t *testing.T) {
		_, err := NewProcessor(logger.NewTestLogger(), Options{}).Parse(ctx, blank)
		require.Error(t, err)
		assert.True(t, models.IsKind(err, models.ErrUnsupportedFormat))
	})

	t.Run("ocr fallback", func(t *testing.T) {
		ocr := &fakeOCR{text: "scanned words"}
		text, err := NewProcessor(logger.NewTestLogger(), Options{OCR: ocr}).Parse(ctx, blank)
		require.NoError(t, err)
		assert.Equal(t, "scanned words", text)
		assert.Equal(t, 1, ocr.calls)
	})

	t.Run("ocr error passes through", func(t *testing.T) {
		ocr := &fakeOCR{err: models.WrapError(models.ErrTimeout, errors.New("throttled"), "textract")}
		_, err := NewProcessor(logger.NewTestLogger(), Options{OCR: ocr}).Parse(ctx, blank)
		assert.True(t, models.IsKind(err, models.ErrTimeout))
	})
}
