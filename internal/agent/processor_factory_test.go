package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

func TestTXTRoundTripThroughFactory(t *testing.T) {
	f := NewProcessorFactory(logger.NewTestLogger(), FactoryOptions{PaperSize: "A4"})
	ctx := context.Background()
	original := "Line one.\n\nLine two has trailing spaces   \n\nEnd\n"

	text, err := f.Parse(ctx, []byte(original), models.FormatTXT)
	require.NoError(t, err)
	out, err := f.Render(ctx, text, models.FormatTXT)
	require.NoError(t, err)
	assert.Equal(t, original, string(out))
}

func TestEveryFormatRenders(t *testing.T) {
	f := NewProcessorFactory(logger.NewTestLogger(), FactoryOptions{})
	for _, format := range models.Formats {
		t.Run(string(format), func(t *testing.T) {
			out, err := f.Render(context.Background(), "one\n\ntwo", format)
			require.NoError(t, err)
			assert.NotEmpty(t, out)
		})
	}
}

func TestCrossFormatParagraphsSurvive(t *testing.T) {
	f := NewProcessorFactory(logger.NewTestLogger(), FactoryOptions{})
	ctx := context.Background()
	for _, format := range []models.Format{models.FormatDOCX, models.FormatRTF, models.FormatTXT} {
		raw, err := f.Render(ctx, "alpha\n\nbeta\n\ngamma", format)
		require.NoError(t, err)
		text, err := f.Parse(ctx, raw, format)
		require.NoError(t, err)
		assert.Equal(t, "alpha\n\nbeta\n\ngamma", text, string(format))
	}
}

func TestUnknownFormat(t *testing.T) {
	f := NewProcessorFactory(logger.NewTestLogger(), FactoryOptions{})
	_, err := f.Parse(context.Background(), []byte("x"), models.Format("odt"))
	assert.True(t, models.IsKind(err, models.ErrUnsupportedFormat))
	_, err = f.Render(context.Background(), "x", models.Format("odt"))
	assert.True(t, models.IsKind(err, models.ErrUnsupportedFormat))
}
