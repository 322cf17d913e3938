package rtf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

func TestParseWordpadStyle(t *testing.T) {
	raw := `{\rtf1\ansi\ansicpg1252\deff0{\fonttbl{\f0\fnil\fcharset0 Calibri;}}
{\*\generator Riched20 10.0.19041}\viewkind4\uc1
\pard\sa200\sl276\slmult1\f0\fs22\lang9 Dear team,\par
Please print the caf\'e9 menu \{draft\}.\par
Thanks\tab - Ana\line second line\par
}`
	text, err := NewProcessor().Parse(context.Background(), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Dear team,\n\nPlease print the café menu {draft}.\n\nThanks\t- Ana\nsecond line", text)
}

func TestParseUnicodeEscapes(t *testing.T) {
	raw := `{\rtf1\uc1 \u8220?quoted\u8221? \u-10179?\u-8704? end\par}`
	text, err := NewProcessor().Parse(context.Background(), []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "“quoted” 😀 end", text)
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := map[string]string{
		"no header":  "just text",
		"unbalanced": `{\rtf1 hello`,
		"extra":      `{\rtf1 hello}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewProcessor().Parse(context.Background(), []byte(raw))
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.ErrCorrupt))
		})
	}
}

func TestRenderRoundTrip(t *testing.T) {
	p := NewProcessor()
	ctx := context.Background()
	in := "Hello {world} \\ path\n\nSecond\nline\n\nCafé ✓ 😀"

	raw, err := p.Render(ctx, in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `\{world\}`)

	out, err := p.Parse(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
