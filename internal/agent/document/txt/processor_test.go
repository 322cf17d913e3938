package txt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripIsIdentity(t *testing.T) {
	p := NewProcessor()
	ctx := context.Background()

	inputs := []string{
		"",
		"Dear team,\n\nplease print this.\n\nThanks",
		"windows\r\nline endings\r\n\r\nkept",
		"unicode: naïve café ✓\n",
		"\xef\xbb\xbfwith bom",
	}
	for _, in := range inputs {
		text, err := p.Parse(ctx, []byte(in))
		require.NoError(t, err)
		out, err := p.Render(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, in, string(out))
	}
}

func TestParseWindows1252(t *testing.T) {
	text, err := NewProcessor().Parse(context.Background(), []byte("caf\xe9 \x93quoted\x94"))
	require.NoError(t, err)
	assert.Equal(t, "café “quoted”", text)
}

func TestStripBOM(t *testing.T) {
	assert.Equal(t, "x", StripBOM("\xef\xbb\xbfx"))
	assert.Equal(t, "x", StripBOM("x"))
}
