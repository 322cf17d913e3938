package txt

import (
	"context"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

var utf8BOM = "\xef\xbb\xbf"

// Processor handles plain text. Valid UTF-8 passes through untouched so a
// parse/render round trip returns the original bytes.
type Processor struct{}

func NewProcessor() *Processor { return &Processor{} }

func (p *Processor) Format() models.Format { return models.FormatTXT }

func (p *Processor) Parse(ctx context.Context, raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	// Files saved by older Windows editors are usually cp1252.
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", models.WrapError(models.ErrCorrupt, err, "text is neither UTF-8 nor Windows-1252")
	}
	return string(decoded), nil
}

func (p *Processor) Render(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

// StripBOM drops a leading UTF-8 byte order mark.
func StripBOM(s string) string {
	if len(s) >= len(utf8BOM) && s[:len(utf8BOM)] == utf8BOM {
		return s[len(utf8BOM):]
	}
	return s
}
