package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

func newValidator() *DocumentValidator {
	return NewDocumentValidator(logger.NewTestLogger(), &ValidatorConfig{MaxFileSize: 1024})
}

func TestValidateInfersFormat(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		data        string
		want        models.Format
	}{
		{"content type wins", "upload.bin", "application/pdf", "%PDF-1.4", models.FormatPDF},
		{"content type with params", "", "text/plain; charset=utf-8", "hello", models.FormatTXT},
		{"extension", "essay.RTF", "application/octet-stream", `{\rtf1 hi}`, models.FormatRTF},
		{"sniff pdf", "", "", "%PDF-1.7\n...", models.FormatPDF},
		{"sniff rtf", "", "", `{\rtf1\ansi x}`, models.FormatRTF},
		{"sniff docx", "", "", "PK\x03\x04rest", models.FormatDOCX},
		{"sniff text", "", "", "plain words\n\nmore", models.FormatTXT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := newValidator().Validate(tt.filename, tt.contentType, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Format)
			assert.Len(t, info.Hash, 64)
			assert.Equal(t, int64(len(tt.data)), info.Size)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		kind     models.ErrorKind
	}{
		{"too large", "a.txt", []byte(strings.Repeat("x", 2048)), models.ErrFileTooLarge},
		{"empty", "a.txt", nil, models.ErrCorrupt},
		{"legacy doc", "a.doc", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0}, models.ErrUnsupportedFormat},
		{"image", "photo.png", []byte("\x89PNG\r\n\x1a\n\x00\x00"), models.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := newValidator().Validate(tt.filename, "", tt.data)
			assert.True(t, models.IsKind(err, tt.kind), "got %v", err)
			require.NotNil(t, info)
			assert.Equal(t, int64(len(tt.data)), info.Size)
		})
	}
}

func TestIsSupportedFile(t *testing.T) {
	assert.True(t, IsSupportedFile("inbox/report.docx"))
	assert.True(t, IsSupportedFile("NOTES.TXT"))
	assert.False(t, IsSupportedFile("photo.jpg"))
	assert.False(t, IsSupportedFile(".~lock.report.docx"))
	assert.False(t, IsSupportedFile("README"))
}
