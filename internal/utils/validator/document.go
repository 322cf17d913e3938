package validator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// DocumentValidator 文档验证器
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
	MaxFileSize  int64                      // 最大文件大小（字节）
	AllowedTypes map[models.Format][]string // 允许的文件类型 {格式: []MIME类型}
}

// FileInfo 文件信息
type FileInfo struct {
	Filename string        `json:"filename"`
	Size     int64         `json:"size"`
	MimeType string        `json:"mimeType"`
	Format   models.Format `json:"format"`
	Hash     string        `json:"hash"`
}

var (
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	zipMagic = []byte("PK\x03\x04")
)

// DefaultAllowedTypes maps each input format to the MIME types senders use for it.
func DefaultAllowedTypes() map[models.Format][]string {
	return map[models.Format][]string{
		models.FormatPDF:  {"application/pdf", "application/x-pdf"},
		models.FormatDOCX: {models.FormatDOCX.ContentType()},
		models.FormatTXT:  {"text/plain"},
		models.FormatRTF:  {"application/rtf", "text/rtf"},
	}
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = &ValidatorConfig{MaxFileSize: 10 * 1024 * 1024}
	}
	if config.AllowedTypes == nil {
		config.AllowedTypes = DefaultAllowedTypes()
	}
	return &DocumentValidator{logger: log, config: config}
}

// Validate checks an incoming file and infers its format. The returned
// FileInfo is filled even when validation fails so the caller can record it.
//
// Format comes from the declared content type, then the file extension, then
// the leading bytes. Oversized files are FileTooLarge; anything that is not
// one of the supported formats is UnsupportedFormat.
func (v *DocumentValidator) Validate(filename, contentType string, data []byte) (*FileInfo, error) {
	sum := sha256.Sum256(data)
	info := &FileInfo{
		Filename: filename,
		Size:     int64(len(data)),
		MimeType: http.DetectContentType(data),
		Hash:     hex.EncodeToString(sum[:]),
	}

	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		return info, models.NewError(models.ErrFileTooLarge,
			"file is %d bytes, the limit is %d", info.Size, v.config.MaxFileSize)
	}
	if info.Size == 0 {
		return info, models.NewError(models.ErrCorrupt, "file is empty")
	}
	if bytes.HasPrefix(data, oleMagic) {
		return info, models.NewError(models.ErrUnsupportedFormat, "legacy binary office documents are not supported")
	}

	format, ok := v.formatFromContentType(contentType)
	if !ok {
		format, ok = models.FormatFromFileName(filename)
	}
	if !ok {
		format, ok = sniff(data)
	}
	if !ok {
		v.logger.Debug("unrecognised upload",
			logger.String("filename", filename),
			logger.String("content_type", contentType),
			logger.String("detected", info.MimeType))
		return info, models.NewError(models.ErrUnsupportedFormat,
			"cannot determine a supported format for %q (%s)", filename, info.MimeType)
	}
	info.Format = format
	return info, nil
}

func (v *DocumentValidator) formatFromContentType(contentType string) (models.Format, bool) {
	if contentType == "" {
		return "", false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	for format, types := range v.config.AllowedTypes {
		for _, t := range types {
			if strings.EqualFold(t, mediaType) {
				return format, true
			}
		}
	}
	return "", false
}

func sniff(data []byte) (models.Format, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return models.FormatPDF, true
	case bytes.HasPrefix(data, []byte(`{\rtf`)):
		return models.FormatRTF, true
	case bytes.HasPrefix(data, zipMagic):
		return models.FormatDOCX, true
	case utf8.Valid(data) && strings.HasPrefix(http.DetectContentType(data), "text/plain"):
		return models.FormatTXT, true
	}
	return "", false
}

// IsSupportedFile reports whether a file name has a supported extension.
func IsSupportedFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	_, ok := models.FormatFromFileName(name)
	return ok
}
