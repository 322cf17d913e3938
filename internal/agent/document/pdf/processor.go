package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/txt"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// TextRecognizer reads text out of a PDF that has no text layer.
type TextRecognizer interface {
	Recognize(ctx context.Context, raw []byte) (string, error)
}

// pageSizes maps accepted paper names to gofpdf size names.
var pageSizes = map[string]string{
	"a3":     "A3",
	"a4":     "A4",
	"a5":     "A5",
	"letter": "Letter",
	"legal":  "Legal",
}

type Options struct {
	PaperSize string
	FontSize  float64
	// Compress deflates page streams. Off only in tests that grep the output.
	Compress bool
	// OCR is used when a PDF has pages but no extractable text. Optional.
	OCR TextRecognizer
}

type Processor struct {
	logger logger.Logger
	opts   Options
}

func NewProcessor(log logger.Logger, opts Options) *Processor {
	if opts.FontSize <= 0 {
		opts.FontSize = 11
	}
	if _, ok := pageSizes[strings.ToLower(opts.PaperSize)]; !ok {
		opts.PaperSize = "A4"
	}
	return &Processor{logger: log, opts: opts}
}

func (p *Processor) Format() models.Format { return models.FormatPDF }

func (p *Processor) Parse(ctx context.Context, raw []byte) (string, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n\x00"), []byte("%PDF-")) {
		return "", models.NewError(models.ErrCorrupt, "missing %%PDF header")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(raw), conf); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
			return "", models.WrapError(models.ErrUnsupportedFormat, err, "encrypted PDF")
		}
		return "", models.WrapError(models.ErrCorrupt, err, "pdf validation failed")
	}

	text, pages, err := extractText(raw)
	if err != nil {
		return "", models.WrapError(models.ErrCorrupt, err, "pdf text extraction failed")
	}
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	if p.opts.OCR == nil {
		return "", models.NewError(models.ErrUnsupportedFormat, "PDF has %d page(s) but no text layer and OCR is disabled", pages)
	}
	p.logger.Info("no text layer, falling back to OCR", logger.Int("pages", pages))
	text, err = p.opts.OCR.Recognize(ctx, raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", models.NewError(models.ErrUnsupportedFormat, "OCR found no text")
	}
	return text, nil
}

// extractText pulls the plain text of every page; the reader panics on some
// malformed inputs, which is reported as an error.
func extractText(raw []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader: %v", r)
		}
	}()

	reader := bytes.NewReader(raw)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", 0, err
	}

	pages = pdfReader.NumPage()
	var paragraphs []string
	for i := 1; i <= pages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("failed to get text from page %d: %w", i, err)
		}
		paragraphs = append(paragraphs, document.SplitParagraphs(cleanText(pageText))...)
	}
	return document.JoinParagraphs(paragraphs), pages, nil
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// Render lays paragraphs out top to bottom with automatic page breaks.
func (p *Processor) Render(ctx context.Context, text string) ([]byte, error) {
	doc := gofpdf.New("P", "mm", pageSizes[strings.ToLower(p.opts.PaperSize)], "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.SetCompression(p.opts.Compress)
	doc.SetCreator("PrintingAgent", true)
	doc.AddPage()
	doc.SetFont("Helvetica", "", p.opts.FontSize)

	// core fonts are cp1252; runes outside it are replaced by the translator
	tr := doc.UnicodeTranslatorFromDescriptor("")
	lineHeight := p.opts.FontSize * 0.5

	for i, para := range document.SplitParagraphs(txt.StripBOM(text)) {
		if i > 0 {
			doc.Ln(lineHeight * 0.8)
		}
		doc.MultiCell(0, lineHeight, tr(para), "", "L", false)
	}

	if err := doc.Error(); err != nil {
		return nil, models.WrapError(models.ErrRenderError, err, "layout")
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, models.WrapError(models.ErrRenderError, err, "write pdf")
	}
	return buf.Bytes(), nil
}
