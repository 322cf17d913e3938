package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/txt"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

const (
	mainPart = "word/document.xml"

	// ContentTypeDocument is the only main part type accepted.
	ContentTypeDocument = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	// Macro-enabled and template packages share the zip layout but not the main part type.
	ContentTypeMacroEnabled = "application/vnd.ms-word.document.macroEnabled.main+xml"
	ContentTypeTemplate     = "application/vnd.openxmlformats-officedocument.wordprocessingml.template.main+xml"

	wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// oleMagic starts legacy binary .doc files.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Processor reads and writes WordprocessingML packages.
type Processor struct {
	// MaxPartSize caps the uncompressed size of document.xml.
	MaxPartSize int64
}

func NewProcessor() *Processor {
	return &Processor{MaxPartSize: 64 << 20}
}

func (p *Processor) Format() models.Format { return models.FormatDOCX }

func (p *Processor) Parse(ctx context.Context, raw []byte) (string, error) {
	if bytes.HasPrefix(raw, oleMagic) {
		return "", models.NewError(models.ErrUnsupportedFormat, "legacy binary Word document (.doc)")
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", models.WrapError(models.ErrCorrupt, err, "not a zip package")
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	if ct, ok := files["[Content_Types].xml"]; ok {
		mainType, err := mainPartType(ct)
		if err != nil {
			return "", models.WrapError(models.ErrCorrupt, err, "unreadable [Content_Types].xml")
		}
		if mainType != "" && mainType != ContentTypeDocument {
			return "", models.NewError(models.ErrUnsupportedFormat, "unsupported sub-format %s", mainType)
		}
	}

	f, ok := files[mainPart]
	if !ok {
		return "", models.NewError(models.ErrCorrupt, "missing %s", mainPart)
	}
	if p.MaxPartSize > 0 && f.UncompressedSize64 > uint64(p.MaxPartSize) {
		return "", models.NewError(models.ErrFileTooLarge, "%s expands to %d bytes", mainPart, f.UncompressedSize64)
	}

	// 正文交给 docx 库读取，内容类型和大小检查留在上面
	rd, err := docx.ReadDocxFromMemory(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", models.WrapError(models.ErrCorrupt, err, "open "+mainPart)
	}
	defer rd.Close()

	paragraphs, err := extractParagraphs(strings.NewReader(rd.Editable().GetContent()))
	if err != nil {
		return "", models.WrapError(models.ErrCorrupt, err, "parse "+mainPart)
	}
	return document.JoinParagraphs(paragraphs), nil
}

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// mainPartType returns the declared content type of /word/document.xml, or ""
// when the package does not declare one.
func mainPartType(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var ct contentTypes
	if err := xml.NewDecoder(rc).Decode(&ct); err != nil {
		return "", err
	}
	for _, o := range ct.Overrides {
		if strings.EqualFold(o.PartName, "/"+mainPart) {
			return o.ContentType, nil
		}
	}
	return "", nil
}

// extractParagraphs walks the token stream: <w:t> is text, <w:tab/> a tab,
// <w:br/> a line break and </w:p> ends a paragraph.
func extractParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS && t.Name.Space != "" {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimRight(current.String(), " \t\n"); strings.TrimSpace(s) != "" {
					paragraphs = append(paragraphs, s)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		paragraphs = append(paragraphs, s)
	}
	return paragraphs, nil
}

// Render writes a minimal package with one paragraph per canonical paragraph.
func (p *Processor) Render(ctx context.Context, text string) ([]byte, error) {
	var body bytes.Buffer
	for _, para := range document.SplitParagraphs(txt.StripBOM(text)) {
		body.WriteString("<w:p>")
		for i, line := range strings.Split(para, "\n") {
			if i > 0 {
				body.WriteString("<w:r><w:br/></w:r>")
			}
			body.WriteString(`<w:r><w:t xml:space="preserve">`)
			if err := xml.EscapeText(&body, []byte(line)); err != nil {
				return nil, models.WrapError(models.ErrRenderError, err, "escape text")
			}
			body.WriteString("</w:t></w:r>")
		}
		body.WriteString("</w:p>")
	}

	parts := []struct{ name, content string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="` + ContentTypeDocument + `"/></Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`},
		{mainPart, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="` + wordNS + `"><w:body>` + body.String() + `</w:body></w:document>`},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, models.WrapError(models.ErrRenderError, err, "create "+part.name)
		}
		if _, err := io.WriteString(w, part.content); err != nil {
			return nil, models.WrapError(models.ErrRenderError, err, "write "+part.name)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, models.WrapError(models.ErrRenderError, err, "close package")
	}
	return buf.Bytes(), nil
}
