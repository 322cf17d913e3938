package agent

import (
	"context"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/docx"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/pdf"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/rtf"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/txt"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// FactoryOptions configures the processors the factory builds.
type FactoryOptions struct {
	PaperSize string
	OCR       pdf.TextRecognizer
}

// ProcessorFactory is the format adapter: it routes parse and render calls to
// the processor registered for a format.
type ProcessorFactory struct {
	processors map[models.Format]document.Processor
	logger     logger.Logger
}

func NewProcessorFactory(log logger.Logger, opts FactoryOptions) *ProcessorFactory {
	f := &ProcessorFactory{
		processors: make(map[models.Format]document.Processor),
		logger:     log,
	}
	f.Register(txt.NewProcessor())
	f.Register(docx.NewProcessor())
	f.Register(rtf.NewProcessor())
	f.Register(pdf.NewProcessor(log.Named("pdf"), pdf.Options{
		PaperSize: opts.PaperSize,
		Compress:  true,
		OCR:       opts.OCR,
	}))
	return f
}

// Register adds or replaces the processor for p.Format().
func (f *ProcessorFactory) Register(p document.Processor) {
	f.processors[p.Format()] = p
}

func (f *ProcessorFactory) GetProcessor(format models.Format) (document.Processor, error) {
	p, ok := f.processors[format]
	if !ok {
		return nil, models.NewError(models.ErrUnsupportedFormat, "no processor for format %q", format)
	}
	return p, nil
}

// Parse converts raw bytes to canonical text.
func (f *ProcessorFactory) Parse(ctx context.Context, raw []byte, format models.Format) (string, error) {
	p, err := f.GetProcessor(format)
	if err != nil {
		return "", err
	}
	text, err := p.Parse(ctx, raw)
	if err != nil {
		f.logger.Debug("parse failed", logger.String("format", string(format)), logger.Error(err))
		return "", models.AsStageError(err, models.ErrCorrupt)
	}
	return text, nil
}

// Render converts canonical text to the target format.
func (f *ProcessorFactory) Render(ctx context.Context, text string, format models.Format) ([]byte, error) {
	p, err := f.GetProcessor(format)
	if err != nil {
		return nil, err
	}
	out, err := p.Render(ctx, text)
	if err != nil {
		return nil, models.AsStageError(err, models.ErrRenderError)
	}
	return out, nil
}
