// Package printer hands rendered documents to a print spooler.
package printer

import (
	"context"
	"strings"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// Job is one rendered document ready for the printer.
type Job struct {
	DocumentID string
	FileName   string
	Format     models.Format
	Data       []byte
}

// Printer describes a destination known to the spooler.
type Printer struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Default bool   `json:"default"`
}

// Dispatcher submits jobs. Print returns the spooler's job id, or
// PrinterUnavailable (recoverable) or UnsupportedPaperSize (not recoverable).
type Dispatcher interface {
	Print(ctx context.Context, job Job, cfg config.PrinterConfig) (string, error)
	Printers(ctx context.Context) ([]Printer, error)
}

var paperSizes = map[string]string{
	"A3":     "A3",
	"A4":     "A4",
	"A5":     "A5",
	"LETTER": "Letter",
	"LEGAL":  "Legal",
}

// Media returns the spooler media name for a configured paper size.
func Media(size string) (string, error) {
	media, ok := paperSizes[strings.ToUpper(strings.TrimSpace(size))]
	if !ok {
		return "", models.NewError(models.ErrUnsupportedPaperSize, "paper size %q is not supported", size)
	}
	return media, nil
}

var qualities = map[string]string{
	"draft":  "3",
	"normal": "4",
	"high":   "5",
}
