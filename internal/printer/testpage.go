package printer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrPrinterNotFound is returned by Lookup for a name the spooler does not know.
var ErrPrinterNotFound = errors.New("printer not found")

// Lookup returns the status of one destination.
func Lookup(ctx context.Context, d Dispatcher, name string) (*Printer, error) {
	printers, err := d.Printers(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range printers {
		if strings.EqualFold(p.Name, name) {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPrinterNotFound, name)
}

// TestPageText is the body of the page printed to check a destination.
func TestPageText(name string, at time.Time) string {
	return strings.Join([]string{
		"TEST PAGE",
		fmt.Sprintf("Printer: %s\nDate: %s", name, at.Format(time.RFC1123)),
		"This is a test page to verify printer functionality.\nIf you can read this, the printer is working correctly.",
		"AI Document Agent - Printer Test",
	}, "\n\n")
}
