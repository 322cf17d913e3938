package document

import (
	"context"
	"errors"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/printer"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/store"
)

var (
	// ErrNotAwaitingConfirmation is returned by Confirm for a document that is
	// not parked at RENDERED.
	ErrNotAwaitingConfirmation = errors.New("document is not awaiting confirmation")
	// ErrTerminal is returned when acting on a finished document.
	ErrTerminal = errors.New("document already reached a terminal state")
	// ErrAlreadyPrinting is returned by Cancel once the printer has the job.
	ErrAlreadyPrinting = errors.New("document is already printing")
	// ErrNotResubmittable is returned by Resubmit for anything but a FAILED
	// document with stored raw content.
	ErrNotResubmittable = errors.New("document cannot be resubmitted")
	// ErrNoOutput is returned by Output when nothing was rendered.
	ErrNoOutput = errors.New("document has no rendered output")
)

// DocumentProcessor is the pipeline orchestrator.
type DocumentProcessor interface {
	Submit(ctx context.Context, sub models.Submission) (*models.Document, error)
	Process(ctx context.Context, id string) error

	Confirm(ctx context.Context, id string) (*models.Document, error)
	ConfirmLatest(ctx context.Context, sender string) (*models.Document, error)
	Cancel(ctx context.Context, id string) (*models.Document, error)
	CancelLatest(ctx context.Context, sender string) (*models.Document, error)
	Resubmit(ctx context.Context, id string) (*models.Document, error)

	Recover(ctx context.Context) (int, error)
	ExpireOverdue(ctx context.Context) (int, error)
	RunSweeper(ctx context.Context) error

	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Document, error)
	Log(ctx context.Context, id string) ([]models.LogEntry, error)
	Output(ctx context.Context, id string) ([]byte, models.Format, error)

	Printers(ctx context.Context) ([]printer.Printer, error)
	Printer(ctx context.Context, name string) (*printer.Printer, error)
	PrintTestPage(ctx context.Context, name string) (string, error)
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

var _ DocumentProcessor = (*DocumentService)(nil)
