package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/rewriter"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/notifier"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/printer"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/store"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/utils/validator"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/converters"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/queue"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage"
)

// FormatAdapter converts between document formats and canonical text.
// *agent.ProcessorFactory implements it.
type FormatAdapter interface {
	Parse(ctx context.Context, raw []byte, format models.Format) (string, error)
	Render(ctx context.Context, text string, format models.Format) ([]byte, error)
}

// Dependencies are the components the orchestrator drives.
type Dependencies struct {
	Store    store.Store
	Storage  storage.Storage
	Formats  FormatAdapter
	Rewriter rewriter.Rewriter
	Printer  printer.Dispatcher
	Notifier notifier.Notifier
	Queue    queue.Queue
}

// run is one in-flight Process call for a document.
type run struct {
	cancel context.CancelFunc
	// again is set when Process was requested while this run was active.
	again bool
}

type DocumentService struct {
	store     store.Store
	storage   storage.Storage
	formats   FormatAdapter
	rewriter  rewriter.Rewriter
	printer   printer.Dispatcher
	notifier  notifier.Notifier
	queue     queue.Queue
	validator *validator.DocumentValidator
	converter *converters.JSONConverter
	logger    logger.Logger

	// dispatcher is the unguarded backend, used for test pages.
	dispatcher printer.Dispatcher

	pipeline   config.PipelineConfig
	printerCfg config.PrinterConfig
	aiOpts     rewriter.Options

	mu      sync.Mutex
	running map[string]*run

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService wires the orchestrator. The printer is wrapped in a Guard over
// the store's print ledger so a document id never reaches the spooler twice.
func NewService(deps Dependencies, cfg *config.Config, log logger.Logger) *DocumentService {
	return &DocumentService{
		store:    deps.Store,
		storage:  deps.Storage,
		formats:  deps.Formats,
		rewriter: deps.Rewriter,
		printer:  printer.NewGuard(deps.Printer, deps.Store, log.Named("printer")),
		notifier: deps.Notifier,
		queue:    deps.Queue,
		validator: validator.NewDocumentValidator(log.Named("validator"), &validator.ValidatorConfig{
			MaxFileSize: cfg.Pipeline.MaxFileSize(),
		}),
		converter:  converters.NewJSONConverter(),
		dispatcher: deps.Printer,
		logger:     log,
		pipeline:   cfg.Pipeline,
		printerCfg: cfg.Printer,
		aiOpts:     rewriter.OptionsFrom(cfg.AI),
		running:    make(map[string]*run),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Submit validates and records a new document, then queues it. A document
// that fails validation is recorded and moved straight to FAILED.
func (s *DocumentService) Submit(ctx context.Context, sub models.Submission) (*models.Document, error) {
	return s.create(ctx, sub, "")
}

func (s *DocumentService) create(ctx context.Context, sub models.Submission, resubmittedFrom string) (*models.Document, error) {
	uid, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	id := uid.String()

	info, verr := s.validator.Validate(sub.FileName, sub.ContentType, sub.Data)
	now := s.now()
	doc := &models.Document{
		ID:                   id,
		Source:               sub.Source,
		Origin:               sub.Origin,
		FileName:             sub.FileName,
		RawFormat:            info.Format,
		OutputFormat:         s.pipeline.OutputFormat,
		SizeBytes:            info.Size,
		ContentHash:          info.Hash,
		State:                models.StateReceived,
		Attempts:             make(map[models.Stage]int),
		ConfirmationRequired: s.pipeline.RequireConfirmation,
		ResubmittedFrom:      resubmittedFrom,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if doc.FileName == "" && info.Format != "" {
		doc.FileName = id + info.Format.Extension()
	}

	if verr == nil {
		doc.RawRef, err = storage.PutBytes(ctx, s.storage, storage.Incoming(id, info.Format.Extension()), sub.Data)
		if err != nil {
			return nil, fmt.Errorf("store raw content: %w", err)
		}
	}

	if err := s.store.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.appendLog(ctx, id, models.LogEntry{
		Event:  models.EventReceived,
		State:  models.StateReceived,
		Detail: fmt.Sprintf("%s from %s", doc.FileName, doc.Origin),
	})
	s.logger.Info("document received",
		logger.DocumentID(id),
		logger.String("source", string(doc.Source)),
		logger.String("file", doc.FileName),
		logger.Int64("size", doc.SizeBytes))

	if verr != nil {
		se := models.AsStageError(verr, models.ErrUnsupportedFormat)
		failed, err := s.finish(ctx, id, models.StateFailed, se)
		if err != nil {
			return nil, err
		}
		return failed, nil
	}

	s.enqueue(ctx, id, queue.PriorityDefault)
	return doc.Clone(), nil
}

// enqueue hands the document to the workers. A lost enqueue is picked up by
// Recover on the next start or failed by the sweeper at its deadline.
func (s *DocumentService) enqueue(ctx context.Context, id string, priority int) {
	if err := s.queue.Enqueue(ctx, queue.NewDocumentTask(id, priority)); err != nil {
		s.logger.Error("failed to enqueue document", logger.DocumentID(id), logger.Error(err))
	}
}

// Confirm releases a document parked at RENDERED, either awaiting the
// sender's confirmation or a manual print trigger.
func (s *DocumentService) Confirm(ctx context.Context, id string) (*models.Document, error) {
	now := s.now()
	doc, err := s.store.Update(ctx, id, func(d *models.Document) error {
		if d.State.Terminal() {
			return ErrTerminal
		}
		if d.CancelRequested || !(d.AwaitingConfirmation() || d.AwaitingManualTrigger()) {
			return ErrNotAwaitingConfirmation
		}
		d.Confirmed = true
		if d.ParkedAt != nil {
			d.ParkedFor += now.Sub(*d.ParkedAt)
			d.ParkedAt = nil
		}
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.appendLog(ctx, id, models.LogEntry{Event: models.EventConfirmed, State: doc.State})
	s.logger.Info("document confirmed", logger.DocumentID(id))
	s.enqueue(ctx, id, queue.PriorityCritical)
	return doc, nil
}

// ConfirmLatest confirms the sender's newest parked document.
func (s *DocumentService) ConfirmLatest(ctx context.Context, sender string) (*models.Document, error) {
	docs, err := s.store.List(ctx, store.Filter{Sender: sender, States: []models.State{models.StateRendered}})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if !d.CancelRequested && (d.AwaitingConfirmation() || d.AwaitingManualTrigger()) {
			return s.Confirm(ctx, d.ID)
		}
	}
	return nil, ErrNotAwaitingConfirmation
}

// Cancel stops a document before it reaches the printer. A running pipeline
// observes the request between stages and has its in-flight call cancelled;
// an idle document is cancelled immediately.
func (s *DocumentService) Cancel(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.store.Update(ctx, id, func(d *models.Document) error {
		switch {
		case d.State.Terminal():
			return ErrTerminal
		case d.State == models.StatePrinting || d.State == models.StatePrinted:
			return ErrAlreadyPrinting
		}
		d.CancelRequested = true
		d.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.appendLog(ctx, id, models.LogEntry{Event: models.EventCancelled, State: doc.State})
	if err := s.queue.Cancel(ctx, id); err != nil {
		s.logger.Warn("failed to drop queued task", logger.DocumentID(id), logger.Error(err))
	}

	if !s.tryClaim(id, true) {
		s.logger.Info("cancel requested for running document", logger.DocumentID(id))
		return doc, nil
	}
	defer s.unclaim(id)

	return s.finish(ctx, id, models.StateCancelled, models.NewError(models.ErrCancelled, "cancelled on request"))
}

// CancelLatest cancels the sender's newest unfinished document.
func (s *DocumentService) CancelLatest(ctx context.Context, sender string) (*models.Document, error) {
	docs, err := s.store.List(ctx, store.Filter{Sender: sender, States: cancellableStates})
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if !d.CancelRequested {
			return s.Cancel(ctx, d.ID)
		}
	}
	return nil, ErrNotAwaitingConfirmation
}

var cancellableStates = []models.State{
	models.StateReceived, models.StateParsing, models.StateParsed, models.StateAIEditing,
	models.StateEdited, models.StateRendering, models.StateRendered,
}

// Resubmit starts a FAILED document over as a new document with a fresh id.
func (s *DocumentService) Resubmit(ctx context.Context, id string) (*models.Document, error) {
	old, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if old.State != models.StateFailed || old.RawRef == "" {
		return nil, ErrNotResubmittable
	}
	raw, err := storage.ReadAll(ctx, s.storage, old.RawRef)
	if err != nil {
		return nil, fmt.Errorf("read raw content: %w", err)
	}
	return s.create(ctx, models.Submission{
		Source:      old.Source,
		Origin:      old.Origin,
		FileName:    old.FileName,
		ContentType: old.RawFormat.ContentType(),
		Data:        raw,
	}, old.ID)
}

// Recover queues every unfinished document that is not parked. It runs once
// at startup.
func (s *DocumentService) Recover(ctx context.Context) (int, error) {
	docs, err := s.store.List(ctx, store.Filter{States: cancellableStates})
	if err != nil {
		return 0, err
	}
	printing, err := s.store.List(ctx, store.Filter{States: []models.State{models.StatePrinting, models.StatePrinted}})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range append(docs, printing...) {
		if d.AwaitingConfirmation() || d.AwaitingManualTrigger() {
			continue
		}
		s.enqueue(ctx, d.ID, queue.PriorityDefault)
		n++
	}
	if n > 0 {
		s.logger.Info("recovered unfinished documents", logger.Int("count", n))
	}
	return n, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.store.Get(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, filter store.Filter) ([]*models.Document, error) {
	return s.store.List(ctx, filter)
}

func (s *DocumentService) Log(ctx context.Context, id string) ([]models.LogEntry, error) {
	return s.store.Log(ctx, id)
}

// Output returns the rendered deliverable.
func (s *DocumentService) Output(ctx context.Context, id string) ([]byte, models.Format, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if doc.OutputRef == "" {
		return nil, "", ErrNoOutput
	}
	data, err := storage.ReadAll(ctx, s.storage, doc.OutputRef)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrNoOutput
	}
	if err != nil {
		return nil, "", err
	}
	return data, doc.OutputFormat, nil
}

// Printers lists the destinations known to the print dispatcher.
func (s *DocumentService) Printers(ctx context.Context) ([]printer.Printer, error) {
	return s.printer.Printers(ctx)
}

// Printer reports the status of one destination.
func (s *DocumentService) Printer(ctx context.Context, name string) (*printer.Printer, error) {
	return printer.Lookup(ctx, s.dispatcher, name)
}

// PrintTestPage prints a short plain text page on name. Test pages bypass the
// print ledger: they belong to no document.
func (s *DocumentService) PrintTestPage(ctx context.Context, name string) (string, error) {
	p, err := printer.Lookup(ctx, s.dispatcher, name)
	if err != nil {
		return "", err
	}
	data, err := s.formats.Render(ctx, printer.TestPageText(p.Name, s.now()), models.FormatTXT)
	if err != nil {
		return "", err
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	cfg := s.printerCfg
	cfg.Name = p.Name
	cfg.Copies = 1
	jobID, err := s.dispatcher.Print(ctx, printer.Job{
		DocumentID: "test-" + uid.String(),
		FileName:   "test-page.txt",
		Format:     models.FormatTXT,
		Data:       data,
	}, cfg)
	if err != nil {
		return "", err
	}
	s.logger.Info("test page printed", logger.String("printer", p.Name), logger.String("job_id", jobID))
	return jobID, nil
}

// CleanupBefore removes stored blobs older than threshold.
func (s *DocumentService) CleanupBefore(ctx context.Context, threshold time.Time) error {
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("storage cleanup completed", logger.Time("threshold", threshold))
	return nil
}

func (s *DocumentService) appendLog(ctx context.Context, id string, entry models.LogEntry) {
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	if err := s.store.AppendLog(context.WithoutCancel(ctx), id, entry); err != nil {
		s.logger.Error("failed to append processing log", logger.DocumentID(id), logger.Error(err))
	}
}

// claim marks id as running. It reports false, and asks the current run to
// go around once more, when another run holds id.
func (s *DocumentService) claim(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.running[id]; ok {
		r.again = true
		return false
	}
	s.running[id] = &run{cancel: cancel}
	return true
}

// release drops the claim on id unless another pass was requested, in which
// case it keeps the claim and returns true.
func (s *DocumentService) release(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.running[id]
	if ok && r.again {
		r.again = false
		return true
	}
	delete(s.running, id)
	return false
}

// tryClaim takes id for a caller that finalizes it without running the
// pipeline. When a run holds id it reports false, and with interrupt set the
// run's in-flight stage is cancelled.
func (s *DocumentService) tryClaim(id string, interrupt bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.running[id]; ok {
		if interrupt {
			r.cancel()
		}
		return false
	}
	s.running[id] = &run{cancel: func() {}}
	return true
}

// unclaim drops the claim unconditionally. The document is terminal by now so
// any pass requested meanwhile has nothing left to do.
func (s *DocumentService) unclaim(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
