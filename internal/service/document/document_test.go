package document

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/docx"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/rewriter"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/notifier"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/printer"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/store"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/queue"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage/local"
)

const sender = "whatsapp:+15551234567"

type fakePrinter struct {
	mu    sync.Mutex
	calls int
	errs  []error
	// stall is how long a job takes to spool; it ignores ctx like a real
	// spooler that already has the data.
	stall time.Duration
}

func (p *fakePrinter) Print(ctx context.Context, job printer.Job, cfg config.PrinterConfig) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	time.Sleep(p.stall)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "job-" + job.DocumentID[:8], nil
}

func (p *fakePrinter) Printers(ctx context.Context) ([]printer.Printer, error) {
	return []printer.Printer{{Name: "office", Status: "idle", Default: true}}, nil
}

func (p *fakePrinter) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// flakyStorage fails the first reads like a blob store that is briefly down.
type flakyStorage struct {
	storage.Storage
	mu       sync.Mutex
	failures int
}

func (f *flakyStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("connection reset by peer")
	}
	f.mu.Unlock()
	return f.Storage.Get(ctx, key)
}

type notice struct {
	origin models.OriginRef
	status notifier.Status
	detail string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notice
	err  error
}

func (n *fakeNotifier) Notify(ctx context.Context, origin models.OriginRef, status notifier.Status, detail string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notice{origin: origin, status: status, detail: detail})
	return nil
}

func (n *fakeNotifier) statuses() []notifier.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifier.Status, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.status)
	}
	return out
}

type harness struct {
	svc      *DocumentService
	store    *store.MemoryStore
	storage  storage.Storage
	ai       *rewriter.MockRewriter
	printer  *fakePrinter
	notifier *fakeNotifier
	queue    *queue.ChannelQueue
	log      *logger.TestLogger
	cfg      *config.Config

	mu     sync.Mutex
	delays []time.Duration
}

func newHarness(t *testing.T, ai *rewriter.MockRewriter, tweak func(*config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Pipeline.OutputFormat = models.FormatTXT
	cfg.Pipeline.AutoPrint = true
	cfg.Pipeline.RequireConfirmation = false
	cfg.Pipeline.MaxProcessingTime = 10 * time.Second
	if tweak != nil {
		tweak(cfg)
	}

	log := logger.NewTestLogger()
	blobs, err := local.NewLocalStorage(cfg.DataDir, log)
	require.NoError(t, err)
	if ai == nil {
		ai = rewriter.NewMockRewriter(rewriter.WithSuffix("[edited]"))
	}

	h := &harness{
		store:    store.NewMemoryStore(),
		storage:  blobs,
		ai:       ai,
		printer:  &fakePrinter{},
		notifier: &fakeNotifier{},
		queue:    queue.NewChannelQueue(64),
		log:      log,
		cfg:      cfg,
	}
	h.svc = NewService(Dependencies{
		Store:    h.store,
		Storage:  blobs,
		Formats:  agent.NewProcessorFactory(log, agent.FactoryOptions{PaperSize: "A4"}),
		Rewriter: ai,
		Printer:  h.printer,
		Notifier: h.notifier,
		Queue:    h.queue,
	}, cfg, log)
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.mu.Unlock()
		return ctx.Err()
	}
	return h
}

func (h *harness) submit(t *testing.T, name, body string) *models.Document {
	t.Helper()
	doc, err := h.svc.Submit(context.Background(), models.Submission{
		Source:      models.SourceMessaging,
		Origin:      models.OriginRef{Sender: sender, MessageID: "SM" + name},
		FileName:    name,
		ContentType: "text/plain",
		Data:        []byte(body),
	})
	require.NoError(t, err)
	return doc
}

func (h *harness) run(t *testing.T, id string) *models.Document {
	t.Helper()
	require.NoError(t, h.svc.Process(context.Background(), id))
	doc, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

// seedPrinting takes a document to RENDERED and then rewrites its record as
// if a previous run had stopped inside PRINTING.
func (h *harness) seedPrinting(t *testing.T, mutate func(*models.Document)) *models.Document {
	t.Helper()
	h.svc.pipeline.AutoPrint = false
	doc := h.run(t, h.submit(t, "seed.txt", "to print").ID)
	require.Equal(t, models.StateRendered, doc.State)
	h.svc.pipeline.AutoPrint = true

	doc, err := h.store.Update(context.Background(), doc.ID, func(d *models.Document) error {
		d.State = models.StatePrinting
		d.ParkedAt = nil
		mutate(d)
		return nil
	})
	require.NoError(t, err)
	return doc
}

func transitions(t *testing.T, h *harness, id string) []models.State {
	t.Helper()
	entries, err := h.svc.Log(context.Background(), id)
	require.NoError(t, err)
	var out []models.State
	for _, e := range entries {
		if e.Event == models.EventTransition {
			out = append(out, e.State)
		}
	}
	return out
}

const threeParagraphs = "first paragraph\n\nsecond  paragraph\n\nthird paragraph"

func TestHappyPathPrintsAndNotifies(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	submitted := h.submit(t, "letter.txt", threeParagraphs)
	assert.Equal(t, models.StateReceived, submitted.State)
	assert.Equal(t, 1, h.queue.Len())

	doc := h.run(t, submitted.ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Nil(t, doc.Error)
	assert.NotEmpty(t, doc.PrintJobID)
	assert.False(t, doc.PrintInFlight)
	assert.NotNil(t, doc.TerminalAt)
	assert.Equal(t, 1, h.printer.Calls())
	assert.Equal(t, 1, h.ai.Calls())
	assert.Equal(t, []notifier.Status{notifier.StatusCompleted}, h.notifier.statuses())

	assert.Equal(t, []models.State{
		models.StateParsing, models.StateParsed, models.StateAIEditing, models.StateEdited,
		models.StateRendering, models.StateRendered, models.StatePrinting, models.StatePrinted,
		models.StateNotified,
	}, transitions(t, h, doc.ID))

	out, format, err := h.svc.Output(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FormatTXT, format)
	paragraphs := strings.Split(string(out), "\n\n")
	require.Len(t, paragraphs, 3)
	for _, p := range paragraphs {
		assert.True(t, strings.HasSuffix(p, "[edited]"), p)
	}
	assert.Equal(t, "second paragraph [edited]", paragraphs[1])

	report, err := storage.ReadAll(ctx, h.storage, storage.Logs(doc.ID))
	require.NoError(t, err)
	assert.Contains(t, string(report), `"status": "NOTIFIED"`)
	assert.Contains(t, string(report), doc.PrintJobID)
}

func TestRetryCountsEveryAttempt(t *testing.T) {
	rateLimited := models.NewError(models.ErrRateLimited, "slow down")
	h := newHarness(t, rewriter.NewMockRewriter(rewriter.WithFailures(rateLimited, rateLimited)), nil)

	doc := h.run(t, h.submit(t, "retry.txt", "hello").ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, 3, doc.Attempts[models.StageEdit])
	assert.Equal(t, 1, doc.Attempts[models.StageParse])
	assert.Equal(t, 1, doc.Attempts[models.StagePrint])
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.delays)
	assert.True(t, h.log.Contains("WARN", "stage failed, retrying"))
}

func TestRetryExhaustedFails(t *testing.T) {
	rateLimited := models.NewError(models.ErrRateLimited, "slow down")
	h := newHarness(t, rewriter.NewMockRewriter(rewriter.WithFailures(rateLimited, rateLimited, rateLimited)), nil)

	doc := h.run(t, h.submit(t, "busy.txt", "hello").ID)
	assert.Equal(t, models.StateFailed, doc.State)
	require.NotNil(t, doc.Error)
	assert.Equal(t, models.ErrRateLimited, doc.Error.Kind)
	assert.Equal(t, 3, doc.Attempts[models.StageEdit])
	assert.Empty(t, doc.OutputRef)
	assert.Zero(t, h.printer.Calls())
	assert.Equal(t, []notifier.Status{notifier.StatusFailed}, h.notifier.statuses())
}

func TestUnrecoverableErrorIsNotRetried(t *testing.T) {
	refused := models.NewError(models.ErrInvalidResponse, "model refused")
	h := newHarness(t, rewriter.NewMockRewriter(rewriter.WithFailures(refused)), nil)

	doc := h.run(t, h.submit(t, "refused.txt", "hello").ID)
	assert.Equal(t, models.StateFailed, doc.State)
	assert.Equal(t, models.ErrInvalidResponse, doc.Error.Kind)
	assert.Equal(t, 1, doc.Attempts[models.StageEdit])
	assert.Empty(t, h.delays)
}

func TestPrinterRetriesThenPrints(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.printer.errs = []error{models.NewError(models.ErrPrinterUnavailable, "offline")}

	doc := h.run(t, h.submit(t, "flaky.txt", "hello").ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, 2, doc.Attempts[models.StagePrint])
	assert.Equal(t, 2, h.printer.Calls())
}

func TestLegacyDocxIsRejectedUpFront(t *testing.T) {
	h := newHarness(t, nil, nil)
	ole := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 64)...)

	doc, err := h.svc.Submit(context.Background(), models.Submission{
		Source:   models.SourceLocalDirectory,
		Origin:   models.OriginRef{Path: "/inbox/old.docx"},
		FileName: "old.docx",
		Data:     ole,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, doc.State)
	require.NotNil(t, doc.Error)
	assert.Equal(t, models.ErrUnsupportedFormat, doc.Error.Kind)
	assert.Zero(t, h.ai.Calls())
	assert.Zero(t, h.printer.Calls())
	assert.Zero(t, h.queue.Len())
	assert.Equal(t, []notifier.Status{notifier.StatusFailed}, h.notifier.statuses())
}

func TestMacroEnabledDocxFailsAtParse(t *testing.T) {
	h := newHarness(t, nil, nil)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?>` +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override PartName="/word/document.xml" ContentType="` + docx.ContentTypeMacroEnabled + `"/></Types>`,
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
			`<w:body><w:p><w:r><w:t>run me</w:t></w:r></w:p></w:body></w:document>`,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	doc, err := h.svc.Submit(context.Background(), models.Submission{
		Source:   models.SourceLocalDirectory,
		Origin:   models.OriginRef{Path: "/inbox/macro.docx"},
		FileName: "macro.docx",
		Data:     buf.Bytes(),
	})
	require.NoError(t, err)
	require.Equal(t, models.StateReceived, doc.State)

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateFailed, doc.State)
	require.NotNil(t, doc.Error)
	assert.Equal(t, models.ErrUnsupportedFormat, doc.Error.Kind)
	assert.Equal(t, 1, doc.Attempts[models.StageParse])
	assert.Empty(t, h.delays)
	assert.Zero(t, h.ai.Calls())
	assert.Zero(t, h.printer.Calls())
}

func TestFileTooLarge(t *testing.T) {
	h := newHarness(t, nil, func(c *config.Config) { c.Pipeline.MaxFileSizeMB = 1 })

	doc := h.submit(t, "big.txt", strings.Repeat("a", 1024*1024+1))
	assert.Equal(t, models.StateFailed, doc.State)
	assert.Equal(t, models.ErrFileTooLarge, doc.Error.Kind)
	assert.Empty(t, doc.RawRef)

	_, err := h.svc.Resubmit(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrNotResubmittable)
}

func TestDeadlineExceededDuringStage(t *testing.T) {
	h := newHarness(t, rewriter.NewMockRewriter(rewriter.WithDelay(5*time.Second)), func(c *config.Config) {
		c.Pipeline.MaxProcessingTime = 200 * time.Millisecond
	})

	start := time.Now()
	doc := h.run(t, h.submit(t, "slow.txt", "hello").ID)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, models.StateFailed, doc.State)
	require.NotNil(t, doc.Error)
	assert.Equal(t, models.ErrDeadlineExceeded, doc.Error.Kind)
	assert.Zero(t, h.printer.Calls())
}

func TestConfirmationReleasesPrint(t *testing.T) {
	h := newHarness(t, nil, func(c *config.Config) { c.Pipeline.RequireConfirmation = true })
	ctx := context.Background()

	doc := h.run(t, h.submit(t, "confirm.txt", "hello").ID)
	assert.Equal(t, models.StateRendered, doc.State)
	assert.True(t, doc.AwaitingConfirmation())
	assert.Zero(t, h.printer.Calls())
	assert.Equal(t, []notifier.Status{notifier.StatusAwaitingConfirmation}, h.notifier.statuses())

	// a second pass while parked does nothing
	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateRendered, doc.State)

	before := h.queue.Len()
	confirmed, err := h.svc.ConfirmLatest(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, confirmed.ID)
	assert.True(t, confirmed.Confirmed)
	assert.Equal(t, before+1, h.queue.Len())

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, 1, h.printer.Calls())

	_, err = h.svc.Confirm(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestConfirmationTimesOut(t *testing.T) {
	h := newHarness(t, nil, func(c *config.Config) { c.Pipeline.RequireConfirmation = true })
	ctx := context.Background()

	doc := h.run(t, h.submit(t, "ignored.txt", "hello").ID)
	require.Equal(t, models.StateRendered, doc.State)

	n, err := h.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	later := time.Now().Add(h.cfg.Pipeline.MaxProcessingTime + time.Second)
	h.svc.now = func() time.Time { return later }
	n, err = h.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	doc, err = h.svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, doc.State)
	assert.Equal(t, models.ErrDeadlineExceeded, doc.Error.Kind)
	assert.Empty(t, doc.OutputRef)
	assert.Zero(t, h.printer.Calls())

	_, _, err = h.svc.Output(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestManualTriggerParksWithoutExpiring(t *testing.T) {
	h := newHarness(t, nil, func(c *config.Config) { c.Pipeline.AutoPrint = false })
	ctx := context.Background()

	doc := h.run(t, h.submit(t, "manual.txt", "hello").ID)
	require.Equal(t, models.StateRendered, doc.State)
	assert.True(t, doc.AwaitingManualTrigger())
	assert.Empty(t, h.notifier.statuses())

	later := time.Now().Add(h.cfg.Pipeline.MaxProcessingTime * 2)
	h.svc.now = func() time.Time { return later }
	n, err := h.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	doc, err = h.svc.Confirm(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, doc.ParkedAt)
	assert.Greater(t, doc.ParkedFor, h.cfg.Pipeline.MaxProcessingTime)

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, 1, h.printer.Calls())
}

func TestCancelParkedDocument(t *testing.T) {
	h := newHarness(t, nil, func(c *config.Config) { c.Pipeline.RequireConfirmation = true })
	ctx := context.Background()

	doc := h.run(t, h.submit(t, "cancel.txt", "hello").ID)
	require.Equal(t, models.StateRendered, doc.State)

	doc, err := h.svc.CancelLatest(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, doc.State)
	assert.Equal(t, models.ErrCancelled, doc.Error.Kind)
	assert.Empty(t, doc.OutputRef)

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateCancelled, doc.State)
	assert.Zero(t, h.printer.Calls())
	assert.Equal(t, []notifier.Status{notifier.StatusAwaitingConfirmation, notifier.StatusCancelled}, h.notifier.statuses())

	_, err = h.svc.Cancel(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestCancelRunningDocument(t *testing.T) {
	h := newHarness(t, rewriter.NewMockRewriter(rewriter.WithDelay(5*time.Second)), nil)
	ctx := context.Background()
	id := h.submit(t, "running.txt", "hello").ID

	done := make(chan error, 1)
	go func() { done <- h.svc.Process(ctx, id) }()

	require.Eventually(t, func() bool {
		doc, err := h.svc.Get(ctx, id)
		return err == nil && doc.State == models.StateAIEditing
	}, 2*time.Second, 10*time.Millisecond)

	doc, err := h.svc.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, doc.CancelRequested)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	doc, err = h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, doc.State)
	assert.Zero(t, h.printer.Calls())
}

func TestCancelRejectedOncePrinting(t *testing.T) {
	h := newHarness(t, nil, nil)
	doc := h.seedPrinting(t, func(d *models.Document) { d.PrintInFlight = true })

	_, err := h.svc.Cancel(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ErrAlreadyPrinting)
}

func TestResumeWithJobIDDoesNotReprint(t *testing.T) {
	h := newHarness(t, nil, nil)
	doc := h.seedPrinting(t, func(d *models.Document) { d.PrintJobID = "job-earlier" })

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, "job-earlier", doc.PrintJobID)
	assert.Zero(t, h.printer.Calls())
}

func TestResumeUsesPrintLedger(t *testing.T) {
	h := newHarness(t, nil, nil)
	doc := h.seedPrinting(t, func(d *models.Document) { d.PrintInFlight = true })
	_, err := h.store.RecordPrintJob(context.Background(), doc.ID, "job-ledger")
	require.NoError(t, err)

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, "job-ledger", doc.PrintJobID)
	assert.Zero(t, h.printer.Calls())
}

func TestResumeWithUnknownPrintOutcomeFails(t *testing.T) {
	h := newHarness(t, nil, nil)
	doc := h.seedPrinting(t, func(d *models.Document) { d.PrintInFlight = true })

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateFailed, doc.State)
	require.NotNil(t, doc.Error)
	assert.Equal(t, models.ErrPrinterUnavailable, doc.Error.Kind)
	assert.Contains(t, doc.Error.Detail, "print outcome unknown")
	assert.Zero(t, h.printer.Calls())
}

func TestShutdownDuringPrintRetryResumesPrinting(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.printer.errs = []error{models.NewError(models.ErrPrinterUnavailable, "offline")}
	id := h.submit(t, "offline.txt", "hello").ID

	// The worker is stopped while waiting to retry the printer.
	ctx, stop := context.WithCancel(context.Background())
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		stop()
		<-ctx.Done()
		return ctx.Err()
	}
	require.ErrorIs(t, h.svc.Process(ctx, id), context.Canceled)

	doc, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatePrinting, doc.State)
	assert.False(t, doc.PrintInFlight)
	assert.Empty(t, doc.PrintJobID)

	h.svc.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	doc = h.run(t, id)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.NotEmpty(t, doc.PrintJobID)
	assert.Equal(t, 2, h.printer.Calls())
}

func TestTransientStorageErrorIsRetried(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.submit(t, "blob.txt", "hello").ID
	h.svc.storage = &flakyStorage{Storage: h.storage, failures: 1}

	doc := h.run(t, id)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, 2, doc.Attempts[models.StageParse])
	assert.Equal(t, []time.Duration{time.Second}, h.delays)
}

func TestMissingBlobFailsWithoutRetry(t *testing.T) {
	h := newHarness(t, nil, nil)
	doc := h.submit(t, "gone.txt", "hello")
	require.NoError(t, h.storage.Delete(context.Background(), doc.RawRef))

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateFailed, doc.State)
	require.NotNil(t, doc.Error)
	assert.Equal(t, models.ErrCorrupt, doc.Error.Kind)
	assert.Equal(t, 1, doc.Attempts[models.StageParse])
	assert.Empty(t, h.delays)
}

func TestPrintTestPage(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	p, err := h.svc.Printer(ctx, "OFFICE")
	require.NoError(t, err)
	assert.Equal(t, "office", p.Name)

	jobID, err := h.svc.PrintTestPage(ctx, "office")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(jobID, "job-test-"))
	assert.Equal(t, 1, h.printer.Calls())

	_, err = h.svc.PrintTestPage(ctx, "basement")
	assert.ErrorIs(t, err, printer.ErrPrinterNotFound)
	assert.Equal(t, 1, h.printer.Calls())
}

func TestPrintFinishingAfterDeadlineStillCounts(t *testing.T) {
	h := newHarness(t, nil, func(c *config.Config) {
		c.Pipeline.MaxProcessingTime = 300 * time.Millisecond
	})
	h.printer.stall = 600 * time.Millisecond

	doc := h.run(t, h.submit(t, "late.txt", "printed late").ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.NotEmpty(t, doc.PrintJobID)
	assert.Equal(t, 1, h.printer.Calls())
}

func TestPrintedDocumentIgnoresDeadline(t *testing.T) {
	h := newHarness(t, nil, nil)
	doc := h.seedPrinting(t, func(d *models.Document) {
		d.State = models.StatePrinted
		d.PrintJobID = "job-done"
		d.CreatedAt = time.Now().Add(-time.Hour)
	})

	doc = h.run(t, doc.ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Nil(t, doc.Error)
	assert.Contains(t, h.notifier.statuses(), notifier.StatusCompleted)
}

func TestResubmitStartsOver(t *testing.T) {
	refused := models.NewError(models.ErrInvalidResponse, "model refused")
	h := newHarness(t, rewriter.NewMockRewriter(rewriter.WithFailures(refused)), nil)
	ctx := context.Background()

	failed := h.run(t, h.submit(t, "again.txt", "hello").ID)
	require.Equal(t, models.StateFailed, failed.State)

	fresh, err := h.svc.Resubmit(ctx, failed.ID)
	require.NoError(t, err)
	assert.NotEqual(t, failed.ID, fresh.ID)
	assert.Equal(t, failed.ID, fresh.ResubmittedFrom)
	assert.Equal(t, models.StateReceived, fresh.State)
	assert.Equal(t, failed.ContentHash, fresh.ContentHash)

	fresh = h.run(t, fresh.ID)
	assert.Equal(t, models.StateNotified, fresh.State)

	_, err = h.svc.Resubmit(ctx, fresh.ID)
	assert.ErrorIs(t, err, ErrNotResubmittable)
}

func TestRecoverQueuesUnfinishedDocuments(t *testing.T) {
	h := newHarness(t, nil, func(c *config.Config) { c.Pipeline.RequireConfirmation = true })
	ctx := context.Background()

	h.submit(t, "one.txt", "one")
	h.submit(t, "two.txt", "two")
	parked := h.run(t, h.submit(t, "three.txt", "three").ID)
	require.Equal(t, models.StateRendered, parked.State)

	before := h.queue.Len()
	n, err := h.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, before+2, h.queue.Len())
}

func TestNotifyFailureIsRecorded(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.notifier.err = models.NewError(models.ErrDeliveryError, "gateway down")

	doc := h.run(t, h.submit(t, "quiet.txt", "hello").ID)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Contains(t, doc.NotifyError, "gateway down")
	assert.Equal(t, 1, h.printer.Calls())
	assert.True(t, h.log.Contains("WARN", "notification failed"))
}

func TestSingleRunPerDocument(t *testing.T) {
	h := newHarness(t, rewriter.NewMockRewriter(rewriter.WithDelay(100*time.Millisecond)), nil)
	ctx := context.Background()
	id := h.submit(t, "once.txt", "hello").ID

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		g.Go(func() error { return h.svc.Process(gctx, id) })
	}
	require.NoError(t, g.Wait())

	doc, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateNotified, doc.State)
	assert.Equal(t, 1, h.ai.Calls())
	assert.Equal(t, 1, h.printer.Calls())
}

func TestBackoff(t *testing.T) {
	policy := config.RetryConfig{MaxAttempts: 6, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff(policy, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPrintersAndList(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	printers, err := h.svc.Printers(ctx)
	require.NoError(t, err)
	require.Len(t, printers, 1)

	h.run(t, h.submit(t, "a.txt", "a").ID)
	h.submit(t, "b.txt", "b")

	done, err := h.svc.List(ctx, store.Filter{States: []models.State{models.StateNotified}})
	require.NoError(t, err)
	assert.Len(t, done, 1)

	all, err := h.svc.List(ctx, store.Filter{Sender: sender})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
