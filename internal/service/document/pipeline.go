package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/notifier"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/printer"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage"
)

var (
	errCancelRequested = errors.New("cancel requested")
	errStaleTransition = errors.New("stale transition")
)

const notifyTimeout = 30 * time.Second

// parsedKey holds the canonical text between PARSED and AI_EDITING.
func parsedKey(id string) string { return storage.Processed(id, ".parsed.txt") }

// Process drives the document from its persisted state until it is terminal
// or parked. Only one run per id is active; a call made while a run is active
// makes that run take one more pass instead.
//
// Stage failures end in FAILED and are not returned. The error is non-nil
// only when the run was interrupted or the store failed.
func (s *DocumentService) Process(ctx context.Context, id string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !s.claim(id, cancel) {
		s.logger.Debug("document already running", logger.DocumentID(id))
		return nil
	}
	for {
		err := s.drive(runCtx, id)
		if !s.release(id) {
			return err
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("pass ended with error", logger.DocumentID(id), logger.Error(err))
		}
	}
}

func (s *DocumentService) drive(ctx context.Context, id string) error {
	persist := context.WithoutCancel(ctx)
	for {
		doc, err := s.store.Get(persist, id)
		if err != nil {
			return err
		}
		switch {
		case doc.State.Terminal():
			return nil
		case doc.CancelRequested && doc.State != models.StatePrinting && doc.State != models.StatePrinted:
			_, err := s.finish(persist, id, models.StateCancelled, models.NewError(models.ErrCancelled, "cancelled on request"))
			return err
		case doc.AwaitingManualTrigger():
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		// Once the paper is out only the notification is left; the deadline
		// no longer applies.
		stepCtx, stop := ctx, context.CancelFunc(func() {})
		if doc.State != models.StatePrinted {
			remaining := doc.Deadline(s.pipeline.MaxProcessingTime).Sub(s.now())
			if remaining <= 0 {
				_, err := s.finish(persist, id, models.StateFailed, s.deadlineError(doc))
				return err
			}
			stepCtx, stop = context.WithTimeout(ctx, remaining)
		}
		parked, err := s.step(stepCtx, doc)
		expired := stepCtx.Err() != nil
		stop()

		switch {
		case err == nil && parked:
			return nil
		case err == nil:
			continue
		case errors.Is(err, errCancelRequested), errors.Is(err, errStaleTransition):
			continue
		case expired:
			// 取消、超时或者关闭
			if ctx.Err() != nil && !s.cancelRequested(persist, id) {
				return ctx.Err()
			}
			continue
		}

		var se *models.StageError
		if errors.As(err, &se) {
			_, ferr := s.finish(persist, id, models.StateFailed, se)
			return ferr
		}
		return err
	}
}

func (s *DocumentService) cancelRequested(ctx context.Context, id string) bool {
	doc, err := s.store.Get(ctx, id)
	return err == nil && doc.CancelRequested
}

func (s *DocumentService) deadlineError(doc *models.Document) *models.StageError {
	return models.NewError(models.ErrDeadlineExceeded,
		"not finished within %s (stopped in %s)", s.pipeline.MaxProcessingTime, doc.State)
}

// step performs the work of one state. It reports parked when the document
// must wait for a confirmation or a manual trigger.
func (s *DocumentService) step(ctx context.Context, doc *models.Document) (bool, error) {
	switch doc.State {
	case models.StateReceived, models.StateParsed, models.StateEdited:
		next, _ := doc.State.Next()
		_, err := s.advance(ctx, doc.ID, doc.State, next, nil)
		return false, err
	case models.StateParsing:
		return false, s.parse(ctx, doc)
	case models.StateAIEditing:
		return false, s.edit(ctx, doc)
	case models.StateRendering:
		return false, s.render(ctx, doc)
	case models.StateRendered:
		return s.dispatch(ctx, doc)
	case models.StatePrinting:
		return false, s.print(ctx, doc)
	case models.StatePrinted:
		return false, s.complete(ctx, doc)
	}
	return false, fmt.Errorf("no step for state %s", doc.State)
}

// readBlob loads an artifact of an earlier stage. A missing blob is a fault of
// the document and takes the stage's kind; any other storage error is
// transient and retried like a timeout.
func (s *DocumentService) readBlob(ctx context.Context, key string, missing models.ErrorKind, what string) ([]byte, error) {
	if key == "" {
		return nil, models.NewError(missing, "%s unavailable", what)
	}
	data, err := storage.ReadAll(ctx, s.storage, key)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, models.WrapError(missing, err, what+" unavailable")
	default:
		return nil, models.WrapError(models.ErrTimeout, err, what+" unavailable")
	}
}

func (s *DocumentService) parse(ctx context.Context, doc *models.Document) error {
	var text string
	err := s.runStage(ctx, doc.ID, models.StageParse, models.ErrCorrupt, func(ctx context.Context) error {
		raw, rerr := s.readBlob(ctx, doc.RawRef, models.ErrCorrupt, "raw content")
		if rerr != nil {
			return rerr
		}
		var perr error
		text, perr = s.formats.Parse(ctx, raw, doc.RawFormat)
		return perr
	})
	if err != nil {
		return err
	}
	if _, err := storage.PutBytes(ctx, s.storage, parsedKey(doc.ID), []byte(text)); err != nil {
		return models.WrapError(models.ErrCorrupt, err, "store parsed text")
	}
	_, err = s.advance(ctx, doc.ID, models.StateParsing, models.StateParsed, nil)
	return err
}

func (s *DocumentService) edit(ctx context.Context, doc *models.Document) error {
	var edited string
	err := s.runStage(ctx, doc.ID, models.StageEdit, models.ErrInvalidResponse, func(ctx context.Context) error {
		parsed, rerr := s.readBlob(ctx, parsedKey(doc.ID), models.ErrCorrupt, "parsed text")
		if rerr != nil {
			return rerr
		}
		edited, rerr = s.rewriter.Rewrite(ctx, string(parsed), s.aiOpts)
		return rerr
	})
	if err != nil {
		return err
	}
	if edited == "" {
		return models.NewError(models.ErrInvalidResponse, "%s returned empty text", s.rewriter.Name())
	}

	ref, err := storage.PutBytes(ctx, s.storage, storage.Processed(doc.ID, ".txt"), []byte(edited))
	if err != nil {
		return models.WrapError(models.ErrInvalidResponse, err, "store edited text")
	}
	_, err = s.advance(ctx, doc.ID, models.StateAIEditing, models.StateEdited, func(d *models.Document) {
		d.EditedRef = ref
	})
	return err
}

func (s *DocumentService) render(ctx context.Context, doc *models.Document) error {
	var out []byte
	err := s.runStage(ctx, doc.ID, models.StageRender, models.ErrRenderError, func(ctx context.Context) error {
		edited, rerr := s.readBlob(ctx, doc.EditedRef, models.ErrRenderError, "edited text")
		if rerr != nil {
			return rerr
		}
		out, rerr = s.formats.Render(ctx, string(edited), doc.OutputFormat)
		return rerr
	})
	if err != nil {
		return err
	}

	ref, err := storage.PutBytes(ctx, s.storage, storage.Processed(doc.ID, doc.OutputFormat.Extension()), out)
	if err != nil {
		return models.WrapError(models.ErrRenderError, err, "store rendered output")
	}
	rendered, err := s.advance(ctx, doc.ID, models.StateRendering, models.StateRendered, func(d *models.Document) {
		d.OutputRef = ref
	})
	if err != nil {
		return err
	}

	if rendered.AwaitingConfirmation() {
		s.appendLog(ctx, doc.ID, models.LogEntry{Event: models.EventParked, State: rendered.State, Detail: "awaiting confirmation"})
		s.notify(ctx, rendered, notifier.StatusAwaitingConfirmation, "")
	}
	return nil
}

// dispatch moves a rendered document to the printer unless it has to
// wait for the sender or an operator.
func (s *DocumentService) dispatch(ctx context.Context, doc *models.Document) (bool, error) {
	if doc.AwaitingConfirmation() {
		return true, nil
	}
	if !s.pipeline.AutoPrint && !doc.Confirmed {
		now := s.now()
		_, err := s.store.Update(context.WithoutCancel(ctx), doc.ID, func(d *models.Document) error {
			if d.State != models.StateRendered || d.Confirmed || d.ParkedAt != nil {
				return errStaleTransition
			}
			d.ParkedAt = &now
			d.UpdatedAt = now
			return nil
		})
		if err != nil {
			return false, err
		}
		s.appendLog(ctx, doc.ID, models.LogEntry{At: now, Event: models.EventParked, State: doc.State, Detail: "awaiting print trigger"})
		s.logger.Info("document parked until printed manually", logger.DocumentID(doc.ID))
		return true, nil
	}
	_, err := s.advance(ctx, doc.ID, models.StateRendered, models.StatePrinting, nil)
	return false, err
}

// print sends the output to the printer at most once. PrintInFlight is
// persisted before the dispatcher is called; finding it set without a job id
// means an earlier run stopped mid-call and the outcome is unknown.
func (s *DocumentService) print(ctx context.Context, doc *models.Document) error {
	persist := context.WithoutCancel(ctx)

	jobID := doc.PrintJobID
	if jobID == "" && doc.PrintInFlight {
		recorded, ok, err := s.store.PrintJob(persist, doc.ID)
		if err != nil {
			return models.WrapError(models.ErrPrinterUnavailable, err, "print ledger lookup failed")
		}
		if !ok {
			return models.NewError(models.ErrPrinterUnavailable, "print outcome unknown after interruption, not reprinting")
		}
		jobID = recorded
	}

	if jobID == "" {
		err := s.runStage(ctx, doc.ID, models.StagePrint, models.ErrPrinterUnavailable, func(ctx context.Context) error {
			data, rerr := s.readBlob(ctx, doc.OutputRef, models.ErrRenderError, "output")
			if rerr != nil {
				return rerr
			}
			// The marker only covers the call itself: an error returned while
			// ctx is live means the job never reached the spooler.
			if err := s.setPrintInFlight(persist, doc.ID, true); err != nil {
				return err
			}
			var perr error
			jobID, perr = s.printer.Print(ctx, printer.Job{
				DocumentID: doc.ID,
				FileName:   doc.FileName,
				Format:     doc.OutputFormat,
				Data:       data,
			}, s.printerCfg)
			if perr != nil && ctx.Err() == nil {
				if err := s.setPrintInFlight(persist, doc.ID, false); err != nil {
					s.logger.Error("failed to clear print marker", logger.DocumentID(doc.ID), logger.Error(err))
				}
			}
			return perr
		})
		if err != nil && ctx.Err() != nil {
			// The call may have reached the spooler before the deadline or
			// cancel hit; a recorded job wins over the interruption.
			if recorded, ok, lerr := s.store.PrintJob(persist, doc.ID); lerr == nil && ok {
				jobID, err = recorded, nil
			}
		}
		if err != nil {
			return err
		}
		s.appendLog(ctx, doc.ID, models.LogEntry{Event: models.EventPrinted, State: models.StatePrinting, Detail: jobID})
		s.logger.Info("document printed", logger.DocumentID(doc.ID), logger.String("job_id", jobID))
	}

	_, err := s.advance(ctx, doc.ID, models.StatePrinting, models.StatePrinted, func(d *models.Document) {
		d.PrintJobID = jobID
		d.PrintInFlight = false
	})
	return err
}

func (s *DocumentService) setPrintInFlight(ctx context.Context, id string, on bool) error {
	_, err := s.store.Update(ctx, id, func(d *models.Document) error {
		d.PrintInFlight = on
		return nil
	})
	return err
}

// complete notifies the sender and closes the document. A failed
// notification is recorded but never blocks NOTIFIED.
func (s *DocumentService) complete(ctx context.Context, doc *models.Document) error {
	s.notify(ctx, doc, notifier.StatusCompleted, fmt.Sprintf("Print job %s.", doc.PrintJobID))
	_, err := s.finish(ctx, doc.ID, models.StateNotified, nil)
	return err
}

// advance moves id along one edge of the state graph. A pending cancel
// request refuses every forward move.
func (s *DocumentService) advance(ctx context.Context, id string, from, to models.State, mutate func(*models.Document)) (*models.Document, error) {
	now := s.now()
	doc, err := s.store.Update(context.WithoutCancel(ctx), id, func(d *models.Document) error {
		if d.State != from || !models.CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s, document is %s", errStaleTransition, from, to, d.State)
		}
		if d.CancelRequested {
			return errCancelRequested
		}
		d.State = to
		d.UpdatedAt = now
		if mutate != nil {
			mutate(d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stage, _ := to.Stage()
	s.appendLog(ctx, id, models.LogEntry{At: now, Event: models.EventTransition, State: to, Stage: stage})
	s.logger.Debug("state transition",
		logger.DocumentID(id),
		logger.String("from", string(from)),
		logger.String("to", string(to)),
		logger.String("stage", string(stage)),
		logger.Int("attempt", doc.Attempts[stage]))
	return doc, nil
}

// finish moves id into a terminal state, notifies the sender of failures
// and cancellations and writes the processing report.
func (s *DocumentService) finish(ctx context.Context, id string, to models.State, cause *models.StageError) (*models.Document, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	var from models.State
	doc, err := s.store.Update(ctx, id, func(d *models.Document) error {
		if !models.CanTransition(d.State, to) {
			return fmt.Errorf("%w: %s -> %s", errStaleTransition, d.State, to)
		}
		from = d.State
		d.State = to
		d.UpdatedAt = now
		d.TerminalAt = &now
		d.PrintInFlight = false
		if d.ParkedAt != nil {
			d.ParkedFor += now.Sub(*d.ParkedAt)
			d.ParkedAt = nil
		}
		if to != models.StateNotified {
			d.Error = cause
			d.OutputRef = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := models.LogEntry{At: now, Event: models.EventTransition, State: to}
	fields := []logger.Field{logger.DocumentID(id), logger.String("from", string(from)), logger.String("state", string(to))}
	if cause != nil {
		entry.Detail = cause.Error()
		fields = append(fields, logger.String("kind", string(cause.Kind)), logger.String("detail", cause.Detail))
	}
	s.appendLog(ctx, id, entry)

	switch to {
	case models.StateFailed:
		s.logger.Warn("document failed", fields...)
		doc = s.notify(ctx, doc, notifier.StatusFailed, string(cause.Kind)+": "+cause.Detail)
	case models.StateCancelled:
		s.logger.Info("document cancelled", fields...)
		doc = s.notify(ctx, doc, notifier.StatusCancelled, "")
	default:
		s.logger.Info("document completed", fields...)
	}

	s.writeReport(ctx, doc)
	return doc, nil
}

// notify delivers status to the sender. A delivery failure is logged and
// kept in NotifyError.
func (s *DocumentService) notify(ctx context.Context, doc *models.Document, status notifier.Status, detail string) *models.Document {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := s.notifier.Notify(nctx, doc.Origin, status, detail)
	if err == nil {
		s.appendLog(ctx, doc.ID, models.LogEntry{Event: models.EventNotified, State: doc.State, Detail: string(status)})
		return doc
	}

	s.logger.Warn("notification failed",
		logger.DocumentID(doc.ID),
		logger.String("status", string(status)),
		logger.Error(err))
	s.appendLog(ctx, doc.ID, models.LogEntry{Event: models.EventNotifyFailed, State: doc.State, Detail: err.Error()})
	updated, uerr := s.store.Update(context.WithoutCancel(ctx), doc.ID, func(d *models.Document) error {
		d.NotifyError = err.Error()
		return nil
	})
	if uerr != nil {
		s.logger.Error("failed to record notify error", logger.DocumentID(doc.ID), logger.Error(uerr))
		return doc
	}
	return updated
}

func (s *DocumentService) writeReport(ctx context.Context, doc *models.Document) {
	entries, err := s.store.Log(ctx, doc.ID)
	if err != nil {
		s.logger.Error("failed to read processing log", logger.DocumentID(doc.ID), logger.Error(err))
	}
	report, err := s.converter.Convert(doc, entries)
	if err == nil {
		var data []byte
		if data, err = s.converter.Marshal(report); err == nil {
			_, err = storage.PutBytes(ctx, s.storage, storage.Logs(doc.ID), data)
		}
	}
	if err != nil {
		s.logger.Error("failed to write processing report", logger.DocumentID(doc.ID), logger.Error(err))
	}
}
