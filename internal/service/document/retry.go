package document

import (
	"context"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// runStage calls fn until it succeeds, fails with an unrecoverable kind or
// runs out of attempts. Every call is counted in the document's attempts.
// A result that arrives after ctx is done is discarded.
func (s *DocumentService) runStage(ctx context.Context, id string, stage models.Stage, fallback models.ErrorKind, fn func(context.Context) error) error {
	policy := s.pipeline.Retry
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		total := s.countAttempt(ctx, id, stage)

		err := fn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		se := models.AsStageError(err, fallback)
		s.appendLog(ctx, id, models.LogEntry{
			Event:   models.EventStageFailed,
			State:   stageState[stage],
			Stage:   stage,
			Attempt: total,
			Detail:  se.Error(),
		})
		if !se.Recoverable() || attempt >= maxAttempts {
			return se
		}

		delay := backoff(policy, attempt)
		s.logger.Warn("stage failed, retrying",
			logger.DocumentID(id),
			logger.String("stage", string(stage)),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(se))
		s.appendLog(ctx, id, models.LogEntry{
			Event:   models.EventRetry,
			State:   stageState[stage],
			Stage:   stage,
			Attempt: total + 1,
			Detail:  delay.String(),
		})
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

var stageState = map[models.Stage]models.State{
	models.StageParse:  models.StateParsing,
	models.StageEdit:   models.StateAIEditing,
	models.StageRender: models.StateRendering,
	models.StagePrint:  models.StatePrinting,
}

// countAttempt bumps the persisted attempt counter and returns the new total.
func (s *DocumentService) countAttempt(ctx context.Context, id string, stage models.Stage) int {
	doc, err := s.store.Update(context.WithoutCancel(ctx), id, func(d *models.Document) error {
		if d.Attempts == nil {
			d.Attempts = make(map[models.Stage]int)
		}
		d.Attempts[stage]++
		return nil
	})
	if err != nil {
		s.logger.Error("failed to count attempt", logger.DocumentID(id), logger.Error(err))
		return 0
	}
	return doc.Attempts[stage]
}

// backoff is the wait before attempt n+1: BaseDelay * Multiplier^(n-1),
// capped at MaxDelay.
func backoff(policy config.RetryConfig, n int) time.Duration {
	delay := float64(policy.BaseDelay)
	mult := policy.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < n; i++ {
		delay *= mult
		if policy.MaxDelay > 0 && delay >= float64(policy.MaxDelay) {
			return policy.MaxDelay
		}
	}
	if policy.MaxDelay > 0 && time.Duration(delay) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}
