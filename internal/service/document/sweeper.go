package document

import (
	"context"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/store"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

const defaultSweepInterval = 30 * time.Second

// ExpireOverdue fails every idle document past its processing deadline.
// Running documents enforce their own deadline. Documents waiting for a
// manual print trigger are skipped since their deadline moves while parked.
func (s *DocumentService) ExpireOverdue(ctx context.Context) (int, error) {
	docs, err := s.store.List(ctx, store.Filter{States: cancellableStates})
	if err != nil {
		return 0, err
	}

	now := s.now()
	expired := 0
	for _, d := range docs {
		if d.AwaitingManualTrigger() || now.Before(d.Deadline(s.pipeline.MaxProcessingTime)) {
			continue
		}
		if !s.tryClaim(d.ID, false) {
			continue
		}
		var ferr error
		if d.CancelRequested {
			_, ferr = s.finish(ctx, d.ID, models.StateCancelled, models.NewError(models.ErrCancelled, "cancelled on request"))
		} else {
			_, ferr = s.finish(ctx, d.ID, models.StateFailed, s.deadlineError(d))
		}
		s.unclaim(d.ID)
		if ferr != nil {
			s.logger.Warn("failed to expire document", logger.DocumentID(d.ID), logger.Error(ferr))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired overdue documents", logger.Int("count", expired))
	}
	return expired, nil
}

// RunSweeper calls ExpireOverdue every SweepInterval until ctx is done.
func (s *DocumentService) RunSweeper(ctx context.Context) error {
	interval := s.pipeline.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ExpireOverdue(ctx); err != nil {
				s.logger.Error("sweep failed", logger.Error(err))
			}
		}
	}
}
