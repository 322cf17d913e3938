package printer

import (
	"context"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// Ledger records job ids per document. store.PrintLedger satisfies it.
type Ledger interface {
	PrintJob(ctx context.Context, id string) (string, bool, error)
	RecordPrintJob(ctx context.Context, id, jobID string) (string, error)
}

// Guard makes Print idempotent per document id: once a job id is recorded,
// later calls return it without reaching the spooler.
type Guard struct {
	next   Dispatcher
	ledger Ledger
	logger logger.Logger
}

func NewGuard(next Dispatcher, ledger Ledger, log logger.Logger) *Guard {
	return &Guard{next: next, ledger: ledger, logger: log}
}

func (g *Guard) Print(ctx context.Context, job Job, cfg config.PrinterConfig) (string, error) {
	jobID, ok, err := g.ledger.PrintJob(ctx, job.DocumentID)
	if err != nil {
		return "", models.WrapError(models.ErrPrinterUnavailable, err, "print ledger lookup failed")
	}
	if ok {
		g.logger.Warn("duplicate print suppressed",
			logger.DocumentID(job.DocumentID),
			logger.String("job_id", jobID))
		return jobID, nil
	}

	jobID, err = g.next.Print(ctx, job, cfg)
	if err != nil {
		return "", err
	}

	// 任务已提交，取消了也要记下来
	recorded, err := g.ledger.RecordPrintJob(context.WithoutCancel(ctx), job.DocumentID, jobID)
	if err != nil {
		// The paper is already out; report success and rely on the record.
		g.logger.Error("failed to record print job",
			logger.DocumentID(job.DocumentID),
			logger.String("job_id", jobID),
			logger.Error(err))
		return jobID, nil
	}
	return recorded, nil
}

func (g *Guard) Printers(ctx context.Context) ([]Printer, error) {
	return g.next.Printers(ctx)
}
