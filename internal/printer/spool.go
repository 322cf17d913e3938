package printer

import (
	"context"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage"
)

// SpoolDispatcher drops jobs into blob storage instead of a real printer.
// It is used on machines without CUPS.
type SpoolDispatcher struct {
	storage storage.Storage
	logger  logger.Logger
}

func NewSpoolDispatcher(s storage.Storage, log logger.Logger) *SpoolDispatcher {
	return &SpoolDispatcher{storage: s, logger: log}
}

func (d *SpoolDispatcher) Print(ctx context.Context, job Job, cfg config.PrinterConfig) (string, error) {
	media, err := Media(cfg.PaperSize)
	if err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	jobID := "spool-" + id.String()
	key := path.Join("jobs", jobID+"_"+filepath.Base(job.FileName))

	if _, err := storage.PutBytes(ctx, d.storage, key, job.Data); err != nil {
		return "", models.WrapError(models.ErrPrinterUnavailable, err, "spool write failed")
	}
	d.logger.Info("job spooled",
		logger.DocumentID(job.DocumentID),
		logger.String("job_id", jobID),
		logger.String("media", media),
		logger.Int("copies", cfg.Copies),
		logger.String("key", key))
	return jobID, nil
}

func (d *SpoolDispatcher) Printers(context.Context) ([]Printer, error) {
	return []Printer{{Name: "spool", Status: "idle", Default: true}}, nil
}
