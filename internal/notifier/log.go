package notifier

import (
	"context"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// LogNotifier reports to the application log. Directory submissions have
// nobody to message.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(_ context.Context, origin models.OriginRef, status Status, detail string) error {
	fields := []logger.Field{
		logger.String("origin", origin.String()),
		logger.String("status", string(status)),
		logger.String("message", Message(status, detail)),
	}
	if status == StatusFailed {
		n.logger.Warn("document notification", fields...)
		return nil
	}
	n.logger.Info("document notification", fields...)
	return nil
}
