// Package intake turns incoming messages and dropped files into pipeline
// submissions.
package intake

import (
	"context"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// Submitter accepts a new document. Validation failures come back as a
// FAILED document, not an error; errors mean the submission was not recorded.
type Submitter interface {
	Submit(ctx context.Context, sub models.Submission) (*models.Document, error)
}

// Controller applies a sender's reply to their most recent parked document.
type Controller interface {
	ConfirmLatest(ctx context.Context, sender string) (*models.Document, error)
	CancelLatest(ctx context.Context, sender string) (*models.Document, error)
}
