// Package notifier tells the submitter what happened to their document.
package notifier

import (
	"context"
	"fmt"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// Status is the outcome reported to the submitter.
type Status string

const (
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
)

// Notifier delivers one status message. Failures are DeliveryError; callers
// log them and move on.
type Notifier interface {
	Notify(ctx context.Context, origin models.OriginRef, status Status, detail string) error
}

// Message renders the user facing text for a status.
func Message(status Status, detail string) string {
	switch status {
	case StatusCompleted:
		if detail != "" {
			return fmt.Sprintf("Your document has been improved and printed. %s", detail)
		}
		return "Your document has been improved and printed."
	case StatusFailed:
		return fmt.Sprintf("Sorry, we could not process your document: %s", detail)
	case StatusCancelled:
		return "Your document was cancelled and will not be printed."
	case StatusAwaitingConfirmation:
		msg := "Your document is ready. Reply YES to print it or CANCEL to discard it."
		if detail != "" {
			msg += " " + detail
		}
		return msg
	default:
		return detail
	}
}

// SourceOf infers where a document came from by its origin handle.
func SourceOf(origin models.OriginRef) models.Source {
	if origin.Sender != "" {
		return models.SourceMessaging
	}
	return models.SourceLocalDirectory
}

// Router picks a Notifier per document source.
type Router struct {
	routes   map[models.Source]Notifier
	fallback Notifier
}

func NewRouter(fallback Notifier) *Router {
	return &Router{routes: make(map[models.Source]Notifier), fallback: fallback}
}

// Route registers n for documents from source.
func (r *Router) Route(source models.Source, n Notifier) *Router {
	r.routes[source] = n
	return r
}

func (r *Router) Notify(ctx context.Context, origin models.OriginRef, status Status, detail string) error {
	n, ok := r.routes[SourceOf(origin)]
	if !ok {
		n = r.fallback
	}
	if n == nil {
		return models.NewError(models.ErrDeliveryError, "no notifier for %s", origin)
	}
	return n.Notify(ctx, origin, status, detail)
}
