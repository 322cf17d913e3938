// Package store keeps Document records, their processing logs and the print
// ledger. Content blobs live in pkg/storage; records only hold keys.
package store

import (
	"context"
	"errors"
	"sort"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

var (
	ErrNotFound = errors.New("store: document not found")
	ErrExists   = errors.New("store: document already exists")
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	States []models.State
	Source models.Source
	Sender string
	Limit  int
}

func (f Filter) match(d *models.Document) bool {
	if f.Source != "" && d.Source != f.Source {
		return false
	}
	if f.Sender != "" && d.Origin.Sender != f.Sender {
		return false
	}
	if len(f.States) == 0 {
		return true
	}
	for _, s := range f.States {
		if d.State == s {
			return true
		}
	}
	return false
}

// finish sorts newest first and applies the limit.
func (f Filter) finish(docs []*models.Document) []*models.Document {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	if f.Limit > 0 && len(docs) > f.Limit {
		docs = docs[:f.Limit]
	}
	return docs
}

// UpdateFunc mutates a private copy of the record. Returning an error aborts
// the update and nothing is written.
type UpdateFunc func(doc *models.Document) error

// Store is the durable record of every submitted document.
//
// Update is a serialized read-modify-write per id: two concurrent Updates on
// the same id never lose each other's changes.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*models.Document, error)
	List(ctx context.Context, filter Filter) ([]*models.Document, error)

	AppendLog(ctx context.Context, id string, entry models.LogEntry) error
	Log(ctx context.Context, id string) ([]models.LogEntry, error)

	PrintLedger
	Close() error
}

// PrintLedger remembers which documents already produced a printer job.
type PrintLedger interface {
	PrintJob(ctx context.Context, id string) (jobID string, ok bool, err error)
	// RecordPrintJob stores jobID unless one is already recorded, in which
	// case the existing job id is returned.
	RecordPrintJob(ctx context.Context, id, jobID string) (string, error)
}
