package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// MemoryStore is a process-local Store for tests and credential-free local runs.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]*models.Document
	logs  map[string][]models.LogEntry
	jobs  map[string]string
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]*models.Document),
		logs:  make(map[string][]models.LogEntry),
		jobs:  make(map[string]string),
		clock: time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("%s: %w", doc.ID, ErrExists)
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.UpdatedAt = s.clock()
	s.docs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Document
	for _, d := range s.docs {
		if filter.match(d) {
			out = append(out, d.Clone())
		}
	}
	return filter.finish(out), nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, id string, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	s.logs[id] = append(s.logs[id], entry)
	return nil
}

func (s *MemoryStore) Log(ctx context.Context, id string) ([]models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return append([]models.LogEntry(nil), s.logs[id]...), nil
}

func (s *MemoryStore) PrintJob(ctx context.Context, id string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryStore) RecordPrintJob(ctx context.Context, id, jobID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[id]; ok {
		return existing, nil
	}
	s.jobs[id] = jobID
	return jobID, nil
}

func (s *MemoryStore) Close() error { return nil }
