// pkg/queue/queue.go
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TaskType 定义任务类型
const (
	TaskTypeDocumentProcess = "document:process"
)

// Priorities map onto asynq queues of the same name.
const (
	PriorityCritical = 1
	PriorityDefault  = 2
	PriorityLow      = 3
)

var ErrClosed = errors.New("queue: closed")

// Queue 接口定义
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	// Cancel drops a pending task for the document if the backend can.
	Cancel(ctx context.Context, documentID string) error
	Close() error
}

// Task 定义任务结构
type Task struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	DocumentID string    `json:"documentId"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewDocumentTask builds the task that drives one document through the pipeline.
func NewDocumentTask(documentID string, priority int) *Task {
	return &Task{
		ID:         documentID,
		Type:       TaskTypeDocumentProcess,
		DocumentID: documentID,
		Priority:   priority,
		CreatedAt:  time.Now(),
	}
}

// ChannelQueue is the in-process queue. Enqueue blocks while the buffer is full.
type ChannelQueue struct {
	tasks chan *Task
	done  chan struct{}
	once  sync.Once
}

func NewChannelQueue(capacity int) *ChannelQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &ChannelQueue{
		tasks: make(chan *Task, capacity),
		done:  make(chan struct{}),
	}
}

func (q *ChannelQueue) Enqueue(ctx context.Context, task *Task) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel is a no-op: consumers skip documents that are already terminal.
func (q *ChannelQueue) Cancel(context.Context, string) error { return nil }

// Tasks is the consumer side. It is never closed; watch Done instead.
func (q *ChannelQueue) Tasks() <-chan *Task { return q.tasks }

// Done is closed by Close.
func (q *ChannelQueue) Done() <-chan struct{} { return q.done }

// Len reports buffered tasks.
func (q *ChannelQueue) Len() int { return len(q.tasks) }

func (q *ChannelQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
