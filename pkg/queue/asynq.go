package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

var queueNames = []string{"critical", "default", "low"}

// QueueConfig 定义队列配置
type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ProcessTimeout time.Duration
}

// RedisOpt is the asynq connection option shared by client and server.
func (c *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// AsynqQueue 实现
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	timeout   time.Duration
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(cfg *QueueConfig) *AsynqQueue {
	return &AsynqQueue{
		client:    asynq.NewClient(cfg.RedisOpt()),
		inspector: asynq.NewInspector(cfg.RedisOpt()),
		timeout:   cfg.ProcessTimeout,
	}
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	// The pipeline retries stages itself; asynq only delivers.
	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.TaskID(task.DocumentID),
		asynq.Queue(queueFor(task.Priority)),
	}
	if q.timeout > 0 {
		opts = append(opts, asynq.Timeout(q.timeout))
	}

	t := asynq.NewTask(task.Type, payload, opts...)
	info, err := q.client.EnqueueContext(ctx, t)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// already pending for this document
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID
	return nil
}

// Cancel 取消任务
func (q *AsynqQueue) Cancel(ctx context.Context, documentID string) error {
	var lastErr error
	for _, name := range queueNames {
		err := q.inspector.DeleteTask(name, documentID)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if errors.Is(lastErr, asynq.ErrTaskNotFound) || errors.Is(lastErr, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("failed to cancel task: %w", lastErr)
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}

// Queues is the weighted queue set for asynq servers.
func Queues() map[string]int {
	return map[string]int{
		"critical": 6,
		"default":  3,
		"low":      1,
	}
}

// DecodeTask reads a Task from an asynq payload.
func DecodeTask(payload []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	if task.DocumentID == "" {
		return nil, fmt.Errorf("invalid task data: missing document id")
	}
	return &task, nil
}

func queueFor(priority int) string {
	switch priority {
	case PriorityCritical:
		return "critical"
	case PriorityDefault:
		return "default"
	default:
		return "low"
	}
}
