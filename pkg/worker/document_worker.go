package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/queue"
)

type Config struct {
	Queue       *queue.QueueConfig
	Concurrency int
}

// DocumentWorker consumes document tasks from Redis through asynq.
type DocumentWorker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	logger    logger.Logger
	processor Processor
}

func NewDocumentWorker(cfg *Config, processor Processor, log logger.Logger) *DocumentWorker {
	server := asynq.NewServer(
		cfg.Queue.RedisOpt(),
		asynq.Config{
			Concurrency:     cfg.Concurrency,
			Queues:          queue.Queues(),
			ShutdownTimeout: 10 * time.Second,
		},
	)

	w := &DocumentWorker{
		server:    server,
		mux:       asynq.NewServeMux(),
		logger:    log,
		processor: processor,
	}

	// 注册任务处理器
	w.mux.HandleFunc(queue.TaskTypeDocumentProcess, w.handleDocumentProcess)
	return w
}

func (w *DocumentWorker) handleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	task, err := queue.DecodeTask(t.Payload())
	if err != nil {
		w.logger.Error("Invalid task data",
			logger.Error(err),
			logger.String("payload", string(t.Payload())))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	w.logger.Debug("Processing document task", logger.DocumentID(task.DocumentID))

	if err := w.processor.Process(ctx, task.DocumentID); err != nil {
		if rw := t.ResultWriter(); rw != nil {
			if _, writeErr := rw.Write([]byte(fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))); writeErr != nil {
				w.logger.Error("Failed to write task failure", logger.Error(writeErr))
			}
		}
		// stage retries already happened inside the pipeline
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

func (w *DocumentWorker) Stop() error {
	w.server.Shutdown()
	return nil
}

// Run starts the server and blocks until ctx is done.
func (w *DocumentWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	<-ctx.Done()
	return w.Stop()
}
