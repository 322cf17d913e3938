package worker

import (
	"context"
	"sync"

	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/queue"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

// Processor drives one document. The pipeline orchestrator implements it.
type Processor interface {
	Process(ctx context.Context, documentID string) error
}

// Pool runs a fixed number of goroutines draining a ChannelQueue. The pool
// size is the bound on documents processed concurrently.
type Pool struct {
	queue     *queue.ChannelQueue
	size      int
	processor Processor
	logger    logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(q *queue.ChannelQueue, size int, processor Processor, log logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{queue: q, size: size, processor: processor, logger: log}
}

func (p *Pool) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	p.logger.Info("worker pool started", logger.Int("size", p.size))
	return nil
}

// Stop cancels in-flight work and waits for every goroutine to return.
func (p *Pool) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// Run starts the pool and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return p.Stop()
}

func (p *Pool) loop(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.queue.Done():
			return
		case task := <-p.queue.Tasks():
			p.handle(ctx, n, task)
		}
	}
}

func (p *Pool) handle(ctx context.Context, n int, task *queue.Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic",
				logger.DocumentID(task.DocumentID),
				logger.Any("panic", r))
		}
	}()
	if err := p.processor.Process(ctx, task.DocumentID); err != nil {
		p.logger.Error("document processing failed",
			logger.Int("worker", n),
			logger.DocumentID(task.DocumentID),
			logger.Error(err))
	}
}
