// Command worker consumes document tasks from Redis when the agent runs with
// QUEUE_BACKEND=asynq. Several workers may share one Redis; task ids keep a
// single queued task per document.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/app"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/worker"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a dotenv file")
	concurrency := flag.Int("concurrency", 0, "documents processed at once (default MAX_IN_FLIGHT)")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(2)
	}
	if cfg.Queue.Backend != "asynq" {
		fmt.Fprintln(os.Stderr, "worker: QUEUE_BACKEND must be asynq")
		os.Exit(2)
	}
	if *concurrency > 0 {
		cfg.Pipeline.MaxInFlight = *concurrency
	}

	// 初始化日志
	log, err := app.NewLogger(cfg.Log, "worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Error("Failed to create document service", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	documentWorker := worker.NewDocumentWorker(&worker.Config{
		Queue:       app.AsynqConfig(cfg),
		Concurrency: cfg.Pipeline.MaxInFlight,
	}, a.Service, log.Named("worker"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return documentWorker.Run(ctx) })
	g.Go(func() error { return a.Service.RunSweeper(ctx) })

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker stopped")
}
