// Command agent runs the document printing pipeline: intake from the
// messaging webhook and the watched directory, the worker pool and the admin API.
//
// Usage:
//
//	agent --config agent.yaml --env .env       # messaging + watcher
//	agent --local                              # watcher only, no credentials needed
//	agent --cleanup-older-than 720h            # delete stored blobs older than 30 days and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Ezekiel98Tz/PrintingAgent/api/handlers"
	"github.com/Ezekiel98Tz/PrintingAgent/api/routes"
	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/app"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/intake"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	localMode := flag.Bool("local", false, "watch the local directory only, without the messaging channel")
	configFile := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a dotenv file")
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	cleanup := flag.Duration("cleanup-older-than", 0, "delete stored blobs older than this and exit")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	// 初始化日志
	log, err := app.NewLogger(cfg.Log, "agent")
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *localMode, *cleanup); err != nil {
		log.Error("agent stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger, local bool, cleanup time.Duration) error {
	a, err := app.New(ctx, cfg, log, app.Options{Local: local})
	if err != nil {
		return err
	}
	defer a.Close()

	if cleanup > 0 {
		return a.Service.CleanupBefore(ctx, time.Now().Add(-cleanup))
	}

	if _, err := a.Service.Recover(ctx); err != nil {
		return fmt.Errorf("recover documents: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.Channel != nil {
		pool := worker.NewPool(a.Channel, cfg.Pipeline.MaxInFlight, a.Service, log.Named("worker"))
		g.Go(func() error { return pool.Run(ctx) })
	} else {
		w := worker.NewDocumentWorker(&worker.Config{
			Queue:       app.AsynqConfig(cfg),
			Concurrency: cfg.Pipeline.MaxInFlight,
		}, a.Service, log.Named("worker"))
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error { return a.Service.RunSweeper(ctx) })

	watcher := intake.NewWatcher(cfg.Watch.Dir, cfg.Watch.Interval, a.Service, log.Named("watcher"))
	g.Go(func() error { return watcher.Run(ctx) })

	var inbound handlers.InboundHandler
	var messaging *intake.Messaging
	switch {
	case local:
		log.Info("local mode: messaging channel disabled")
	case !cfg.Messaging.Enabled():
		log.Warn("messaging credentials missing, webhook disabled")
	default:
		messaging = intake.NewMessaging(ctx, a.Service, a.Service, cfg.Messaging, cfg.Pipeline.MaxFileSize(),
			&http.Client{Timeout: time.Minute}, log.Named("messaging"))
		inbound = messaging
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes.NewRouter(handlers.NewHandlers(a.Service, inbound, log.Named("api")), log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info("http server listening", logger.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if messaging != nil {
			messaging.Wait()
		}
		return err
	})

	return g.Wait()
}
