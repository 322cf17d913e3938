// Package app wires configured components into a running agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/ocr"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/document/pdf"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/agent/rewriter"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/notifier"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/printer"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/service/document"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/store"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/queue"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage/local"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage/minio"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/storage/s3"
)

// Options adjust wiring for a particular binary.
type Options struct {
	// Local drops the messaging channel: notifications only go to the log.
	Local bool
}

// App holds the components of one agent process.
type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Store   store.Store
	Storage storage.Storage
	Queue   queue.Queue
	// Channel is set when Queue is the in-process queue.
	Channel *queue.ChannelQueue
	Service *document.DocumentService

	redis *redis.Client
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg config.LogConfig, name string) (logger.Logger, error) {
	return logger.NewLogger(
		logger.WithLevel(cfg.Level),
		logger.WithEncoding(cfg.Encoding),
		logger.WithFile(cfg.File),
		logger.WithField("app", name),
	)
}

// New builds every component named by cfg.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if needsRedis(cfg) {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	var err error
	if a.Storage, err = NewStorage(ctx, cfg, log.Named("storage")); err != nil {
		return nil, err
	}
	if a.Store, err = NewStore(cfg, a.redis, log.Named("store")); err != nil {
		return nil, err
	}
	a.Queue, a.Channel = NewQueue(cfg)

	recognizer, err := NewOCR(ctx, cfg.OCR, log.Named("ocr"))
	if err != nil {
		return nil, err
	}
	rw, err := rewriter.New(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create rewriter: %w", err)
	}

	a.Service = document.NewService(document.Dependencies{
		Store:    a.Store,
		Storage:  a.Storage,
		Formats:  agent.NewProcessorFactory(log.Named("formats"), agent.FactoryOptions{PaperSize: cfg.Printer.PaperSize, OCR: recognizer}),
		Rewriter: rw,
		Printer:  NewPrinter(cfg, log.Named("printer")),
		Notifier: NewNotifier(cfg, opts, log.Named("notifier")),
		Queue:    a.Queue,
	}, cfg, log.Named("pipeline"))

	log.Info("agent components ready",
		logger.String("store", cfg.Store.Backend),
		logger.String("storage", cfg.Storage.Backend),
		logger.String("queue", cfg.Queue.Backend),
		logger.String("rewriter", rw.Name()),
		logger.String("printer", cfg.Printer.Backend),
		logger.Bool("local", opts.Local))
	ok = true
	return a, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Store.Backend == "redis"
}

// NewStorage builds the blob storage backend.
func NewStorage(ctx context.Context, cfg *config.Config, log logger.Logger) (storage.Storage, error) {
	var (
		s   storage.Storage
		err error
	)
	switch storage.StorageType(cfg.Storage.Backend) {
	case storage.StorageTypeS3:
		var b *s3.S3Storage
		if b, err = s3.NewS3Storage(ctx, cfg.Storage.S3, log); err == nil {
			s = b
		}
	case storage.StorageTypeMinio:
		var b *minio.MinioStorage
		if b, err = minio.NewMinioStorage(ctx, cfg.Storage.Minio, log); err == nil {
			s = b
		}
	case storage.StorageTypeLocal, "":
		var b *local.LocalStorage
		if b, err = local.NewLocalStorage(cfg.Path("files"), log); err == nil {
			s = b
		}
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}
	return s, nil
}

// NewStore builds the document store. client is only used by the redis backend.
func NewStore(cfg *config.Config, client *redis.Client, log logger.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = cfg.Path("documents.db")
		}
		db, err := store.OpenSQLite(path, log)
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
		return db, nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis store needs a redis client")
		}
		return store.NewRedisStore(client, log), nil
	case "memory":
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// NewQueue builds the task queue. The channel queue is returned as well when
// tasks are consumed in process.
func NewQueue(cfg *config.Config) (queue.Queue, *queue.ChannelQueue) {
	if cfg.Queue.Backend == "asynq" {
		return queue.NewAsynqQueue(AsynqConfig(cfg)), nil
	}
	q := queue.NewChannelQueue(cfg.Queue.Capacity)
	return q, q
}

// AsynqConfig is the Redis connection used by the asynq queue and worker.
func AsynqConfig(cfg *config.Config) *queue.QueueConfig {
	return &queue.QueueConfig{
		RedisAddr:      cfg.Redis.Addr,
		RedisPassword:  cfg.Redis.Password,
		RedisDB:        cfg.Redis.DB,
		ProcessTimeout: cfg.Pipeline.MaxProcessingTime + time.Minute,
	}
}

// NewPrinter builds the print dispatcher.
func NewPrinter(cfg *config.Config, log logger.Logger) printer.Dispatcher {
	if cfg.Printer.Backend == "spool" {
		spool, err := local.NewLocalStorage(cfg.Printer.SpoolDir, log)
		if err == nil {
			return printer.NewSpoolDispatcher(spool, log)
		}
		log.Warn("spool directory unusable, falling back to lp", logger.Error(err))
	}
	return printer.NewLPDispatcher(log)
}

// NewNotifier routes messaging documents to Twilio when credentials exist and
// everything else to the log.
func NewNotifier(cfg *config.Config, opts Options, log logger.Logger) notifier.Notifier {
	router := notifier.NewRouter(notifier.NewLogNotifier(log))
	if !opts.Local && cfg.Messaging.Enabled() {
		router.Route(models.SourceMessaging, notifier.NewTwilioNotifier(cfg.Messaging, log.Named("twilio")))
	}
	return router
}

// NewOCR returns nil when OCR is disabled.
func NewOCR(ctx context.Context, cfg config.TextractConfig, log logger.Logger) (pdf.TextRecognizer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	r, err := ocr.NewTextractRecognizer(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create OCR client: %w", err)
	}
	return r, nil
}

// Close releases the store, queue and redis connection.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
