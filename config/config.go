package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
)

// Config is the explicit configuration object handed to every component.
// Nothing in the repo reads the process environment after Load returns.
type Config struct {
	DataDir   string          `yaml:"dataDir"`
	HTTPAddr  string          `yaml:"httpAddr"`
	Log       LogConfig       `yaml:"log"`
	AI        AIConfig        `yaml:"ai"`
	Messaging MessagingConfig `yaml:"messaging"`
	Printer   PrinterConfig   `yaml:"printer"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Watch     WatchConfig     `yaml:"watch"`
	Store     StoreConfig     `yaml:"store"`
	Queue     QueueConfig     `yaml:"queue"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	OCR       TextractConfig  `yaml:"ocr"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
	File     string `yaml:"file"`
}

// AIConfig selects and tunes the rewriter backend.
type AIConfig struct {
	Provider    string        `yaml:"provider"` // openai | anthropic | ollama | vertex | mock
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`

	OpenAIKey        string `yaml:"openaiKey"`
	OpenAIBaseURL    string `yaml:"openaiBaseURL"`
	AnthropicKey     string `yaml:"anthropicKey"`
	AnthropicBaseURL string `yaml:"anthropicBaseURL"`
	OllamaURL        string `yaml:"ollamaURL"`
	VertexProject    string `yaml:"vertexProject"`
	VertexLocation   string `yaml:"vertexLocation"`

	MockSuffix string        `yaml:"mockSuffix"`
	MockDelay  time.Duration `yaml:"mockDelay"`
}

type MessagingConfig struct {
	AccountSID string `yaml:"accountSID"`
	AuthToken  string `yaml:"authToken"`
	FromNumber string `yaml:"fromNumber"`
	WebhookURL string `yaml:"webhookURL"`
}

// Enabled reports whether credentials for the messaging channel are present.
func (m MessagingConfig) Enabled() bool {
	return m.AccountSID != "" && m.AuthToken != ""
}

type PrinterConfig struct {
	Backend    string `yaml:"backend"` // lp | spool
	Name       string `yaml:"name"`
	UseDefault bool   `yaml:"useDefault"`
	Quality    string `yaml:"quality"` // draft | normal | high
	PaperSize  string `yaml:"paperSize"`
	Duplex     bool   `yaml:"duplex"`
	Copies     int    `yaml:"copies"`
	SpoolDir   string `yaml:"spoolDir"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
}

type PipelineConfig struct {
	MaxFileSizeMB       int           `yaml:"maxFileSizeMB"`
	OutputFormat        models.Format `yaml:"outputFormat"`
	AutoPrint           bool          `yaml:"autoPrint"`
	RequireConfirmation bool          `yaml:"requireConfirmation"`
	MaxProcessingTime   time.Duration `yaml:"maxProcessingTime"`
	MaxInFlight         int           `yaml:"maxInFlight"`
	SweepInterval       time.Duration `yaml:"sweepInterval"`
	Retry               RetryConfig   `yaml:"retry"`
}

// MaxFileSize in bytes.
func (p PipelineConfig) MaxFileSize() int64 {
	return int64(p.MaxFileSizeMB) * 1024 * 1024
}

type WatchConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"` // sqlite | redis | memory
	SQLitePath string `yaml:"sqlitePath"`
}

type QueueConfig struct {
	Backend  string `yaml:"backend"` // memory | asynq
	Capacity int    `yaml:"capacity"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DataDir:  "data",
		HTTPAddr: ":5000",
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
			File:     filepath.Join("data", "logs", "agent.log"),
		},
		AI: AIConfig{
			Provider:         "openai",
			Model:            "gpt-3.5-turbo",
			MaxTokens:        2000,
			Temperature:      0.3,
			Timeout:          60 * time.Second,
			OpenAIBaseURL:    "https://api.openai.com/v1",
			AnthropicBaseURL: "https://api.anthropic.com/v1",
			OllamaURL:        "http://localhost:11434",
			VertexLocation:   "us-central1",
		},
		Messaging: MessagingConfig{
			FromNumber: "whatsapp:+14155238886",
		},
		Printer: PrinterConfig{
			Backend:    "lp",
			UseDefault: true,
			Quality:    "normal",
			PaperSize:  "A4",
			Copies:     1,
			SpoolDir:   filepath.Join("data", "spool"),
		},
		Pipeline: PipelineConfig{
			MaxFileSizeMB:       10,
			OutputFormat:        models.FormatPDF,
			AutoPrint:           false,
			RequireConfirmation: true,
			MaxProcessingTime:   300 * time.Second,
			MaxInFlight:         4,
			SweepInterval:       time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   time.Second,
				Multiplier:  2,
				MaxDelay:    30 * time.Second,
			},
		},
		Watch: WatchConfig{
			Dir:      filepath.Join("data", "inbox"),
			Interval: 2 * time.Second,
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			SQLitePath: filepath.Join("data", "documents.db"),
		},
		Queue: QueueConfig{
			Backend:  "memory",
			Capacity: 256,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Backend: "local",
		},
	}
}

// LoadOptions says where configuration comes from.
type LoadOptions struct {
	// ConfigFile is an optional YAML file applied over the defaults.
	ConfigFile string
	// EnvFile is an optional dotenv file. A missing file is not an error.
	EnvFile string
	// Environ overrides the process environment, mostly for tests.
	Environ map[string]string
}

// Load builds a Config from defaults, then YAML, then dotenv, then environment.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", opts.ConfigFile, err)
		}
	}

	env := map[string]string{}
	if opts.EnvFile != "" {
		fromFile, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		for k, v := range fromFile {
			env[k] = v
		}
	}
	if opts.Environ != nil {
		for k, v := range opts.Environ {
			env[k] = v
		}
	} else {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				env[k] = v
			}
		}
	}

	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, env map[string]string) error {
	r := envReader{env: env}

	r.str("DATA_DIR", &cfg.DataDir)
	r.str("HTTP_ADDR", &cfg.HTTPAddr)
	r.str("LOG_LEVEL", &cfg.Log.Level)
	r.str("LOG_ENCODING", &cfg.Log.Encoding)
	r.str("LOG_FILE", &cfg.Log.File)

	r.str("LLM_PROVIDER", &cfg.AI.Provider)
	r.str("MODEL_NAME", &cfg.AI.Model)
	r.str("OPENAI_MODEL", &cfg.AI.Model)
	r.int("MAX_TOKENS", &cfg.AI.MaxTokens)
	r.float("TEMPERATURE", &cfg.AI.Temperature)
	r.duration("AI_TIMEOUT", &cfg.AI.Timeout)
	r.str("OPENAI_API_KEY", &cfg.AI.OpenAIKey)
	r.str("OPENAI_BASE_URL", &cfg.AI.OpenAIBaseURL)
	r.str("ANTHROPIC_API_KEY", &cfg.AI.AnthropicKey)
	r.str("ANTHROPIC_BASE_URL", &cfg.AI.AnthropicBaseURL)
	r.str("OLLAMA_URL", &cfg.AI.OllamaURL)
	r.str("VERTEX_PROJECT", &cfg.AI.VertexProject)
	r.str("VERTEX_LOCATION", &cfg.AI.VertexLocation)
	r.str("MOCK_SUFFIX", &cfg.AI.MockSuffix)
	r.duration("MOCK_DELAY", &cfg.AI.MockDelay)

	r.str("TWILIO_ACCOUNT_SID", &cfg.Messaging.AccountSID)
	r.str("TWILIO_AUTH_TOKEN", &cfg.Messaging.AuthToken)
	r.str("WHATSAPP_NUMBER", &cfg.Messaging.FromNumber)
	r.str("WEBHOOK_URL", &cfg.Messaging.WebhookURL)

	r.str("PRINTER_BACKEND", &cfg.Printer.Backend)
	r.str("PRINTER_NAME", &cfg.Printer.Name)
	r.bool("USE_DEFAULT_PRINTER", &cfg.Printer.UseDefault)
	r.str("PRINT_QUALITY", &cfg.Printer.Quality)
	r.str("PAPER_SIZE", &cfg.Printer.PaperSize)
	r.bool("DUPLEX_PRINTING", &cfg.Printer.Duplex)
	r.int("PRINT_COPIES", &cfg.Printer.Copies)
	r.str("PRINT_SPOOL_DIR", &cfg.Printer.SpoolDir)

	r.int("MAX_FILE_SIZE_MB", &cfg.Pipeline.MaxFileSizeMB)
	if v, ok := env["OUTPUT_FORMAT"]; ok && v != "" {
		f, known := models.ParseFormat(v)
		if !known {
			r.fail("OUTPUT_FORMAT", fmt.Errorf("unsupported format %q", v))
		}
		cfg.Pipeline.OutputFormat = f
	}
	r.bool("AUTO_PRINT", &cfg.Pipeline.AutoPrint)
	r.bool("REQUIRE_CONFIRMATION", &cfg.Pipeline.RequireConfirmation)
	r.duration("MAX_PROCESSING_TIME", &cfg.Pipeline.MaxProcessingTime)
	r.int("MAX_IN_FLIGHT", &cfg.Pipeline.MaxInFlight)
	r.duration("SWEEP_INTERVAL", &cfg.Pipeline.SweepInterval)
	r.int("RETRY_MAX_ATTEMPTS", &cfg.Pipeline.Retry.MaxAttempts)
	r.duration("RETRY_BASE_DELAY", &cfg.Pipeline.Retry.BaseDelay)
	r.float("RETRY_MULTIPLIER", &cfg.Pipeline.Retry.Multiplier)
	r.duration("RETRY_MAX_DELAY", &cfg.Pipeline.Retry.MaxDelay)

	r.str("WATCH_DIR", &cfg.Watch.Dir)
	r.duration("WATCH_INTERVAL", &cfg.Watch.Interval)

	r.str("STORE_BACKEND", &cfg.Store.Backend)
	r.str("SQLITE_PATH", &cfg.Store.SQLitePath)
	r.str("QUEUE_BACKEND", &cfg.Queue.Backend)
	r.int("QUEUE_CAPACITY", &cfg.Queue.Capacity)
	r.str("REDIS_ADDR", &cfg.Redis.Addr)
	r.str("REDIS_PASSWORD", &cfg.Redis.Password)
	r.int("REDIS_DB", &cfg.Redis.DB)

	applyStorageEnv(&r, &cfg.Storage)
	applyTextractEnv(&r, &cfg.OCR)

	return r.err
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(name, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %v", name, v, allowed))
	}

	oneOf("ai.provider", c.AI.Provider, "openai", "anthropic", "ollama", "vertex", "mock")
	oneOf("printer.backend", c.Printer.Backend, "lp", "spool")
	oneOf("printer.quality", c.Printer.Quality, "draft", "normal", "high")
	oneOf("store.backend", c.Store.Backend, "sqlite", "redis", "memory")
	oneOf("queue.backend", c.Queue.Backend, "memory", "asynq")
	oneOf("storage.backend", c.Storage.Backend, "local", "s3", "minio")
	if _, ok := models.ParseFormat(string(c.Pipeline.OutputFormat)); !ok {
		errs = append(errs, fmt.Errorf("pipeline.outputFormat: unsupported %q", c.Pipeline.OutputFormat))
	}
	if c.Pipeline.MaxFileSizeMB <= 0 {
		errs = append(errs, errors.New("pipeline.maxFileSizeMB must be positive"))
	}
	if c.Pipeline.MaxProcessingTime <= 0 {
		errs = append(errs, errors.New("pipeline.maxProcessingTime must be positive"))
	}
	if c.Pipeline.MaxInFlight <= 0 {
		errs = append(errs, errors.New("pipeline.maxInFlight must be positive"))
	}
	if c.Pipeline.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("pipeline.retry.maxAttempts must be at least 1"))
	}
	if c.Printer.Copies < 1 {
		errs = append(errs, errors.New("printer.copies must be at least 1"))
	}
	return errors.Join(errs...)
}

// Path resolves a path relative to DataDir.
func (c *Config) Path(elem ...string) string {
	return filepath.Join(append([]string{c.DataDir}, elem...)...)
}

type envReader struct {
	env map[string]string
	err error
}

func (r *envReader) lookup(key string) (string, bool) {
	v, ok := r.env[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (r *envReader) fail(key string, err error) {
	r.err = errors.Join(r.err, fmt.Errorf("%s: %w", key, err))
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok {
		*dst = v
	}
}

func (r *envReader) int(key string, dst *int) {
	if v, ok := r.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) float(key string, dst *float64) {
	if v, ok := r.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = f
	}
}

func (r *envReader) bool(key string, dst *bool) {
	if v, ok := r.lookup(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			switch strings.ToLower(v) {
			case "yes", "on":
				b, err = true, nil
			case "no", "off":
				b, err = false, nil
			}
		}
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = b
	}
}

// duration accepts Go durations ("90s", "5m") and bare seconds ("300").
func (r *envReader) duration(key string, dst *time.Duration) {
	if v, ok := r.lookup(key); ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(secs * float64(time.Second))
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, err)
			return
		}
		*dst = d
	}
}
