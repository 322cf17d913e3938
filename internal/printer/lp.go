package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// Runner executes a command with stdin and returns its stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

var (
	requestIDPattern = regexp.MustCompile(`request id is (\S+)`)
	defaultPattern   = regexp.MustCompile(`system default destination:\s*(\S+)`)
)

// LPDispatcher prints through the CUPS lp/lpstat commands.
type LPDispatcher struct {
	runner Runner
	logger logger.Logger
}

func NewLPDispatcher(log logger.Logger) *LPDispatcher {
	return NewLPDispatcherWithRunner(execRunner{}, log)
}

func NewLPDispatcherWithRunner(runner Runner, log logger.Logger) *LPDispatcher {
	return &LPDispatcher{runner: runner, logger: log}
}

func (d *LPDispatcher) Print(ctx context.Context, job Job, cfg config.PrinterConfig) (string, error) {
	media, err := Media(cfg.PaperSize)
	if err != nil {
		return "", err
	}

	name, err := d.resolve(ctx, cfg)
	if err != nil {
		return "", err
	}

	args := []string{"-d", name, "-t", job.DocumentID, "-o", "media=" + media}
	if cfg.Copies > 1 {
		args = append(args, "-n", strconv.Itoa(cfg.Copies))
	}
	if cfg.Duplex {
		args = append(args, "-o", "sides=two-sided-long-edge")
	} else {
		args = append(args, "-o", "sides=one-sided")
	}
	if q, ok := qualities[cfg.Quality]; ok {
		args = append(args, "-o", "print-quality="+q)
	}
	args = append(args, "-")

	out, err := d.runner.Run(ctx, job.Data, "lp", args...)
	if err != nil {
		return "", unavailable(err, "lp failed")
	}

	m := requestIDPattern.FindSubmatch(out)
	if m == nil {
		// lp accepted the job; never resubmit just because its output changed.
		d.logger.Warn("lp output has no request id",
			logger.DocumentID(job.DocumentID),
			logger.String("output", strings.TrimSpace(string(out))))
		return "lp-" + job.DocumentID, nil
	}
	jobID := string(m[1])
	d.logger.Info("job submitted",
		logger.DocumentID(job.DocumentID),
		logger.String("printer", name),
		logger.String("job_id", jobID))
	return jobID, nil
}

// resolve picks the destination and checks that it accepts jobs.
func (d *LPDispatcher) resolve(ctx context.Context, cfg config.PrinterConfig) (string, error) {
	name := cfg.Name
	if name == "" && cfg.UseDefault {
		def, err := d.defaultPrinter(ctx)
		if err != nil {
			return "", err
		}
		name = def
	}
	if name == "" {
		return "", models.NewError(models.ErrPrinterUnavailable, "no printer configured and no default printer")
	}

	printers, err := d.Printers(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range printers {
		if p.Name != name {
			continue
		}
		if p.Status == "disabled" {
			return "", models.NewError(models.ErrPrinterUnavailable, "printer %s is disabled", name)
		}
		return name, nil
	}
	return "", models.NewError(models.ErrPrinterUnavailable, "printer %s not found", name)
}

func (d *LPDispatcher) defaultPrinter(ctx context.Context) (string, error) {
	out, err := d.runner.Run(ctx, nil, "lpstat", "-d")
	if err != nil {
		return "", unavailable(err, "lpstat -d failed")
	}
	m := defaultPattern.FindSubmatch(out)
	if m == nil {
		return "", models.NewError(models.ErrPrinterUnavailable, "no default printer")
	}
	return string(m[1]), nil
}

// Printers lists destinations from `lpstat -p`, marking the default one.
func (d *LPDispatcher) Printers(ctx context.Context) ([]Printer, error) {
	out, err := d.runner.Run(ctx, nil, "lpstat", "-p")
	if err != nil {
		return nil, unavailable(err, "lpstat -p failed")
	}
	def, _ := d.defaultPrinter(ctx)

	var printers []Printer
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "printer" {
			continue
		}
		status := "idle"
		switch {
		case strings.Contains(line, "disabled"):
			status = "disabled"
		case strings.Contains(line, "printing"):
			status = "printing"
		}
		printers = append(printers, Printer{Name: fields[1], Status: status, Default: fields[1] == def})
	}
	return printers, nil
}

func unavailable(err error, detail string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return models.WrapError(models.ErrPrinterUnavailable, err, "CUPS client tools are not installed")
	}
	return models.WrapError(models.ErrPrinterUnavailable, err, detail)
}
