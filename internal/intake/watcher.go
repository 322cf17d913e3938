package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/internal/utils/validator"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

// SubmittedDir is where the watcher moves files once they are submitted.
const SubmittedDir = "submitted"

type fileState struct {
	size    int64
	modTime time.Time
}

func (s fileState) equal(o fileState) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// Watcher polls a directory and submits files whose size and modification
// time did not change between two polls.
type Watcher struct {
	dir       string
	interval  time.Duration
	submitter Submitter
	logger    logger.Logger

	pending map[string]fileState
	now     func() time.Time
}

func NewWatcher(dir string, interval time.Duration, submitter Submitter, log logger.Logger) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		dir:       dir,
		interval:  interval,
		submitter: submitter,
		logger:    log,
		pending:   make(map[string]fileState),
		now:       time.Now,
	}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, SubmittedDir), 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	w.logger.Info("watching directory", logger.String("dir", w.dir), logger.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.Scan(ctx); err != nil {
			w.logger.Error("directory scan failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scan does one poll. A file is submitted on the poll after it stops changing.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read watch dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if !entry.Type().IsRegular() || !validator.IsSupportedFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		seen[path] = true

		info, err := entry.Info()
		if err != nil {
			// vanished between ReadDir and Info
			continue
		}
		state := fileState{size: info.Size(), modTime: info.ModTime()}
		prev, known := w.pending[path]
		w.pending[path] = state
		if !known || !prev.equal(state) {
			continue
		}

		if err := w.submit(ctx, path, entry.Name()); err != nil {
			w.logger.Error("failed to submit file", logger.String("path", path), logger.Error(err))
			continue
		}
		delete(w.pending, path)
	}

	for path := range w.pending {
		if !seen[path] {
			delete(w.pending, path)
		}
	}
	return nil
}

func (w *Watcher) submit(ctx context.Context, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	doc, err := w.submitter.Submit(ctx, models.Submission{
		Source:   models.SourceLocalDirectory,
		Origin:   models.OriginRef{Path: path},
		FileName: name,
		Data:     data,
	})
	if err != nil {
		return err
	}

	dest := filepath.Join(w.dir, SubmittedDir, name)
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(w.dir, SubmittedDir, fmt.Sprintf("%s_%s", w.now().Format("20060102T150405"), name))
	}
	if err := os.Rename(path, dest); err != nil {
		// The document is already recorded; leaving the file would submit it twice.
		if rmErr := os.Remove(path); rmErr != nil {
			return fmt.Errorf("file submitted as %s but could not be moved: %w", doc.ID, err)
		}
	}
	w.logger.Info("file submitted",
		logger.DocumentID(doc.ID),
		logger.String("file", name),
		logger.String("state", string(doc.State)))
	return nil
}
