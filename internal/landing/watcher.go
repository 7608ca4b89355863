package landing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Ingestor consumes one landed batch file.
type Ingestor interface {
	IngestFile(ctx context.Context, path string) error
}

// Watcher observes the landing directory and hands new batch files to the
// ingestor. A create followed by a write fires twice for the same file;
// ingestion is upsert-based so the duplicate call is harmless.
type Watcher struct {
	dir      string
	settle   time.Duration
	ingestor Ingestor
	logger   *zap.Logger
}

// NewWatcher builds a Watcher over dir. settle is how long to wait after an
// event before reading, so a file still being flushed is not read half-written.
func NewWatcher(dir string, settle time.Duration, ingestor Ingestor, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		settle:   settle,
		ingestor: ingestor,
		logger:   logger,
	}
}

// Run blocks on the watch event channel until the context finishes.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close() //nolint:errcheck // shutdown path

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching landing zone", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.handle(ctx, event.Name)
		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fs watcher error", zap.Error(watchErr))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	if filepath.Ext(event.Name) != FileExt {
		return false
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		// Gone already (or still appearing); a follow-up event will cover it.
		return false
	}
	return !info.IsDir()
}

func (w *Watcher) handle(ctx context.Context, path string) {
	if w.settle > 0 {
		timer := time.NewTimer(w.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
	w.logger.Info("landing file event", zap.String("file", filepath.Base(path)))
	if err := w.ingestor.IngestFile(ctx, path); err != nil {
		w.logger.Error("ingestion failed", zap.String("file", filepath.Base(path)), zap.Error(err))
	}
}
