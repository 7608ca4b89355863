package landing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingIngestor struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingIngestor) IngestFile(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recordingIngestor) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWatcherInvokesIngestorOnNewJSONFile(t *testing.T) {
	dir := t.TempDir()
	ingestor := &recordingIngestor{}
	watcher := NewWatcher(dir, time.Millisecond, ingestor, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watcher a beat to register before writing.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(dir, "foody_combined_data_1.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"locations":[],"foods":[]}`), 0o600))

	waitFor(t, func() bool {
		for _, p := range ingestor.seen() {
			if p == target {
				return true
			}
		}
		return false
	})

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherIgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	ingestor := &recordingIngestor{}
	watcher := NewWatcher(dir, time.Millisecond, ingestor, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a batch"), 0o600))
	jsonFile := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`{}`), 0o600))

	waitFor(t, func() bool { return len(ingestor.seen()) > 0 })
	for _, p := range ingestor.seen() {
		require.Equal(t, jsonFile, p)
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherRunFailsOnMissingDirectory(t *testing.T) {
	watcher := NewWatcher(filepath.Join(t.TempDir(), "absent"), 0, &recordingIngestor{}, zap.NewNop())
	require.Error(t, watcher.Run(context.Background()))
}
