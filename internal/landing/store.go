// Package landing implements the landing zone: the durable directory handoff
// between the crawl and ingestion processes.
package landing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/foodycrawl/foodycrawl/internal/foody"
)

// FileExt is the extension batch files carry; the watcher ignores anything else.
const FileExt = ".json"

// Store writes crawl batches into the landing directory. Files are
// write-once; nothing in the pipeline mutates or deletes them.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("landing dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create landing dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the landing directory path.
func (s *Store) Dir() string {
	return s.dir
}

// WriteBatch lands one combined batch under a time-derived unique name and
// returns the file's base name.
func (s *Store) WriteBatch(ctx context.Context, batch foody.Batch, unixNano int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	name := fmt.Sprintf("foody_combined_data_%d%s", unixNano, FileExt)
	target := filepath.Join(s.dir, name)
	if err := os.WriteFile(target, payload, 0o600); err != nil {
		return "", fmt.Errorf("write batch %s: %w", target, err)
	}
	s.logger.Info("landed batch file",
		zap.String("file", name),
		zap.Int("locations", len(batch.Locations)),
		zap.Int("foods", len(batch.Foods)),
	)
	return name, nil
}
