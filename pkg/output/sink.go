// Package output persists export batches as JSON files.
package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrExists is returned when a batch name is already taken. Files are never overwritten.
var ErrExists = errors.New("output file already exists")

// Sink stores a named blob.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) error
}

// FileSink writes blobs as files into a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates the directory if needed and returns a sink writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the target directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Write stores data under name. The file appears atomically and an existing
// file with the same name makes Write fail with ErrExists.
func (s *FileSink) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid output name %q", name)
	}

	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".tmp_conversations_*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Link fails on an existing target, unlike Rename.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return nil
}

// Namer produces batch file names that are unique within and across runs:
// conversations_<unix millis>_<run id>_<page index>.json
type Namer struct {
	runID string
	now   func() time.Time
}

// NewNamer creates a Namer with a fresh random run id.
func NewNamer() *Namer {
	return &Namer{
		runID: uuid.NewString()[:8],
		now:   time.Now,
	}
}

// RunID returns the short run identifier embedded in file names.
func (n *Namer) RunID() string {
	return n.runID
}

// Name returns the file name for the page with the given 1-based index.
func (n *Namer) Name(page int) string {
	return fmt.Sprintf("conversations_%d_%s_%04d.json", n.now().UnixMilli(), n.runID, page)
}
