// Package tempfile scopes on-disk artifacts (generated images, downloaded audio)
// so that each one is deleted exactly once on every exit path.
package tempfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ImagePrefix starts the name of every generated image file.
const ImagePrefix = "image-"

// owned reports whether name is one the bot creates: a generated image, or a
// downloaded track (and its partials) named <uuid>.<ext>.
func owned(name string) bool {
	if strings.HasPrefix(name, ImagePrefix) {
		return true
	}
	base, _, ok := strings.Cut(name, ".")
	if !ok || len(base) != 36 {
		return false
	}
	_, err := uuid.Parse(base)
	return err == nil
}

// Registry owns a temp directory and tracks the Resources currently alive in it.
// It is safe for concurrent use.
type Registry struct {
	dir string
	log *slog.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

// NewRegistry creates dir if needed and returns a Registry rooted there.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "lunabot")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve temp dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %q: %w", abs, err)
	}
	return &Registry{
		dir:  abs,
		log:  logger.With("component", "tempfile"),
		live: make(map[string]struct{}),
	}, nil
}

// Dir returns the absolute directory resources are created in.
func (r *Registry) Dir() string {
	return r.dir
}

// Write stores data in a new file named after pattern (see os.CreateTemp) and returns
// its Resource. On failure nothing is left on disk.
func (r *Registry) Write(pattern string, data []byte) (*Resource, error) {
	f, err := os.CreateTemp(r.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	res := r.track(path)

	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		if rerr := res.Release(); rerr != nil {
			r.log.Error("Failed to remove partially written temp file", "path", path, "error", rerr)
		}
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	return res, nil
}

// Adopt takes ownership of an existing file, e.g. one produced by an external tool.
func (r *Registry) Adopt(path string) *Resource {
	return r.track(path)
}

// Live returns the number of unreleased Resources.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) isLive(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[path]
	return ok
}

func (r *Registry) track(path string) *Resource {
	r.mu.Lock()
	r.live[path] = struct{}{}
	r.mu.Unlock()
	r.log.Debug("Temp resource acquired", "path", path)
	return &Resource{path: path, reg: r}
}

func (r *Registry) forget(path string) {
	r.mu.Lock()
	delete(r.live, path)
	r.mu.Unlock()
}

// Sweep deletes the bot's own files in the directory older than maxAge that no
// live Resource holds, and returns how many were removed. Foreign files are kept.
func (r *Registry) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() || !owned(e.Name()) {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		if r.isLive(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Resource is one scoped file. Release deletes it once; later calls are no-ops.
type Resource struct {
	path string
	reg  *Registry

	once sync.Once
	err  error
}

// Path returns the file location.
func (res *Resource) Path() string {
	return res.path
}

// Release deletes the file. A file that is already gone is not an error.
func (res *Resource) Release() error {
	res.once.Do(func() {
		if err := os.Remove(res.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.err = fmt.Errorf("failed to remove temp file %q: %w", res.path, err)
		}
		res.reg.forget(res.path)
		res.reg.log.Debug("Temp resource released", "path", res.path)
	})
	return res.err
}
