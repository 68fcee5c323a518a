// Package download delivers finished export documents: to a directory on
// disk and to an in-memory registry served over HTTP until revoked.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/tabmark/internal/types"
)

const DefaultGrace = 10 * time.Second

// Saved locates a delivered document. Either field may be empty depending on
// the saver.
type Saved struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"download_url,omitempty"`
}

type Saver interface {
	Save(ctx context.Context, name string, data []byte) (Saved, error)
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return types.NewError(types.CodeValidation, fmt.Sprintf("invalid file name %q", name), nil)
	}
	return nil
}

// DirSaver writes documents into a download directory.
type DirSaver struct {
	dir string
}

func NewDirSaver(dir string) *DirSaver {
	return &DirSaver{dir: dir}
}

func (s *DirSaver) Save(ctx context.Context, name string, data []byte) (Saved, error) {
	if err := validateName(name); err != nil {
		return Saved{}, err
	}
	if err := ctx.Err(); err != nil {
		return Saved{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Saved{}, fmt.Errorf("create download dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return Saved{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Saved{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Saved{}, fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		slog.Warn("Failed to chmod export", "path", tmpName, "error", err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return Saved{}, fmt.Errorf("rename %s: %w", name, err)
	}
	slog.Info("Export saved", "path", path, "bytes", len(data))
	return Saved{Path: path}, nil
}

// Blobs holds documents in memory under /downloads/<name> and revokes each
// one a grace period after it was registered.
type Blobs struct {
	prefix string
	grace  time.Duration

	mu     sync.RWMutex
	items  map[string][]byte
	timers map[string]*time.Timer
}

func NewBlobs(prefix string, grace time.Duration) *Blobs {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Blobs{
		prefix: strings.TrimRight(prefix, "/"),
		grace:  grace,
		items:  make(map[string][]byte),
		timers: make(map[string]*time.Timer),
	}
}

func (b *Blobs) Save(ctx context.Context, name string, data []byte) (Saved, error) {
	if err := validateName(name); err != nil {
		return Saved{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[name] = data
	// A re-save restarts the grace period.
	if old := b.timers[name]; old != nil {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(b.grace, func() { b.expire(name, &timer) })
	b.timers[name] = timer
	return Saved{URL: b.prefix + "/" + name}, nil
}

// Open returns the blob registered under name if it has not been revoked.
func (b *Blobs) Open(name string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.items[name]
	return data, ok
}

// expire revokes name only if timer is still the one scheduled for it.
func (b *Blobs) expire(name string, timer **time.Timer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timers[name] != *timer {
		return
	}
	b.revokeLocked(name)
}

func (b *Blobs) Revoke(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revokeLocked(name)
}

func (b *Blobs) revokeLocked(name string) {
	if t := b.timers[name]; t != nil {
		t.Stop()
		delete(b.timers, name)
	}
	if _, ok := b.items[name]; ok {
		delete(b.items, name)
		slog.Debug("Download revoked", "name", name)
	}
}

func (b *Blobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Tee saves through every saver in order and merges the locations. The first
// failure stops the chain.
type Tee []Saver

func (t Tee) Save(ctx context.Context, name string, data []byte) (Saved, error) {
	var out Saved
	for _, s := range t {
		got, err := s.Save(ctx, name, data)
		if err != nil {
			return Saved{}, err
		}
		if got.Path != "" {
			out.Path = got.Path
		}
		if got.URL != "" {
			out.URL = got.URL
		}
	}
	return out, nil
}
