package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roelfdiedericks/gocoach/internal/bus"
	. "github.com/roelfdiedericks/gocoach/internal/logging"
)

// TopicReloaded is published with the new *Config after a successful reload.
const TopicReloaded = "config.reloaded"

// reloadDebounce coalesces the write bursts editors produce on save.
const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	bus      *bus.Bus
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for path. Reloads are published on b and
// passed to onReload (either may be nil).
func NewWatcher(path string, b *bus.Bus, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		bus:      b,
		onReload: onReload,
		watcher:  fw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Editors replace files via rename, so watch the directory not the file
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	L_debug("config: watching for changes", "file", filepath.Base(w.path), "dir", dir)
	go w.watchLoop(ctx)
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	w.watcher.Close()
	w.running = false
}

func (w *Watcher) watchLoop(ctx context.Context) {
	target := filepath.Base(w.path)
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			L_warn("config: watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		// Keep the previous config; a half-written file is common mid-save
		L_warn("config: reload failed, keeping previous", "error", err)
		return
	}

	L_info("config: reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
	if w.bus != nil {
		w.bus.Publish(TopicReloaded, cfg, "config")
	}
}
