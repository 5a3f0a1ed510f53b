package ingestcfg

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/bitriver/edge/internal/logger"
)

// reloadDebounce coalesces the burst of fsnotify events a single editor save
// typically produces (write + chmod + rename-based atomic replace) into one
// reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher holds the live Settings behind an atomic pointer and, when a
// config file is in use, reloads it on change so a running ingest server's
// policer limits can be retuned without dropping active rooms.
type Watcher struct {
	v        *viper.Viper
	path     string
	snapshot atomic.Pointer[Settings]
	log      *slog.Logger

	mu        sync.Mutex
	listeners []chan<- Settings
}

// NewWatcher builds a Watcher holding initial. path is the config file that
// was actually loaded (viper.ConfigFileUsed()); an empty path disables
// Start, matching an environment-only deployment.
func NewWatcher(v *viper.Viper, path string, initial Settings) *Watcher {
	w := &Watcher{v: v, path: path, log: logger.Logger().With("component", "ingestcfg.watcher")}
	w.snapshot.Store(&initial)
	return w
}

// Current returns the most recently loaded Settings.
func (w *Watcher) Current() Settings { return *w.snapshot.Load() }

// Subscribe returns a new channel that receives every successfully reloaded
// Settings.
// Sends are best-effort: a full channel drops the update rather than
// blocking the watch loop.
func (w *Watcher) Subscribe() <-chan Settings {
	ch := make(chan Settings, 1)
	w.mu.Lock()
	w.listeners = append(w.listeners, ch)
	w.mu.Unlock()
	return ch
}

// Start watches the config file's directory (fsnotify on most platforms
// cannot watch a single file reliably through editor atomic-replace saves)
// until ctx is cancelled. A no-op if no config file was loaded.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		w.log.Info("config file watcher disabled (no config file in use)")
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}

	go w.watchLoop(ctx, fw)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(reloadDebounce, w.reload)
			} else {
				debounce.Reset(reloadDebounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	if err := w.v.ReadInConfig(); err != nil {
		w.log.Warn("config reload failed, keeping previous settings", "error", err)
		return
	}
	next, err := Load(w.v)
	if err != nil {
		w.log.Warn("config reload failed validation, keeping previous settings", "error", err)
		return
	}
	w.snapshot.Store(&next)
	w.log.Info("ingest config reloaded",
		"bitrate_ceiling_bps", next.Policer.BitrateCeilingBps,
		"max_bytes_since_keyframe", next.Policer.MaxBytesSinceKeyframe,
		"max_time_between_keyframes", next.Policer.MaxTimeBetweenKeyframes)

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.listeners {
		select {
		case ch <- next:
		default:
		}
	}
}
