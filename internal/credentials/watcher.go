package credentials

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mnemo/pkg/logging"
)

// Watcher timing defaults.
const (
	DefaultWatchDebounce     = 200 * time.Millisecond
	DefaultWatchPollInterval = 2 * time.Second
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the credentials file to watch. Its directory must exist.
	Path string

	// Debounce collapses bursts of events into one OnChange call.
	Debounce time.Duration

	// PollInterval is used when fsnotify cannot watch the directory.
	PollInterval time.Duration

	// OnChange is called after the file was written, replaced or removed.
	OnChange func()
}

// Watcher reports changes another process makes to a credentials file.
// It watches the parent directory, since writes land by rename, and falls
// back to polling the file's modification time when fsnotify is unusable.
type Watcher struct {
	mu sync.Mutex

	config WatcherConfig

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	lastMod    time.Time
	lastExists bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher returns a stopped Watcher for config.Path.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatchDebounce
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultWatchPollInterval
	}
	return &Watcher{config: config}
}

// Start begins watching. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true
	dir := filepath.Dir(w.config.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("CredentialWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.poll(w.stopCh)
		return nil
	}

	if err := watcher.Add(dir); err != nil {
		logging.Warn("CredentialWatcher", "Failed to watch directory %s, falling back to polling: %v", dir, err)
		watcher.Close()
		go w.poll(w.stopCh)
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(w.stopCh, watcher.Events, watcher.Errors)

	logging.Debug("CredentialWatcher", "Watching %s", w.config.Path)
	return nil
}

func (w *Watcher) processEvents(stopCh <-chan struct{}, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("CredentialWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.config.Path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("CredentialWatcher", "Credentials file changed (%s)", event.Op)
	w.triggerDebounced()
}

func (w *Watcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

func (w *Watcher) poll(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.checkForChanges()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("CredentialWatcher", "Credentials change detected via polling")
				w.triggerDebounced()
			}
		}
	}
}

// checkForChanges records the file's current state and reports whether it
// differs from the previous observation.
func (w *Watcher) checkForChanges() bool {
	var (
		mod    time.Time
		exists bool
	)
	if info, err := os.Stat(w.config.Path); err == nil {
		mod, exists = info.ModTime(), true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := exists != w.lastExists || !mod.Equal(w.lastMod)
	w.lastMod, w.lastExists = mod, exists
	return changed
}

// Stop halts the watcher and cancels any pending callback.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("CredentialWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
