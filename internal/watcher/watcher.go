// Package watcher turns bursts of filesystem events in one directory into a
// single trailing-edge "changed" signal.
package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last relevant event.
const DefaultDebounce = 500 * time.Millisecond

// State is the watcher lifecycle state.
type State int

const (
	Idle State = iota
	Watching
	PendingReload
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watching:
		return "watching"
	case PendingReload:
		return "pending_reload"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Watcher watches the top level of one directory.
//
// onChange runs on the watcher's own goroutine and must not call Stop.
type Watcher struct {
	dir      string
	match    func(name string) bool
	onChange func()
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	fsw   *fsnotify.Watcher
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New returns an idle watcher for dir. match decides which base names are
// note files; nil accepts everything.
func New(dir string, match func(name string) bool, onChange func(), opts ...Option) *Watcher {
	w := &Watcher{
		dir:      filepath.Clean(dir),
		match:    match,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start begins watching. Starting a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Idle {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watcher: add %s: %w", w.dir, err)
	}
	w.fsw = fsw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.state = Watching
	go w.loop(fsw, w.stop, w.done)
	w.logger.Info("watcher: started", slog.String("dir", w.dir))
	return nil
}

// Stop ends watching and waits for the loop to exit, so no callback runs
// after it returns. Stopping an idle watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == Idle {
		w.mu.Unlock()
		return
	}
	fsw, stop, done := w.fsw, w.stop, w.done
	w.fsw, w.stop, w.done = nil, nil, nil
	w.mu.Unlock()

	close(stop)
	<-done
	if err := fsw.Close(); err != nil {
		w.logger.Warn("watcher: close failed", slog.String("error", err.Error()))
	}
	w.setState(Idle)
	w.logger.Info("watcher: stopped", slog.String("dir", w.dir))
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-stop:
			return

		case <-fire:
			fire = nil
			select {
			case <-stop:
				return
			default:
			}
			w.setState(Watching)
			w.logger.Debug("watcher: changed", slog.String("dir", w.dir))
			if w.onChange != nil {
				w.onChange()
			}

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
			w.setState(PendingReload)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watcher: event overflow, forcing rescan", slog.String("dir", w.dir))
				if timer == nil {
					timer = time.NewTimer(w.debounce)
				} else {
					timer.Reset(w.debounce)
				}
				fire = timer.C
				w.setState(PendingReload)
				continue
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// relevant drops attribute-only events and files that are not notes. An
// event on the directory itself always counts.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	if name == w.dir {
		return true
	}
	if filepath.Dir(name) != w.dir {
		return false
	}
	return w.match == nil || w.match(filepath.Base(name))
}
