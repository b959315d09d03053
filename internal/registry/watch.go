package registry

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/ShayCichocki/relay/internal/logging"
	"github.com/ShayCichocki/relay/pkg/models"
)

// Binder builds the backend for a descriptor loaded from a file.
// Returning a nil Executor registers the descriptor without a backend.
type Binder func(desc models.ExecutorDescriptor) (Executor, error)

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchLogger sets the logger for reload failures.
func WithWatchLogger(l logrus.FieldLogger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// OnReload registers fn to be called after every reload attempt with its error.
func OnReload(fn func(error)) WatchOption {
	return func(w *Watcher) { w.onReload = fn }
}

// Watcher keeps a Registry in sync with a descriptor file.
// Executors that disappear from the file are unregistered. An id that was
// already registered by other means when the file claimed it gets its
// earlier descriptor and executor back instead.
type Watcher struct {
	reg  *Registry
	path string
	bind Binder

	mu     sync.Mutex
	loaded map[string]bool
	// shadowed holds what the file replaced, by id.
	shadowed map[string]binding

	logger   logrus.FieldLogger
	onReload func(error)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher loads path into reg and starts watching it for changes.
// The initial load must succeed; later reload failures are logged and the
// registry keeps its previous contents.
func NewWatcher(reg *Registry, path string, bind Binder, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	w := &Watcher{
		reg:    reg,
		path:   abs,
		bind:   bind,
		loaded:   make(map[string]bool),
		shadowed: make(map[string]binding),
		logger:   logging.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.Reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

type binding struct {
	desc models.ExecutorDescriptor
	exec Executor
}

// Reload re-reads the descriptor file and applies it to the registry.
// Every descriptor is bound before any is applied, so a failed reload
// leaves the registry untouched.
func (w *Watcher) Reload() error {
	descs, err := LoadFile(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	bound := make([]binding, 0, len(descs))
	for _, d := range descs {
		var exec Executor
		if w.bind != nil {
			exec, err = w.bind(d)
			if err != nil {
				return fmt.Errorf("bind executor %q: %w", d.ID, err)
			}
		} else {
			exec = w.reg.Executor(d.ID)
		}
		bound = append(bound, binding{desc: d, exec: exec})
	}

	next := make(map[string]bool, len(bound))
	for _, b := range bound {
		id := b.desc.ID
		if !w.loaded[id] {
			if prev, ok := w.reg.Get(id); ok {
				w.shadowed[id] = binding{desc: prev, exec: w.reg.Executor(id)}
			}
		}
		w.reg.Register(b.desc, b.exec)
		next[id] = true
	}
	for id := range w.loaded {
		if next[id] {
			continue
		}
		if prev, ok := w.shadowed[id]; ok {
			w.reg.Register(prev.desc, prev.exec)
			delete(w.shadowed, id)
			continue
		}
		w.reg.Unregister(id)
	}
	w.loaded = next
	return nil
}

// Close stops watching. The registry keeps its current contents.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			err := w.Reload()
			if err != nil {
				w.logger.WithError(err).WithField("path", w.path).Warn("executor reload failed")
			} else {
				w.logger.WithField("path", w.path).Info("executors reloaded")
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("executor watcher error")
		}
	}
}
