package layers

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

const debounce = 100 * time.Millisecond

// Watcher reloads a layer file when it changes on disk. Reloaded files are
// queued and only applied from the caller's goroutine by Poll, so the matrix
// is never written while a physics tick reads it.
type Watcher struct {
	path    string
	log     *zap.Logger
	watcher *fsnotify.Watcher
	updates chan *File
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Watch starts watching path's directory. Editors often replace files
// instead of writing them, so the file itself is not watched.
func Watch(path string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}

	watcher := &Watcher{
		path:    abs,
		log:     log.Named("layers"),
		watcher: w,
		updates: make(chan *File, 1),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

// Poll applies the newest reloaded file to m, if any, and reports whether it
// did.
func (w *Watcher) Poll(m *physics.LayerMatrix) bool {
	select {
	case f := <-w.updates:
		if err := f.Apply(m); err != nil {
			w.log.Warn("layer matrix apply failed", zap.Error(err))
			return false
		}
		w.log.Info("layer matrix reloaded", zap.String("path", w.path), zap.Uint64("revision", m.Revision()))
		return true
	default:
		return false
	}
}

func (w *Watcher) run() {
	defer close(w.done)
	// reload once writes settle
	var settle <-chan time.Time
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if abs, err := filepath.Abs(event.Name); err != nil || abs != w.path {
				continue
			}
			settle = time.After(debounce)
		case <-settle:
			settle = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("layer watch error", zap.Error(err))
		case <-w.closeCh:
			return
		}
	}
}

// reload parses the file and replaces any queued update that was not polled.
func (w *Watcher) reload() {
	f, err := Load(w.path)
	if err != nil {
		w.log.Warn("layer file reload failed", zap.Error(err))
		return
	}
	select {
	case <-w.updates:
	default:
	}
	w.updates <- f
}
