package config

import (
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the active snapshot and reloads it when the file changes.
// Readers call Snapshot and never block; a failed reload keeps the previous
// snapshot.
type Manager struct {
	path     string
	snapshot atomic.Pointer[Snapshot]
	onReload []func(old, new *Snapshot)
	watcher  *fsnotify.Watcher
}

// NewManager loads the initial snapshot from path (DefaultPath when empty).
func NewManager(path string) (*Manager, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	m := &Manager{path: path}
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	snap, err := Compile(f)
	if err != nil {
		return nil, err
	}
	m.snapshot.Store(snap)
	return m, nil
}

// Path returns the config file location.
func (m *Manager) Path() string { return m.path }

// Snapshot returns the active immutable snapshot.
func (m *Manager) Snapshot() *Snapshot { return m.snapshot.Load() }

// OnReload registers a callback invoked after each successful swap. Must be
// called before Watch.
func (m *Manager) OnReload(fn func(old, new *Snapshot)) {
	m.onReload = append(m.onReload, fn)
}

// Reload re-reads the file and swaps the snapshot. On error the active
// snapshot is untouched.
func (m *Manager) Reload() error {
	f, err := Load(m.path)
	if err != nil {
		return err
	}
	snap, err := Compile(f)
	if err != nil {
		return err
	}
	old := m.snapshot.Swap(snap)
	for _, fn := range m.onReload {
		fn(old, snap)
	}
	return nil
}

// Watch reloads on file change until stop is closed. Editors replace the
// file rather than writing in place, so the directory is watched and events
// are debounced.
func (m *Manager) Watch(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		w.Close()
		return err
	}
	m.watcher = w

	go func() {
		defer w.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(200 * time.Millisecond)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("config watcher error: %v", err)
			case <-pending:
				pending = nil
				if err := m.Reload(); err != nil {
					log.Printf("config reload failed, keeping previous: %v", err)
				} else {
					log.Printf("config reloaded from %s", m.path)
				}
			}
		}
	}()
	return nil
}
