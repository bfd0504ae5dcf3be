// FileChangeMonitor invalidates cache entries that were computed from files on disk. It watches the parent
// directories of the given paths (editors and atomic renames replace files, which drops a watch on the file itself)
// and signals a change on the first event that touches one of the paths.
//
// Go finalizers are not a replacement for Dispose: the event goroutine keeps the monitor reachable, so an owner that
// never disposes the monitor (and never sees a change) leaks the fsnotify watcher.

package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/jmgilman/go/errors"
)

// FileChangeMonitor is a ChangeMonitor over one or more files.
type FileChangeMonitor struct {
	*Base
	paths        []string  // Absolute, cleaned paths being watched.
	uniqueID     string    // Hash of the paths and their state at construction time.
	lastModified time.Time // The latest modification time among the files; zero if none exists.
	watcher      *fsnotify.Watcher
	done         chan struct{} // Closed by the release hook to stop the event loop.
}

var _ ChangeMonitor = (*FileChangeMonitor)(nil)

// NewFileChangeMonitor starts watching the given file paths. Files don't need to exist; creating them counts as a
// change.
func NewFileChangeMonitor(paths ...string) (*FileChangeMonitor, error) {
	if len(paths) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, errors.CodeInvalidInput, "expected at least one file path")
	}

	m := &FileChangeMonitor{paths: make([]string, 0, len(paths)), done: make(chan struct{})}
	m.Base = NewBase("file", m.release)

	idHash := xxhash.New()
	dirs := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			return nil, errors.Wrap(ErrInvalidArgument, errors.CodeInvalidInput, "expected non-empty file paths")
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.WithContext(
				errors.Wrap(err, errors.CodeInvalidInput, "failed to resolve file path"), "path", path)
		}
		m.paths = append(m.paths, absPath)
		if dir := filepath.Dir(absPath); !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}

		// The unique ID changes whenever a file is replaced, so a new monitor over a newer file never collides.
		var modTime time.Time
		var size int64
		if info, err := os.Stat(absPath); err == nil {
			modTime, size = info.ModTime().UTC(), info.Size()
		}
		if modTime.After(m.lastModified) {
			m.lastModified = modTime
		}
		_, _ = idHash.WriteString(absPath)
		_, _ = idHash.WriteString(strconv.FormatInt(modTime.UnixNano(), 16))
		_, _ = idHash.WriteString(strconv.FormatInt(size, 16))
	}
	m.uniqueID = fmt.Sprintf("%016x", idHash.Sum64())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create file watcher")
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, errors.WithContext(
				errors.Wrap(err, errors.CodeNotFound, "failed to watch directory"), "dir", dir)
		}
	}
	m.watcher = watcher

	go m.run()

	m.CompleteInitialization()
	return m, nil
}

// UniqueID identifies the watched files and their state when the monitor was created.
func (m *FileChangeMonitor) UniqueID() string {
	return m.uniqueID
}

// FilePaths returns the absolute paths being watched.
func (m *FileChangeMonitor) FilePaths() []string {
	return slices.Clone(m.paths)
}

// LastModified returns the latest modification time among the watched files at construction time.
func (m *FileChangeMonitor) LastModified() time.Time {
	return m.lastModified
}

// run forwards fsnotify events for the watched paths until the monitor is released.
func (m *FileChangeMonitor) run() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if slices.Contains(m.paths, filepath.Clean(event.Name)) {
				slog.Debug("Watched file changed.", "path", event.Name, "op", event.Op.String())
				m.SignalChanged(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			// Lost events mean we can no longer vouch for the files; treat that as a change.
			slog.Warn("File watcher failed, invalidating monitor.", "error", err, "id", m.uniqueID)
			m.SignalChanged(err)
		}
	}
}

// release stops the event loop and closes the fsnotify watcher. It may run on the event loop goroutine itself.
func (m *FileChangeMonitor) release() {
	close(m.done)
	if err := m.watcher.Close(); err != nil {
		slog.Warn("Failed to close file watcher.", "error", err, "id", m.uniqueID)
	}
}
