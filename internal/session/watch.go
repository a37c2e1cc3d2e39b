package session

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"autofix/internal/graph"
)

// watcher notes writes to the files of loaded projects. Directories are
// watched rather than files so editors that save by rename are seen too.
type watcher struct {
	fs  *fsnotify.Watcher
	log *zap.Logger

	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]string // native path -> owning project file
	dirty map[string]bool
	done  chan struct{}
}

func newWatcher(log *zap.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fs:    fw,
		log:   log,
		dirs:  make(map[string]bool),
		files: make(map[string]string),
		dirty: make(map[string]bool),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *watcher) loop() {
	defer close(w.done)
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&relevant == 0 {
				continue
			}
			name := filepath.Clean(ev.Name)
			w.mu.Lock()
			if _, tracked := w.files[name]; tracked {
				w.dirty[name] = true
			}
			w.mu.Unlock()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

// track starts watching every project loaded in snap and its documents.
func (w *watcher) track(snap *graph.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range snap.Projects() {
		projFile := filepath.Clean(filepath.FromSlash(p.Path))
		w.add(projFile, projFile)
		for _, d := range snap.Documents(p.ID) {
			w.add(filepath.Clean(d.NativePath()), projFile)
		}
		for _, d := range snap.AdditionalDocuments(p.ID) {
			w.add(filepath.Clean(d.NativePath()), projFile)
		}
	}
}

func (w *watcher) add(path, owner string) {
	w.files[path] = owner
	dir := filepath.Dir(path)
	if w.dirs[dir] {
		return
	}
	if err := w.fs.Add(dir); err != nil {
		w.log.Debug("cannot watch directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	w.dirs[dir] = true
}

// takeChanged returns the project files whose project changed on disk
// since the last call: the project file itself was touched, or a
// document's content differs from what snap holds.
func (w *watcher) takeChanged(snap *graph.Snapshot) []string {
	w.mu.Lock()
	dirty := w.dirty
	w.dirty = make(map[string]bool)
	owners := make(map[string]string, len(dirty))
	for path := range dirty {
		owners[path] = w.files[path]
	}
	w.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for path, owner := range owners {
		if seen[owner] || !changedOnDisk(snap, path, owner) {
			continue
		}
		seen[owner] = true
		out = append(out, owner)
	}
	slices.Sort(out)
	return out
}

func changedOnDisk(snap *graph.Snapshot, path, owner string) bool {
	if path == owner {
		return true
	}
	p, ok := snap.FindProject(owner)
	if !ok {
		return false
	}
	doc, ok := snap.FindDocument(p.ID, path)
	if !ok {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	return !bytes.Equal(data, doc.Text.Bytes())
}

// reset forgets every tracked file.
func (w *watcher) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.dirs {
		_ = w.fs.Remove(dir)
	}
	w.dirs = make(map[string]bool)
	w.files = make(map[string]string)
	w.dirty = make(map[string]bool)
}

func (w *watcher) close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
