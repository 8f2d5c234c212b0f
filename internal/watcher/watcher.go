// Package watcher reports batches of source changes. It wraps fsnotify with
// recursive directory registration, filters and a debouncer that folds a burst
// of editor writes into one batch.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/sitepipe/internal/glob"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// FileWatcher watches directory trees for file changes.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	logger    logging.Logger
	filters   []FileFilter
	handlers  []ChangeHandler
	mutex     sync.RWMutex
	stopOnce  sync.Once

	// trees holds every directory registered recursively. A missing root
	// waits in pending while its nearest existing ancestor, kept in
	// standins, is watched on its own.
	trees    map[string]struct{}
	pending  map[string]struct{}
	standins map[string]struct{}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Gone reports whether the path no longer exists after the event.
func (e ChangeEvent) Gone() bool {
	return e.Type == EventTypeDeleted || e.Type == EventTypeRenamed
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles one debounced batch of changes.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &FileWatcher{
		watcher:   w,
		debouncer: NewDebouncer(debounceDelay),
		logger:    logger.WithComponent("watcher"),
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		trees:     make(map[string]struct{}),
		pending:   make(map[string]struct{}),
		standins:  make(map[string]struct{}),
	}, nil
}

// AddFilter adds a file filter. Every filter must accept a path for its
// changes to be reported.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath adds a single path to watch
func (fw *FileWatcher) AddPath(path string) error {
	cleanPath, err := validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return fw.watcher.Add(cleanPath)
}

// AddRecursive adds a directory and all subdirectories to watch. Hidden
// directories and directories rejected by a filter are skipped.
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	return fw.addTree(cleanRoot, nil)
}

// addTree registers every directory under root. When found is non-nil the
// regular files met on the way are appended to it.
func (fw *FileWatcher) addTree(root string, found *[]string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			if found != nil && fw.accept(path) {
				*found = append(*found, path)
			}
			return nil
		}
		if path != root && (strings.HasPrefix(info.Name(), ".") || !fw.accept(path)) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		fw.mutex.Lock()
		fw.trees[path] = struct{}{}
		delete(fw.standins, path)
		fw.mutex.Unlock()
		return nil
	})
}

// AddNearest watches root recursively. A root that does not exist yet is
// waited for: its nearest existing ancestor is watched on its own, and root
// is registered with everything in it once it is created.
func (fw *FileWatcher) AddNearest(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	_, err = fw.addNearest(cleanRoot)
	return err
}

// addNearest registers root, or a stand-in for it, and returns the files
// found when root itself could be registered.
func (fw *FileWatcher) addNearest(root string) ([]string, error) {
	if info, err := os.Stat(root); err == nil && info.IsDir() {
		fw.mutex.Lock()
		delete(fw.pending, root)
		fw.mutex.Unlock()

		var found []string
		err := fw.addTree(root, &found)
		return found, err
	}

	dir := root
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			break
		}
	}

	fw.mutex.Lock()
	fw.pending[root] = struct{}{}
	_, covered := fw.trees[dir]
	if !covered {
		fw.standins[dir] = struct{}{}
	}
	fw.mutex.Unlock()

	if covered {
		return nil, nil
	}
	if err := fw.watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	return nil, nil
}

// adoptCreated registers the pending roots at or below a newly created
// directory and reports the files already in them. It returns false when
// dir leads to no pending root.
func (fw *FileWatcher) adoptCreated(ctx context.Context, dir string) bool {
	prefix := dir + string(filepath.Separator)
	fw.mutex.RLock()
	var roots []string
	for root := range fw.pending {
		if root == dir || strings.HasPrefix(root, prefix) {
			roots = append(roots, root)
		}
	}
	fw.mutex.RUnlock()
	if len(roots) == 0 {
		return false
	}

	sort.Strings(roots)
	for _, root := range roots {
		found, err := fw.addNearest(root)
		if err != nil {
			fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", root)
		}
		for _, p := range found {
			fw.debouncer.Add(ChangeEvent{Type: EventTypeCreated, Path: p})
		}
	}
	return true
}

// standsIn reports whether dir is watched only while waiting for a missing
// root below it.
func (fw *FileWatcher) standsIn(dir string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	_, ok := fw.standins[dir]
	return ok
}

func validatePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains a NUL byte")
	}
	return filepath.Clean(path), nil
}

// WatchList returns the directories currently registered.
func (fw *FileWatcher) WatchList() []string {
	list := fw.watcher.WatchList()
	sort.Strings(list)
	return list
}

// Start starts the file watcher. Handlers run on a single goroutine, one
// batch at a time, until ctx is canceled.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.start(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.debouncer.Stop()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	// Attribute-only changes fire constantly on some editors and never
	// change contents.
	if event.Op == fsnotify.Chmod {
		return
	}
	if !fw.accept(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	var modTime time.Time
	var size int64
	if err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	// A new directory must be registered before its contents can be
	// reported, and files copied in along with it never produce events of
	// their own.
	if eventType == EventTypeCreated && err == nil && info.IsDir() {
		name := filepath.Clean(event.Name)
		if fw.adoptCreated(ctx, name) || fw.standsIn(filepath.Dir(name)) {
			return
		}
		var found []string
		if addErr := fw.addTree(event.Name, &found); addErr != nil {
			fw.logger.Warn(ctx, addErr, "Failed to watch new directory", "path", event.Name)
		}
		for _, p := range found {
			fw.debouncer.Add(ChangeEvent{Type: EventTypeCreated, Path: p})
		}
		return
	}
	if err == nil && info.IsDir() {
		return
	}

	fw.debouncer.Add(ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	})
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.Output():
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(ctx, events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler error", "events", len(events))
				}
			}
		}
	}
}

// Common file filters

// NoHiddenFilter rejects dotfiles and anything inside a dot directory.
func NoHiddenFilter(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if len(seg) > 1 && seg[0] == '.' && seg != ".." {
			return false
		}
	}
	return true
}

// NoEditorTempFilter rejects swap, backup and probe files written by editors.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, ".#"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == "4913":
		return false
	}
	return true
}

// IgnoreFilter rejects paths matching any of the globs.
func IgnoreFilter(patterns []string) FileFilter {
	return func(path string) bool {
		for _, p := range patterns {
			if glob.MatchPath(p, path) {
				return false
			}
		}
		return true
	}
}

// ExcludeDirFilter rejects everything under dir, typically the output tree
// when it sits inside a watched directory.
func ExcludeDirFilter(dir string) FileFilter {
	dir = filepath.Clean(dir)
	return func(path string) bool {
		path = filepath.Clean(path)
		return path != dir && !strings.HasPrefix(path, dir+string(filepath.Separator))
	}
}
