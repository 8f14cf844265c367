// Package watch regenerates bundles when their input files change.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Config controls which files a FileWatcher reports.
type Config struct {
	// Roots are the directories watched recursively
	Roots []string
	// Patterns are doublestar globs matched against root-relative paths
	Patterns []string
	// Ignored are doublestar globs for paths that are never reported
	Ignored []string
	// Debounce is the quiet period before changes are flushed
	Debounce time.Duration
}

// DefaultConfig watches template inputs below the current directory.
func DefaultConfig() Config {
	return Config{
		Roots:    []string{"."},
		Patterns: []string{"**/*.json", "**/*.yaml", "**/*.yml"},
		Ignored:  []string{"**/node_modules/**", "**/*.zip"},
		Debounce: 100 * time.Millisecond,
	}
}

// FileWatcher monitors file system changes and triggers callbacks
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	config    Config
	onChange  func([]string) error
	logger    *zap.Logger
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewFileWatcher creates a new file watcher instance
func NewFileWatcher(config Config, onChange func([]string) error, logger *zap.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(config.Roots) == 0 {
		config.Roots = []string{"."}
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(config.Debounce),
		config:    config,
		onChange:  onChange,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}

	fw.debouncer.SetCallback(func(files []string) {
		if err := fw.onChange(files); err != nil {
			fw.logger.Error("handling file changes failed", zap.Strings("files", files), zap.Error(err))
		}
	})

	return fw, nil
}

// Start adds every directory below the roots and begins watching
func (fw *FileWatcher) Start() error {
	for _, root := range fw.config.Roots {
		if err := fw.addTree(root); err != nil {
			return err
		}
	}

	fw.wg.Add(1)
	go fw.watch()

	return nil
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	select {
	case <-fw.stopChan:
		return nil
	default:
		close(fw.stopChan)
	}

	fw.wg.Wait()
	fw.debouncer.Stop()
	return fw.watcher.Close()
}

func (fw *FileWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && fw.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		fw.logger.Debug("watching directory", zap.String("dir", path))
		return nil
	})
}

// watch is the main event loop
func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	if fw.shouldIgnore(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if event.Has(fsnotify.Create) && isDir(event.Name) {
		if err := fw.addTree(event.Name); err != nil {
			fw.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
		}
		return
	}
	if fw.matchesPattern(event.Name) {
		fw.logger.Debug("file changed", zap.String("file", event.Name))
		fw.debouncer.Add(event.Name)
	}
}

// relative returns path relative to the root containing it, in slash form.
func (fw *FileWatcher) relative(path string) string {
	for _, root := range fw.config.Roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// shouldIgnore checks if a file path should be ignored
func (fw *FileWatcher) shouldIgnore(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	rel := fw.relative(path)
	for _, pattern := range fw.config.Ignored {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// matchesPattern checks if a file matches any of the watch patterns
func (fw *FileWatcher) matchesPattern(path string) bool {
	if len(fw.config.Patterns) == 0 {
		return true
	}
	rel := fw.relative(path)
	for _, pattern := range fw.config.Patterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// Debouncer collects file changes and triggers callbacks after a delay
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mutex    sync.Mutex
	callback func([]string)
	stopped  bool
}

// NewDebouncer creates a new debouncer instance
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
	}
}

// Add adds a file to the debouncer
func (d *Debouncer) Add(file string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.files[file] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

// flush triggers the callback with the accumulated files in sorted order
func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.files) == 0 || d.stopped {
		d.mutex.Unlock()
		return
	}
	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	sort.Strings(files)
	d.files = make(map[string]struct{})
	callback := d.callback
	d.mutex.Unlock()

	if callback != nil {
		callback(files)
	}
}

// SetCallback sets the callback function
func (d *Debouncer) SetCallback(callback func([]string)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.callback = callback
}

// Stop cancels any pending flush
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.stopped = true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
