package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

const debounceDelay = 100 * time.Millisecond

type document struct {
	Settings []Setting `toml:"setting"`
}

// FileStore persists settings in a TOML file. Edits made to the file by
// other processes are picked up by Watch and reported to subscribers of
// the keys that changed.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string]Setting
	hub    hub
}

// OpenFileStore loads path. A missing file starts an empty store; the file
// is created on the first Set.
func OpenFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	values, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path:   path,
		logger: logger.Named("settings").With(zap.String("path", path)),
		values: values,
	}, nil
}

func readDocument(path string) (map[string]Setting, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]Setting), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var doc document
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	values := make(map[string]Setting, len(doc.Settings))
	for _, s := range doc.Settings {
		if s.Key != "" {
			values[s.Key] = s
		}
	}
	return values, nil
}

func (f *FileStore) Get(key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return s.Value, nil
}

// Set stores value and rewrites the file
func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	old, existed := f.values[key]
	if existed && old.Value == value {
		f.mu.Unlock()
		return nil
	}
	f.values[key] = Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := f.persistLocked()
	if err != nil {
		if existed {
			f.values[key] = old
		} else {
			delete(f.values, key)
		}
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	f.hub.notify(key, value)
	return nil
}

func (f *FileStore) Subscribe(key string, fn func(key, value string)) func() {
	return f.hub.subscribe(key, fn)
}

// List returns every setting sorted by key
func (f *FileStore) List() []Setting {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedSettings(f.values)
}

// persistLocked writes the file through a temporary file and a rename so
// readers never see a partial document.
func (f *FileStore) persistLocked() error {
	raw, err := toml.Marshal(document{Settings: sortedSettings(f.values)})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Watch follows external edits of the file until ctx is done
func (f *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go f.watchLoop(ctx, watcher)
	return nil
}

func (f *FileStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

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

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(f.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, f.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("settings watch error", zap.Error(err))
		}
	}
}

// reload re-reads the file and notifies subscribers of changed keys.
// Keys removed from the file are kept.
func (f *FileStore) reload() {
	fresh, err := readDocument(f.path)
	if err != nil {
		f.logger.Warn("settings reload failed", zap.Error(err))
		return
	}

	var changed []Setting
	f.mu.Lock()
	for key, s := range fresh {
		if old, ok := f.values[key]; !ok || old.Value != s.Value {
			f.values[key] = s
			changed = append(changed, s)
		}
	}
	f.mu.Unlock()

	for _, s := range changed {
		f.logger.Info("setting changed on disk", zap.String("key", s.Key))
		f.hub.notify(s.Key, s.Value)
	}
}
