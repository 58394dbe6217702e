// Package catalog holds the ticket levels offered by the event wizard,
// loaded from a JSON file and reloaded when the file changes.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"trackhub/internal/levels"
	"trackhub/internal/logger"
)

const reloadDebounce = 100 * time.Millisecond

type Service struct {
	levels     []levels.Level
	byID       map[int]levels.Level
	path       string
	lastLoaded time.Time
	mutex      sync.RWMutex

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
}

// NewService starts with the built-in catalog.
func NewService() *Service {
	s := &Service{}
	s.populate(levels.DefaultCatalog)
	s.lastLoaded = time.Now()
	return s
}

// LoadFromFile replaces the catalog with the available levels in path.
// On error the previous catalog stays in place.
func (s *Service) LoadFromFile(path string) error {
	logger.LogInfo("Loading level catalog from %s", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var data CatalogData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	var list []levels.Level
	seen := make(map[int]bool)
	for _, item := range data.Levels {
		if !item.Available {
			continue
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate level id %d in catalog", item.ID)
		}
		seen[item.ID] = true
		list = append(list, levels.Level{ID: item.ID, Name: item.Name})
	}
	if len(list) == 0 {
		return fmt.Errorf("catalog %s has no available levels", path)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	s.mutex.Lock()
	s.populate(list)
	s.path = path
	s.lastLoaded = time.Now()
	s.mutex.Unlock()

	logger.LogInfo("Successfully loaded level catalog: %d levels", len(list))
	return nil
}

func (s *Service) populate(list []levels.Level) {
	s.levels = append([]levels.Level(nil), list...)
	s.byID = make(map[int]levels.Level, len(list))
	for _, l := range list {
		s.byID[l.ID] = l
	}
}

// Levels returns a copy of the current catalog.
func (s *Service) Levels() []levels.Level {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]levels.Level(nil), s.levels...)
}

func (s *Service) Lookup(id int) (levels.Level, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	l, ok := s.byID[id]
	return l, ok
}

// LoadedAt is when the current catalog was put in place.
func (s *Service) LoadedAt() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastLoaded
}

// Watch reloads the catalog whenever the loaded file is written.
func (s *Service) Watch() error {
	s.mutex.RLock()
	path := s.path
	s.mutex.RUnlock()
	if path == "" {
		return fmt.Errorf("no catalog file loaded")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return fmt.Errorf("catalog is already being watched")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(absPath)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", absPath, err)
	}

	s.watcher = w
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.watch(w, s.done, s.stopped, absPath)
	logger.LogInfo("Watching level catalog %s for changes", absPath)
	return nil
}

// watch owns w until done is closed, then closes stopped.
func (s *Service) watch(w *fsnotify.Watcher, done <-chan struct{}, stopped chan<- struct{}, absPath string) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		close(stopped)
	}()

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Name != absPath || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := s.LoadFromFile(absPath); err != nil {
					logger.LogWarn("Catalog reload failed, keeping previous levels: %v", err)
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.LogWarn("Catalog watcher error: %v", err)

		case <-done:
			return
		}
	}
}

// Close stops watching and waits for the watch goroutine to exit.
func (s *Service) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}

	close(s.done)
	err := s.watcher.Close()
	<-s.stopped
	s.watcher, s.done, s.stopped = nil, nil, nil
	return err
}
