package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"twitchbot/pkg/fileutil"
	"twitchbot/pkg/logger"
)

// FileStore keeps counters in memory and writes them to a JSON file.
type FileStore struct {
	log      *logger.Logger
	filePath string
	data     map[string]int64
	mu       sync.RWMutex

	autoSave      bool
	saveInterval  time.Duration
	saveTicker    *time.Ticker
	stopSave      chan struct{}
	closeOnce     sync.Once
	pendingWrites bool
}

// FileStoreConfig configures the file store.
type FileStoreConfig struct {
	FilePath     string
	AutoSave     bool
	SaveInterval time.Duration // default 5s
}

// NewFileStore opens or creates a file-backed store.
func NewFileStore(log *logger.Logger, cfg *FileStoreConfig) (*FileStore, error) {
	if cfg.SaveInterval == 0 {
		cfg.SaveInterval = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	s := &FileStore{
		log:          log,
		filePath:     cfg.FilePath,
		data:         make(map[string]int64),
		autoSave:     cfg.AutoSave,
		saveInterval: cfg.SaveInterval,
		stopSave:     make(chan struct{}),
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	if s.autoSave {
		s.startAutoSave()
	}

	return s, nil
}

// Incr adds delta to key.
func (s *FileStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	s.data[key] += delta
	value := s.data[key]
	s.pendingWrites = true
	s.mu.Unlock()

	if !s.autoSave {
		return value, s.Save()
	}
	return value, nil
}

// Get returns the value of key.
func (s *FileStore) Get(ctx context.Context, key string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	return value, exists, nil
}

// All returns a copy of every counter.
func (s *FileStore) All(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// Delete removes a counter.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.pendingWrites = true
	s.mu.Unlock()

	if !s.autoSave {
		return s.Save()
	}
	return nil
}

// Load reads counters from disk.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, &s.data); err != nil {
		return fmt.Errorf("unmarshaling state: %w", err)
	}
	if s.data == nil {
		s.data = make(map[string]int64)
	}

	s.log.Info("Loaded state", zap.String("file", s.filePath), zap.Int("keys", len(s.data)))
	return nil
}

// Save writes counters to disk through a temp file and rename.
func (s *FileStore) Save() error {
	s.mu.RLock()
	if !s.pendingWrites {
		s.mu.RUnlock()
		return nil
	}
	snapshot := make(map[string]int64, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	if err := fileutil.WriteJSONAtomic(s.filePath, snapshot, 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}

	s.mu.Lock()
	s.pendingWrites = false
	s.mu.Unlock()

	s.log.Debug("Saved state", zap.String("file", s.filePath), zap.Int("keys", len(snapshot)))
	return nil
}

func (s *FileStore) startAutoSave() {
	s.saveTicker = time.NewTicker(s.saveInterval)

	go func() {
		for {
			select {
			case <-s.saveTicker.C:
				if err := s.Save(); err != nil {
					s.log.Error("Auto-save failed", zap.Error(err))
				}
			case <-s.stopSave:
				return
			}
		}
	}()

	s.log.Debug("Started auto-save", zap.Duration("interval", s.saveInterval))
}

// Close stops auto-save and performs a final save.
func (s *FileStore) Close() error {
	s.closeOnce.Do(func() {
		if s.saveTicker != nil {
			s.saveTicker.Stop()
			close(s.stopSave)
		}
	})
	return s.Save()
}
