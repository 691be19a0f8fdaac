package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Store reads and writes one YAML config file.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load parses the file into cfg and validates it. A missing file yields
// os.ErrNotExist so callers can fall back to Default.
func (s *Store) Load(cfg *AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("Load: output parameter must not be nil")
	}

	bytes, err := os.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("Load: failed to read file %s: %w", s.Path, err)
	}
	if len(bytes) == 0 {
		return fmt.Errorf("Load: config file %s is empty", s.Path)
	}
	if err := yaml.Unmarshal(bytes, cfg); err != nil {
		return fmt.Errorf("Load: failed to parse YAML in %s: %w", s.Path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Load: invalid config in %s: %w", s.Path, err)
	}
	return nil
}

// Save writes cfg atomically: temp file in the same directory, then
// rename over the destination.
func (s *Store) Save(cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("Save: invalid config: %w", err)
	}
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("Save: failed to marshal YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("Save: config dir: %w", err)
	}
	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, bytes, 0600); err != nil {
		return fmt.Errorf("Save: failed to write temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("Save: failed to replace %s with %s: %w", s.Path, tmpPath, err)
	}
	return nil
}

// Watch invokes onChange after every write to the config file. The
// watcher runs until the process exits.
func (s *Store) Watch(onChange func()) error {
	if onChange == nil {
		return fmt.Errorf("onChange callback cannot be nil")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.Path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file %s: %w", s.Path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write != 0 {
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Watcher error on %s: %v", s.Path, err)
			}
		}
	}()

	return nil
}
