package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Manager owns the live configuration and reloads it when the file changes.
type Manager struct {
	path string

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewManager loads the config at path, or the user config when path is empty.
func NewManager(path string) (*Manager, error) {
	log.Debug().Msg("Config manager: initializing configuration system")

	var (
		cfg *Config
		err error
	)
	if path == "" {
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
		cfg, err = Load()
	} else {
		cfg, err = LoadFrom(path)
	}
	if err != nil {
		log.Error().Err(err).Msg("Config manager: failed to load initial configuration")
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Msg("Config manager: validation warning")
	}

	return &Manager{path: path, config: cfg}, nil
}

func (m *Manager) Path() string { return m.path }

// GetConfig returns a copy; callers may not mutate the live config.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	configCopy := *m.config
	return &configCopy
}

// OnChange registers fn to run after every successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, fn)
	m.mu.Unlock()
}

func (m *Manager) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// watch the directory: editors replace the file rather than write in place
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.watchLoop(ctx)

	log.Info().Str("path", m.path).Msg("Config manager: watching for changes")
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	configFileName := filepath.Base(m.path)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				log.Info().Str("file", event.Name).Msg("Config manager: file change detected, reloading")
				m.Reload()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")

		case <-ctx.Done():
			return
		}
	}
}

// Reload re-reads the file. An unreadable or invalid file keeps the old config.
func (m *Manager) Reload() bool {
	newConfig, err := LoadFrom(m.path)
	if err != nil {
		log.Error().Err(err).Msg("Config manager: failed to reload config")
		return false
	}
	if err := newConfig.Validate(); err != nil {
		log.Error().Err(err).Msg("Config manager: invalid config after reload")
		return false
	}

	m.mu.Lock()
	m.config = newConfig
	callbacks := append([]func(*Config){}, m.callbacks...)
	m.mu.Unlock()

	for _, fn := range callbacks {
		configCopy := *newConfig
		fn(&configCopy)
	}

	log.Info().Msg("Config manager: configuration successfully reloaded")
	return true
}
