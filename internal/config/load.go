package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

var ErrConfigNotFound = errors.New("config not found")

const header = `# hyprcoach configuration
# Changes are applied while the daemon runs; no restart needed.
# Durations use Go syntax: "1.5s", "100ms", "8s".

`

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "hyprcoach")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the user config, writing defaults on first run.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFrom(configPath)
	if errors.Is(err, ErrConfigNotFound) {
		log.Info().Str("path", configPath).Msg("Config: no config file found, creating with defaults")
		cfg = DefaultConfig()
		if err := SaveTo(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFrom decodes path over the defaults, so omitted keys keep default values.
func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Debug().Str("path", configPath).Msg("Config: loading configuration")
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warn().Interface("keys", undecoded).Msg("Config: ignoring unknown keys")
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, configPath)
}

// SaveTo writes cfg atomically so a watching daemon never reads a partial file.
func SaveTo(cfg *Config, configPath string) error {
	var buf bytes.Buffer
	buf.WriteString(header)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(configPath), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config content: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config content: %w", err)
	}
	if err := os.Rename(tmp.Name(), configPath); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
