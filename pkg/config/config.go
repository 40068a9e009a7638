// Package config provides configuration management functionality
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DJA-prog/Serial-Gui/pkg/serial"
)

const (
	appDirName   = "serial-gui"
	settingsFile = "settings.yaml"
	configsFile  = "configs.yaml"
	historyFile  = "command_history"
	macrosDir    = "macros"
	commandsDir  = "commands"
)

// Settings holds the persisted application preferences. A loaded
// Settings value is a snapshot; changing it has no effect until it is
// saved back.
type Settings struct {
	// Serial is the connection configuration restored on startup
	Serial serial.Config `yaml:"serial"`
	// CustomBaudRates extends the baud selector with user-entered rates
	CustomBaudRates []int `yaml:"custom_baud_rates,omitempty"`
	// AutoClearOutput clears the screen before each macro run
	AutoClearOutput bool `yaml:"auto_clear_output"`
	// RevealHidden renders whitespace characters visibly
	RevealHidden bool `yaml:"reveal_hidden_characters"`
	// AutoReconnect re-opens the port after an unexpected disconnect
	AutoReconnect bool `yaml:"auto_reconnect"`
	// HistoryLimit caps the persisted command history
	HistoryLimit int `yaml:"command_history_limit"`
}

// DefaultSettings returns the settings used before any file exists
func DefaultSettings() Settings {
	return Settings{
		Serial:        serial.DefaultConfig(),
		AutoReconnect: true,
		HistoryLimit:  100,
	}
}

// Validate checks the settings for problems. The serial port may be
// unset: it is supplied by the connect or run target at session start.
func (s Settings) Validate() error {
	if err := s.Serial.ValidateParams(); err != nil {
		return fmt.Errorf("invalid serial settings: %w", err)
	}
	for _, baud := range s.CustomBaudRates {
		if baud <= 0 {
			return fmt.Errorf("custom baud rate must be positive, got %d", baud)
		}
	}
	if s.HistoryLimit < 0 {
		return fmt.Errorf("command history limit cannot be negative")
	}
	return nil
}

// ConfigInfo contains metadata about a saved connection configuration
type ConfigInfo struct {
	Name       string        `yaml:"name"`
	Config     serial.Config `yaml:"config"`
	CreatedAt  time.Time     `yaml:"created_at"`
	LastUsedAt time.Time     `yaml:"last_used_at"`
}

// Validate checks if the configuration info is valid
func (c ConfigInfo) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("configuration name cannot be empty")
	}
	if err := c.Config.Validate(); err != nil {
		return fmt.Errorf("invalid serial config: %w", err)
	}
	return nil
}

// configStorage is the on-disk format for named configurations
type configStorage struct {
	Configs map[string]ConfigInfo `yaml:"configs"`
	Version string                `yaml:"version"`
}

// Manager defines the contract for configuration operations
type Manager interface {
	Settings() (Settings, error)
	SaveSettings(settings Settings) error
	SaveConfig(name string, config serial.Config) error
	LoadConfig(name string) (serial.Config, error)
	ListConfigs() ([]ConfigInfo, error)
	DeleteConfig(name string) error
	ConfigExists(name string) bool
}

// DefaultDir returns the per-user configuration directory, following
// the platform convention (XDG on Linux, AppData on Windows, Library on
// macOS)
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// FileManager implements Manager using YAML files in a directory
type FileManager struct {
	dir string
}

// NewFileManager creates a file-based configuration manager rooted at dir
func NewFileManager(dir string) *FileManager {
	return &FileManager{dir: dir}
}

// Dir returns the directory the manager works in
func (m *FileManager) Dir() string {
	return m.dir
}

// MacroDir returns the directory macro definitions live in
func (m *FileManager) MacroDir() string {
	return filepath.Join(m.dir, macrosDir)
}

// CommandSetDir returns the directory command-set files live in
func (m *FileManager) CommandSetDir() string {
	return filepath.Join(m.dir, commandsDir)
}

// HistoryPath returns the path of the persisted command history
func (m *FileManager) HistoryPath() string {
	return filepath.Join(m.dir, historyFile)
}

// Initialize creates the configuration directory if needed
func (m *FileManager) Initialize() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// Settings loads the application settings, falling back to defaults
// when no settings file exists yet
func (m *FileManager) Settings() (Settings, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, settingsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// SaveSettings writes the application settings
func (m *FileManager) SaveSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := m.Initialize(); err != nil {
		return err
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, settingsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// SaveConfig saves a named connection configuration, overwriting any
// existing one and preserving its creation time
func (m *FileManager) SaveConfig(name string, config serial.Config) error {
	if name == "" {
		return fmt.Errorf("configuration name cannot be empty")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := m.Initialize(); err != nil {
		return err
	}

	storage, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load existing configurations: %w", err)
	}

	now := time.Now()
	info := ConfigInfo{
		Name:       name,
		Config:     config,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if existing, ok := storage.Configs[name]; ok {
		info.CreatedAt = existing.CreatedAt
	}
	storage.Configs[name] = info

	return m.saveStorage(storage)
}

// LoadConfig loads a named connection configuration and updates its
// last-used time
func (m *FileManager) LoadConfig(name string) (serial.Config, error) {
	storage, err := m.loadStorage()
	if err != nil {
		return serial.Config{}, fmt.Errorf("failed to load configurations: %w", err)
	}

	info, ok := storage.Configs[name]
	if !ok {
		return serial.Config{}, fmt.Errorf("configuration %q not found", name)
	}

	info.LastUsedAt = time.Now()
	storage.Configs[name] = info
	if err := m.saveStorage(storage); err != nil {
		return serial.Config{}, fmt.Errorf("failed to update last-used time: %w", err)
	}

	return info.Config, nil
}

// ListConfigs returns all saved configurations
func (m *FileManager) ListConfigs() ([]ConfigInfo, error) {
	storage, err := m.loadStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to load configurations: %w", err)
	}

	configs := make([]ConfigInfo, 0, len(storage.Configs))
	for _, info := range storage.Configs {
		configs = append(configs, info)
	}
	return configs, nil
}

// DeleteConfig removes a named configuration
func (m *FileManager) DeleteConfig(name string) error {
	storage, err := m.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load configurations: %w", err)
	}

	if _, ok := storage.Configs[name]; !ok {
		return fmt.Errorf("configuration %q not found", name)
	}
	delete(storage.Configs, name)

	return m.saveStorage(storage)
}

// ConfigExists checks whether a named configuration is saved
func (m *FileManager) ConfigExists(name string) bool {
	storage, err := m.loadStorage()
	if err != nil {
		return false
	}
	_, ok := storage.Configs[name]
	return ok
}

func (m *FileManager) loadStorage() (configStorage, error) {
	storage := configStorage{
		Configs: make(map[string]ConfigInfo),
		Version: "1.0",
	}

	data, err := os.ReadFile(filepath.Join(m.dir, configsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return storage, nil
		}
		return configStorage{}, err
	}

	if err := yaml.Unmarshal(data, &storage); err != nil {
		return configStorage{}, fmt.Errorf("failed to parse configurations: %w", err)
	}
	if storage.Configs == nil {
		storage.Configs = make(map[string]ConfigInfo)
	}
	return storage, nil
}

func (m *FileManager) saveStorage(storage configStorage) error {
	data, err := yaml.Marshal(storage)
	if err != nil {
		return fmt.Errorf("failed to marshal configurations: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, configsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write configurations: %w", err)
	}
	return nil
}
