// Package settings persists controller preferences between runs.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds persistable user preferences.
type Settings struct {
	Screen    string `json:"screen"`    // last shared-to screen id
	SignalURL string `json:"signalUrl"` // relay endpoint
}

// Manager handles loading and saving settings.
type Manager struct {
	path     string
	settings Settings
}

// NewManager creates a settings manager with the default config path.
func NewManager() (*Manager, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return &Manager{path: path}, nil
}

// configPath returns the config file path, honoring XDG_CONFIG_HOME.
func configPath() (string, error) {
	var dir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dir = filepath.Join(xdg, "dockcast")
	} else {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(userDir, "dockcast")
	}
	return filepath.Join(dir, "config.json"), nil
}

// Defaults returns the default settings.
func Defaults() Settings {
	return Settings{}
}

// Load reads settings from the config file. A missing or invalid file is
// not an error; defaults are returned instead.
func (m *Manager) Load() (Settings, error) {
	m.settings = Defaults()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return m.settings, nil
		}
		return m.settings, err
	}

	if err := json.Unmarshal(data, &m.settings); err != nil {
		m.settings = Defaults()
		return m.settings, nil
	}
	return m.settings, nil
}

// Save writes settings to the config file.
func (m *Manager) Save(s Settings) error {
	m.settings = s

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

// Settings returns the currently loaded settings.
func (m *Manager) Settings() Settings {
	return m.settings
}
