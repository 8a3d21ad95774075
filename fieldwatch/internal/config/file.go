// Package config handles fieldwatch configuration from a YAML file and the
// user settings kept in SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/lasen/background"
	"github.com/hazyhaar/lasen/correction"
)

// Config is the top-level fieldwatch configuration.
type Config struct {
	Browser BrowserConfig     `yaml:"browser"`
	Pages   []PageConfig      `yaml:"pages"`
	Engine  EngineConfig      `yaml:"engine"`
	Broker  background.Config `yaml:"broker"`
	// Settings seed the settings store on first start.
	Settings   correction.Settings `yaml:"settings"`
	SettingsDB string              `yaml:"settings_db"`
	// SettingsPoll is how often the settings table is checked for changes.
	SettingsPoll time.Duration `yaml:"settings_poll"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	// AllTabs instruments every tab already open in a remote browser.
	AllTabs bool `yaml:"all_tabs"`
}

// PageConfig defines a page to instrument.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// EngineConfig carries the engine's timing and pooling knobs.
type EngineConfig struct {
	Gap                float64       `yaml:"gap"`
	ControlSize        float64       `yaml:"control_size"`
	BlurGrace          time.Duration `yaml:"blur_grace"`
	MaxIdle            int           `yaml:"max_idle"`
	CorrectTimeout     time.Duration `yaml:"correct_timeout"`
	ConvertTimeout     time.Duration `yaml:"convert_timeout"`
	ValidateTimeout    time.Duration `yaml:"validate_timeout"`
	ValidationDebounce time.Duration `yaml:"validation_debounce"`
	MutationDebounce   time.Duration `yaml:"mutation_debounce"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	cfg := &Config{Settings: correction.DefaultSettings()}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Settings: correction.DefaultSettings()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	for i, p := range cfg.Pages {
		if p.URL == "" {
			return nil, fmt.Errorf("config: page %d: url required", i)
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.SettingsDB == "" {
		c.SettingsDB = "fieldwatch.db"
	}
	if c.SettingsPoll <= 0 {
		c.SettingsPoll = time.Second
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
	c.Settings = c.Settings.Normalize()
}
