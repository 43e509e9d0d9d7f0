package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const ConfigFileName = "usb-fleet.yaml"

// DefaultTimeoutSeconds bounds every single adb invocation.
const DefaultTimeoutSeconds = 30

type Config struct {
	AdbPath        string   `yaml:"adb_path"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	StateDir       string   `yaml:"state_dir"`
	Sync           SyncPath `yaml:"sync"`
}

// SyncPath holds the persisted sync path defaults (videos/photos/other
// presets on the device side plus the last used PC folder).
type SyncPath struct {
	VideosDefaultPath string `yaml:"videos_default_path"`
	PhotosDefaultPath string `yaml:"photos_default_path"`
	OtherDefaultPath  string `yaml:"other_default_path"`
	LastPCFolder      string `yaml:"last_pc_folder"`
}

// DefaultConfig returns the config written by `usb-fleet init`.
func DefaultConfig() *Config {
	return &Config{
		AdbPath:        "adb",
		TimeoutSeconds: DefaultTimeoutSeconds,
		StateDir:       ".fleet_temp",
		Sync: SyncPath{
			VideosDefaultPath: "/sdcard/Movies/",
			PhotosDefaultPath: "/sdcard/Pictures/",
		},
	}
}

func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RegistryDBPath is the sqlite file backing the device registry and the
// operation history log.
func (c *Config) RegistryDBPath() string {
	dir := c.StateDir
	if dir == "" {
		dir = ".fleet_temp"
	}
	return filepath.Join(dir, "fleet.db")
}

// ValidateConfig validates the configuration for required fields and file paths
func ValidateConfig(cfg *Config) error {
	var validationErrors []string

	if strings.TrimSpace(cfg.AdbPath) == "" {
		validationErrors = append(validationErrors, "adb_path cannot be empty")
	}

	if cfg.TimeoutSeconds < 0 {
		validationErrors = append(validationErrors, "timeout_seconds cannot be negative")
	}

	// A bare command name (e.g. "adb") is resolved from PATH later; only an
	// explicit path is checked here.
	if p := strings.TrimSpace(cfg.AdbPath); strings.ContainsRune(p, os.PathSeparator) {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("adb executable does not exist: %s", p))
		}
	}

	if strings.TrimSpace(cfg.Sync.LastPCFolder) != "" {
		if _, err := os.Stat(cfg.Sync.LastPCFolder); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("last_pc_folder does not exist: %s", cfg.Sync.LastPCFolder))
		}
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(validationErrors, "\n"))
	}

	return nil
}

// LoadAndValidateConfig loads and validates the configuration
func LoadAndValidateConfig() (*Config, error) {
	if !ConfigExists() {
		return nil, errors.New("usb-fleet.yaml not found. Please run 'usb-fleet init' first")
	}

	data, err := os.ReadFile(ConfigFileName)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	err = ValidateConfig(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save rewrites the whole config file. Mutations (last PC folder, default
// sync paths) always go through a full rewrite.
func Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error generating config: %v", err)
	}
	if err := os.WriteFile(ConfigFileName, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %v", ConfigFileName, err)
	}
	return nil
}

func ConfigExists() bool {
	_, err := os.Stat(ConfigFileName)
	return !os.IsNotExist(err)
}

func GetConfigPath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ConfigFileName)
}
