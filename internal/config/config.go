// Package config loads, validates and atomically swaps the application
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// File is the raw TOML document. Optional per-mapping fields are pointers so
// absence falls back to the top-level defaults.
type File struct {
	ShowTrayIcon      bool     `toml:"show_tray_icon"`
	ShowNotifications bool     `toml:"show_notifications"`
	AlwaysOnTop       bool     `toml:"always_on_top"`
	DarkMode          bool     `toml:"dark_mode"`
	Language          string   `toml:"language"`
	InputTimeout      uint16   `toml:"input_timeout"`
	Interval          uint16   `toml:"interval"`
	EventDuration     uint16   `toml:"event_duration"`
	WorkerCount       uint16   `toml:"worker_count"`
	SwitchKey         string   `toml:"switch_key"`
	ProcessWhitelist  []string `toml:"process_whitelist"`

	Mappings     []MappingFile  `toml:"mappings"`
	HidBaselines []BaselineFile `toml:"hid_baselines"`
}

// MappingFile is one [[mappings]] table.
type MappingFile struct {
	TriggerKey      string   `toml:"trigger_key"`
	TriggerSequence string   `toml:"trigger_sequence"`
	TargetKey       string   `toml:"target_key"`
	TargetKeys      []string `toml:"target_keys"`
	TargetMode      int      `toml:"target_mode"`
	Interval        *uint16  `toml:"interval"`
	EventDuration   *uint16  `toml:"event_duration"`
	MoveSpeed       uint8    `toml:"move_speed"`
	TurboEnabled    *bool    `toml:"turbo_enabled"`
	SequenceWindow  uint16   `toml:"sequence_window_ms"`
}

// BaselineFile is one [[hid_baselines]] table. DeviceID is "VID:PID:SERIAL".
type BaselineFile struct {
	DeviceID     string `toml:"device_id"`
	BaselineData []int  `toml:"baseline_data"`
}

// Default returns the configuration used when no file exists yet.
func Default() *File {
	return &File{
		ShowTrayIcon:      true,
		ShowNotifications: true,
		Language:          "en",
		InputTimeout:      5,
		Interval:          5,
		EventDuration:     5,
		SwitchKey:         "DELETE",
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "quickfire", "config.toml"), nil
}

// Load reads and decodes the TOML file at path. A missing file is created
// with defaults first, so a fresh install starts with a valid config.
func Load(path string) (*File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f := Default()
		if err := Save(path, f); err != nil {
			return nil, err
		}
		return f, nil
	}

	f := Default()
	if _, err := toml.DecodeFile(path, f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Save writes f to path, creating the directory if needed.
func Save(path string, f *File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()
	return toml.NewEncoder(out).Encode(f)
}
