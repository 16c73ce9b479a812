//go:build !windows

package autostart

import "fmt"

// Enable is unsupported off Windows.
func Enable() error { return fmt.Errorf("autostart: unsupported platform") }

// Disable is unsupported off Windows.
func Disable() error { return fmt.Errorf("autostart: unsupported platform") }

// IsEnabled always reports false off Windows.
func IsEnabled() bool { return false }
