// Package tray provides the system tray icon and menu using
// getlantern/systray.
package tray

import (
	"log"

	"github.com/getlantern/systray"
	"github.com/pkg/browser"
)

// Callbacks wires tray actions back into the application.
type Callbacks struct {
	// ToggleEnabled flips the global enable bit and returns the new state.
	ToggleEnabled func() bool
	// TogglePaused flips the pause bit and returns the new state.
	TogglePaused func() bool
	// ToggleAutostart flips start-on-login and returns the new state.
	ToggleAutostart func() bool
	// ConfigPath is opened in the default editor from the menu.
	ConfigPath string
	// OnQuit is invoked when Quit is clicked, before systray exits.
	OnQuit func()
}

// Tray manages the tray icon and its menu.
type Tray struct {
	cb     Callbacks
	quitCh chan struct{}
}

// New creates the tray.
func New(cb Callbacks) *Tray {
	return &Tray{cb: cb, quitCh: make(chan struct{})}
}

// Run starts the tray event loop. Blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Stop requests tray shutdown.
func (t *Tray) Stop() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Quickfire")
	systray.SetTooltip("Quickfire input mapper")
	systray.SetIcon(iconBytes())

	enabled := systray.AddMenuItem("Enabled", "Toggle all mappings (switch key)")
	enabled.Check()
	paused := systray.AddMenuItem("Paused", "Suspend dispatch and clear active turbo state")
	systray.AddSeparator()
	openCfg := systray.AddMenuItem("Open Config", "Open the configuration file")
	autostart := systray.AddMenuItem("Start on Login", "Run at session start")
	if t.cb.ToggleAutostart == nil {
		autostart.Disable()
	}
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Exit")

	go func() {
		for {
			select {
			case <-enabled.ClickedCh:
				if t.cb.ToggleEnabled != nil {
					setChecked(enabled, t.cb.ToggleEnabled())
				}
			case <-paused.ClickedCh:
				if t.cb.TogglePaused != nil {
					setChecked(paused, t.cb.TogglePaused())
				}
			case <-openCfg.ClickedCh:
				if t.cb.ConfigPath != "" {
					if err := browser.OpenFile(t.cb.ConfigPath); err != nil {
						log.Printf("tray: open config: %v", err)
					}
				}
			case <-autostart.ClickedCh:
				if t.cb.ToggleAutostart != nil {
					setChecked(autostart, t.cb.ToggleAutostart())
				}
			case <-quit.ClickedCh:
				if t.cb.OnQuit != nil {
					t.cb.OnQuit()
				}
				systray.Quit()
			case <-t.quitCh:
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	close(t.quitCh)
}

func setChecked(item *systray.MenuItem, on bool) {
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}

// iconBytes returns a minimal valid 16x16 32-bit ICO; pixels stay
// transparent.
func iconBytes() []byte {
	icon := make([]byte, 1118)
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	return icon
}
