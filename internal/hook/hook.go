// Package hook installs the low-level keyboard and mouse hooks and the
// raw-input receiver, and delivers transitions to the engine tagged with a
// monotonic microsecond timestamp.
package hook

import (
	"errors"
	"time"

	"quickfire/internal/event"
)

// ErrUnavailable is returned when the platform refuses hook installation.
var ErrUnavailable = errors.New("hook: installation unavailable")

// Handler receives raw transitions from the hook threads. The boolean
// results tell the hook to swallow the raw event.
type Handler interface {
	OnKeyboard(vk uint16, down bool, tsUS uint64) bool
	OnMouseButton(b event.MouseButton, down bool, tsUS uint64) bool
	OnMouseWheel(delta int16, tsUS uint64)
	OnHidReport(device HidDevice, data []byte, tsUS uint64)
}

// HidDevice identifies a raw-input HID device.
type HidDevice struct {
	VID    uint16
	PID    uint16
	Serial uint64
}

var clockStart = time.Now()

// NowUS returns the monotonic timestamp used for all hook events.
func NowUS() uint64 {
	return uint64(time.Since(clockStart).Microseconds())
}
