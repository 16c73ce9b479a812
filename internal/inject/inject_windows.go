//go:build windows

package inject

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"quickfire/internal/event"
)

var (
	user32        = windows.NewLazySystemDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputKeyboard = 1
	inputMouse    = 0

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
	keyeventfScanCode    = 0x0008

	mouseeventfMove       = 0x0001
	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040
	mouseeventfXDown      = 0x0080
	mouseeventfXUp        = 0x0100
	mouseeventfWheel      = 0x0800
)

// winInput mirrors the Windows INPUT struct. The union is sized for the
// larger MOUSEINPUT arm; KEYBDINPUT writes overlay the same bytes.
type winInput struct {
	inputType uint32
	_         uint32 // alignment
	mi        mouseInput
}

type mouseInput struct {
	dx          int32
	dy          int32
	mouseData   uint32
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
	_           [8]byte
}

// Sender injects batches through SendInput.
type Sender struct{}

// NewSender returns the SendInput-backed injector.
func NewSender() *Sender { return &Sender{} }

// InjectBatch converts and submits the batch in one SendInput call.
func (s *Sender) InjectBatch(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := make([]winInput, 0, len(events))
	for _, ev := range events {
		switch ev.Type {
		case KeyDown, KeyUp:
			flags := uint32(keyeventfScanCode)
			if ev.Extended {
				flags |= keyeventfExtendedKey
			}
			if ev.Type == KeyUp {
				flags |= keyeventfKeyUp
			}
			var in winInput
			in.inputType = inputKeyboard
			ki := (*keybdInput)(unsafe.Pointer(&in.mi))
			ki.wScan = ev.Scan
			ki.dwFlags = flags
			ki.dwExtraInfo = Marker
			batch = append(batch, in)
		case MouseButtonDown, MouseButtonUp:
			flags, data := mouseButtonFlags(ev.Button, ev.Type == MouseButtonDown)
			batch = append(batch, winInput{
				inputType: inputMouse,
				mi: mouseInput{
					mouseData:   data,
					dwFlags:     flags,
					dwExtraInfo: Marker,
				},
			})
		case MouseMove:
			batch = append(batch, winInput{
				inputType: inputMouse,
				mi: mouseInput{
					dx:          ev.DX,
					dy:          ev.DY,
					dwFlags:     mouseeventfMove,
					dwExtraInfo: Marker,
				},
			})
		case MouseWheel:
			batch = append(batch, winInput{
				inputType: inputMouse,
				mi: mouseInput{
					mouseData:   uint32(ev.WheelDelta),
					dwFlags:     mouseeventfWheel,
					dwExtraInfo: Marker,
				},
			})
		}
	}

	n, _, err := procSendInput.Call(
		uintptr(len(batch)),
		uintptr(unsafe.Pointer(&batch[0])),
		unsafe.Sizeof(batch[0]),
	)
	if int(n) != len(batch) {
		return fmt.Errorf("SendInput sent %d of %d events: %v", n, len(batch), err)
	}
	return nil
}

func mouseButtonFlags(b event.MouseButton, down bool) (flags, data uint32) {
	switch b {
	case event.MouseLeft:
		if down {
			return mouseeventfLeftDown, 0
		}
		return mouseeventfLeftUp, 0
	case event.MouseRight:
		if down {
			return mouseeventfRightDown, 0
		}
		return mouseeventfRightUp, 0
	case event.MouseMiddle:
		if down {
			return mouseeventfMiddleDown, 0
		}
		return mouseeventfMiddleUp, 0
	case event.MouseX1:
		if down {
			return mouseeventfXDown, 1
		}
		return mouseeventfXUp, 1
	case event.MouseX2:
		if down {
			return mouseeventfXDown, 2
		}
		return mouseeventfXUp, 2
	}
	return 0, 0
}
