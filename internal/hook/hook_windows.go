//go:build windows

package hook

import (
	"fmt"
	"log"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"quickfire/internal/event"
	"quickfire/internal/inject"
	"quickfire/internal/keycode"
)

var (
	user32                      = windows.NewLazySystemDLL("user32.dll")
	kernel32                    = windows.NewLazySystemDLL("kernel32.dll")
	procSetWindowsHookEx        = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx          = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx     = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage              = user32.NewProc("GetMessageW")
	procTranslateMessage        = user32.NewProc("TranslateMessage")
	procDispatchMessage         = user32.NewProc("DispatchMessageW")
	procPostThreadMessage       = user32.NewProc("PostThreadMessageW")
	procRegisterClassEx         = user32.NewProc("RegisterClassExW")
	procCreateWindowEx          = user32.NewProc("CreateWindowExW")
	procDefWindowProc           = user32.NewProc("DefWindowProcW")
	procRegisterRawInputDevices = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData         = user32.NewProc("GetRawInputData")
	procGetRawInputDeviceInfo   = user32.NewProc("GetRawInputDeviceInfoW")
	procGetModuleHandle         = kernel32.NewProc("GetModuleHandleW")
	procGetCurrentThreadId      = kernel32.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMButtonDown = 0x0207
	wmMButtonUp   = 0x0208
	wmMouseWheel  = 0x020A
	wmXButtonDown = 0x020B
	wmXButtonUp   = 0x020C

	wmInput = 0x00FF
	wmQuit  = 0x0012

	ridInput         = 0x10000003
	rimTypeHID       = 2
	ridevInputSink   = 0x00000100
	ridiDeviceName   = 0x20000007
	hidUsagePage     = 0x01
	hidUsageJoystick = 0x04
	hidUsageGamepad  = 0x05
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msllHookStruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    syscall.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

type wndClassEx struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     syscall.Handle
	HIcon         syscall.Handle
	HCursor       syscall.Handle
	HbrBackground syscall.Handle
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       syscall.Handle
}

type rawInputDevice struct {
	UsUsagePage uint16
	UsUsage     uint16
	DwFlags     uint32
	HwndTarget  syscall.Handle
}

type rawInputHeader struct {
	DwType  uint32
	DwSize  uint32
	HDevice syscall.Handle
	WParam  uintptr
}

type rawHID struct {
	DwSizeHid uint32
	DwCount   uint32
	// Report bytes follow.
}

// Manager owns the hook thread and its message loop. Hooks must be installed
// on the thread that pumps messages, so everything runs on one locked OS
// thread.
type Manager struct {
	handler  Handler
	threadID uint32
	started  chan error
	devices  map[syscall.Handle]HidDevice
}

// NewManager creates the hook manager.
func NewManager(h Handler) *Manager {
	return &Manager{
		handler: h,
		started: make(chan error, 1),
		devices: make(map[syscall.Handle]HidDevice, 4),
	}
}

var instance *Manager

// Start installs the hooks and the raw-input window and pumps messages until
// Stop. It returns once installation has succeeded or failed.
func (m *Manager) Start() error {
	instance = m
	go m.loop()
	return <-m.started
}

// Stop posts a quit message to the hook thread.
func (m *Manager) Stop() {
	if m.threadID != 0 {
		procPostThreadMessage.Call(uintptr(m.threadID), wmQuit, 0, 0)
	}
}

func (m *Manager) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid, _, _ := procGetCurrentThreadId.Call()
	m.threadID = uint32(tid)

	hMod, _, _ := procGetModuleHandle.Call(0)

	kbHook, _, err := procSetWindowsHookEx.Call(
		whKeyboardLL, syscall.NewCallback(keyboardProc), hMod, 0)
	if kbHook == 0 {
		m.started <- fmt.Errorf("%w: keyboard hook: %v", ErrUnavailable, err)
		return
	}
	mouseHook, _, err := procSetWindowsHookEx.Call(
		whMouseLL, syscall.NewCallback(mouseProc), hMod, 0)
	if mouseHook == 0 {
		procUnhookWindowsHookEx.Call(kbHook)
		m.started <- fmt.Errorf("%w: mouse hook: %v", ErrUnavailable, err)
		return
	}

	if err := m.createRawInputWindow(syscall.Handle(hMod)); err != nil {
		log.Printf("raw input registration failed, HID capture disabled: %v", err)
	}

	m.started <- nil

	var message msg
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&message)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&message)))
		procDispatchMessage.Call(uintptr(unsafe.Pointer(&message)))
	}

	procUnhookWindowsHookEx.Call(kbHook)
	procUnhookWindowsHookEx.Call(mouseHook)
}

// createRawInputWindow registers a message-only window receiving WM_INPUT
// for gamepad and joystick usage pages.
func (m *Manager) createRawInputWindow(hInstance syscall.Handle) error {
	className, _ := syscall.UTF16PtrFromString("QuickfireRawInput")
	wc := wndClassEx{
		CbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
		LpfnWndProc:   syscall.NewCallback(rawInputWndProc),
		HInstance:     hInstance,
		LpszClassName: className,
	}
	if atom, _, err := procRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
		return fmt.Errorf("RegisterClassEx: %v", err)
	}
	hwnd, _, err := procCreateWindowEx.Call(
		0, uintptr(unsafe.Pointer(className)), 0, 0,
		0, 0, 0, 0, 0, 0, uintptr(hInstance), 0)
	if hwnd == 0 {
		return fmt.Errorf("CreateWindowEx: %v", err)
	}

	rids := []rawInputDevice{
		{UsUsagePage: hidUsagePage, UsUsage: hidUsageJoystick, DwFlags: ridevInputSink, HwndTarget: syscall.Handle(hwnd)},
		{UsUsagePage: hidUsagePage, UsUsage: hidUsageGamepad, DwFlags: ridevInputSink, HwndTarget: syscall.Handle(hwnd)},
	}
	ok, _, err := procRegisterRawInputDevices.Call(
		uintptr(unsafe.Pointer(&rids[0])),
		uintptr(len(rids)),
		unsafe.Sizeof(rids[0]),
	)
	if ok == 0 {
		return fmt.Errorf("RegisterRawInputDevices: %v", err)
	}
	return nil
}

func rawInputWndProc(hwnd syscall.Handle, message uint32, wParam, lParam uintptr) uintptr {
	if message == wmInput && instance != nil {
		instance.handleRawInput(lParam)
	}
	ret, _, _ := procDefWindowProc.Call(uintptr(hwnd), uintptr(message), wParam, lParam)
	return ret
}

func (m *Manager) handleRawInput(lParam uintptr) {
	var size uint32
	procGetRawInputData.Call(lParam, ridInput, 0,
		uintptr(unsafe.Pointer(&size)), unsafe.Sizeof(rawInputHeader{}))
	if size == 0 {
		return
	}
	buf := make([]byte, size)
	n, _, _ := procGetRawInputData.Call(lParam, ridInput,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&size)), unsafe.Sizeof(rawInputHeader{}))
	if uint32(n) != size {
		return
	}

	header := (*rawInputHeader)(unsafe.Pointer(&buf[0]))
	if header.DwType != rimTypeHID {
		return
	}
	hid := (*rawHID)(unsafe.Pointer(&buf[unsafe.Sizeof(rawInputHeader{})]))
	reportStart := unsafe.Sizeof(rawInputHeader{}) + unsafe.Sizeof(rawHID{})
	ts := NowUS()

	dev := m.deviceIdentity(header.HDevice)
	for i := uint32(0); i < hid.DwCount; i++ {
		off := reportStart + uintptr(i*hid.DwSizeHid)
		if off+uintptr(hid.DwSizeHid) > uintptr(len(buf)) {
			break
		}
		m.handler.OnHidReport(dev, buf[off:off+uintptr(hid.DwSizeHid)], ts)
	}
}

// deviceIdentity resolves and caches the VID/PID/serial of a raw-input
// device handle. Devices without a usable serial get a stable synthetic
// DEV identity derived from the handle.
func (m *Manager) deviceIdentity(h syscall.Handle) HidDevice {
	if dev, ok := m.devices[h]; ok {
		return dev
	}
	dev := HidDevice{Serial: 1<<63 | uint64(uint32(h))}
	if name := rawDeviceName(h); name != "" {
		dev = parseDeviceName(name, dev)
	}
	m.devices[h] = dev
	return dev
}

func rawDeviceName(h syscall.Handle) string {
	var size uint32
	procGetRawInputDeviceInfo.Call(uintptr(h), ridiDeviceName, 0, uintptr(unsafe.Pointer(&size)))
	if size == 0 || size > 1024 {
		return ""
	}
	buf := make([]uint16, size)
	n, _, _ := procGetRawInputDeviceInfo.Call(uintptr(h), ridiDeviceName,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if int(n) <= 0 {
		return ""
	}
	return windows.UTF16ToString(buf)
}

// parseDeviceName extracts VID_xxxx, PID_xxxx and the instance segment from
// a device interface path like
// \\?\HID#VID_046D&PID_C21D#7&2de99099&0&0000#{...}.
func parseDeviceName(name string, dev HidDevice) HidDevice {
	upper := strings.ToUpper(name)
	if ix := strings.Index(upper, "VID_"); ix >= 0 && ix+8 <= len(upper) {
		if v, err := strconv.ParseUint(upper[ix+4:ix+8], 16, 16); err == nil {
			dev.VID = uint16(v)
		}
	}
	if ix := strings.Index(upper, "PID_"); ix >= 0 && ix+8 <= len(upper) {
		if v, err := strconv.ParseUint(upper[ix+4:ix+8], 16, 16); err == nil {
			dev.PID = uint16(v)
		}
	}
	// The third '#'-separated segment is the instance path; a short
	// alphanumeric segment is a real serial number.
	parts := strings.Split(upper, "#")
	if len(parts) >= 3 {
		if serial, ok := keycode.PackSerial(parts[2]); ok {
			dev.Serial = serial
		}
	}
	return dev
}

func keyboardProc(code int32, wParam uintptr, lParam uintptr) uintptr {
	if code < 0 || instance == nil {
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
		return ret
	}
	kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
	if kb.DwExtraInfo == inject.Marker {
		// Our own synthetic event; never re-process it.
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
		return ret
	}

	down := wParam == wmKeyDown || wParam == wmSysKeyDown
	up := wParam == wmKeyUp || wParam == wmSysKeyUp
	if down || up {
		if instance.handler.OnKeyboard(uint16(kb.VkCode), down, NowUS()) {
			return 1
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
	return ret
}

func mouseProc(code int32, wParam uintptr, lParam uintptr) uintptr {
	if code < 0 || instance == nil {
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
		return ret
	}
	ms := (*msllHookStruct)(unsafe.Pointer(lParam))
	if ms.DwExtraInfo == inject.Marker {
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
		return ret
	}

	if wParam == wmMouseWheel {
		instance.handler.OnMouseWheel(int16(ms.MouseData>>16), NowUS())
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
		return ret
	}

	var button event.MouseButton
	var down bool
	switch wParam {
	case wmLButtonDown, wmLButtonUp:
		button, down = event.MouseLeft, wParam == wmLButtonDown
	case wmRButtonDown, wmRButtonUp:
		button, down = event.MouseRight, wParam == wmRButtonDown
	case wmMButtonDown, wmMButtonUp:
		button, down = event.MouseMiddle, wParam == wmMButtonDown
	case wmXButtonDown, wmXButtonUp:
		if ms.MouseData>>16 == 2 {
			button = event.MouseX2
		} else {
			button = event.MouseX1
		}
		down = wParam == wmXButtonDown
	default:
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
		return ret
	}

	if instance.handler.OnMouseButton(button, down, NowUS()) {
		return 1
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
	return ret
}
