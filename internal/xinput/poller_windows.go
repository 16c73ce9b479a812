//go:build windows

package xinput

import (
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"quickfire/internal/hook"
)

var (
	xinputDLL          = windows.NewLazySystemDLL("xinput1_4.dll")
	procXInputGetState = xinputDLL.NewProc("XInputGetState")
)

// capsExOrdinal is the unnamed export returning extended capabilities
// including VID/PID.
const capsExOrdinal = 108

const (
	errSuccess            = 0
	errDeviceNotConnected = 0x048F
	maxPads               = 4
	// Microsoft vendor id, used when the extended capability query is not
	// available.
	fallbackVID = 0x045E
)

type xinputGamepad struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

type xinputState struct {
	PacketNumber uint32
	Gamepad      xinputGamepad
}

type xinputCapabilitiesEx struct {
	Type      uint8
	SubType   uint8
	Flags     uint16
	Gamepad   xinputGamepad
	Vibration struct{ LeftMotorSpeed, RightMotorSpeed uint16 }
	VendorID  uint16
	ProductID uint16
	Revision  uint16
	_         uint16
}

// Poller reads all pads at 1 kHz and feeds transitions to the receiver.
type Poller struct {
	recv Receiver
	stop chan struct{}

	prev      [maxPads]HeldMask
	vid       [maxPads]uint16
	connected [maxPads]bool
}

// NewPoller creates the poller.
func NewPoller(recv Receiver) *Poller {
	return &Poller{recv: recv, stop: make(chan struct{})}
}

// Start launches the polling thread.
func (p *Poller) Start() error {
	go p.run()
	return nil
}

// Stop terminates the polling thread.
func (p *Poller) Stop() { close(p.stop) }

func (p *Poller) run() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ts := hook.NowUS()
	for i := 0; i < maxPads; i++ {
		var st xinputState
		ret, _, _ := procXInputGetState.Call(uintptr(i), uintptr(unsafe.Pointer(&st)))
		if ret != errSuccess {
			if p.connected[i] {
				// Pad unplugged: release everything it held.
				Diff(p.recv, p.vid[i], p.prev[i], 0, ts)
				p.prev[i] = 0
				p.connected[i] = false
			}
			continue
		}
		if !p.connected[i] {
			p.connected[i] = true
			p.vid[i] = p.queryVID(i)
		}
		cur := Decompose(PadState{
			Buttons: st.Gamepad.Buttons,
			LT:      st.Gamepad.LeftTrigger,
			RT:      st.Gamepad.RightTrigger,
			LX:      st.Gamepad.ThumbLX,
			LY:      st.Gamepad.ThumbLY,
			RX:      st.Gamepad.ThumbRX,
			RY:      st.Gamepad.ThumbRY,
		})
		if cur != p.prev[i] {
			Diff(p.recv, p.vid[i], p.prev[i], cur, ts)
			p.prev[i] = cur
		}
	}
}

func (p *Poller) queryVID(pad int) uint16 {
	if err := xinputDLL.Load(); err != nil {
		return fallbackVID
	}
	addr, err := windows.GetProcAddressByOrdinal(windows.Handle(xinputDLL.Handle()), capsExOrdinal)
	if err != nil || addr == 0 {
		return fallbackVID
	}
	var caps xinputCapabilitiesEx
	ret, _, _ := syscall.SyscallN(addr, 1, uintptr(pad), 0, uintptr(unsafe.Pointer(&caps)))
	if ret != errSuccess || caps.VendorID == 0 {
		return fallbackVID
	}
	return caps.VendorID
}
