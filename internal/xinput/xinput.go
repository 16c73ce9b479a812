// Package xinput polls XInput gamepads at 1 kHz and converts pad state into
// canonical button transitions, including 8-directional stick states.
package xinput

import (
	"quickfire/internal/event"
)

// XINPUT_GAMEPAD button bits.
const (
	btnDPadUp     = 0x0001
	btnDPadDown   = 0x0002
	btnDPadLeft   = 0x0004
	btnDPadRight  = 0x0008
	btnStart      = 0x0010
	btnBack       = 0x0020
	btnLeftThumb  = 0x0040
	btnRightThumb = 0x0080
	btnLB         = 0x0100
	btnRB         = 0x0200
	btnA          = 0x1000
	btnB          = 0x2000
	btnX          = 0x4000
	btnY          = 0x8000
)

// Analog thresholds from the XInput headers.
const (
	triggerThreshold   = 30
	leftStickDeadzone  = 7849
	rightStickDeadzone = 8689
)

// PadState is one polled gamepad frame.
type PadState struct {
	Buttons uint16
	LT, RT  uint8
	LX, LY  int16
	RX, RY  int16
}

// HeldMask is a bitmask over XButton codes. Diagonal stick and D-Pad states
// are canonicalized: when both component cardinals are active the diagonal
// code is held instead.
type HeldMask uint64

// Has reports whether b is held.
func (m HeldMask) Has(b event.XButton) bool { return m&(1<<b) != 0 }

func with(m HeldMask, b event.XButton) HeldMask { return m | 1<<b }

// stickDirection resolves one stick to at most one direction code.
func stickDirection(x, y int16, deadzone int16, right, left, up, down event.XButton) (event.XButton, bool) {
	var h, v int
	if x > deadzone {
		h = 1
	} else if x < -deadzone {
		h = -1
	}
	if y > deadzone {
		v = 1
	} else if y < -deadzone {
		v = -1
	}
	switch {
	case h == 0 && v == 0:
		return 0, false
	case h == 1 && v == 0:
		return right, true
	case h == -1 && v == 0:
		return left, true
	case h == 0 && v == 1:
		return up, true
	case h == 0 && v == -1:
		return down, true
	}
	// Diagonal: derive the canonical diagonal code from the components.
	for d := event.XDPadUpLeft; d <= event.XRSLeftDown; d++ {
		a, b, ok := d.Components()
		if !ok {
			continue
		}
		var want [2]event.XButton
		if h == 1 {
			want[0] = right
		} else {
			want[0] = left
		}
		if v == 1 {
			want[1] = up
		} else {
			want[1] = down
		}
		if (a == want[0] && b == want[1]) || (a == want[1] && b == want[0]) {
			return d, true
		}
	}
	return 0, false
}

// dpadDirection canonicalizes the D-Pad bits to one code.
func dpadDirection(buttons uint16) (event.XButton, bool) {
	up := buttons&btnDPadUp != 0
	down := buttons&btnDPadDown != 0
	left := buttons&btnDPadLeft != 0
	right := buttons&btnDPadRight != 0
	switch {
	case up && left:
		return event.XDPadUpLeft, true
	case up && right:
		return event.XDPadUpRight, true
	case down && left:
		return event.XDPadDownLeft, true
	case down && right:
		return event.XDPadDownRight, true
	case up:
		return event.XDPadUp, true
	case down:
		return event.XDPadDown, true
	case left:
		return event.XDPadLeft, true
	case right:
		return event.XDPadRight, true
	}
	return 0, false
}

// Decompose converts one pad frame into the held-button mask.
func Decompose(s PadState) HeldMask {
	var m HeldMask
	pairs := []struct {
		bit uint16
		b   event.XButton
	}{
		{btnStart, event.XStart}, {btnBack, event.XBack},
		{btnLeftThumb, event.XLSClick}, {btnRightThumb, event.XRSClick},
		{btnLB, event.XLB}, {btnRB, event.XRB},
		{btnA, event.XA}, {btnB, event.XB}, {btnX, event.XX}, {btnY, event.XY},
	}
	for _, p := range pairs {
		if s.Buttons&p.bit != 0 {
			m = with(m, p.b)
		}
	}
	if d, ok := dpadDirection(s.Buttons); ok {
		m = with(m, d)
	}
	if s.LT > triggerThreshold {
		m = with(m, event.XLT)
	}
	if s.RT > triggerThreshold {
		m = with(m, event.XRT)
	}
	if d, ok := stickDirection(s.LX, s.LY, leftStickDeadzone,
		event.XLSRight, event.XLSLeft, event.XLSUp, event.XLSDown); ok {
		m = with(m, d)
	}
	if d, ok := stickDirection(s.RX, s.RY, rightStickDeadzone,
		event.XRSRight, event.XRSLeft, event.XRSUp, event.XRSDown); ok {
		m = with(m, d)
	}
	return m
}

// Receiver consumes pad button transitions. Implemented by the engine.
type Receiver interface {
	OnXInput(in event.Input, down bool, tsUS uint64)
}

// Diff emits the transitions between two held masks for one pad.
func Diff(recv Receiver, vid uint16, prev, cur HeldMask, tsUS uint64) {
	changed := prev ^ cur
	for b := event.XButton(1); b <= event.XRSLeftDown; b++ {
		if changed&(1<<b) == 0 {
			continue
		}
		in := event.Input{Kind: event.KindXInput, VID: vid, XButton: b}
		recv.OnXInput(in, cur.Has(b), tsUS)
	}
}
