package keycode

import (
	"fmt"
	"strconv"
	"strings"

	"quickfire/internal/event"
)

// ParseError reports the offending token of a trigger or target string.
type ParseError struct {
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unknown key token %q", e.Token)
}

var xButtonNames = map[event.XButton]string{
	event.XDPadUp: "DPad_Up", event.XDPadDown: "DPad_Down",
	event.XDPadLeft: "DPad_Left", event.XDPadRight: "DPad_Right",
	event.XStart: "Start", event.XBack: "Back",
	event.XLSClick: "LS_Click", event.XRSClick: "RS_Click",
	event.XLB: "LB", event.XRB: "RB",
	event.XA: "A", event.XB: "B", event.XX: "X", event.XY: "Y",
	event.XLSRight: "LS_Right", event.XLSLeft: "LS_Left",
	event.XLSUp: "LS_Up", event.XLSDown: "LS_Down",
	event.XRSRight: "RS_Right", event.XRSLeft: "RS_Left",
	event.XRSUp: "RS_Up", event.XRSDown: "RS_Down",
	event.XLT: "LT", event.XRT: "RT",
	event.XDPadUpLeft: "DPad_UpLeft", event.XDPadUpRight: "DPad_UpRight",
	event.XDPadDownLeft: "DPad_DownLeft", event.XDPadDownRight: "DPad_DownRight",
	event.XLSRightUp: "LS_RightUp", event.XLSRightDown: "LS_RightDown",
	event.XLSLeftUp: "LS_LeftUp", event.XLSLeftDown: "LS_LeftDown",
	event.XRSRightUp: "RS_RightUp", event.XRSRightDown: "RS_RightDown",
	event.XRSLeftUp: "RS_LeftUp", event.XRSLeftDown: "RS_LeftDown",
}

var xButtonByName = func() map[string]event.XButton {
	m := make(map[string]event.XButton, len(xButtonNames)*2)
	for b, name := range xButtonNames {
		m[strings.ToUpper(name)] = b
		// Underscored diagonal spellings: LS_RIGHT_UP for LS_RightUp.
		if _, _, ok := b.Components(); ok {
			upper := strings.ToUpper(name)
			for _, suffix := range []string{"UP", "DOWN", "LEFT", "RIGHT"} {
				ix := strings.LastIndex(upper, suffix)
				if ix > 0 && ix+len(suffix) == len(upper) && upper[ix-1] != '_' {
					m[upper[:ix]+"_"+suffix] = b
				}
			}
		}
	}
	return m
}()

// XButtonName returns the canonical token segment for an XInput button.
func XButtonName(b event.XButton) string {
	if name, ok := xButtonNames[b]; ok {
		return name
	}
	return "Unknown"
}

// XButtonByName resolves a button name segment, case-insensitively.
func XButtonByName(name string) (event.XButton, bool) {
	b, ok := xButtonByName[strings.ToUpper(strings.TrimSpace(name))]
	return b, ok
}

var motionNames = map[event.Direction]string{
	event.DirUp: "MOUSE_UP", event.DirDown: "MOUSE_DOWN",
	event.DirLeft: "MOUSE_LEFT", event.DirRight: "MOUSE_RIGHT",
	event.DirUpLeft: "MOUSE_UP_LEFT", event.DirUpRight: "MOUSE_UP_RIGHT",
	event.DirDownLeft: "MOUSE_DOWN_LEFT", event.DirDownRight: "MOUSE_DOWN_RIGHT",
}

var motionByName = map[string]event.Direction{
	"MOUSE_UP": event.DirUp, "MOUSEUP": event.DirUp, "MOVE_UP": event.DirUp,
	"MOUSE_DOWN": event.DirDown, "MOUSEDOWN": event.DirDown, "MOVE_DOWN": event.DirDown,
	"MOUSE_LEFT": event.DirLeft, "MOUSELEFT": event.DirLeft, "MOVE_LEFT": event.DirLeft,
	"MOUSE_RIGHT": event.DirRight, "MOUSERIGHT": event.DirRight, "MOVE_RIGHT": event.DirRight,
	"MOUSE_UP_LEFT": event.DirUpLeft, "MOUSEUPLEFT": event.DirUpLeft,
	"MOUSE_UP_RIGHT": event.DirUpRight, "MOUSEUPRIGHT": event.DirUpRight,
	"MOUSE_DOWN_LEFT": event.DirDownLeft, "MOUSEDOWNLEFT": event.DirDownLeft,
	"MOUSE_DOWN_RIGHT": event.DirDownRight, "MOUSEDOWNRIGHT": event.DirDownRight,
}

var mouseButtonNames = map[event.MouseButton]string{
	event.MouseLeft: "LBUTTON", event.MouseRight: "RBUTTON",
	event.MouseMiddle: "MBUTTON", event.MouseX1: "XBUTTON1", event.MouseX2: "XBUTTON2",
}

// ParseToken parses one KeyToken into a canonical input. Parsing is total
// over the grammar; anything else returns a ParseError naming the token.
func ParseToken(s string) (event.Input, error) {
	tok := strings.TrimSpace(s)
	upper := strings.ToUpper(tok)

	if strings.HasPrefix(upper, "GAMEPAD_") {
		if in, ok := parseGamepadToken(upper); ok {
			return in, nil
		}
		return event.Input{}, &ParseError{Token: tok}
	}
	if strings.HasPrefix(upper, "DEVICE_") {
		if in, ok := parseHidToken(upper); ok {
			return in, nil
		}
		return event.Input{}, &ParseError{Token: tok}
	}

	for b, name := range mouseButtonNames {
		if upper == name {
			return event.Input{Kind: event.KindMouseButton, Button: b}, nil
		}
	}
	if dir, ok := motionByName[upper]; ok {
		return event.Input{Kind: event.KindMouseMotion, Direction: dir}, nil
	}
	switch upper {
	case "SCROLL_UP", "SCROLLUP", "WHEEL_UP", "WHEELUP":
		return event.Input{Kind: event.KindMouseWheel, WheelDelta: 1}, nil
	case "SCROLL_DOWN", "SCROLLDOWN", "WHEEL_DOWN", "WHEELDOWN":
		return event.Input{Kind: event.KindMouseWheel, WheelDelta: -1}, nil
	}

	if vk, ok := NameVK(upper); ok {
		vk = NormalizeModifierVK(vk)
		scan, ext := VKToScan(vk)
		return event.Input{Kind: event.KindKeyboard, VK: vk, Scan: scan, Extended: ext}, nil
	}
	return event.Input{}, &ParseError{Token: tok}
}

// parseGamepadToken handles GAMEPAD_{VID}_{Button}.
func parseGamepadToken(upper string) (event.Input, bool) {
	rest := strings.TrimPrefix(upper, "GAMEPAD_")
	ix := strings.IndexByte(rest, '_')
	if ix != 4 {
		return event.Input{}, false
	}
	vid, err := strconv.ParseUint(rest[:4], 16, 16)
	if err != nil {
		return event.Input{}, false
	}
	b, ok := XButtonByName(rest[5:])
	if !ok {
		return event.Input{}, false
	}
	return event.Input{Kind: event.KindXInput, VID: uint16(vid), XButton: b}, true
}

// parseHidToken handles DEVICE_{VID}_{PID}_{SERIAL}_B{byte}.{bit}.
func parseHidToken(upper string) (event.Input, bool) {
	parts := strings.Split(strings.TrimPrefix(upper, "DEVICE_"), "_")
	if len(parts) != 4 {
		return event.Input{}, false
	}
	vid, err1 := strconv.ParseUint(parts[0], 16, 16)
	pid, err2 := strconv.ParseUint(parts[1], 16, 16)
	if err1 != nil || err2 != nil {
		return event.Input{}, false
	}
	serial, ok := PackSerial(parts[2])
	if !ok {
		return event.Input{}, false
	}
	pos := parts[3]
	if len(pos) < 4 || pos[0] != 'B' {
		return event.Input{}, false
	}
	dot := strings.IndexByte(pos, '.')
	if dot < 2 {
		return event.Input{}, false
	}
	byteIx, err3 := strconv.ParseUint(pos[1:dot], 10, 8)
	bitIx, err4 := strconv.ParseUint(pos[dot+1:], 10, 8)
	if err3 != nil || err4 != nil || bitIx > 7 {
		return event.Input{}, false
	}
	return event.Input{
		Kind: event.KindHid, VID: uint16(vid), PID: uint16(pid),
		Serial: serial, ByteIx: uint8(byteIx), BitIx: uint8(bitIx),
	}, true
}

// PackSerial encodes a device serial segment into a u64 identity. Serial
// strings of up to 8 alphanumeric characters pack big-endian; the synthetic
// DEV{8 hex} form used for serial-less devices sets the top bit over the
// 32-bit instance id. Both forms round-trip through FormatSerial.
func PackSerial(seg string) (uint64, bool) {
	if strings.HasPrefix(seg, "DEV") && len(seg) == 11 {
		if inst, err := strconv.ParseUint(seg[3:], 16, 32); err == nil {
			return 1<<63 | inst, true
		}
	}
	if len(seg) == 0 || len(seg) > 8 {
		return 0, false
	}
	var v uint64
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return 0, false
		}
		v = v<<8 | uint64(c)
	}
	return v, true
}

// FormatSerial is the inverse of PackSerial.
func FormatSerial(serial uint64) string {
	if serial&(1<<63) != 0 {
		return fmt.Sprintf("DEV%08X", uint32(serial))
	}
	var buf [8]byte
	n := 0
	for sh := 56; sh >= 0; sh -= 8 {
		c := byte(serial >> sh)
		if c == 0 {
			continue
		}
		buf[n] = c
		n++
	}
	return string(buf[:n])
}

// FormatToken renders the canonical token string for a single input.
func FormatToken(in event.Input) string {
	switch in.Kind {
	case event.KindKeyboard:
		return VKName(in.VK)
	case event.KindMouseButton:
		return mouseButtonNames[in.Button]
	case event.KindXInput:
		return fmt.Sprintf("GAMEPAD_%04X_%s", in.VID, XButtonName(in.XButton))
	case event.KindHid:
		return fmt.Sprintf("DEVICE_%04X_%04X_%s_B%d.%d",
			in.VID, in.PID, FormatSerial(in.Serial), in.ByteIx, in.BitIx)
	case event.KindMouseMotion:
		return motionNames[in.Direction]
	case event.KindMouseWheel:
		if in.WheelDelta >= 0 {
			return "SCROLL_UP"
		}
		return "SCROLL_DOWN"
	}
	return ""
}

// Hash derives the u32 FNV-1a hash of a canonical token string, the key type
// of the reverse index and the ring buffer.
func Hash(token string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(token); i++ {
		h ^= uint32(token[i])
		h *= 16777619
	}
	return h
}

// HashInput is Hash(FormatToken(in)).
func HashInput(in event.Input) uint32 {
	return Hash(FormatToken(in))
}

// Chord is a canonicalized simultaneous combination: one main input plus the
// modifier set, and for gamepad chords the additional pad buttons.
type Chord struct {
	// Main is the non-modifier member.
	Main event.Input
	// Mods is the keyboard modifier set. Excludes Main even when Main is
	// itself a modifier key.
	Mods ModMask
	// XSub holds extra gamepad buttons that must be held together with a
	// gamepad Main, in canonical (ascending) order.
	XSub []event.XButton
}

// ParseChord parses a '+'-joined chord string. For keyboard chords every
// token except the last must be a modifier. Gamepad chords name the pad once:
// "GAMEPAD_045E_LB+A" holds LB and A on pad 045E, the final button is main.
func ParseChord(s string) (Chord, error) {
	parts := strings.Split(s, "+")
	// A trailing or leading '+' means a literal plus was intended nowhere in
	// this grammar; reject, naming the whole chord string as the token.
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Chord{}, &ParseError{Token: s}
		}
	}

	first, err := ParseToken(parts[0])
	if err != nil {
		return Chord{}, err
	}

	if first.Kind == event.KindXInput {
		buttons := []event.XButton{first.XButton}
		for _, p := range parts[1:] {
			name := strings.TrimSpace(p)
			b, ok := XButtonByName(name)
			if !ok {
				return Chord{}, &ParseError{Token: name}
			}
			buttons = append(buttons, b)
		}
		main := first
		main.XButton = buttons[len(buttons)-1]
		sub := buttons[:len(buttons)-1]
		sortXButtons(sub)
		return Chord{Main: main, XSub: sub}, nil
	}

	if len(parts) == 1 {
		return Chord{Main: first}, nil
	}

	// Multi-token chords beyond gamepads are keyboard-only: leading tokens
	// are modifiers, the final token is the main key.
	var mods ModMask
	inputs := []event.Input{first}
	for _, p := range parts[1:] {
		in, err := ParseToken(p)
		if err != nil {
			return Chord{}, err
		}
		inputs = append(inputs, in)
	}
	for _, in := range inputs[:len(inputs)-1] {
		if in.Kind != event.KindKeyboard || !IsModifierVK(in.VK) {
			return Chord{}, &ParseError{Token: FormatToken(in)}
		}
		mods |= ModBit(in.VK)
	}
	main := inputs[len(inputs)-1]
	switch main.Kind {
	case event.KindKeyboard:
		// A modifier in main position stays the main key; its own bit never
		// joins the mask.
		mods &^= ModBit(main.VK)
	case event.KindMouseButton, event.KindMouseMotion, event.KindMouseWheel:
		// Mouse mains accept keyboard modifiers.
	default:
		return Chord{}, &ParseError{Token: FormatToken(main)}
	}
	return Chord{Main: main, Mods: mods}, nil
}

func sortXButtons(b []event.XButton) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j] < b[j-1]; j-- {
			b[j], b[j-1] = b[j-1], b[j]
		}
	}
}

// Format renders the canonical chord string: modifiers in mask order, then
// sub-buttons, then the main token.
func (c Chord) Format() string {
	if c.Main.Kind == event.KindXInput {
		var sb strings.Builder
		fmt.Fprintf(&sb, "GAMEPAD_%04X_", c.Main.VID)
		for _, b := range c.XSub {
			sb.WriteString(XButtonName(b))
			sb.WriteByte('+')
		}
		sb.WriteString(XButtonName(c.Main.XButton))
		return sb.String()
	}
	mods := c.Mods.String()
	main := FormatToken(c.Main)
	if mods == "" {
		return main
	}
	return mods + "+" + main
}

// MainHash returns the reverse-index key: the hash of the main token.
func (c Chord) MainHash() uint32 {
	return HashInput(c.Main)
}

// Canonicalize parses and re-formats a chord string, yielding its stable
// canonical form.
func Canonicalize(s string) (string, error) {
	c, err := ParseChord(s)
	if err != nil {
		return "", err
	}
	return c.Format(), nil
}
