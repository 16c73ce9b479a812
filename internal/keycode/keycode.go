// Package keycode implements the canonical key and token model: virtual-key
// names, scancode conversion, modifier masks, and the KeyToken wire grammar.
package keycode

import (
	"fmt"
	"strconv"
	"strings"
)

// Virtual-key codes used directly by the engine.
const (
	VKLButton  = 0x01
	VKRButton  = 0x02
	VKMButton  = 0x04
	VKXButton1 = 0x05
	VKXButton2 = 0x06

	VKShift   = 0x10
	VKControl = 0x11
	VKMenu    = 0x12

	VKLShift   = 0xA0
	VKRShift   = 0xA1
	VKLControl = 0xA2
	VKRControl = 0xA3
	VKLMenu    = 0xA4
	VKRMenu    = 0xA5
	VKLWin     = 0x5B
	VKRWin     = 0x5C

	VKDelete = 0x2E
)

// ModMask is a bitmask over the eight distinct modifier keys. Left and right
// variants never compare equal.
type ModMask uint8

const (
	ModLCtrl ModMask = 1 << iota
	ModRCtrl
	ModLShift
	ModRShift
	ModLAlt
	ModRAlt
	ModLWin
	ModRWin
)

// ModBit returns the mask bit for a modifier virtual key, or 0 for
// non-modifier keys. Generic SHIFT/CTRL/ALT codes resolve to the left variant.
func ModBit(vk uint16) ModMask {
	switch vk {
	case VKLControl, VKControl:
		return ModLCtrl
	case VKRControl:
		return ModRCtrl
	case VKLShift, VKShift:
		return ModLShift
	case VKRShift:
		return ModRShift
	case VKLMenu, VKMenu:
		return ModLAlt
	case VKRMenu:
		return ModRAlt
	case VKLWin:
		return ModLWin
	case VKRWin:
		return ModRWin
	}
	return 0
}

// IsModifierVK reports whether vk is one of the eight modifiers or their
// generic aliases.
func IsModifierVK(vk uint16) bool {
	return ModBit(vk) != 0
}

// NormalizeModifierVK rewrites generic SHIFT/CTRL/ALT virtual keys to their
// left-hand variants. Distinct left/right codes pass through unchanged.
func NormalizeModifierVK(vk uint16) uint16 {
	switch vk {
	case VKShift:
		return VKLShift
	case VKControl:
		return VKLControl
	case VKMenu:
		return VKLMenu
	}
	return vk
}

// String lists the set bits in canonical order, joined by "+".
func (m ModMask) String() string {
	if m == 0 {
		return ""
	}
	names := []struct {
		bit  ModMask
		name string
	}{
		{ModLCtrl, "LCTRL"}, {ModRCtrl, "RCTRL"},
		{ModLShift, "LSHIFT"}, {ModRShift, "RSHIFT"},
		{ModLAlt, "LALT"}, {ModRAlt, "RALT"},
		{ModLWin, "LWIN"}, {ModRWin, "RWIN"},
	}
	parts := make([]string, 0, 4)
	for _, n := range names {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

// VKs returns the modifier virtual keys present in m, in canonical order.
func (m ModMask) VKs() []uint16 {
	order := []struct {
		bit ModMask
		vk  uint16
	}{
		{ModLCtrl, VKLControl}, {ModRCtrl, VKRControl},
		{ModLShift, VKLShift}, {ModRShift, VKRShift},
		{ModLAlt, VKLMenu}, {ModRAlt, VKRMenu},
		{ModLWin, VKLWin}, {ModRWin, VKRWin},
	}
	out := make([]uint16, 0, 4)
	for _, o := range order {
		if m&o.bit != 0 {
			out = append(out, o.vk)
		}
	}
	return out
}

var specialNames = map[uint16]string{
	0x20: "SPACE", 0x0D: "RETURN", 0x09: "TAB", 0x1B: "ESCAPE", 0x08: "BACK",
	0x2E: "DELETE", 0x2D: "INSERT", 0x24: "HOME", 0x23: "END",
	0x21: "PAGEUP", 0x22: "PAGEDOWN",
	0x26: "UP", 0x28: "DOWN", 0x25: "LEFT", 0x27: "RIGHT",
	0x14: "CAPITAL", 0x90: "NUMLOCK", 0x91: "SCROLL", 0x13: "PAUSE", 0x2C: "SNAPSHOT",
	0x6A: "MULTIPLY", 0x6B: "ADD", 0x6C: "SEPARATOR", 0x6D: "SUBTRACT",
	0x6E: "DECIMAL", 0x6F: "DIVIDE",
	0xBA: "OEM_1", 0xBB: "OEM_PLUS", 0xBC: "OEM_COMMA", 0xBD: "OEM_MINUS",
	0xBE: "OEM_PERIOD", 0xBF: "OEM_2", 0xC0: "OEM_3", 0xDB: "OEM_4",
	0xDC: "OEM_5", 0xDD: "OEM_6", 0xDE: "OEM_7", 0xDF: "OEM_8", 0xE2: "OEM_102",
	0xA2: "LCTRL", 0xA3: "RCTRL", 0xA4: "LALT", 0xA5: "RALT",
	0xA0: "LSHIFT", 0xA1: "RSHIFT", 0x5B: "LWIN", 0x5C: "RWIN",
	0x01: "LBUTTON", 0x02: "RBUTTON", 0x04: "MBUTTON",
	0x05: "XBUTTON1", 0x06: "XBUTTON2",
	0x0C: "CLEAR",
}

var specialVKs = func() map[string]uint16 {
	m := make(map[string]uint16, len(specialNames)+16)
	for vk, name := range specialNames {
		m[name] = vk
	}
	// Aliases accepted on input only.
	m["ESC"] = 0x1B
	m["ENTER"] = 0x0D
	m["BACKSPACE"] = 0x08
	m["CAPSLOCK"] = 0x14
	m["SHIFT"] = VKShift
	m["CTRL"] = VKControl
	m["ALT"] = VKMenu
	m["WIN"] = VKLWin
	return m
}()

// VKName converts a virtual-key code to its canonical token name. Unknown
// codes format as VK_xx hex.
func VKName(vk uint16) string {
	switch {
	case vk >= 0x41 && vk <= 0x5A, vk >= 0x30 && vk <= 0x39:
		return string(rune(vk))
	case vk >= 0x60 && vk <= 0x69:
		return "NUMPAD" + strconv.Itoa(int(vk-0x60))
	case vk >= 0x70 && vk <= 0x87:
		return "F" + strconv.Itoa(int(vk-0x70+1))
	}
	if name, ok := specialNames[vk]; ok {
		return name
	}
	return fmt.Sprintf("VK_%02X", vk)
}

// NameVK converts a key name (case-insensitive) to its virtual-key code.
// Generic SHIFT/CTRL/ALT resolve to the generic codes; callers canonicalize
// with NormalizeModifierVK.
func NameVK(name string) (uint16, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if len(key) == 1 {
		c := key[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return uint16(c), true
		}
	}
	if strings.HasPrefix(key, "F") && len(key) > 1 {
		if n, err := strconv.Atoi(key[1:]); err == nil && n >= 1 && n <= 24 {
			return uint16(0x70 + n - 1), true
		}
	}
	if strings.HasPrefix(key, "NUMPAD") && len(key) == 7 {
		if n, err := strconv.Atoi(key[6:]); err == nil && n >= 0 && n <= 9 {
			return uint16(0x60 + n), true
		}
	}
	if strings.HasPrefix(key, "VK_") {
		if n, err := strconv.ParseUint(key[3:], 16, 16); err == nil {
			return uint16(n), true
		}
	}
	vk, ok := specialVKs[key]
	return vk, ok
}

// scanTable maps virtual keys to set-1 scancodes for synthesis.
var scanTable = map[uint16]uint16{
	0x1B: 0x01, '1': 0x02, '2': 0x03, '3': 0x04, '4': 0x05, '5': 0x06,
	'6': 0x07, '7': 0x08, '8': 0x09, '9': 0x0A, '0': 0x0B,
	0xBD: 0x0C, 0xBB: 0x0D, 0x08: 0x0E, 0x09: 0x0F,
	'Q': 0x10, 'W': 0x11, 'E': 0x12, 'R': 0x13, 'T': 0x14, 'Y': 0x15,
	'U': 0x16, 'I': 0x17, 'O': 0x18, 'P': 0x19,
	0xDB: 0x1A, 0xDD: 0x1B, 0x0D: 0x1C,
	0xA2: 0x1D, 0xA3: 0x1D,
	'A': 0x1E, 'S': 0x1F, 'D': 0x20, 'F': 0x21, 'G': 0x22, 'H': 0x23,
	'J': 0x24, 'K': 0x25, 'L': 0x26,
	0xBA: 0x27, 0xDE: 0x28, 0xC0: 0x29,
	0xA0: 0x2A, 0xDC: 0x2B,
	'Z': 0x2C, 'X': 0x2D, 'C': 0x2E, 'V': 0x2F, 'B': 0x30, 'N': 0x31, 'M': 0x32,
	0xBC: 0x33, 0xBE: 0x34, 0xBF: 0x35, 0xA1: 0x36,
	0x6A: 0x37, 0xA4: 0x38, 0xA5: 0x38, 0x20: 0x39, 0x14: 0x3A,
	0x70: 0x3B, 0x71: 0x3C, 0x72: 0x3D, 0x73: 0x3E, 0x74: 0x3F, 0x75: 0x40,
	0x76: 0x41, 0x77: 0x42, 0x78: 0x43, 0x79: 0x44,
	0x90: 0x45, 0x91: 0x46,
	0x67: 0x47, 0x68: 0x48, 0x69: 0x49, 0x6D: 0x4A,
	0x64: 0x4B, 0x65: 0x4C, 0x66: 0x4D, 0x6B: 0x4E,
	0x61: 0x4F, 0x62: 0x50, 0x63: 0x51, 0x60: 0x52, 0x6E: 0x53,
	0x7A: 0x57, 0x7B: 0x58,
	0x24: 0x47, 0x26: 0x48, 0x21: 0x49,
	0x25: 0x4B, 0x27: 0x4D,
	0x23: 0x4F, 0x28: 0x50, 0x22: 0x51, 0x2D: 0x52, 0x2E: 0x53,
	0x6F: 0x35, 0x2C: 0x37, 0x13: 0x45,
	0x5B: 0x5B, 0x5C: 0x5C, 0x5D: 0x5D,
	0xE2: 0x56, 0x6C: 0x4C, 0x0C: 0x4C,
}

// extendedVKs is a 256-bit table of virtual keys whose synthesized scancode
// needs the extended flag: arrows, the navigation cluster, numpad divide,
// right-hand modifiers, the Windows keys, apps, printscreen and numlock.
var extendedVKs = func() [4]uint64 {
	var t [4]uint64
	for _, vk := range []uint16{
		0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28, // nav + arrows
		0x2C, 0x2D, 0x2E, // printscreen, insert, delete
		0x5B, 0x5C, 0x5D, // win keys, apps
		0x6F,       // numpad divide
		0x90,       // numlock
		0xA3, 0xA5, // rctrl, ralt
	} {
		t[vk/64] |= 1 << (vk % 64)
	}
	return t
}()

// VKToScan converts a virtual key to the scancode and extended flag used by
// the output synthesizer. Unknown keys return scan 0.
func VKToScan(vk uint16) (scan uint16, extended bool) {
	scan = scanTable[vk]
	if vk < 256 {
		extended = extendedVKs[vk/64]&(1<<(vk%64)) != 0
	}
	return scan, extended
}
