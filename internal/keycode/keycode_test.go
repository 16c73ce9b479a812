package keycode

import "testing"

// TestVKNameRoundTrip verifies the VK name tables invert each other.
func TestVKNameRoundTrip(t *testing.T) {
	for vk := uint16(0x01); vk < 0xFF; vk++ {
		name := VKName(vk)
		got, ok := NameVK(name)
		if !ok {
			t.Errorf("NameVK(%q) failed for vk %#x", name, vk)
			continue
		}
		if got != vk {
			t.Errorf("NameVK(VKName(%#x)) = %#x", vk, got)
		}
	}
}

// TestVKToScanExtended verifies the extended-key table: navigation cluster,
// arrows, numpad divide and right-hand modifiers need the extended flag,
// while their numpad scancode twins do not.
func TestVKToScanExtended(t *testing.T) {
	extended := []uint16{0x25, 0x26, 0x27, 0x28, 0x2D, 0x2E, 0x24, 0x23, 0x21, 0x22, 0x6F, 0xA3, 0xA5, 0x5B, 0x5C, 0x2C}
	for _, vk := range extended {
		if _, ext := VKToScan(vk); !ext {
			t.Errorf("vk %#x (%s) should be extended", vk, VKName(vk))
		}
	}
	plain := []uint16{'A', '1', 0xA0, 0xA1, 0xA2, 0xA4, 0x70, 0x60, 0x67, 0x0D, 0x20}
	for _, vk := range plain {
		if _, ext := VKToScan(vk); ext {
			t.Errorf("vk %#x (%s) should not be extended", vk, VKName(vk))
		}
	}
}

// TestVKToScanValues spot-checks well-known set-1 scancodes.
func TestVKToScanValues(t *testing.T) {
	cases := map[uint16]uint16{
		'A':  0x1E,
		'Q':  0x10,
		'1':  0x02,
		0x0D: 0x1C, // RETURN
		0x70: 0x3B, // F1
		0xA0: 0x2A, // LSHIFT
		0xA1: 0x36, // RSHIFT
	}
	for vk, want := range cases {
		if scan, _ := VKToScan(vk); scan != want {
			t.Errorf("VKToScan(%s) = %#x, want %#x", VKName(vk), scan, want)
		}
	}
}

// TestModBit verifies the modifier mask bits, including the generic aliases
// resolving to the left variant.
func TestModBit(t *testing.T) {
	if ModBit(VKLShift) != ModLShift || ModBit(VKRShift) != ModRShift {
		t.Error("shift bits wrong")
	}
	if ModBit(VKShift) != ModLShift {
		t.Error("generic SHIFT should map to the LSHIFT bit")
	}
	if ModBit('A') != 0 {
		t.Error("A is not a modifier")
	}
}

// TestModMaskString verifies canonical ordering of the mask rendering.
func TestModMaskString(t *testing.T) {
	m := ModRAlt | ModLCtrl | ModLShift
	if got := m.String(); got != "LCTRL+LSHIFT+RALT" {
		t.Errorf("String() = %q, want LCTRL+LSHIFT+RALT", got)
	}
	if got := (ModMask(0)).String(); got != "" {
		t.Errorf("empty mask renders %q", got)
	}
}
