package sequence

import (
	"testing"

	"quickfire/internal/event"
	"quickfire/internal/keycode"
)

func key(name string) event.Input {
	in, err := keycode.ParseToken(name)
	if err != nil {
		panic(err)
	}
	return in
}

func pad(button string) event.Input {
	return key("GAMEPAD_045E_" + button)
}

const ms = uint64(1000)

// TestMatchKeyboardSequence verifies a plain ordered sequence matches within
// its window and fires exactly once.
func TestMatchKeyboardSequence(t *testing.T) {
	m := NewMatcher(0)
	m.Register(77, []event.Input{key("A"), key("B"), key("C")}, 500*ms, 0)

	if _, ok := m.Offer(key("A"), 0); ok {
		t.Error("premature match on first input")
	}
	if _, ok := m.Offer(key("B"), 30*ms); ok {
		t.Error("premature match on second input")
	}
	id, ok := m.Offer(key("C"), 60*ms)
	if !ok || id != 77 {
		t.Fatalf("Offer = (%d, %v), want (77, true)", id, ok)
	}
}

// TestMatchWindowExpiry verifies inputs older than the window never
// complete a match.
func TestMatchWindowExpiry(t *testing.T) {
	m := NewMatcher(0)
	m.Register(5, []event.Input{key("A"), key("B")}, 100*ms, 0)

	m.Offer(key("A"), 0)
	if _, ok := m.Offer(key("B"), 150*ms); ok {
		t.Error("matched outside the window")
	}
}

// TestStickSequenceWithTransitionTolerance replays the quarter-circle
// LS_Down, LS_DownRight, LS_Right, A against the pattern that omits the
// intermediate diagonal.
func TestStickSequenceWithTransitionTolerance(t *testing.T) {
	m := NewMatcher(0)
	pattern := []event.Input{pad("LS_Down"), pad("LS_Right"), pad("A")}
	m.Register(9, pattern, 500*ms, event.TagXInput(0x045E))

	m.Offer(pad("LS_Down"), 0)
	m.Offer(pad("LS_RightDown"), 30*ms) // tolerated intermediate
	m.Offer(pad("LS_Right"), 60*ms)
	id, ok := m.Offer(pad("A"), 70*ms)
	if !ok || id != 9 {
		t.Fatalf("Offer = (%d, %v), want (9, true)", id, ok)
	}
}

// TestSequenceCooldown verifies a second identical sequence inside the
// window is suppressed and that a foreign input re-arms it.
func TestSequenceCooldown(t *testing.T) {
	m := NewMatcher(0)
	m.Register(9, []event.Input{pad("LS_Down"), pad("A")}, 500*ms, 0)

	m.Offer(pad("LS_Down"), 0)
	if _, ok := m.Offer(pad("A"), 50*ms); !ok {
		t.Fatal("first match failed")
	}

	m.Offer(pad("LS_Down"), 100*ms)
	if _, ok := m.Offer(pad("A"), 150*ms); ok {
		t.Error("re-fire inside cooldown was not suppressed")
	}
	if m.CooldownSuppressed.Load() == 0 {
		t.Error("cooldown suppression not counted")
	}

	// A non-pattern input interrupts the cooldown.
	m.Offer(key("Z"), 200*ms)
	m.Offer(pad("LS_Down"), 210*ms)
	if _, ok := m.Offer(pad("A"), 260*ms); !ok {
		t.Error("match after interrupt was still suppressed")
	}
}

// TestDiagonalBidirectional verifies a diagonal pattern element accepts its
// component cardinals played in either order.
func TestDiagonalBidirectional(t *testing.T) {
	m := NewMatcher(0)
	m.Register(3, []event.Input{pad("LS_RightDown"), pad("A")}, 500*ms, 0)

	m.Offer(pad("LS_Down"), 0)
	m.Offer(pad("LS_Right"), 20*ms)
	if _, ok := m.Offer(pad("A"), 40*ms); !ok {
		t.Error("Down,Right ordering did not satisfy the diagonal")
	}

	m.Offer(key("Z"), 600*ms) // interrupt cooldown
	m.Offer(pad("LS_Right"), 700*ms)
	m.Offer(pad("LS_Down"), 720*ms)
	if _, ok := m.Offer(pad("A"), 740*ms); !ok {
		t.Error("Right,Down ordering did not satisfy the diagonal")
	}
}

// TestDeviceFilter verifies entries from other devices are skipped rather
// than breaking the pattern.
func TestDeviceFilter(t *testing.T) {
	m := NewMatcher(0)
	m.Register(4, []event.Input{pad("LS_Down"), pad("A")}, 500*ms, event.TagXInput(0x045E))

	m.Offer(pad("LS_Down"), 0)
	m.Offer(key("Q"), 10*ms) // keyboard noise between pad inputs
	if _, ok := m.Offer(pad("A"), 30*ms); !ok {
		t.Error("keyboard entry between pad inputs broke the match")
	}
}

// TestTombstoneAndCompact verifies removed sequences stop matching and
// Compact drops them from the scan.
func TestTombstoneAndCompact(t *testing.T) {
	m := NewMatcher(0)
	m.Register(8, []event.Input{key("A"), key("B")}, 500*ms, 0)
	m.Remove(8)

	m.Offer(key("A"), 0)
	if _, ok := m.Offer(key("B"), 10*ms); ok {
		t.Error("tombstoned sequence matched")
	}
	m.Compact()
	if n := len(*m.regs.Load()); n != 0 {
		t.Errorf("registry has %d entries after compact, want 0", n)
	}
}
