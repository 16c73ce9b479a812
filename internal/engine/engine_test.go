package engine

import (
	"os"
	"path/filepath"
	"testing"

	"quickfire/internal/config"
	"quickfire/internal/event"
	"quickfire/internal/keycode"
)

// fakeDispatcher records trigger transitions in order.
type fakeDispatcher struct {
	events []string
	mods   []keycode.ModMask
}

func (d *fakeDispatcher) Activate(id uint32, mods keycode.ModMask) {
	d.events = append(d.events, "act")
	d.mods = append(d.mods, mods)
}
func (d *fakeDispatcher) Release(id uint32)                          { d.events = append(d.events, "rel") }
func (d *fakeDispatcher) ReleaseAll()                                { d.events = append(d.events, "relall") }
func (d *fakeDispatcher) HandleSwap(old, new *config.Snapshot)       {}

func newRuntime(t *testing.T, body string) (*Runtime, *fakeDispatcher, *config.Manager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	d := &fakeDispatcher{}
	rt := New(mgr, d, nil)
	return rt, d, mgr
}

func vk(name string) uint16 {
	v, ok := keycode.NameVK(name)
	if !ok {
		panic(name)
	}
	return keycode.NormalizeModifierVK(v)
}

// TestModifierExactness verifies a LSHIFT+A trigger activates only with
// exactly LSHIFT held, never with RSHIFT or bare A.
func TestModifierExactness(t *testing.T) {
	body := `
[[mappings]]
trigger_key = "LSHIFT+A"
target_key = "F1"
`
	rt, d, _ := newRuntime(t, body)

	// Bare A: no activation.
	rt.OnKeyboard(vk("A"), true, 1000)
	if len(d.events) != 0 {
		t.Fatalf("bare A activated: %v", d.events)
	}
	rt.OnKeyboard(vk("A"), false, 2000)

	// RSHIFT+A: no activation.
	rt.OnKeyboard(vk("RSHIFT"), true, 3000)
	rt.OnKeyboard(vk("A"), true, 4000)
	if len(d.events) != 0 {
		t.Fatalf("RSHIFT+A activated: %v", d.events)
	}
	rt.OnKeyboard(vk("A"), false, 5000)
	rt.OnKeyboard(vk("RSHIFT"), false, 6000)

	// LSHIFT+A: activation with the LSHIFT snapshot.
	rt.OnKeyboard(vk("LSHIFT"), true, 7000)
	if !rt.OnKeyboard(vk("A"), true, 8000) {
		t.Error("matched chord main key was not swallowed")
	}
	if len(d.events) != 1 || d.events[0] != "act" {
		t.Fatalf("events = %v, want one activation", d.events)
	}
	if d.mods[0] != keycode.ModLShift {
		t.Errorf("activation mods = %v, want LSHIFT", d.mods[0])
	}

	// Releasing the main key releases the trigger.
	rt.OnKeyboard(vk("A"), false, 9000)
	if len(d.events) != 2 || d.events[1] != "rel" {
		t.Fatalf("events = %v, want release", d.events)
	}
}

// TestAutoRepeatSuppressed verifies repeated downs while a trigger is held
// do not re-activate but are still swallowed.
func TestAutoRepeatSuppressed(t *testing.T) {
	body := `
[[mappings]]
trigger_key = "A"
target_key = "B"
`
	rt, d, _ := newRuntime(t, body)

	rt.OnKeyboard(vk("A"), true, 1000)
	for ts := uint64(2000); ts < 10000; ts += 1000 {
		if !rt.OnKeyboard(vk("A"), true, ts) {
			t.Error("auto-repeat down was not swallowed")
		}
	}
	if len(d.events) != 1 {
		t.Errorf("events = %v, want a single activation", d.events)
	}
}

// TestSwitchKeyToggle verifies the switch key disables dispatch for every
// mapping and is itself swallowed.
func TestSwitchKeyToggle(t *testing.T) {
	body := `
switch_key = "DELETE"

[[mappings]]
trigger_key = "A"
target_key = "B"
`
	rt, d, _ := newRuntime(t, body)

	if !rt.OnKeyboard(vk("DELETE"), true, 1000) {
		t.Error("switch key was not swallowed")
	}
	if rt.Enabled() {
		t.Fatal("switch key did not disable")
	}
	if len(d.events) != 1 || d.events[0] != "relall" {
		t.Errorf("disable did not tear down state: %v", d.events)
	}

	rt.OnKeyboard(vk("A"), true, 2000)
	rt.OnKeyboard(vk("A"), false, 3000)
	for _, e := range d.events[1:] {
		if e == "act" {
			t.Error("mapping activated while disabled")
		}
	}

	rt.OnKeyboard(vk("DELETE"), false, 4000)
	rt.OnKeyboard(vk("DELETE"), true, 5000)
	if !rt.Enabled() {
		t.Error("second switch press did not re-enable")
	}
}

// TestModifierReleaseBreaksChord verifies the chord deactivates when its
// modifier lifts, without swallowing the physical modifier event.
func TestModifierReleaseBreaksChord(t *testing.T) {
	body := `
[[mappings]]
trigger_key = "LCTRL+C"
target_key = "V"
`
	rt, d, _ := newRuntime(t, body)

	rt.OnKeyboard(vk("LCTRL"), true, 1000)
	rt.OnKeyboard(vk("C"), true, 2000)
	if len(d.events) != 1 {
		t.Fatalf("events = %v", d.events)
	}
	if rt.OnKeyboard(vk("LCTRL"), false, 3000) {
		t.Error("physical modifier release was swallowed")
	}
	if len(d.events) != 2 || d.events[1] != "rel" {
		t.Errorf("modifier release did not break the chord: %v", d.events)
	}
}

// TestSequenceActivationAndHold verifies a matched sequence activates its
// mapping and releasing the final input releases it.
func TestSequenceActivationAndHold(t *testing.T) {
	body := `
[[mappings]]
trigger_sequence = "A,B,C"
target_key = "F5"
sequence_window_ms = 500
`
	rt, d, _ := newRuntime(t, body)

	rt.OnKeyboard(vk("A"), true, 1*1000)
	rt.OnKeyboard(vk("A"), false, 20*1000)
	rt.OnKeyboard(vk("B"), true, 40*1000)
	rt.OnKeyboard(vk("B"), false, 60*1000)
	if !rt.OnKeyboard(vk("C"), true, 80*1000) {
		t.Error("sequence-completing input was not swallowed")
	}
	if len(d.events) != 1 || d.events[0] != "act" {
		t.Fatalf("events = %v, want one activation", d.events)
	}

	rt.OnKeyboard(vk("C"), false, 120*1000)
	if len(d.events) != 2 || d.events[1] != "rel" {
		t.Errorf("releasing the final input did not release: %v", d.events)
	}
}

// TestXInputChordSubButtons verifies pad chords require their sub-buttons
// held on the same pad.
func TestXInputChordSubButtons(t *testing.T) {
	body := `
[[mappings]]
trigger_key = "GAMEPAD_045E_LB+A"
target_key = "SPACE"
`
	rt, d, _ := newRuntime(t, body)
	padA := event.Input{Kind: event.KindXInput, VID: 0x045E, XButton: event.XA}
	padLB := event.Input{Kind: event.KindXInput, VID: 0x045E, XButton: event.XLB}

	rt.OnXInput(padA, true, 1000)
	if len(d.events) != 0 {
		t.Fatalf("A alone activated the chord: %v", d.events)
	}
	rt.OnXInput(padA, false, 2000)

	rt.OnXInput(padLB, true, 3000)
	rt.OnXInput(padA, true, 4000)
	if len(d.events) != 1 || d.events[0] != "act" {
		t.Fatalf("events = %v, want activation", d.events)
	}

	// Releasing the sub-button breaks the chord.
	rt.OnXInput(padLB, false, 5000)
	if len(d.events) != 2 || d.events[1] != "rel" {
		t.Errorf("sub-button release did not break the chord: %v", d.events)
	}
}

// TestConfigSwapRebuildsResolver verifies a reload swaps the trigger set.
func TestConfigSwapRebuildsResolver(t *testing.T) {
	body := `
[[mappings]]
trigger_key = "A"
target_key = "B"
`
	rt, d, mgr := newRuntime(t, body)

	next := `
[[mappings]]
trigger_key = "Q"
target_key = "B"
`
	if err := os.WriteFile(mgr.Path(), []byte(next), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	rt.OnKeyboard(vk("A"), true, 1000)
	if len(d.events) != 0 {
		t.Errorf("old trigger still active after swap: %v", d.events)
	}
	rt.OnKeyboard(vk("A"), false, 1500)
	rt.OnKeyboard(vk("Q"), true, 2000)
	if len(d.events) != 1 || d.events[0] != "act" {
		t.Errorf("new trigger inactive after swap: %v", d.events)
	}
}
