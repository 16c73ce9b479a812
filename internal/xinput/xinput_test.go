package xinput

import (
	"testing"

	"quickfire/internal/event"
)

// TestDecomposeButtons verifies plain button bits map to their codes.
func TestDecomposeButtons(t *testing.T) {
	m := Decompose(PadState{Buttons: btnA | btnLB | btnStart})
	for _, b := range []event.XButton{event.XA, event.XLB, event.XStart} {
		if !m.Has(b) {
			t.Errorf("missing %v", b)
		}
	}
	if m.Has(event.XB) {
		t.Error("unexpected B")
	}
}

// TestDecomposeTriggers verifies the analog trigger threshold.
func TestDecomposeTriggers(t *testing.T) {
	if Decompose(PadState{LT: triggerThreshold}).Has(event.XLT) {
		t.Error("LT at threshold should not register")
	}
	if !Decompose(PadState{LT: triggerThreshold + 1}).Has(event.XLT) {
		t.Error("LT above threshold should register")
	}
	if !Decompose(PadState{RT: 255}).Has(event.XRT) {
		t.Error("RT fully pulled should register")
	}
}

// TestDecomposeStickDirections verifies deadzone handling and the
// canonicalization of diagonal stick states.
func TestDecomposeStickDirections(t *testing.T) {
	if m := Decompose(PadState{LX: 1000, LY: -1000}); m != 0 {
		t.Errorf("inside deadzone decomposed to %v", m)
	}
	if m := Decompose(PadState{LX: 20000}); !m.Has(event.XLSRight) {
		t.Error("LS right not detected")
	}
	if m := Decompose(PadState{LY: -20000}); !m.Has(event.XLSDown) {
		t.Error("LS down not detected (negative Y is down)")
	}
	m := Decompose(PadState{LX: 20000, LY: -20000})
	if !m.Has(event.XLSRightDown) {
		t.Errorf("diagonal not canonicalized: %v", m)
	}
	if m.Has(event.XLSRight) || m.Has(event.XLSDown) {
		t.Error("diagonal left its cardinals set")
	}
	if m := Decompose(PadState{RX: -20000, RY: 20000}); !m.Has(event.XRSLeftUp) {
		t.Error("RS left-up not detected")
	}
}

// TestDecomposeDPadDiagonal verifies D-Pad diagonals canonicalize.
func TestDecomposeDPadDiagonal(t *testing.T) {
	m := Decompose(PadState{Buttons: btnDPadUp | btnDPadRight})
	if !m.Has(event.XDPadUpRight) {
		t.Errorf("dpad diagonal missing: %v", m)
	}
	if m.Has(event.XDPadUp) || m.Has(event.XDPadRight) {
		t.Error("dpad diagonal left its cardinals set")
	}
}

type transition struct {
	b    event.XButton
	down bool
}

type diffRecorder struct {
	got []transition
}

func (r *diffRecorder) OnXInput(in event.Input, down bool, tsUS uint64) {
	r.got = append(r.got, transition{b: in.XButton, down: down})
}

// TestDiffTransitions verifies only changed buttons emit, with the right
// edge direction.
func TestDiffTransitions(t *testing.T) {
	rec := &diffRecorder{}
	prev := Decompose(PadState{Buttons: btnA})
	cur := Decompose(PadState{Buttons: btnB})
	Diff(rec, 0x045E, prev, cur, 0)

	if len(rec.got) != 2 {
		t.Fatalf("transitions = %+v", rec.got)
	}
	seen := map[event.XButton]bool{}
	for _, tr := range rec.got {
		seen[tr.b] = tr.down
	}
	if down, ok := seen[event.XA]; !ok || down {
		t.Error("A release missing")
	}
	if down, ok := seen[event.XB]; !ok || !down {
		t.Error("B press missing")
	}
}

// TestDiffStickSweep verifies moving through a diagonal produces the
// canonical state changes a sequence trigger sees.
func TestDiffStickSweep(t *testing.T) {
	rec := &diffRecorder{}
	states := []PadState{
		{LY: -20000},              // down
		{LX: 20000, LY: -20000},   // down-right diagonal
		{LX: 20000},               // right
	}
	prev := HeldMask(0)
	for _, s := range states {
		cur := Decompose(s)
		Diff(rec, 0x045E, prev, cur, 0)
		prev = cur
	}

	var downs []event.XButton
	for _, tr := range rec.got {
		if tr.down {
			downs = append(downs, tr.b)
		}
	}
	want := []event.XButton{event.XLSDown, event.XLSRightDown, event.XLSRight}
	if len(downs) != len(want) {
		t.Fatalf("presses = %v, want %v", downs, want)
	}
	for i := range want {
		if downs[i] != want[i] {
			t.Errorf("press %d = %v, want %v", i, downs[i], want[i])
		}
	}
}
