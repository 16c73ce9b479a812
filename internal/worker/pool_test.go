package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quickfire/internal/config"
	"quickfire/internal/inject"
	"quickfire/internal/keycode"
	"quickfire/internal/output"
)

// recorder captures injected batches with timestamps.
type recorder struct {
	mu      sync.Mutex
	batches [][]inject.Event
	times   []time.Time
}

func (r *recorder) InjectBatch(events []inject.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]inject.Event(nil), events...)
	r.batches = append(r.batches, cp)
	r.times = append(r.times, time.Now())
	return nil
}

func (r *recorder) snapshot() [][]inject.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]inject.Event(nil), r.batches...)
}

func (r *recorder) countType(t inject.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		for _, e := range b {
			if e.Type == t {
				n++
			}
		}
	}
	return n
}

func chord(t *testing.T, s string) keycode.Chord {
	t.Helper()
	c, err := keycode.ParseChord(s)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testSnapshot(mappings ...*config.Mapping) *config.Snapshot {
	snap := &config.Snapshot{ByID: make(map[uint32]*config.Mapping)}
	for _, m := range mappings {
		snap.Mappings = append(snap.Mappings, m)
		snap.ByID[m.ID] = m
	}
	return snap
}

func startPool(t *testing.T, snap *config.Snapshot) (*Pool, *recorder) {
	t.Helper()
	rec := &recorder{}
	synth := output.New(rec)
	cur := snap
	p := NewPool(2, synth, func() *config.Snapshot { return cur })
	p.Start()
	t.Cleanup(p.Stop)
	return p, rec
}

// TestShardStability verifies mapping-to-worker assignment depends only on
// the mapping id and worker count.
func TestShardStability(t *testing.T) {
	ids := []uint32{1, 77, 0xDEADBEEF, 42, 9999}
	for _, id := range ids {
		first := Shard(id, 4)
		for i := 0; i < 10; i++ {
			if Shard(id, 4) != first {
				t.Fatalf("Shard(%d) unstable", id)
			}
		}
		if first < 0 || first >= 4 {
			t.Errorf("Shard(%d) = %d out of range", id, first)
		}
	}
}

// TestTurboRepeats verifies a held turbo trigger fires repeated cycles at
// roughly the configured interval until release.
func TestTurboRepeats(t *testing.T) {
	m := &config.Mapping{
		ID:              11,
		Trigger:         chord(t, "A"),
		Targets:         []keycode.Chord{chord(t, "A")},
		IntervalMS:      10,
		EventDurationMS: 2,
		TurboEnabled:    true,
	}
	p, rec := startPool(t, testSnapshot(m))

	p.Activate(11, 0)
	time.Sleep(105 * time.Millisecond)
	p.Release(11)
	time.Sleep(30 * time.Millisecond)

	downs := rec.countType(inject.KeyDown)
	ups := rec.countType(inject.KeyUp)
	if downs < 6 || downs > 14 {
		t.Errorf("got %d down cycles over ~100 ms at 10 ms interval", downs)
	}
	if downs != ups {
		t.Errorf("unbalanced cycles: %d downs, %d ups", downs, ups)
	}

	before := rec.countType(inject.KeyDown)
	time.Sleep(50 * time.Millisecond)
	if after := rec.countType(inject.KeyDown); after != before {
		t.Error("cycles continued after release")
	}
}

// TestNonTurboSingleCycle verifies turbo_enabled=false emits exactly one
// press on activation and one release on deactivation.
func TestNonTurboSingleCycle(t *testing.T) {
	m := &config.Mapping{
		ID:              21,
		Trigger:         chord(t, "LCTRL+C"),
		Targets:         []keycode.Chord{chord(t, "LCTRL+V")},
		TargetMode:      config.TargetMulti,
		IntervalMS:      10,
		EventDurationMS: 2,
		TurboEnabled:    false,
	}
	p, rec := startPool(t, testSnapshot(m))

	p.Activate(21, keycode.ModLCtrl)
	time.Sleep(50 * time.Millisecond)
	p.Release(21)
	time.Sleep(30 * time.Millisecond)

	// The trigger already holds LCTRL and the target wants it: no modifier
	// traffic, exactly one V down and one V up.
	scanV, _ := keycode.VKToScan('V')
	downs, ups := 0, 0
	for _, b := range rec.snapshot() {
		for _, e := range b {
			switch e.Type {
			case inject.KeyDown:
				if e.Scan != scanV {
					t.Errorf("unexpected key down scan %#x", e.Scan)
				}
				downs++
			case inject.KeyUp:
				if e.Scan != scanV {
					t.Errorf("unexpected key up scan %#x", e.Scan)
				}
				ups++
			}
		}
	}
	if downs != 1 || ups != 1 {
		t.Errorf("got %d downs / %d ups, want exactly one cycle", downs, ups)
	}
}

// TestSequenceTargetPlaysOnce verifies a non-turbo sequence-mode target
// plays every chord once, spaced by the interval.
func TestSequenceTargetPlaysOnce(t *testing.T) {
	targets := []keycode.Chord{
		chord(t, "H"), chord(t, "E"), chord(t, "L"), chord(t, "L"), chord(t, "O"),
	}
	m := &config.Mapping{
		ID:              31,
		Trigger:         chord(t, "F5"),
		Targets:         targets,
		TargetMode:      config.TargetSequence,
		IntervalMS:      10,
		EventDurationMS: 2,
		TurboEnabled:    false,
	}
	p, rec := startPool(t, testSnapshot(m))

	p.Activate(31, 0)
	time.Sleep(150 * time.Millisecond)
	p.Release(31)
	time.Sleep(20 * time.Millisecond)

	var downs []uint16
	for _, b := range rec.snapshot() {
		for _, e := range b {
			if e.Type == inject.KeyDown {
				downs = append(downs, e.Scan)
			}
		}
	}
	want := []uint16{}
	for _, c := range targets {
		want = append(want, c.Main.Scan)
	}
	if len(downs) != len(want) {
		t.Fatalf("played %d keys, want %d", len(downs), len(want))
	}
	for i := range want {
		if downs[i] != want[i] {
			t.Errorf("position %d: scan %#x, want %#x", i, downs[i], want[i])
		}
	}
}

// TestSequenceTargetTurboAdvances verifies a turbo sequence target advances
// one chord per tick and wraps.
func TestSequenceTargetTurboAdvances(t *testing.T) {
	targets := []keycode.Chord{chord(t, "1"), chord(t, "2")}
	m := &config.Mapping{
		ID:              41,
		Trigger:         chord(t, "A"),
		Targets:         targets,
		TargetMode:      config.TargetSequence,
		IntervalMS:      10,
		EventDurationMS: 2,
		TurboEnabled:    true,
	}
	p, rec := startPool(t, testSnapshot(m))

	p.Activate(41, 0)
	time.Sleep(65 * time.Millisecond)
	p.Release(41)
	time.Sleep(20 * time.Millisecond)

	var downs []uint16
	for _, b := range rec.snapshot() {
		for _, e := range b {
			if e.Type == inject.KeyDown {
				downs = append(downs, e.Scan)
			}
		}
	}
	if len(downs) < 4 {
		t.Fatalf("only %d ticks fired", len(downs))
	}
	s1, _ := keycode.VKToScan('1')
	s2, _ := keycode.VKToScan('2')
	for i, scan := range downs {
		want := s1
		if i%2 == 1 {
			want = s2
		}
		if scan != want {
			t.Errorf("tick %d: scan %#x, want %#x", i, scan, want)
		}
	}
}

// TestMotionVectorMerge verifies two simultaneously active motion mappings
// merge into single diagonal deltas per tick.
func TestMotionVectorMerge(t *testing.T) {
	up := &config.Mapping{
		ID:              51,
		Trigger:         chord(t, "W"),
		Targets:         []keycode.Chord{chord(t, "MOUSE_UP")},
		IntervalMS:      10,
		EventDurationMS: 2,
		MoveSpeed:       5,
		TurboEnabled:    true,
	}
	left := &config.Mapping{
		ID:              52,
		Trigger:         chord(t, "Q"),
		Targets:         []keycode.Chord{chord(t, "MOUSE_LEFT")},
		IntervalMS:      10,
		EventDurationMS: 2,
		MoveSpeed:       5,
		TurboEnabled:    true,
	}
	p, rec := startPool(t, testSnapshot(up, left))

	p.Activate(51, 0)
	p.Activate(52, 0)
	time.Sleep(80 * time.Millisecond)
	p.Release(51)
	p.Release(52)
	time.Sleep(20 * time.Millisecond)

	diagonal := 0
	for _, b := range rec.snapshot() {
		for _, e := range b {
			if e.Type == inject.MouseMove && e.DX == -5 && e.DY == -5 {
				diagonal++
			}
		}
	}
	if diagonal < 3 {
		t.Errorf("saw %d merged (-5,-5) deltas, want several", diagonal)
	}
}

// TestHandleSwapReleasesRemovedMappings verifies the grace pass tears down
// turbo state for mappings that vanish in a config swap.
func TestHandleSwapReleasesRemovedMappings(t *testing.T) {
	m := &config.Mapping{
		ID:              61,
		Trigger:         chord(t, "A"),
		Targets:         []keycode.Chord{chord(t, "B")},
		IntervalMS:      10,
		EventDurationMS: 2,
		TurboEnabled:    true,
	}
	old := testSnapshot(m)
	rec := &recorder{}
	synth := output.New(rec)
	var cur atomic.Pointer[config.Snapshot]
	cur.Store(old)
	p := NewPool(2, synth, cur.Load)
	p.Start()
	defer p.Stop()

	p.Activate(61, 0)
	time.Sleep(30 * time.Millisecond)

	empty := testSnapshot()
	cur.Store(empty)
	p.HandleSwap(old, empty)
	time.Sleep(30 * time.Millisecond)

	before := rec.countType(inject.KeyDown)
	time.Sleep(50 * time.Millisecond)
	if after := rec.countType(inject.KeyDown); after != before {
		t.Error("turbo kept firing after the swap removed its mapping")
	}
	if p.StuckKeyCorrected.Load() == 0 {
		t.Error("stuck-key correction not counted")
	}
}
