// Package output builds synthetic event batches for target chords: modifier
// suppression, batch packing, motion and wheel emission.
package output

import (
	"time"

	"quickfire/internal/event"
	"quickfire/internal/inject"
	"quickfire/internal/keycode"
)

// Synthesizer turns target chords into injection batches. One instance is
// shared by all workers; it holds no mutable state.
type Synthesizer struct {
	inj inject.Injector

	// Sleep is replaceable in tests.
	Sleep func(time.Duration)
}

// New creates a synthesizer over the given injector.
func New(inj inject.Injector) *Synthesizer {
	return &Synthesizer{inj: inj, Sleep: time.Sleep}
}

// modifierAdjustment is the per-cycle set of modifier key transitions: the
// trigger's surplus modifiers are lifted before the chord mains go down and
// restored after they come up.
type modifierAdjustment struct {
	subtract keycode.ModMask // held by the user, unwanted by the target
	add      keycode.ModMask // wanted by the target, not held
}

func adjustment(chords []keycode.Chord, triggerMods keycode.ModMask) modifierAdjustment {
	var want keycode.ModMask
	for _, c := range chords {
		want |= c.Mods
	}
	return modifierAdjustment{
		subtract: triggerMods &^ want,
		add:      want &^ triggerMods,
	}
}

func appendModifierKeys(batch []inject.Event, mods keycode.ModMask, t inject.Type) []inject.Event {
	for _, vk := range mods.VKs() {
		scan, ext := keycode.VKToScan(vk)
		batch = append(batch, inject.Key(t, scan, ext))
	}
	return batch
}

// appendMainDown adds the down event for a chord's main input. Motion and
// wheel mains emit their whole effect here; they have no release half.
func appendMainDown(batch []inject.Event, c keycode.Chord, moveSpeed uint8) []inject.Event {
	switch c.Main.Kind {
	case event.KindKeyboard:
		return append(batch, inject.Key(inject.KeyDown, c.Main.Scan, c.Main.Extended))
	case event.KindMouseButton:
		return append(batch, inject.Event{Type: inject.MouseButtonDown, Button: c.Main.Button})
	case event.KindMouseMotion:
		vx, vy := c.Main.Direction.Vector()
		return append(batch, inject.Event{
			Type: inject.MouseMove,
			DX:   int32(vx * float64(moveSpeed)),
			DY:   int32(vy * float64(moveSpeed)),
		})
	case event.KindMouseWheel:
		delta := int32(moveSpeed)
		if c.Main.WheelDelta < 0 {
			delta = -delta
		}
		return append(batch, inject.Event{Type: inject.MouseWheel, WheelDelta: delta})
	}
	return batch
}

func appendMainUp(batch []inject.Event, c keycode.Chord) []inject.Event {
	switch c.Main.Kind {
	case event.KindKeyboard:
		return append(batch, inject.Key(inject.KeyUp, c.Main.Scan, c.Main.Extended))
	case event.KindMouseButton:
		return append(batch, inject.Event{Type: inject.MouseButtonUp, Button: c.Main.Button})
	}
	return batch
}

// pressBatch builds the down half of one cycle: suppressed modifiers up,
// added modifiers down, then every chord main down.
func (s *Synthesizer) pressBatch(chords []keycode.Chord, adj modifierAdjustment, moveSpeed uint8) []inject.Event {
	batch := make([]inject.Event, 0, 8)
	batch = appendModifierKeys(batch, adj.subtract, inject.KeyUp)
	batch = appendModifierKeys(batch, adj.add, inject.KeyDown)
	for _, c := range chords {
		batch = appendMainDown(batch, c, moveSpeed)
	}
	return batch
}

// releaseBatch builds the up half: chord mains up in reverse, added
// modifiers up, suppressed modifiers restored.
func (s *Synthesizer) releaseBatch(chords []keycode.Chord, adj modifierAdjustment) []inject.Event {
	batch := make([]inject.Event, 0, 8)
	for i := len(chords) - 1; i >= 0; i-- {
		batch = appendMainUp(batch, chords[i])
	}
	batch = appendModifierKeys(batch, adj.add, inject.KeyUp)
	batch = appendModifierKeys(batch, adj.subtract, inject.KeyDown)
	return batch
}

// EmitCycle emits one full press-hold-release cycle for the chords,
// suppressing the trigger's surplus modifiers for the duration.
func (s *Synthesizer) EmitCycle(chords []keycode.Chord, triggerMods keycode.ModMask, duration time.Duration, moveSpeed uint8) error {
	adj := adjustment(chords, triggerMods)
	if err := s.inj.InjectBatch(s.pressBatch(chords, adj, moveSpeed)); err != nil {
		return err
	}
	if rel := s.releaseBatch(chords, adj); len(rel) > 0 {
		s.Sleep(duration)
		return s.inj.InjectBatch(rel)
	}
	return nil
}

// EmitPress emits only the down half. Used for non-turbo activations that
// hold until the trigger releases.
func (s *Synthesizer) EmitPress(chords []keycode.Chord, triggerMods keycode.ModMask, moveSpeed uint8) error {
	adj := adjustment(chords, triggerMods)
	return s.inj.InjectBatch(s.pressBatch(chords, adj, moveSpeed))
}

// EmitRelease emits the up half matching a previous EmitPress.
func (s *Synthesizer) EmitRelease(chords []keycode.Chord, triggerMods keycode.ModMask) error {
	adj := adjustment(chords, triggerMods)
	batch := s.releaseBatch(chords, adj)
	if len(batch) == 0 {
		return nil
	}
	return s.inj.InjectBatch(batch)
}

// EmitKeyUps force-releases the chords without modifier restoration. Used by
// the config-swap grace pass to avoid stuck keys.
func (s *Synthesizer) EmitKeyUps(chords []keycode.Chord) error {
	batch := make([]inject.Event, 0, 8)
	for i := len(chords) - 1; i >= 0; i-- {
		batch = appendMainUp(batch, chords[i])
		batch = appendModifierKeys(batch, chords[i].Mods, inject.KeyUp)
	}
	if len(batch) == 0 {
		return nil
	}
	return s.inj.InjectBatch(batch)
}

// EmitMove emits one merged cursor delta.
func (s *Synthesizer) EmitMove(dx, dy int32) error {
	if dx == 0 && dy == 0 {
		return nil
	}
	return s.inj.InjectBatch([]inject.Event{{Type: inject.MouseMove, DX: dx, DY: dy}})
}

// EmitWheel emits one wheel tick.
func (s *Synthesizer) EmitWheel(delta int32) error {
	if delta == 0 {
		return nil
	}
	return s.inj.InjectBatch([]inject.Event{{Type: inject.MouseWheel, WheelDelta: delta}})
}
