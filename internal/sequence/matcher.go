package sequence

import (
	"sync"
	"sync/atomic"

	"quickfire/internal/event"
	"quickfire/internal/keycode"
)

// MaxPatternLength bounds registered sequence patterns.
const MaxPatternLength = 16

// elem is one precompiled pattern position. Tolerance hashes are resolved at
// registration so the hot path compares nothing but u32s.
type elem struct {
	hash uint32
	// betweenNext is the hash of the diagonal interpolating this element and
	// the next one, when both are same-group cardinals. 0 when absent.
	betweenNext uint32
	// compA/compB are the component cardinal hashes when this element is
	// itself a diagonal, enabling either-order two-entry matching.
	compA, compB uint32
}

// Registration is one compiled sequence pattern bound to a mapping.
type Registration struct {
	ID           uint32
	WindowUS     uint64
	DeviceFilter uint32 // 0 matches any device tag

	pattern []elem
	// memberHashes contains every hash a pattern input can legitimately
	// produce, including tolerated intermediates; anything else interrupts
	// the cooldown.
	memberHashes map[uint32]struct{}

	tombstone   atomic.Bool
	lastFireUS  atomic.Uint64
	interrupted atomic.Bool
}

// Matcher owns the ring and the registered sequence set. Registration is
// copy-on-write so the per-push match scan never takes a lock.
type Matcher struct {
	ring *Ring
	regs atomic.Pointer[[]*Registration]
	mu   sync.Mutex

	// CooldownSuppressed counts matches swallowed by the per-sequence
	// cooldown.
	CooldownSuppressed atomic.Uint64
}

// NewMatcher creates a matcher over a ring of the given capacity (0 for the
// default).
func NewMatcher(capacity int) *Matcher {
	m := &Matcher{ring: NewRing(capacity)}
	empty := make([]*Registration, 0)
	m.regs.Store(&empty)
	return m
}

// Ring exposes the underlying buffer.
func (m *Matcher) Ring() *Ring { return m.ring }

// diagonalBetween returns the input interpolating two same-group cardinal
// inputs, for analog stick states and mouse motion directions.
func diagonalBetween(a, b event.Input) (event.Input, bool) {
	if a.Kind == event.KindXInput && b.Kind == event.KindXInput && a.VID == b.VID {
		for d := event.XDPadUpLeft; d <= event.XRSLeftDown; d++ {
			if d.IsTransitionBetween(a.XButton, b.XButton) {
				out := a
				out.XButton = d
				return out, true
			}
		}
	}
	if a.Kind == event.KindMouseMotion && b.Kind == event.KindMouseMotion {
		for d := event.DirUpLeft; d <= event.DirDownRight; d++ {
			if d.IsTransitionBetween(a.Direction, b.Direction) {
				out := a
				out.Direction = d
				return out, true
			}
		}
	}
	return event.Input{}, false
}

// components returns the cardinal parts of a diagonal input.
func components(in event.Input) (a, b event.Input, ok bool) {
	switch in.Kind {
	case event.KindXInput:
		if x, y, ok := in.XButton.Components(); ok {
			a, b = in, in
			a.XButton, b.XButton = x, y
			return a, b, true
		}
	case event.KindMouseMotion:
		if x, y, ok := in.Direction.Components(); ok {
			a, b = in, in
			a.Direction, b.Direction = x, y
			return a, b, true
		}
	}
	return event.Input{}, event.Input{}, false
}

// Register compiles and adds a pattern. The inputs must already be canonical;
// deviceFilter restricts matching to entries from one source (0 for any).
func (m *Matcher) Register(id uint32, inputs []event.Input, windowUS uint64, deviceFilter uint32) *Registration {
	reg := &Registration{
		ID:           id,
		WindowUS:     windowUS,
		DeviceFilter: deviceFilter,
		pattern:      make([]elem, len(inputs)),
		memberHashes: make(map[uint32]struct{}, len(inputs)*2),
	}
	for i, in := range inputs {
		e := elem{hash: keycode.HashInput(in)}
		if ca, cb, ok := components(in); ok {
			e.compA = keycode.HashInput(ca)
			e.compB = keycode.HashInput(cb)
		}
		if i+1 < len(inputs) {
			if d, ok := diagonalBetween(in, inputs[i+1]); ok {
				e.betweenNext = keycode.HashInput(d)
				reg.memberHashes[e.betweenNext] = struct{}{}
			}
		}
		reg.pattern[i] = e
		reg.memberHashes[e.hash] = struct{}{}
		if e.compA != 0 {
			reg.memberHashes[e.compA] = struct{}{}
			reg.memberHashes[e.compB] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.regs.Load()
	next := make([]*Registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, reg)
	m.regs.Store(&next)
	return reg
}

// Remove tombstones every registration with the given mapping id. The entry
// stays in the list until Compact.
func (m *Matcher) Remove(id uint32) {
	for _, reg := range *m.regs.Load() {
		if reg.ID == id {
			reg.tombstone.Store(true)
		}
	}
}

// Clear tombstones all registrations.
func (m *Matcher) Clear() {
	for _, reg := range *m.regs.Load() {
		reg.tombstone.Store(true)
	}
}

// Compact drops tombstoned registrations. Called on config swap.
func (m *Matcher) Compact() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := *m.regs.Load()
	next := make([]*Registration, 0, len(cur))
	for _, reg := range cur {
		if !reg.tombstone.Load() {
			next = append(next, reg)
		}
	}
	m.regs.Store(&next)
}

// Offer records one input and reports the first registered sequence it
// completes. The bool result is false when nothing matched (including when a
// completed pattern was swallowed by its cooldown).
func (m *Matcher) Offer(in event.Input, tsUS uint64) (uint32, bool) {
	hash := keycode.HashInput(in)
	tag := in.Tag()
	if !m.ring.Push(hash, tag, tsUS) {
		return 0, false
	}

	for _, reg := range *m.regs.Load() {
		if reg.tombstone.Load() {
			continue
		}
		if _, member := reg.memberHashes[hash]; !member {
			reg.interrupted.Store(true)
			continue
		}
		lastEl := reg.pattern[len(reg.pattern)-1]
		if hash != lastEl.hash && hash != lastEl.compA && hash != lastEl.compB {
			continue
		}
		if !m.matchPattern(reg, tsUS) {
			continue
		}
		last := reg.lastFireUS.Load()
		if last != 0 && tsUS-last <= reg.WindowUS && !reg.interrupted.Load() {
			m.CooldownSuppressed.Add(1)
			continue
		}
		reg.lastFireUS.Store(tsUS)
		reg.interrupted.Store(false)
		return reg.ID, true
	}
	return 0, false
}

// matchPattern walks the ring backwards from the newest entry, consuming the
// pattern right-to-left. Timestamps must be strictly monotonic and the whole
// match must fit in the window; entries from other devices and tolerated
// intermediate diagonals are skipped.
func (m *Matcher) matchPattern(reg *Registration, newestTS uint64) bool {
	head := m.ring.Index()
	if head == 0 {
		return false
	}

	pi := len(reg.pattern) - 1
	hi := head
	lastTS := ^uint64(0)

	for pi >= 0 {
		if hi == 0 {
			return false
		}
		hi--
		e, ok := m.ring.At(hi)
		if !ok {
			return false
		}
		if reg.DeviceFilter != 0 && e.DeviceTag != reg.DeviceFilter {
			continue
		}
		if newestTS-e.TimestampUS > reg.WindowUS {
			return false
		}
		if e.TimestampUS >= lastTS {
			return false
		}

		el := reg.pattern[pi]
		switch {
		case e.TokenHash == el.hash:
			lastTS = e.TimestampUS
			pi--
		case pi+1 <= len(reg.pattern)-1 && el.betweenNext != 0 && e.TokenHash == el.betweenNext:
			// Intermediate diagonal crossed between this element and the one
			// already matched; consume the entry, keep the pattern position.
			lastTS = e.TimestampUS
		case el.compA != 0 && (e.TokenHash == el.compA || e.TokenHash == el.compB):
			// A diagonal element matches its two component cardinals played
			// consecutively in either order.
			other := el.compA
			if e.TokenHash == el.compA {
				other = el.compB
			}
			if hi == 0 {
				return false
			}
			hi--
			e2, ok := m.ring.At(hi)
			if !ok || e2.TokenHash != other || e2.TimestampUS >= e.TimestampUS ||
				newestTS-e2.TimestampUS > reg.WindowUS {
				return false
			}
			if reg.DeviceFilter != 0 && e2.DeviceTag != reg.DeviceFilter {
				return false
			}
			lastTS = e2.TimestampUS
			pi--
		default:
			return false
		}
	}
	return true
}
