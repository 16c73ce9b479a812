// Package engine connects the hook layer to the worker pool: it resolves
// chord triggers against the live modifier state, feeds the sequence
// matcher, and owns the global enable/pause/whitelist lifecycle.
package engine

import (
	"time"

	"quickfire/internal/config"
	"quickfire/internal/event"
	"quickfire/internal/keycode"
	"quickfire/internal/sequence"
)

// resolver holds the per-snapshot lookup indices. It is rebuilt wholesale on
// config swap and read from the hook threads without locking afterwards.
type resolver struct {
	snap *config.Snapshot

	// mainIndex maps the hash of a chord's main token to its candidate
	// mappings in config order.
	mainIndex map[uint32][]*config.Mapping

	// seqMember maps a sequence mapping id to the token hashes of its
	// pattern elements, for hold-and-release tracking. Tolerated
	// intermediate diagonals and diagonal components are not included.
	seqMember map[uint32]map[uint32]struct{}
	// seqLast maps a sequence mapping id to the hash of its final element.
	seqLast map[uint32]uint32
}

func buildResolver(snap *config.Snapshot, matcher *sequence.Matcher) *resolver {
	r := &resolver{
		snap:      snap,
		mainIndex: make(map[uint32][]*config.Mapping, len(snap.Mappings)),
		seqMember: make(map[uint32]map[uint32]struct{}),
		seqLast:   make(map[uint32]uint32),
	}

	matcher.Clear()
	for _, m := range snap.Mappings {
		if m.IsSequence {
			windowUS := uint64(m.SeqWindowMS) * 1000
			matcher.Register(m.ID, m.TriggerSeq, windowUS, m.SeqDeviceFilter)

			members := make(map[uint32]struct{}, len(m.TriggerSeq))
			for _, in := range m.TriggerSeq {
				members[keycode.HashInput(in)] = struct{}{}
			}
			r.seqMember[m.ID] = members
			r.seqLast[m.ID] = keycode.HashInput(m.TriggerSeq[len(m.TriggerSeq)-1])
			continue
		}
		h := m.Trigger.MainHash()
		r.mainIndex[h] = append(r.mainIndex[h], m)
	}
	matcher.Compact()
	return r
}

// resolveChord finds the first candidate whose modifier mask equals the
// currently depressed set. XInput chords additionally require every
// sub-button held on the same pad.
func (r *resolver) resolveChord(in event.Input, mods keycode.ModMask, padHeld func(uint16, event.XButton) bool) *config.Mapping {
	for _, m := range r.mainIndex[keycode.HashInput(in)] {
		if in.Kind == event.KindXInput {
			ok := true
			for _, sub := range m.Trigger.XSub {
				if !padHeld(in.VID, sub) {
					ok = false
					break
				}
			}
			if ok {
				return m
			}
			continue
		}
		if m.Trigger.Mods == mods {
			return m
		}
	}
	return nil
}

// whitelistCache is the foreground-process check with a 50 ms TTL.
type whitelistCache struct {
	name      string
	allowed   bool
	expiresAt time.Time
}

const whitelistTTL = 50 * time.Millisecond
