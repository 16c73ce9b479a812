// Package sequence implements the recent-input ring buffer and the ordered
// pattern matcher that detects sequence triggers within a time window.
package sequence

import (
	"sync/atomic"
)

const (
	// DefaultCapacity is the default ring size. Must be a power of two.
	DefaultCapacity = 256
	// DedupWindowUS collapses identical pushes from the same device arriving
	// within this many microseconds (hardware auto-repeat).
	DedupWindowUS = 2000
)

// Entry is one recorded input, as read back from the ring.
type Entry struct {
	TokenHash   uint32
	DeviceTag   uint32
	TimestampUS uint64
}

// slot is one cache-line sized cell. The generation stamp is written last
// with release ordering; readers validate it before and after reading the
// payload to reject torn or overwritten cells.
type slot struct {
	generation  atomic.Uint32
	tokenHash   atomic.Uint32
	deviceTag   atomic.Uint32
	timestampUS atomic.Uint64
	_           [40]byte
}

// Ring is a fixed-capacity multi-producer ring of recent inputs. Push is
// wait-free and overwrites the oldest entry; readers walk backwards from a
// snapshot of the write index.
type Ring struct {
	writeIndex atomic.Uint64
	mask       uint64
	slots      []slot
}

// NewRing creates a ring with the given capacity, which must be a power of
// two; zero selects DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if capacity&(capacity-1) != 0 {
		panic("sequence: ring capacity must be a power of two")
	}
	return &Ring{
		mask:  uint64(capacity - 1),
		slots: make([]slot, capacity),
	}
}

// Capacity returns the fixed slot count.
func (r *Ring) Capacity() int { return len(r.slots) }

// Index returns the current write index. Entries live at [Index-Capacity,
// Index).
func (r *Ring) Index() uint64 { return r.writeIndex.Load() }

// Push records one input. It returns false when the push was deduplicated
// against the immediately preceding entry from the same device.
func (r *Ring) Push(tokenHash, deviceTag uint32, tsUS uint64) bool {
	head := r.writeIndex.Load()
	if head > 0 {
		if prev, ok := r.At(head - 1); ok &&
			prev.TokenHash == tokenHash && prev.DeviceTag == deviceTag &&
			tsUS-prev.TimestampUS < DedupWindowUS {
			return false
		}
	}

	idx := r.writeIndex.Add(1) - 1
	s := &r.slots[idx&r.mask]
	// Invalidate while the payload is in flux, then publish.
	s.generation.Store(0)
	s.tokenHash.Store(tokenHash)
	s.deviceTag.Store(deviceTag)
	s.timestampUS.Store(tsUS)
	s.generation.Store(uint32(idx/uint64(len(r.slots))) + 1)
	return true
}

// At reads the entry at absolute index i. ok is false when the slot has been
// overwritten by a later lap or is mid-write.
func (r *Ring) At(i uint64) (Entry, bool) {
	s := &r.slots[i&r.mask]
	want := uint32(i/uint64(len(r.slots))) + 1

	if s.generation.Load() != want {
		return Entry{}, false
	}
	e := Entry{
		TokenHash:   s.tokenHash.Load(),
		DeviceTag:   s.deviceTag.Load(),
		TimestampUS: s.timestampUS.Load(),
	}
	if s.generation.Load() != want {
		return Entry{}, false
	}
	return e, true
}

// Recent appends up to cap(buf) entries, newest first, stopping at the first
// unreadable slot.
func (r *Ring) Recent(buf []Entry) []Entry {
	buf = buf[:0]
	head := r.writeIndex.Load()
	for i := head; i > 0 && len(buf) < cap(buf); i-- {
		e, ok := r.At(i - 1)
		if !ok {
			break
		}
		buf = append(buf, e)
	}
	return buf
}
