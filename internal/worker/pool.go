// Package worker runs the turbo dispatch loops: a pool of single-threaded
// workers each owning an exclusive shard of active mappings, plus one
// dedicated worker that vector-merges cursor motion.
package worker

import (
	"runtime"
	"sync"
	"sync/atomic"

	"quickfire/internal/config"
	"quickfire/internal/keycode"
	"quickfire/internal/output"
)

const inboxCapacity = 1024

// activation carries a trigger firing to the owning worker, with the
// modifier set snapshotted by the resolver at activation time.
type activation struct {
	mappingID uint32
	mods      keycode.ModMask
}

type release struct {
	mappingID uint32
}

// Shard returns the worker index owning a mapping id: FNV-1a over the id's
// little-endian bytes, mod n. Stable across config reloads that preserve the
// id.
func Shard(mappingID uint32, n int) int {
	h := uint32(2166136261)
	for i := 0; i < 4; i++ {
		h ^= (mappingID >> (8 * i)) & 0xFF
		h *= 16777619
	}
	return int(h % uint32(n))
}

// DefaultWorkerCount resolves a configured count, with 0 meaning auto.
func DefaultWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Pool owns the workers and routes activations and releases to them.
type Pool struct {
	workers []*worker
	motion  *motionWorker
	synth   *output.Synthesizer
	snap    func() *config.Snapshot

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// DroppedActivations counts activations discarded because a worker inbox
	// was full. Releases are never dropped.
	DroppedActivations atomic.Uint64
	// StuckKeyCorrected counts compensating key-ups emitted when a config
	// swap removed a still-active mapping.
	StuckKeyCorrected atomic.Uint64
}

// NewPool creates count turbo workers plus the motion worker. snap must
// return the active config snapshot.
func NewPool(count int, synth *output.Synthesizer, snap func() *config.Snapshot) *Pool {
	p := &Pool{
		synth: synth,
		snap:  snap,
		stop:  make(chan struct{}),
	}
	for i := 0; i < count; i++ {
		p.workers = append(p.workers, newWorker(i, p))
	}
	p.motion = newMotionWorker(p)
	return p
}

// WorkerCount returns the number of turbo workers, excluding the motion
// worker.
func (p *Pool) WorkerCount() int { return len(p.workers) }

// Start launches all worker goroutines.
func (p *Pool) Start() {
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
	p.wg.Add(1)
	go p.motion.run()
}

// Stop terminates the workers. Each turbo worker drains its release inbox and
// lifts any held outputs before returning; the motion worker holds no outputs
// and returns at once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// owner picks the destination worker for a mapping.
func (p *Pool) owner(m *config.Mapping) interface {
	activate(activation)
	release(release)
} {
	if m.HasMotionTarget() {
		return p.motion
	}
	return p.workers[Shard(m.ID, len(p.workers))]
}

// Activate routes a trigger firing. Lossy under overload: the oldest queued
// activation is dropped first, then this one, and either drop is counted.
func (p *Pool) Activate(mappingID uint32, mods keycode.ModMask) {
	m := p.snap().ByID[mappingID]
	if m == nil {
		return
	}
	p.owner(m).activate(activation{mappingID: mappingID, mods: mods})
}

// Release routes a trigger release. Never dropped.
func (p *Pool) Release(mappingID uint32) {
	m := p.snap().ByID[mappingID]
	if m == nil {
		// The mapping vanished in a swap; fan the release out so whichever
		// worker still holds its state tears it down.
		r := release{mappingID: mappingID}
		for _, w := range p.workers {
			w.release(r)
		}
		p.motion.release(r)
		return
	}
	p.owner(m).release(release{mappingID: mappingID})
}

// ReleaseAll tears down every active state. Used on pause and disable.
func (p *Pool) ReleaseAll() {
	for _, w := range p.workers {
		w.releaseAll()
	}
	p.motion.releaseAll()
}

// HandleSwap runs the grace pass after a config swap: mappings that existed
// in old but not in new get a release so no key stays stuck.
func (p *Pool) HandleSwap(old, new *config.Snapshot) {
	if old == nil {
		return
	}
	for id := range old.ByID {
		if _, kept := new.ByID[id]; !kept {
			r := release{mappingID: id}
			for _, w := range p.workers {
				w.release(r)
			}
			p.motion.release(r)
		}
	}
}

// sendActivation implements the drop-oldest overflow policy on a bounded
// inbox.
func (p *Pool) sendActivation(ch chan activation, a activation) {
	select {
	case ch <- a:
		return
	default:
	}
	select {
	case <-ch:
		p.DroppedActivations.Add(1)
	default:
	}
	select {
	case ch <- a:
	default:
		p.DroppedActivations.Add(1)
	}
}
