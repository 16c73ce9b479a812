package worker

import (
	"log"
	"time"

	"quickfire/internal/config"
	"quickfire/internal/event"
)

// motionState is one active motion or scroll mapping.
type motionState struct {
	mapping  *config.Mapping
	nextFire time.Time
	fired    bool
}

// motionWorker is the dedicated worker for cursor motion and wheel targets.
// All simultaneously due motion vectors merge into a single per-tick delta,
// so "up" plus "left" produces a true diagonal instead of alternating axis
// moves.
type motionWorker struct {
	pool *Pool
	act  chan activation
	rel  chan release

	active map[uint32]*motionState
}

func newMotionWorker(pool *Pool) *motionWorker {
	return &motionWorker{
		pool:   pool,
		act:    make(chan activation, inboxCapacity),
		rel:    make(chan release, inboxCapacity),
		active: make(map[uint32]*motionState, 8),
	}
}

func (w *motionWorker) activate(a activation) { w.pool.sendActivation(w.act, a) }
func (w *motionWorker) release(r release)     { w.rel <- r }
func (w *motionWorker) releaseAll()           { w.rel <- release{mappingID: 0} }

func (w *motionWorker) run() {
	defer w.pool.wg.Done()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.pool.stop:
			return
		case r := <-w.rel:
			w.handleRelease(r)
		case a := <-w.act:
			w.handleActivation(a)
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

func (w *motionWorker) handleActivation(a activation) {
	if _, ok := w.active[a.mappingID]; ok {
		return
	}
	m := w.pool.snap().ByID[a.mappingID]
	if m == nil {
		return
	}
	st := &motionState{mapping: m, nextFire: time.Now()}
	w.active[a.mappingID] = st
	w.emit(st, time.Now())
}

func (w *motionWorker) handleRelease(r release) {
	if r.mappingID == 0 {
		clear(w.active)
		return
	}
	delete(w.active, r.mappingID)
}

// tick fires every due mapping, merging all motion vectors emitted in the
// same pass into one cursor delta.
func (w *motionWorker) tick(now time.Time) {
	var fx, fy float64
	merged := false
	for _, st := range w.active {
		m := st.mapping
		if !m.TurboEnabled {
			continue
		}
		if st.nextFire.After(now) {
			continue
		}
		mx, my := w.collect(st)
		fx += mx
		fy += my
		merged = true
		st.nextFire = st.nextFire.Add(time.Duration(m.IntervalMS) * time.Millisecond)
		if st.nextFire.Before(now) {
			st.nextFire = now.Add(time.Duration(m.IntervalMS) * time.Millisecond)
		}
	}
	if merged {
		if err := w.pool.synth.EmitMove(round(fx), round(fy)); err != nil {
			log.Printf("motion worker: move emit failed: %v", err)
		}
	}
}

// emit handles the first activation tick: non-turbo motions fire exactly
// once, everything else joins the merge loop immediately.
func (w *motionWorker) emit(st *motionState, now time.Time) {
	if st.fired && !st.mapping.TurboEnabled {
		return
	}
	mx, my := w.collect(st)
	st.fired = true
	if err := w.pool.synth.EmitMove(round(mx), round(my)); err != nil {
		log.Printf("motion worker: move emit failed: %v", err)
	}
	st.nextFire = now.Add(time.Duration(st.mapping.IntervalMS) * time.Millisecond)
}

// collect sums st's motion targets into a vector and emits wheel targets as
// a side effect; wheel ticks do not merge with cursor deltas.
func (w *motionWorker) collect(st *motionState) (dx, dy float64) {
	m := st.mapping
	for _, t := range m.Targets {
		switch t.Main.Kind {
		case event.KindMouseMotion:
			vx, vy := t.Main.Direction.Vector()
			dx += vx * float64(m.MoveSpeed)
			dy += vy * float64(m.MoveSpeed)
		case event.KindMouseWheel:
			delta := int32(m.MoveSpeed)
			if t.Main.WheelDelta < 0 {
				delta = -delta
			}
			if err := w.pool.synth.EmitWheel(delta); err != nil {
				log.Printf("motion worker: wheel emit failed: %v", err)
			}
		}
	}
	return dx, dy
}

func round(v float64) int32 {
	if v >= 0 {
		return int32(v + 0.5)
	}
	return int32(v - 0.5)
}
