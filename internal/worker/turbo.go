package worker

import (
	"log"
	"sort"
	"time"

	"quickfire/internal/config"
	"quickfire/internal/keycode"
)

// turboState is one active mapping owned by a worker. Targets and timing are
// resolved at activation so a config swap cannot leave a held output without
// the chords needed to lift it.
type turboState struct {
	mapping  *config.Mapping
	mods     keycode.ModMask
	nextFire time.Time
	cursor   int
	held     bool // non-turbo press emitted, release pending
	fired    bool // non-turbo single shot already emitted
}

// worker owns an exclusive subset of mappings and runs their turbo loops.
// It blocks only on its own inboxes and timer.
type worker struct {
	id   int
	pool *Pool
	act  chan activation
	rel  chan release

	active map[uint32]*turboState
}

func newWorker(id int, pool *Pool) *worker {
	return &worker{
		id:     id,
		pool:   pool,
		act:    make(chan activation, inboxCapacity),
		rel:    make(chan release, inboxCapacity),
		active: make(map[uint32]*turboState, 8),
	}
}

func (w *worker) activate(a activation) { w.pool.sendActivation(w.act, a) }

// release blocks if the inbox is momentarily full; releases are never lost.
func (w *worker) release(r release) { w.rel <- r }

func (w *worker) releaseAll() { w.rel <- release{mappingID: 0} }

func (w *worker) run() {
	defer w.pool.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		// The release inbox drains ahead of everything else, so a release is
		// observed no later than the next tick after its enqueue.
		w.drainReleases()

		w.armTimer(timer)
		select {
		case <-w.pool.stop:
			w.teardown()
			return
		case r := <-w.rel:
			w.handleRelease(r)
		case a := <-w.act:
			w.handleActivation(a)
		case <-timer.C:
			w.drainReleases()
			w.fireDue(time.Now())
		}
	}
}

func (w *worker) drainReleases() {
	for {
		select {
		case r := <-w.rel:
			w.handleRelease(r)
		default:
			return
		}
	}
}

// armTimer sets the timer to the earliest pending fire.
func (w *worker) armTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	next := time.Duration(-1)
	now := time.Now()
	for _, st := range w.active {
		if !st.mapping.TurboEnabled {
			continue
		}
		d := st.nextFire.Sub(now)
		if d < time.Millisecond {
			d = time.Millisecond
		}
		if next < 0 || d < next {
			next = d
		}
	}
	if next < 0 {
		next = time.Hour
		if len(w.active) > 0 {
			// Non-turbo holds still get a periodic wake, bounded by the
			// configured input timeout.
			if t := w.pool.snap().InputTimeoutMS; t > 0 {
				next = time.Duration(t) * time.Millisecond
			}
		}
	}
	timer.Reset(next)
}

func (w *worker) handleActivation(a activation) {
	if _, ok := w.active[a.mappingID]; ok {
		// OS auto-repeat re-delivers activations for held triggers; the loop
		// already owns the state.
		return
	}
	m := w.pool.snap().ByID[a.mappingID]
	if m == nil {
		return
	}
	st := &turboState{
		mapping:  m,
		mods:     a.mods,
		nextFire: time.Now(),
	}
	w.active[a.mappingID] = st

	if !m.TurboEnabled {
		w.fireOnce(st)
		return
	}
	w.fireDue(time.Now())
}

func (w *worker) handleRelease(r release) {
	if r.mappingID == 0 {
		for id := range w.active {
			w.handleRelease(release{mappingID: id})
		}
		return
	}
	st, ok := w.active[r.mappingID]
	if !ok {
		return
	}
	delete(w.active, r.mappingID)

	_, kept := w.pool.snap().ByID[r.mappingID]
	if st.held {
		if err := w.pool.synth.EmitRelease(st.mapping.Targets, st.mods); err != nil {
			log.Printf("worker %d: release emit failed: %v", w.id, err)
		}
		st.held = false
	} else if !kept {
		if err := w.pool.synth.EmitKeyUps(st.mapping.Targets); err != nil {
			log.Printf("worker %d: grace key-up emit failed: %v", w.id, err)
		}
	}
	if !kept {
		// The mapping was removed by a swap while active; its key-ups above
		// were compensating.
		w.pool.StuckKeyCorrected.Add(1)
	}
}

// fireOnce handles turbo_enabled=false: one emission per activation.
// Sequence-mode targets play through once; everything else presses and holds
// until the trigger releases.
func (w *worker) fireOnce(st *turboState) {
	m := st.mapping
	if st.fired {
		return
	}
	st.fired = true

	if m.TargetMode == config.TargetSequence {
		interval := time.Duration(m.IntervalMS) * time.Millisecond
		duration := time.Duration(m.EventDurationMS) * time.Millisecond
		for i, t := range m.Targets {
			if err := w.pool.synth.EmitCycle([]keycode.Chord{t}, st.mods, duration, m.MoveSpeed); err != nil {
				log.Printf("worker %d: sequence emit failed: %v", w.id, err)
			}
			if i < len(m.Targets)-1 {
				w.pool.synth.Sleep(interval)
			}
		}
		return
	}

	if err := w.pool.synth.EmitPress(m.Targets, st.mods, m.MoveSpeed); err != nil {
		log.Printf("worker %d: press emit failed: %v", w.id, err)
		return
	}
	st.held = true
}

// fireDue emits one output cycle for every turbo state whose deadline has
// passed. Deadline ties resolve by mapping id ascending.
func (w *worker) fireDue(now time.Time) {
	due := make([]*turboState, 0, len(w.active))
	for _, st := range w.active {
		if st.mapping.TurboEnabled && !st.nextFire.After(now) {
			due = append(due, st)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].nextFire.Equal(due[j].nextFire) {
			return due[i].mapping.ID < due[j].mapping.ID
		}
		return due[i].nextFire.Before(due[j].nextFire)
	})

	for _, st := range due {
		m := st.mapping
		duration := time.Duration(m.EventDurationMS) * time.Millisecond
		chords := m.Targets
		if m.TargetMode == config.TargetSequence {
			chords = m.Targets[st.cursor : st.cursor+1]
			st.cursor = (st.cursor + 1) % len(m.Targets)
		}
		if err := w.pool.synth.EmitCycle(chords, st.mods, duration, m.MoveSpeed); err != nil {
			log.Printf("worker %d: emit failed: %v", w.id, err)
		}
		st.nextFire = st.nextFire.Add(time.Duration(m.IntervalMS) * time.Millisecond)
		if st.nextFire.Before(now) {
			// The loop fell behind (long emit or scheduling stall); realign
			// instead of bursting.
			st.nextFire = now.Add(time.Duration(m.IntervalMS) * time.Millisecond)
		}
	}
}

// teardown lifts held outputs before exit so process shutdown cannot leave
// keys stuck down.
func (w *worker) teardown() {
	w.drainReleases()
	for id := range w.active {
		w.handleRelease(release{mappingID: id})
	}
}
