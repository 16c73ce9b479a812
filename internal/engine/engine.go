package engine

import (
	"log"
	"strings"
	"sync/atomic"
	"time"

	"quickfire/internal/config"
	"quickfire/internal/event"
	"quickfire/internal/keycode"
	"quickfire/internal/sequence"
)

// Dispatcher receives trigger transitions. Implemented by the worker pool.
type Dispatcher interface {
	Activate(mappingID uint32, mods keycode.ModMask)
	Release(mappingID uint32)
	ReleaseAll()
	HandleSwap(old, new *config.Snapshot)
}

// Runtime is the engine's global state: the active resolver, the sequence
// matcher, the enable/pause bits, and the per-source tracking used to turn
// raw transitions into trigger activations.
//
// Keyboard and mouse events must arrive on one hook thread; XInput and HID
// events each on their own thread. Per-source tracking is owned by its
// delivering thread, everything crossing threads is atomic.
type Runtime struct {
	cfg      *config.Manager
	dispatch Dispatcher
	matcher  *sequence.Matcher

	res      atomic.Pointer[resolver]
	enabled  atomic.Bool
	paused   atomic.Bool
	switchVK atomic.Uint32

	// modMask is the currently depressed modifier set, owned by the hook
	// thread and published for workers to snapshot at activation.
	modMask atomic.Uint32

	procName func() string
	wl       atomic.Pointer[whitelistCache]

	// Hook-thread state (keyboard + mouse).
	pressed   map[uint16]bool
	kbActive  map[uint32]*config.Mapping
	seqActive map[uint32]struct{}

	// XInput-thread state.
	padHeld map[uint16]map[event.XButton]bool
	xActive map[uint32]*config.Mapping

	// Raw-input-thread state.
	hidActive map[uint32]*config.Mapping
}

// New builds the runtime over a loaded config manager. procName returns the
// foreground process executable name; nil disables whitelisting.
func New(cfg *config.Manager, dispatch Dispatcher, procName func() string) *Runtime {
	r := &Runtime{
		cfg:       cfg,
		dispatch:  dispatch,
		matcher:   sequence.NewMatcher(0),
		procName:  procName,
		pressed:   make(map[uint16]bool, 16),
		kbActive:  make(map[uint32]*config.Mapping, 8),
		seqActive: make(map[uint32]struct{}, 4),
		padHeld:   make(map[uint16]map[event.XButton]bool, 2),
		xActive:   make(map[uint32]*config.Mapping, 8),
		hidActive: make(map[uint32]*config.Mapping, 8),
	}
	r.enabled.Store(true)
	snap := cfg.Snapshot()
	r.res.Store(buildResolver(snap, r.matcher))
	r.switchVK.Store(uint32(snap.SwitchVK))
	cfg.OnReload(r.applySwap)
	return r
}

// Matcher exposes the sequence matcher, mainly for telemetry.
func (r *Runtime) Matcher() *sequence.Matcher { return r.matcher }

// Enabled reports the switch-key toggle.
func (r *Runtime) Enabled() bool { return r.enabled.Load() }

// SetEnabled sets the toggle directly (tray and API). Disabling tears down
// all active turbo state.
func (r *Runtime) SetEnabled(on bool) {
	was := r.enabled.Swap(on)
	if was && !on {
		r.dispatch.ReleaseAll()
	}
}

// SetPaused pauses or resumes dispatch. Pausing tears down all active turbo
// state.
func (r *Runtime) SetPaused(p bool) {
	r.paused.Store(p)
	if p {
		r.dispatch.ReleaseAll()
	}
}

// Paused reports the pause bit.
func (r *Runtime) Paused() bool { return r.paused.Load() }

// ModifierSnapshot returns the published modifier mask.
func (r *Runtime) ModifierSnapshot() keycode.ModMask {
	return keycode.ModMask(r.modMask.Load())
}

// applySwap installs a new snapshot: rebuild the indices, re-register the
// sequences, then run the grace pass for mappings that disappeared.
func (r *Runtime) applySwap(old, new *config.Snapshot) {
	r.res.Store(buildResolver(new, r.matcher))
	r.switchVK.Store(uint32(new.SwitchVK))
	r.dispatch.HandleSwap(old, new)
	log.Printf("config swap: %d mappings active", len(new.Mappings))
}

// active reports whether dispatch should run at all.
func (r *Runtime) active() bool {
	return r.enabled.Load() && !r.paused.Load() && r.whitelisted()
}

// whitelisted checks the foreground process against the whitelist through a
// 50 ms cache. An empty whitelist allows every process.
func (r *Runtime) whitelisted() bool {
	snap := r.cfg.Snapshot()
	if len(snap.ProcessWhitelist) == 0 || r.procName == nil {
		return true
	}
	now := time.Now()
	if c := r.wl.Load(); c != nil && now.Before(c.expiresAt) {
		return c.allowed
	}
	name := strings.ToLower(r.procName())
	allowed := false
	for _, w := range snap.ProcessWhitelist {
		if strings.EqualFold(w, name) {
			allowed = true
			break
		}
	}
	r.wl.Store(&whitelistCache{name: name, allowed: allowed, expiresAt: now.Add(whitelistTTL)})
	return allowed
}

// OnKeyboard processes one keyboard transition from the hook. The return
// value tells the hook to swallow the raw event.
func (r *Runtime) OnKeyboard(vk uint16, down bool, tsUS uint64) bool {
	if down && uint32(vk) == r.switchVK.Load() && r.switchVK.Load() != 0 {
		was := r.enabled.Load()
		r.enabled.Store(!was)
		if was {
			r.dispatch.ReleaseAll()
		}
		log.Printf("switch key: enabled=%v", !was)
		return true
	}

	if bit := keycode.ModBit(vk); bit != 0 {
		mask := keycode.ModMask(r.modMask.Load())
		if down {
			mask |= bit
		} else {
			mask &^= bit
		}
		r.modMask.Store(uint32(mask))
	}
	if down {
		r.pressed[vk] = true
	} else {
		delete(r.pressed, vk)
	}

	if !r.active() {
		return false
	}

	scan, ext := keycode.VKToScan(vk)
	in := event.Input{Kind: event.KindKeyboard, VK: vk, Scan: scan, Extended: ext}
	if down {
		// The main key's own modifier bit never counts toward its chord mask.
		mods := keycode.ModMask(r.modMask.Load()) &^ keycode.ModBit(vk)
		return r.handleDown(in, mods, tsUS, r.kbActive)
	}
	return r.handleUp(in, vk, r.kbActive)
}

// OnMouseButton processes one mouse button transition from the hook thread.
func (r *Runtime) OnMouseButton(b event.MouseButton, down bool, tsUS uint64) bool {
	if !r.active() {
		return false
	}
	in := event.Input{Kind: event.KindMouseButton, Button: b}
	if down {
		return r.handleDown(in, keycode.ModMask(r.modMask.Load()), tsUS, r.kbActive)
	}
	return r.handleUp(in, 0, r.kbActive)
}

// OnMouseWheel is part of the hook contract. Wheel motion is output-only in
// the canonical model and never matches a trigger.
func (r *Runtime) OnMouseWheel(delta int16, tsUS uint64) {}

// OnXInput processes one gamepad button transition from the poller thread.
func (r *Runtime) OnXInput(in event.Input, down bool, tsUS uint64) {
	held := r.padHeld[in.VID]
	if held == nil {
		held = make(map[event.XButton]bool, 8)
		r.padHeld[in.VID] = held
	}
	if down {
		held[in.XButton] = true
	} else {
		delete(held, in.XButton)
	}

	if !r.active() {
		return
	}
	if down {
		r.handleDown(in, 0, tsUS, r.xActive)
		return
	}
	// A released sub-button also breaks every chord that required it.
	for id, m := range r.xActive {
		if m.Trigger.Main == in {
			continue // handled below by handleUp
		}
		for _, sub := range m.Trigger.XSub {
			if sub == in.XButton && m.Trigger.Main.VID == in.VID {
				r.dispatch.Release(id)
				delete(r.xActive, id)
				break
			}
		}
	}
	r.handleUp(in, 0, r.xActive)
}

// OnHid processes one HID button transition from the raw-input thread.
func (r *Runtime) OnHid(in event.Input, down bool, tsUS uint64) {
	if !r.active() {
		return
	}
	if down {
		r.handleDown(in, 0, tsUS, r.hidActive)
		return
	}
	r.handleUp(in, 0, r.hidActive)
}

// handleDown records the input for sequence matching, then resolves chord
// triggers against the current modifier set.
func (r *Runtime) handleDown(in event.Input, mods keycode.ModMask, tsUS uint64, active map[uint32]*config.Mapping) bool {
	res := r.res.Load()
	hash := keycode.HashInput(in)

	// A stray input interrupts held motion sequences before anything else.
	r.interruptSequences(res, hash)

	if id, ok := r.matcher.Offer(in, tsUS); ok {
		if m := res.snap.ByID[id]; m != nil && m.IsSequence {
			r.dispatch.Activate(id, mods)
			r.seqActive[id] = struct{}{}
			return true
		}
	}

	if m := res.resolveChord(in, mods, r.isPadHeld); m != nil {
		if _, dup := active[m.ID]; !dup {
			r.dispatch.Activate(m.ID, mods)
			active[m.ID] = m
		}
		// Swallow the raw event and its auto-repeats while the trigger is
		// held.
		return true
	}

	// Holding the final input of a matched sequence keeps its turbo running;
	// swallow the repeats.
	for id := range r.seqActive {
		if _, member := res.seqMember[id][hash]; member {
			return true
		}
	}
	return false
}

// handleUp releases every active mapping this transition breaks. Only the
// release of a chord's main key or of a held sequence's final input is
// swallowed; physical modifier releases pass through.
func (r *Runtime) handleUp(in event.Input, vk uint16, active map[uint32]*config.Mapping) bool {
	res := r.res.Load()
	hash := keycode.HashInput(in)
	block := false

	for id, m := range active {
		mainHash := m.Trigger.MainHash()
		if mainHash == hash {
			r.dispatch.Release(id)
			delete(active, id)
			block = true
			continue
		}
		if vk != 0 && m.Trigger.Mods&keycode.ModBit(vk) != 0 {
			r.dispatch.Release(id)
			delete(active, id)
		}
	}

	for id := range r.seqActive {
		if res.seqLast[id] == hash {
			r.dispatch.Release(id)
			delete(r.seqActive, id)
			block = true
		}
	}
	return block
}

// interruptSequences releases held motion/scroll sequence mappings when an
// input outside their pattern arrives. The match cooldown is re-armed
// separately, by Matcher.Offer.
func (r *Runtime) interruptSequences(res *resolver, hash uint32) {
	for id := range r.seqActive {
		if _, member := res.seqMember[id][hash]; member {
			continue
		}
		if m := res.snap.ByID[id]; m != nil && m.HasMotionTarget() {
			r.dispatch.Release(id)
			delete(r.seqActive, id)
		}
	}
}

func (r *Runtime) isPadHeld(vid uint16, b event.XButton) bool {
	return r.padHeld[vid][b]
}
