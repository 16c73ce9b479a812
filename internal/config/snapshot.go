package config

import (
	"fmt"
	"strconv"
	"strings"

	"quickfire/internal/event"
	"quickfire/internal/keycode"
)

// TargetMode selects how a mapping's target chords are emitted.
type TargetMode int

const (
	// TargetSingle and TargetMulti emit every listed chord each tick.
	TargetSingle TargetMode = 0
	TargetMulti  TargetMode = 1
	// TargetSequence emits one chord per tick, advancing an index.
	TargetSequence TargetMode = 2
)

// Sequence trigger window bounds in milliseconds.
const (
	MinSequenceWindowMS     = 50
	MaxSequenceWindowMS     = 10000
	DefaultSequenceWindowMS = 500
)

// Mapping is one compiled trigger/target pair. The ID is the FNV-1a hash of
// the canonical trigger form, so it is stable across reloads that keep the
// trigger.
type Mapping struct {
	ID uint32

	// Chord trigger. Unset when IsSequence.
	Trigger keycode.Chord

	// Sequence trigger.
	IsSequence      bool
	TriggerSeq      []event.Input
	SeqWindowMS     uint16
	SeqDeviceFilter uint32

	Targets    []keycode.Chord
	TargetMode TargetMode

	IntervalMS      uint16
	EventDurationMS uint16
	MoveSpeed       uint8
	TurboEnabled    bool
}

// HasMotionTarget reports whether any target moves or scrolls the cursor,
// which routes the mapping to the dedicated motion worker.
func (m *Mapping) HasMotionTarget() bool {
	for _, t := range m.Targets {
		if t.Main.Kind == event.KindMouseMotion || t.Main.Kind == event.KindMouseWheel {
			return true
		}
	}
	return false
}

// DeviceID identifies one HID device for baseline storage. Devices with the
// same VID/PID but different serials are distinct.
type DeviceID struct {
	VID    uint16
	PID    uint16
	Serial uint64
}

// String renders the VID:PID:SERIAL form used in the config file.
func (d DeviceID) String() string {
	return fmt.Sprintf("%04X:%04X:%s", d.VID, d.PID, keycode.FormatSerial(d.Serial))
}

// ParseDeviceID parses the VID:PID:SERIAL form.
func ParseDeviceID(s string) (DeviceID, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(s)), ":")
	if len(parts) != 3 {
		return DeviceID{}, fmt.Errorf("invalid device id %q", s)
	}
	vid, err1 := strconv.ParseUint(parts[0], 16, 16)
	pid, err2 := strconv.ParseUint(parts[1], 16, 16)
	serial, ok := keycode.PackSerial(parts[2])
	if err1 != nil || err2 != nil || !ok {
		return DeviceID{}, fmt.Errorf("invalid device id %q", s)
	}
	return DeviceID{VID: uint16(vid), PID: uint16(pid), Serial: serial}, nil
}

// Snapshot is the immutable compiled configuration the engine runs against.
// It is replaced wholesale by atomic swap on reload.
type Snapshot struct {
	Mappings []*Mapping
	ByID     map[uint32]*Mapping

	SwitchVK         uint16
	ProcessWhitelist []string
	WorkerCount      int
	InputTimeoutMS   uint16

	HidBaselines map[DeviceID][]byte

	ShowTrayIcon      bool
	ShowNotifications bool
	Language          string
	DarkMode          bool
	AlwaysOnTop       bool
}

// triggerKey returns the canonical trigger form hashed into the mapping ID
// and used for duplicate-trigger detection.
func triggerKey(m *Mapping) string {
	if !m.IsSequence {
		return m.Trigger.Format()
	}
	parts := make([]string, len(m.TriggerSeq))
	for i, in := range m.TriggerSeq {
		parts[i] = keycode.FormatToken(in)
	}
	return "SEQ:" + strings.Join(parts, ",")
}

// Compile validates the raw file and produces the immutable snapshot.
// Invariant violations reject the whole file so a failed reload keeps the
// previous snapshot.
func Compile(f *File) (*Snapshot, error) {
	snap := &Snapshot{
		ByID:              make(map[uint32]*Mapping, len(f.Mappings)),
		ProcessWhitelist:  append([]string(nil), f.ProcessWhitelist...),
		WorkerCount:       int(f.WorkerCount),
		InputTimeoutMS:    defaultU16(f.InputTimeout, 5),
		HidBaselines:      make(map[DeviceID][]byte, len(f.HidBaselines)),
		ShowTrayIcon:      f.ShowTrayIcon,
		ShowNotifications: f.ShowNotifications,
		Language:          f.Language,
		DarkMode:          f.DarkMode,
		AlwaysOnTop:       f.AlwaysOnTop,
	}

	if f.SwitchKey != "" {
		vk, ok := keycode.NameVK(f.SwitchKey)
		if !ok {
			return nil, fmt.Errorf("switch_key: unknown key %q", f.SwitchKey)
		}
		snap.SwitchVK = keycode.NormalizeModifierVK(vk)
	}

	seen := make(map[string]int, len(f.Mappings))
	for i := range f.Mappings {
		m, err := compileMapping(f, &f.Mappings[i])
		if err != nil {
			return nil, fmt.Errorf("mappings[%d]: %w", i, err)
		}
		key := triggerKey(m)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("mappings[%d]: trigger %s duplicates mappings[%d]", i, key, prev)
		}
		seen[key] = i
		snap.Mappings = append(snap.Mappings, m)
		snap.ByID[m.ID] = m
	}

	for i, b := range f.HidBaselines {
		id, err := ParseDeviceID(b.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("hid_baselines[%d]: %w", i, err)
		}
		data := make([]byte, len(b.BaselineData))
		for j, v := range b.BaselineData {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("hid_baselines[%d]: byte %d out of range", i, j)
			}
			data[j] = byte(v)
		}
		snap.HidBaselines[id] = data
	}

	return snap, nil
}

func compileMapping(f *File, mf *MappingFile) (*Mapping, error) {
	m := &Mapping{
		IntervalMS:      defaultU16(valueOr(mf.Interval, f.Interval), 5),
		EventDurationMS: defaultU16(valueOr(mf.EventDuration, f.EventDuration), 5),
		MoveSpeed:       mf.MoveSpeed,
		TurboEnabled:    true,
		TargetMode:      TargetMode(mf.TargetMode),
	}
	if mf.TurboEnabled != nil {
		m.TurboEnabled = *mf.TurboEnabled
	}
	if m.IntervalMS < 2 {
		m.IntervalMS = 2
	}
	if m.EventDurationMS < 2 {
		m.EventDurationMS = 2
	}
	if m.MoveSpeed == 0 {
		m.MoveSpeed = 5
	}
	if m.MoveSpeed > 100 {
		m.MoveSpeed = 100
	}
	if m.TargetMode < TargetSingle || m.TargetMode > TargetSequence {
		return nil, fmt.Errorf("target_mode %d out of range", mf.TargetMode)
	}

	switch {
	case mf.TriggerSequence != "":
		seq, filter, err := compileSequence(mf.TriggerSequence)
		if err != nil {
			return nil, err
		}
		m.IsSequence = true
		m.TriggerSeq = seq
		m.SeqDeviceFilter = filter
		m.SeqWindowMS = mf.SequenceWindow
		if m.SeqWindowMS == 0 {
			m.SeqWindowMS = DefaultSequenceWindowMS
		}
		if m.SeqWindowMS < MinSequenceWindowMS || m.SeqWindowMS > MaxSequenceWindowMS {
			return nil, fmt.Errorf("sequence_window_ms %d out of range [%d, %d]",
				m.SeqWindowMS, MinSequenceWindowMS, MaxSequenceWindowMS)
		}
	case mf.TriggerKey != "":
		c, err := keycode.ParseChord(mf.TriggerKey)
		if err != nil {
			return nil, err
		}
		m.Trigger = c
	default:
		return nil, fmt.Errorf("mapping has neither trigger_key nor trigger_sequence")
	}

	targets := mf.TargetKeys
	if len(targets) == 0 && mf.TargetKey != "" {
		targets = []string{mf.TargetKey}
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("mapping has no target")
	}
	for _, t := range targets {
		c, err := keycode.ParseChord(t)
		if err != nil {
			return nil, err
		}
		m.Targets = append(m.Targets, c)
	}

	m.ID = keycode.Hash(triggerKey(m))
	return m, nil
}

// compileSequence parses a comma-joined token list and derives the device
// filter: sequences whose every input comes from the same XInput vendor
// match only entries from that pad.
func compileSequence(s string) ([]event.Input, uint32, error) {
	parts := strings.Split(s, ",")
	if len(parts) > 16 {
		return nil, 0, fmt.Errorf("sequence too long (max 16 inputs)")
	}
	seq := make([]event.Input, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, 0, fmt.Errorf("empty sequence element")
		}
		in, err := keycode.ParseToken(p)
		if err != nil {
			return nil, 0, err
		}
		seq = append(seq, in)
	}
	if len(seq) == 0 {
		return nil, 0, fmt.Errorf("empty sequence")
	}

	filter := uint32(0)
	allXInput := true
	for _, in := range seq {
		if in.Kind != event.KindXInput || in.VID != seq[0].VID {
			allXInput = false
			break
		}
	}
	if allXInput {
		filter = event.TagXInput(seq[0].VID)
	}
	return seq, filter, nil
}

func valueOr(p *uint16, fallback uint16) uint16 {
	if p != nil {
		return *p
	}
	return fallback
}

func defaultU16(v, fallback uint16) uint16 {
	if v == 0 {
		return fallback
	}
	return v
}
