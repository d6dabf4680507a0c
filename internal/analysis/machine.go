package analysis

import (
	"fmt"
	"slices"
)

// Phase is a named stage of an exercise's movement cycle.
type Phase string

// EventKind enumerates what a machine step can emit.
type EventKind int

const (
	// RepCompleted fires exactly once per full ordered phase traversal.
	RepCompleted EventKind = iota + 1
	// PartialAttempt fires when a started cycle returns to the initial
	// phase without reaching the required depth.
	PartialAttempt
	// TrackingSuspended fires when too many consecutive frames had no
	// usable primary metric.
	TrackingSuspended
	// TrackingResumed fires on the first usable frame after a suspension.
	TrackingResumed
)

func (k EventKind) String() string {
	switch k {
	case RepCompleted:
		return "rep_completed"
	case PartialAttempt:
		return "partial_attempt"
	case TrackingSuspended:
		return "tracking_suspended"
	case TrackingResumed:
		return "tracking_resumed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

type Event struct {
	Kind       EventKind
	FrameIndex int64
	// Rep is set for RepCompleted only
	Rep *RepRecord
}

// RepRecord captures one completed repetition. Immutable once the
// machine emits it.
type RepRecord struct {
	Number     int
	StartFrame int64
	EndFrame   int64
	Phases     []Phase
	Extremum   float64
	Flags      []string
}

// variant describes one exercise's phase cycle to the generic machine:
// which metrics to compute, the transition table, and form faults.
type variant interface {
	metrics() []MetricDefinition
	// primaryMetric gates availability: a frame without it counts
	// toward the suspend threshold.
	primaryMetric() string
	// trackMax reports the extremum direction for the primary metric.
	trackMax() bool
	initialPhase() Phase
	// requiredPhases lists the phases a cycle must traverse, in order,
	// for a return to the initial phase to count as a rep.
	requiredPhases() []Phase
	// next evaluates the transition table; ok is false when no
	// transition fires for this phase and metric set.
	next(phase Phase, v Values) (next Phase, ok bool)
	// faults reports form faults observed on this frame, evaluated
	// only while a rep cycle is in progress.
	faults(phase Phase, v Values) []string
}

// Machine is the per-session phase tracker for one exercise. One
// instance per session; not safe for concurrent use, the session
// pipeline steps it from a single goroutine in frame order.
type Machine struct {
	cfg *Config
	v   variant

	phase       Phase
	suspended   bool
	unavailable int // consecutive frames without the primary metric

	cur      *RepRecord // in-progress rep attempt, nil when at rest
	repsDone int

	// extremum of the primary metric seen while at rest in the initial
	// phase; credited to the next rep (e.g. dead-hang elbow extension
	// reached between pullups)
	idle    float64
	idleSet bool
}

// NewMachine builds the state machine for the exercise in cfg.
// Unknown exercise types fail here, before any frame is processed.
func NewMachine(cfg *Config) (*Machine, error) {
	var v variant
	switch cfg.Exercise {
	case Squat:
		v = &squatVariant{cfg: cfg}
	case Pushup:
		v = &pushupVariant{cfg: cfg}
	case Pullup:
		v = &pullupVariant{cfg: cfg}
	case Deadlift:
		v = &deadliftVariant{cfg: cfg}
	case BenchPress:
		v = &benchPressVariant{cfg: cfg}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExercise, cfg.Exercise)
	}

	return &Machine{
		cfg:   cfg,
		v:     v,
		phase: v.initialPhase(),
	}, nil
}

func (m *Machine) Exercise() Exercise { return m.cfg.Exercise }

func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) Suspended() bool { return m.suspended }

func (m *Machine) RepsDone() int { return m.repsDone }

// Metrics returns the metric definitions the exercise needs per frame.
func (m *Machine) Metrics() []MetricDefinition { return m.v.metrics() }

// Step consumes one frame's metrics and advances the machine.
// gapBefore is the number of frames that never arrived before this one
// (upstream drops); they count toward the suspend threshold exactly
// like low-confidence frames.
func (m *Machine) Step(frameIndex int64, gapBefore int, v Values) []Event {
	var events []Event

	if gapBefore > 0 {
		m.unavailable += gapBefore
	}

	primary, available := v[m.v.primaryMetric()]
	if !available {
		m.unavailable++
		if !m.suspended && m.unavailable > m.cfg.SuspendAfter {
			// hold the current phase, stop evaluating until the
			// metric comes back
			m.suspended = true
			events = append(events, Event{Kind: TrackingSuspended, FrameIndex: frameIndex})
		}
		return events
	}

	// gap alone may have crossed the suspend threshold
	if !m.suspended && m.unavailable > m.cfg.SuspendAfter {
		m.suspended = true
		events = append(events, Event{Kind: TrackingSuspended, FrameIndex: frameIndex})
	}
	if m.suspended {
		m.suspended = false
		events = append(events, Event{Kind: TrackingResumed, FrameIndex: frameIndex})
	}
	m.unavailable = 0

	if m.cur != nil {
		m.cur.Extremum = m.extreme(m.cur.Extremum, primary)
	} else if !m.idleSet {
		m.idle = primary
		m.idleSet = true
	} else {
		m.idle = m.extreme(m.idle, primary)
	}

	// a single frame may cross several boundaries (coarse sampling),
	// so re-evaluate until the phase settles
	for range maxTransitionsPerFrame {
		next, ok := m.v.next(m.phase, v)
		if !ok || next == m.phase {
			break
		}
		events = append(events, m.enter(next, frameIndex, primary)...)
	}

	// faults are judged against the phase the frame settled in
	if m.cur != nil {
		m.trackFaults(v)
	}

	return events
}

const maxTransitionsPerFrame = 8

func (m *Machine) enter(next Phase, frameIndex int64, primary float64) []Event {
	initial := m.v.initialPhase()
	prev := m.phase
	m.phase = next

	if prev == initial && next != initial {
		// new rep attempt starts, seeded with the at-rest extremum
		extremum := primary
		if m.idleSet {
			extremum = m.extreme(m.idle, primary)
		}
		m.idleSet = false
		m.cur = &RepRecord{
			Number:     m.repsDone + 1,
			StartFrame: frameIndex,
			Phases:     []Phase{initial, next},
			Extremum:   extremum,
		}
		return nil
	}

	if m.cur == nil {
		return nil
	}
	m.cur.Phases = append(m.cur.Phases, next)

	if next != initial {
		return nil
	}

	// cycle closed: a rep only counts when every required phase was
	// traversed in the configured order
	rep := m.cur
	m.cur = nil

	if !visitedInOrder(rep.Phases, m.v.requiredPhases()) {
		return []Event{{Kind: PartialAttempt, FrameIndex: frameIndex}}
	}

	rep.EndFrame = frameIndex
	m.repsDone++
	rep.Number = m.repsDone
	return []Event{{Kind: RepCompleted, FrameIndex: frameIndex, Rep: rep}}
}

func (m *Machine) extreme(current, candidate float64) float64 {
	if m.v.trackMax() {
		return max(current, candidate)
	}
	return min(current, candidate)
}

func (m *Machine) trackFaults(v Values) {
	for _, flag := range m.v.faults(m.phase, v) {
		if !slices.Contains(m.cur.Flags, flag) {
			m.cur.Flags = append(m.cur.Flags, flag)
		}
	}
}

// visitedInOrder checks that required appears as a subsequence of visited.
func visitedInOrder(visited, required []Phase) bool {
	i := 0
	for _, p := range visited {
		if i < len(required) && p == required[i] {
			i++
		}
	}
	return i == len(required)
}
