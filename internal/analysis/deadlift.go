package analysis

import "github.com/gymbro/formcore/internal/pose"

// Deadlift phases, driven by the left hip angle (shoulder-hip-knee).
// Setup is bent over with the weight down; a rep is the full hinge up
// to lockout and back down. The ear-shoulder-hip angle is a proxy for
// upper back rounding during the pull.
const (
	DeadliftSetup   Phase = "setup"
	DeadliftPull    Phase = "pull"
	DeadliftLockout Phase = "lockout"
	DeadliftLower   Phase = "lower"
)

const (
	FlagBackRounded = "back_rounded"
)

type deadliftVariant struct {
	cfg *Config
}

func (d *deadliftVariant) metrics() []MetricDefinition {
	return []MetricDefinition{
		{Name: MetricHip, Kind: KindAngle, Vertex: pose.LeftHip, A: pose.LeftShoulder, B: pose.LeftKnee},
		{Name: MetricBack, Kind: KindAngle, Vertex: pose.LeftShoulder, A: pose.LeftEar, B: pose.LeftHip},
	}
}

func (d *deadliftVariant) primaryMetric() string { return MetricHip }
func (d *deadliftVariant) trackMax() bool { return true }
func (d *deadliftVariant) initialPhase() Phase { return DeadliftSetup }

func (d *deadliftVariant) requiredPhases() []Phase {
	return []Phase{DeadliftPull, DeadliftLockout, DeadliftLower}
}

func (d *deadliftVariant) next(phase Phase, v Values) (Phase, bool) {
	hip := v[MetricHip]
	switch phase {
	case DeadliftSetup:
		if hip > d.cfg.Threshold(ThrHipEnterPull) {
			return DeadliftPull, true
		}
	case DeadliftPull:
		if hip > d.cfg.Threshold(ThrHipEnterLockout) {
			return DeadliftLockout, true
		}
		if hip < d.cfg.Threshold(ThrHipExitSetup) {
			// dropped back down without locking out
			return DeadliftSetup, true
		}
	case DeadliftLockout:
		if hip < d.cfg.Threshold(ThrHipExitLockout) {
			return DeadliftLower, true
		}
	case DeadliftLower:
		if hip > d.cfg.Threshold(ThrHipEnterLockout) {
			return DeadliftLockout, true
		}
		if hip < d.cfg.Threshold(ThrHipEnterSetup) {
			return DeadliftSetup, true
		}
	}
	return phase, false
}

func (d *deadliftVariant) faults(phase Phase, v Values) []string {
	if phase != DeadliftPull && phase != DeadliftLower {
		return nil
	}
	if back, ok := v[MetricBack]; ok && back < d.cfg.Threshold(ThrBackRoundMax) {
		return []string{FlagBackRounded}
	}
	return nil
}
