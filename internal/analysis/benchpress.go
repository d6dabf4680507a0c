package analysis

import "github.com/gymbro/formcore/internal/pose"

// Bench press phases, driven by the left elbow angle. Lockout is arms
// extended at the top; a rep lowers the bar to the chest and presses
// back to lockout.
const (
	BenchLockout  Phase = "lockout"
	BenchLowering Phase = "lowering"
	BenchChest    Phase = "chest"
	BenchPressing Phase = "pressing"
)

type benchPressVariant struct {
	cfg *Config
}

func (b *benchPressVariant) metrics() []MetricDefinition {
	return []MetricDefinition{
		{Name: MetricElbow, Kind: KindAngle, Vertex: pose.LeftElbow, A: pose.LeftShoulder, B: pose.LeftWrist},
	}
}

func (b *benchPressVariant) primaryMetric() string { return MetricElbow }
func (b *benchPressVariant) trackMax() bool { return false }
func (b *benchPressVariant) initialPhase() Phase { return BenchLockout }

func (b *benchPressVariant) requiredPhases() []Phase {
	return []Phase{BenchLowering, BenchChest, BenchPressing}
}

func (b *benchPressVariant) next(phase Phase, v Values) (Phase, bool) {
	elbow := v[MetricElbow]
	switch phase {
	case BenchLockout:
		if elbow < b.cfg.Threshold(ThrElbowEnterLower) {
			return BenchLowering, true
		}
	case BenchLowering:
		if elbow < b.cfg.Threshold(ThrElbowEnterChest) {
			return BenchChest, true
		}
		if elbow > b.cfg.Threshold(ThrElbowExitLockout) {
			return BenchLockout, true
		}
	case BenchChest:
		if elbow > b.cfg.Threshold(ThrElbowExitChest) {
			return BenchPressing, true
		}
	case BenchPressing:
		if elbow < b.cfg.Threshold(ThrElbowEnterChest) {
			return BenchChest, true
		}
		if elbow > b.cfg.Threshold(ThrElbowExitLockout) {
			return BenchLockout, true
		}
	}
	return phase, false
}

func (b *benchPressVariant) faults(Phase, Values) []string { return nil }
