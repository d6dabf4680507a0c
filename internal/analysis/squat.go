package analysis

import "github.com/gymbro/formcore/internal/pose"

// Squat phases. The cycle is Standing -> Descending -> Bottom ->
// Ascending -> Standing, driven by the left knee angle. Tracks the
// left body side only (side-profile camera assumption).
const (
	SquatStanding   Phase = "standing"
	SquatDescending Phase = "descending"
	SquatBottom     Phase = "bottom"
	SquatAscending  Phase = "ascending"
)

const (
	FlagExcessiveLean = "excessive_lean"
)

type squatVariant struct {
	cfg *Config
}

func (s *squatVariant) metrics() []MetricDefinition {
	return []MetricDefinition{
		{Name: MetricKnee, Kind: KindAngle, Vertex: pose.LeftKnee, A: pose.LeftHip, B: pose.LeftAnkle},
		{Name: MetricTorsoLean, Kind: KindVerticalAngle, Vertex: pose.LeftHip, A: pose.LeftShoulder},
	}
}

func (s *squatVariant) primaryMetric() string { return MetricKnee }
func (s *squatVariant) trackMax() bool { return false }
func (s *squatVariant) initialPhase() Phase { return SquatStanding }

func (s *squatVariant) requiredPhases() []Phase {
	return []Phase{SquatDescending, SquatBottom, SquatAscending}
}

func (s *squatVariant) next(phase Phase, v Values) (Phase, bool) {
	knee := v[MetricKnee]
	switch phase {
	case SquatStanding:
		if knee < s.cfg.Threshold(ThrKneeEnterDescent) {
			return SquatDescending, true
		}
	case SquatDescending:
		if knee < s.cfg.Threshold(ThrKneeEnterBottom) {
			return SquatBottom, true
		}
		if knee > s.cfg.Threshold(ThrKneeExitStanding) {
			// came back up without reaching depth
			return SquatStanding, true
		}
	case SquatBottom:
		if knee > s.cfg.Threshold(ThrKneeExitBottom) {
			return SquatAscending, true
		}
	case SquatAscending:
		if knee < s.cfg.Threshold(ThrKneeEnterBottom) {
			// dipped back down mid rep
			return SquatBottom, true
		}
		if knee > s.cfg.Threshold(ThrKneeExitStanding) {
			return SquatStanding, true
		}
	}
	return phase, false
}

func (s *squatVariant) faults(phase Phase, v Values) []string {
	if phase != SquatBottom {
		return nil
	}
	if lean, ok := v[MetricTorsoLean]; ok && lean > s.cfg.Threshold(ThrTorsoLeanMax) {
		return []string{FlagExcessiveLean}
	}
	return nil
}
