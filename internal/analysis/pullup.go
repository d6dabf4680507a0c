package analysis

import "github.com/gymbro/formcore/internal/pose"

// Pullup phases. The chin-over-bar signal is the vertical clearance of
// the nose over the left wrist; elbow extension is the quality metric
// (full extension at the bottom scores best), tracked as a maximum.
const (
	PullupHang     Phase = "hang"
	PullupPulling  Phase = "pulling"
	PullupChinOver Phase = "chin_over"
	PullupLowering Phase = "lowering"
)

type pullupVariant struct {
	cfg *Config
}

func (p *pullupVariant) metrics() []MetricDefinition {
	return []MetricDefinition{
		{Name: MetricExtension, Kind: KindAngle, Vertex: pose.LeftElbow, A: pose.LeftShoulder, B: pose.LeftWrist},
		{Name: MetricBarClearance, Kind: KindClearance, A: pose.LeftWrist, B: pose.Nose},
	}
}

func (p *pullupVariant) primaryMetric() string { return MetricExtension }
func (p *pullupVariant) trackMax() bool { return true }
func (p *pullupVariant) initialPhase() Phase { return PullupHang }

func (p *pullupVariant) requiredPhases() []Phase {
	return []Phase{PullupPulling, PullupChinOver, PullupLowering}
}

func (p *pullupVariant) next(phase Phase, v Values) (Phase, bool) {
	extension := v[MetricExtension]
	clearance, clearanceOK := v[MetricBarClearance]
	aboveBar := clearanceOK && clearance > 0

	switch phase {
	case PullupHang:
		if extension < p.cfg.Threshold(ThrExtensionEnterPull) {
			return PullupPulling, true
		}
	case PullupPulling:
		if aboveBar {
			return PullupChinOver, true
		}
		if extension > p.cfg.Threshold(ThrExtensionExitHang) {
			// arms straightened again without clearing the bar
			return PullupHang, true
		}
	case PullupChinOver:
		if clearanceOK && !aboveBar {
			return PullupLowering, true
		}
	case PullupLowering:
		if extension > p.cfg.Threshold(ThrExtensionExitLower) {
			return PullupHang, true
		}
	}
	return phase, false
}

func (p *pullupVariant) faults(Phase, Values) []string { return nil }
