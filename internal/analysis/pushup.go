package analysis

import "github.com/gymbro/formcore/internal/pose"

// Pushup phases, driven by the left elbow angle. Hip sag is measured
// as the normalized deviation of the hip from the shoulder-ankle line.
const (
	PushupPlank    Phase = "plank"
	PushupLowering Phase = "lowering"
	PushupBottom   Phase = "bottom"
	PushupPressing Phase = "pressing"
)

const (
	FlagHipSagMild   = "hip_sag_mild"
	FlagHipSagSevere = "hip_sag_significant"
)

type pushupVariant struct {
	cfg *Config
}

func (p *pushupVariant) metrics() []MetricDefinition {
	return []MetricDefinition{
		{Name: MetricElbow, Kind: KindAngle, Vertex: pose.LeftElbow, A: pose.LeftShoulder, B: pose.LeftWrist},
		{Name: MetricHipSag, Kind: KindLineDeviation, Vertex: pose.LeftHip, A: pose.LeftShoulder, B: pose.LeftAnkle},
	}
}

func (p *pushupVariant) primaryMetric() string { return MetricElbow }
func (p *pushupVariant) trackMax() bool { return false }
func (p *pushupVariant) initialPhase() Phase { return PushupPlank }

func (p *pushupVariant) requiredPhases() []Phase {
	return []Phase{PushupLowering, PushupBottom, PushupPressing}
}

func (p *pushupVariant) next(phase Phase, v Values) (Phase, bool) {
	elbow := v[MetricElbow]
	switch phase {
	case PushupPlank:
		if elbow < p.cfg.Threshold(ThrElbowEnterDescent) {
			return PushupLowering, true
		}
	case PushupLowering:
		if elbow < p.cfg.Threshold(ThrElbowEnterBottom) {
			return PushupBottom, true
		}
		if elbow > p.cfg.Threshold(ThrElbowExitTop) {
			return PushupPlank, true
		}
	case PushupBottom:
		if elbow > p.cfg.Threshold(ThrElbowExitBottom) {
			return PushupPressing, true
		}
	case PushupPressing:
		if elbow < p.cfg.Threshold(ThrElbowEnterBottom) {
			return PushupBottom, true
		}
		if elbow > p.cfg.Threshold(ThrElbowExitTop) {
			return PushupPlank, true
		}
	}
	return phase, false
}

func (p *pushupVariant) faults(_ Phase, v Values) []string {
	sag, ok := v[MetricHipSag]
	if !ok {
		return nil
	}
	if sag < 0 {
		sag = -sag
	}
	switch {
	case sag > p.cfg.Threshold(ThrHipSagSevereMin):
		return []string{FlagHipSagSevere}
	case sag > p.cfg.Threshold(ThrHipSagMildMin):
		return []string{FlagHipSagMild}
	}
	return nil
}
