package analysis

import (
	"errors"

	"github.com/gymbro/formcore/internal/geometry"
	"github.com/gymbro/formcore/internal/pose"
)

// Metric names produced per frame. Variants read the ones they need.
const (
	MetricKnee         = "knee"
	MetricTorsoLean    = "torso_lean"
	MetricElbow        = "elbow"
	MetricHipSag       = "hip_sag"
	MetricHip          = "hip"
	MetricBack         = "back"
	MetricExtension    = "extension"
	MetricBarClearance = "bar_clearance"
)

// MetricKind selects the geometric computation for a definition.
type MetricKind int

const (
	// KindAngle: angle at Vertex between Vertex->A and Vertex->B
	KindAngle MetricKind = iota + 1
	// KindVerticalAngle: angle at Vertex between Vertex->A and vertical
	KindVerticalAngle
	// KindLineDeviation: normalized signed distance of Vertex from line A-B
	KindLineDeviation
	// KindClearance: A.y minus B.y (positive when B sits above A in the image)
	KindClearance
)

// MetricDefinition names a geometric metric over landmark joints.
// Defined once per exercise, evaluated every frame.
type MetricDefinition struct {
	Name   string
	Kind   MetricKind
	Vertex pose.Joint
	A      pose.Joint
	B      pose.Joint
}

// Values holds the metrics that could be computed for one frame.
// A missing key means the metric was unavailable (detection loss or
// degenerate geometry) and the frame must not drive that transition.
type Values map[string]float64

// Compute evaluates the metric definitions against a frame. Metrics
// that cannot be computed are simply absent from the result; this is
// the per-frame absorption of DetectionLoss and computation errors.
func Compute(frame pose.Frame, defs []MetricDefinition, minConfidence float64) Values {
	values := make(Values, len(defs))
	if !frame.Detected {
		return values
	}

	for _, def := range defs {
		v, err := computeOne(frame, def, minConfidence)
		if err != nil {
			// expected transient condition, not an error to surface
			continue
		}
		values[def.Name] = v
	}
	return values
}

func computeOne(frame pose.Frame, def MetricDefinition, minConfidence float64) (float64, error) {
	switch def.Kind {
	case KindAngle:
		return geometry.AngleAt(frame.At(def.Vertex), frame.At(def.A), frame.At(def.B), minConfidence)
	case KindVerticalAngle:
		return geometry.AngleToVertical(frame.At(def.Vertex), frame.At(def.A), minConfidence)
	case KindLineDeviation:
		return geometry.LineDeviation(frame.At(def.Vertex), frame.At(def.A), frame.At(def.B), minConfidence)
	case KindClearance:
		a, b := frame.At(def.A), frame.At(def.B)
		if a.Confidence < minConfidence || b.Confidence < minConfidence {
			return 0, geometry.ErrLowConfidence
		}
		return a.Y - b.Y, nil
	default:
		return 0, errors.New("unknown metric kind")
	}
}
