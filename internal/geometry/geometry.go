// Package geometry computes joint angles and alignment deviations from
// pose landmarks. All functions are pure; unusable input (low detection
// confidence, degenerate vectors) is reported through error values that
// callers absorb as "metric unavailable for this frame", never as a crash.
package geometry

import (
	"errors"
	"math"

	"github.com/gymbro/formcore/internal/pose"
)

// DefaultMinConfidence is the detection confidence below which a
// landmark is treated as missing.
const DefaultMinConfidence = 0.5

var (
	// ErrLowConfidence marks a transient detection loss for the frame.
	ErrLowConfidence = errors.New("landmark confidence below minimum")
	// ErrDegenerateGeometry marks a metric computation failure
	// (near-zero vector magnitude, coincident landmarks).
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

const epsilon = 1e-9

// AngleAt computes the angle in degrees at vertex between the vectors
// vertex->a and vertex->b, clamped to [0, 180]. It is symmetric in a
// and b. Angles are measured on the image plane, matching the
// side-profile camera assumption of the analyzers.
func AngleAt(vertex, a, b pose.Landmark, minConfidence float64) (float64, error) {
	if vertex.Confidence < minConfidence ||
		a.Confidence < minConfidence ||
		b.Confidence < minConfidence {
		return 0, ErrLowConfidence
	}

	vax, vay := a.X-vertex.X, a.Y-vertex.Y
	vbx, vby := b.X-vertex.X, b.Y-vertex.Y

	magA := math.Hypot(vax, vay)
	magB := math.Hypot(vbx, vby)
	if magA < epsilon || magB < epsilon {
		return 0, ErrDegenerateGeometry
	}

	cos := (vax*vbx + vay*vby) / (magA * magB)
	// guard against floating point drift outside [-1, 1]
	cos = math.Max(-1, math.Min(1, cos))

	deg := math.Acos(cos) * 180 / math.Pi
	if math.IsNaN(deg) {
		return 0, ErrDegenerateGeometry
	}
	return clampAngle(deg), nil
}

// AngleToVertical computes the angle in degrees at vertex between the
// vector vertex->a and the upward vertical direction. Used for torso
// lean, where the reference is gravity rather than another joint.
func AngleToVertical(vertex, a pose.Landmark, minConfidence float64) (float64, error) {
	// image y grows downwards, so "up" is a point above the vertex
	up := pose.Landmark{X: vertex.X, Y: vertex.Y - 1, Confidence: 1}
	return AngleAt(vertex, a, up, minConfidence)
}

// LineDeviation computes the signed perpendicular distance from point
// to the line through lineA and lineB, normalized by the distance
// lineA-lineB so the value is invariant to body size and camera
// distance. Positive values lie on the left of the lineA->lineB
// direction in image coordinates.
func LineDeviation(point, lineA, lineB pose.Landmark, minConfidence float64) (float64, error) {
	if point.Confidence < minConfidence ||
		lineA.Confidence < minConfidence ||
		lineB.Confidence < minConfidence {
		return 0, ErrLowConfidence
	}

	lx, ly := lineB.X-lineA.X, lineB.Y-lineA.Y
	px, py := point.X-lineA.X, point.Y-lineA.Y

	lineLen := math.Hypot(lx, ly)
	if lineLen < epsilon {
		return 0, ErrDegenerateGeometry
	}

	// 2D cross product: |cross| / lineLen is the perpendicular
	// distance, one more division by lineLen normalizes the scale
	cross := lx*py - ly*px
	dev := cross / (lineLen * lineLen)
	if math.IsNaN(dev) {
		return 0, ErrDegenerateGeometry
	}
	return dev, nil
}

// Midpoint returns the landmark halfway between a and b, with the
// lower of the two confidences.
func Midpoint(a, b pose.Landmark) pose.Landmark {
	return pose.Landmark{
		X:          (a.X + b.X) / 2,
		Y:          (a.Y + b.Y) / 2,
		Z:          (a.Z + b.Z) / 2,
		Confidence: math.Min(a.Confidence, b.Confidence),
	}
}

func clampAngle(deg float64) float64 {
	if deg < 0 {
		return 0
	}
	if deg > 180 {
		return 180
	}
	return deg
}
