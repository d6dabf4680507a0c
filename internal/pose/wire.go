package pose

import "fmt"

// LandmarkInput is the wire form of a single landmark.
type LandmarkInput struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Confidence float64 `json:"confidence"`
}

// FrameInput is the wire form of a frame, as clients send it. A frame
// with Detected=false carries no landmarks (the detector found nobody).
type FrameInput struct {
	Index     int64           `json:"index"`
	Detected  bool            `json:"detected"`
	Landmarks []LandmarkInput `json:"landmarks,omitempty"`
}

// Frame validates the input and converts it to the internal
// fixed-size representation.
func (in FrameInput) Frame() (Frame, error) {
	if in.Index < 0 {
		return Frame{}, fmt.Errorf("negative frame index %d", in.Index)
	}

	f := Frame{
		Index:    in.Index,
		Detected: in.Detected,
	}
	if !in.Detected {
		return f, nil
	}

	if len(in.Landmarks) != NumJoints {
		return Frame{}, fmt.Errorf("expected %d landmarks, got %d", NumJoints, len(in.Landmarks))
	}
	for i, lm := range in.Landmarks {
		if lm.Confidence < 0 || lm.Confidence > 1 {
			return Frame{}, fmt.Errorf("landmark %d: confidence %f out of [0, 1]", i, lm.Confidence)
		}
		f.Landmarks[i] = Landmark{
			X:          lm.X,
			Y:          lm.Y,
			Z:          lm.Z,
			Confidence: lm.Confidence,
		}
	}
	return f, nil
}
