package pose

import "fmt"

// Joint is an index into the fixed landmark array produced by the
// pose detector. The indices follow the MediaPipe Pose topology,
// so frames coming from the detector can be passed through as-is.
type Joint int

const (
	Nose Joint = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	// NumJoints is the size of the landmark array in every frame
	NumJoints = 33
)

var jointNames = [NumJoints]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear", "mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_pinky", "right_pinky",
	"left_index", "right_index", "left_thumb", "right_thumb",
	"left_hip", "right_hip", "left_knee", "right_knee",
	"left_ankle", "right_ankle", "left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

func (j Joint) String() string {
	if j < 0 || j >= NumJoints {
		return fmt.Sprintf("joint(%d)", int(j))
	}
	return jointNames[j]
}

// Landmark is a single tracked body joint for one frame.
// Coordinates are normalized to [0, 1] relative to the image,
// confidence (visibility) to [0, 1].
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Confidence float64 `json:"confidence"`
}

// Frame is one detector result: a fixed-size ordered set of landmarks
// plus a monotonically increasing frame index. Frames are passed by
// value and never mutated after creation.
//
// Detected is false when the detector reported "no detection" for the
// frame; the landmark array is then all zeroes and must be ignored.
type Frame struct {
	Index     int64               `json:"index"`
	Landmarks [NumJoints]Landmark `json:"landmarks"`
	Detected  bool                `json:"detected"`
}

// At returns the landmark for the given joint.
func (f Frame) At(j Joint) Landmark {
	return f.Landmarks[j]
}
