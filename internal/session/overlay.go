package session

import "github.com/gymbro/formcore/internal/analysis"

// Annotation is the per-frame data handed to an overlay renderer:
// computed metrics and the machine state after the frame was analyzed.
type Annotation struct {
	FrameIndex int64           `json:"frameIndex"`
	Phase      string          `json:"phase"`
	Suspended  bool            `json:"suspended"`
	Metrics    analysis.Values `json:"metrics"`
	RepsCount  int             `json:"repsCount"`
	Events     []string        `json:"events,omitempty"`
}

// OverlaySink receives per-frame annotations. Calls are fire-and-forget
// from the pipeline's point of view: errors are logged and never affect
// analysis correctness.
//
//go:generate mockgen -source=$GOFILE -destination=overlay_mocks_test.go -package=session_test
type OverlaySink interface {
	Render(a Annotation) error
}

// NopOverlay discards annotations.
type NopOverlay struct{}

func (NopOverlay) Render(Annotation) error { return nil }
