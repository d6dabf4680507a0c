package analysis

import "slices"

// band is one rating segment: the label applies while the metric is
// below Max. Bands are ordered, disjoint, inclusive on the lower edge.
type band struct {
	Max   float64
	Label string
}

// NSCA-derived rating bands per exercise, over the rep extremum.
var ratingBands = map[Exercise][]band{
	Squat: {
		{70, "Very Deep"},
		{85, "Excellent"},
		{100, "Good (Parallel)"},
		{120, "Shallow"},
		{181, "Very Shallow"},
	},
	Pushup: {
		{80, "Excellent Depth"},
		{100, "Good Depth"},
		{120, "Shallow"},
		{181, "Very Shallow"},
	},
	Pullup: {
		{140, "Poor Extension"},
		{160, "Good Range"},
		{181, "Excellent Form"},
	},
	Deadlift: {
		{160, "Incomplete Lockout"},
		{170, "Good Lockout"},
		{181, "Full Lockout"},
	},
	BenchPress: {
		{70, "Full Range"},
		{90, "Good Range"},
		{181, "Partial Range"},
	},
}

// Rate maps a rep's extremum metric to its rating label. Pure: the
// same input always yields the same label.
func Rate(ex Exercise, extremum float64) string {
	for _, b := range ratingBands[ex] {
		if extremum < b.Max {
			return b.Label
		}
	}
	return ""
}

// messages for fault flags raised by the state machines
var faultCorrections = map[string]string{
	FlagExcessiveLean: "Excessive forward lean, keep your chest up.",
	FlagHipSagMild:    "Keep body in a straight line.",
	FlagHipSagSevere:  "Engage core to prevent hips from dropping.",
	FlagBackRounded:   "Back rounded during the pull. Keep your back flat.",
}

// ForRep combines a completed rep's rating with its fault flags into
// pre-authored messages. Deterministic, stable order.
func ForRep(ex Exercise, rep RepRecord) (feedback, corrections []string) {
	feedback = append(feedback, Rate(ex, rep.Extremum))
	for _, flag := range rep.Flags {
		if msg, ok := faultCorrections[flag]; ok {
			corrections = append(corrections, msg)
		}
	}
	return feedback, corrections
}

// RepSummary is the per-rep entry of a session result.
type RepSummary struct {
	Rep        int      `json:"rep"`
	StartFrame int64    `json:"startFrame"`
	EndFrame   int64    `json:"endFrame"`
	Phases     []string `json:"phases"`
	Extremum   float64  `json:"extremum"`
	Flags      []string `json:"flags"`
	Rating     string   `json:"rating"`
}

// Summary is the analysis part of a session result: counted reps,
// session-level feedback, deduplicated corrections and the per-rep log.
type Summary struct {
	RepsCount   int          `json:"repsCount"`
	Feedback    []string     `json:"feedback"`
	Corrections []string     `json:"corrections"`
	AvgMetric   float64      `json:"avgMetric"`
	PerRep      []RepSummary `json:"perRep"`
}

// Summarize builds the session summary over all completed reps. A
// correction appears at most once in the session list (first-seen
// order); per-rep entries keep their own flags untouched.
func Summarize(ex Exercise, reps []RepRecord) *Summary {
	s := &Summary{
		RepsCount:   len(reps),
		Feedback:    []string{},
		Corrections: []string{},
		PerRep:      make([]RepSummary, 0, len(reps)),
	}

	var extremumSum float64
	for _, rep := range reps {
		extremumSum += rep.Extremum

		phases := make([]string, 0, len(rep.Phases))
		for _, p := range rep.Phases {
			phases = append(phases, string(p))
		}
		flags := append([]string{}, rep.Flags...)
		s.PerRep = append(s.PerRep, RepSummary{
			Rep:        rep.Number,
			StartFrame: rep.StartFrame,
			EndFrame:   rep.EndFrame,
			Phases:     phases,
			Extremum:   rep.Extremum,
			Flags:      flags,
			Rating:     Rate(ex, rep.Extremum),
		})
	}
	if len(reps) > 0 {
		s.AvgMetric = extremumSum / float64(len(reps))
	}

	addFeedback := func(fb string, corrections ...string) {
		s.Feedback = append(s.Feedback, fb)
		for _, c := range corrections {
			if !slices.Contains(s.Corrections, c) {
				s.Corrections = append(s.Corrections, c)
			}
		}
	}

	switch ex {
	case Squat:
		summarizeSquat(s, addFeedback)
	case Pushup:
		summarizePushup(s, reps, addFeedback)
	case Pullup:
		summarizePullup(s, addFeedback)
	case Deadlift:
		summarizeDeadlift(s, reps, addFeedback)
	case BenchPress:
		summarizeBenchPress(s, addFeedback)
	}

	// fault corrections collected across reps, deduplicated
	for _, rep := range reps {
		_, corrections := ForRep(ex, rep)
		for _, c := range corrections {
			if !slices.Contains(s.Corrections, c) {
				s.Corrections = append(s.Corrections, c)
			}
		}
	}

	return s
}

type addFeedbackFunc func(fb string, corrections ...string)

func summarizeSquat(s *Summary, add addFeedbackFunc) {
	if s.RepsCount == 0 {
		add("No Reps Detected",
			"Could not detect full squats. Ensure your whole body is in frame.",
			"Try filming from a side profile for best results.",
		)
		return
	}
	switch {
	case s.AvgMetric > 100:
		add("Insufficient Depth",
			"You are not reaching parallel (90 degree knee angle). Sit back deeper.",
			"Practice with a box or bench.",
			"Improve ankle mobility.",
		)
	case s.AvgMetric >= 85:
		add("Good Depth (NSCA Standard)",
			"Great work hitting parallel.",
			"Work on depth consistency.",
			"Increase weight gradually.",
		)
	default:
		add("Excellent Depth",
			"You're going deeper than required.",
			"Maintain control at the bottom.",
		)
	}
}

func summarizePushup(s *Summary, reps []RepRecord, add addFeedbackFunc) {
	if s.RepsCount == 0 {
		add("No Reps Detected",
			"Ensure full extension and side profile view.",
		)
		return
	}
	switch {
	case s.AvgMetric > 100:
		add("Insufficient Depth",
			"Not reaching 90 degree elbow angle. Lower your chest further.",
			"Practice hands-elevated pushups.",
		)
	case s.AvgMetric >= 80:
		add("Good Depth (NSCA Standard)",
			"Hitting proper elbow angle.",
		)
	default:
		add("Excellent Range of Motion",
			"Going deeper than required.",
		)
	}

	switch {
	case anyFlagged(reps, FlagHipSagSevere):
		add("Significant Hip Sag",
			"Engage core to prevent hips from dropping.",
			"Practice plank holds.",
		)
	case anyFlagged(reps, FlagHipSagMild):
		add("Mild Hip Sag",
			"Keep body in a straight line.",
		)
	}
}

func summarizePullup(s *Summary, add addFeedbackFunc) {
	if s.RepsCount == 0 {
		add("No Reps Detected",
			"Ensure your chin clears the bar.",
			"Film from the side or front.",
		)
		return
	}
	switch {
	case s.AvgMetric < 140:
		add("Poor Extension",
			"Fully straighten your arms at the bottom.",
			"Dead hang between reps for max hypertrophy.",
		)
	case s.AvgMetric < 160:
		add("Good Range",
			"Try to relax into a dead hang for full benefit.",
		)
	default:
		add("Excellent Form",
			"Great full range of motion!",
		)
	}
}

func summarizeDeadlift(s *Summary, reps []RepRecord, add addFeedbackFunc) {
	if s.RepsCount == 0 {
		add("No Full Reps",
			"Ensure you stand up fully to lock out the hips.",
		)
		return
	}
	add("Good Hinge Movement",
		"Keep your back flat and chest up.",
	)
	if anyFlagged(reps, FlagBackRounded) {
		add("Back Rounding Detected",
			"Brace your lats and keep a neutral spine before pulling.",
		)
	}
}

func summarizeBenchPress(s *Summary, add addFeedbackFunc) {
	if s.RepsCount == 0 {
		add("No Reps Detected",
			"Ensure full range of motion (touch chest, fully extend).",
		)
		return
	}
	add("Good Range",
		"Keep elbows tucked at 45 degrees.",
	)
}

func anyFlagged(reps []RepRecord, flag string) bool {
	for _, rep := range reps {
		if slices.Contains(rep.Flags, flag) {
			return true
		}
	}
	return false
}
