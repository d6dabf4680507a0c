package analysis

import (
	"errors"
	"fmt"
)

// Threshold names. Enter/exit pairs of the same transition always use
// distinct values (hysteresis band), so a boundary is never shared
// between two directions.
const (
	// squat (knee angle: hip-knee-ankle)
	ThrKneeEnterDescent = "knee_enter_descent"
	ThrKneeEnterBottom  = "knee_enter_bottom"
	ThrKneeExitBottom   = "knee_exit_bottom"
	ThrKneeExitStanding = "knee_exit_standing"
	ThrTorsoLeanMax     = "torso_lean_max"

	// pushup (elbow angle: shoulder-elbow-wrist, hip sag deviation)
	ThrElbowEnterDescent = "elbow_enter_descent"
	ThrElbowEnterBottom  = "elbow_enter_bottom"
	ThrElbowExitBottom   = "elbow_exit_bottom"
	ThrElbowExitTop      = "elbow_exit_top"
	ThrHipSagMildMin     = "hip_sag_mild_min"
	ThrHipSagSevereMin   = "hip_sag_severe_min"

	// pullup (elbow extension + bar clearance)
	ThrExtensionEnterPull = "extension_enter_pull"
	ThrExtensionExitHang  = "extension_exit_hang"
	ThrExtensionExitLower = "extension_exit_lower"

	// deadlift (hip angle: shoulder-hip-knee, back proxy: ear-shoulder-hip)
	ThrHipEnterPull    = "hip_enter_pull"
	ThrHipExitSetup    = "hip_exit_setup"
	ThrHipEnterLockout = "hip_enter_lockout"
	ThrHipExitLockout  = "hip_exit_lockout"
	ThrHipEnterSetup   = "hip_enter_setup"
	ThrBackRoundMax    = "back_round_max"

	// benchpress (elbow angle: shoulder-elbow-wrist)
	ThrElbowEnterLower  = "elbow_enter_lower"
	ThrElbowEnterChest  = "elbow_enter_chest"
	ThrElbowExitChest   = "elbow_exit_chest"
	ThrElbowExitLockout = "elbow_exit_lockout"
)

const (
	// DefaultSuspendAfter is the number of consecutive frames without
	// the primary metric after which tracking suspends.
	DefaultSuspendAfter = 5
	// DefaultMinConfidence gates landmarks for metric computation.
	DefaultMinConfidence = 0.5
)

// Config is the immutable per-exercise table of named numeric
// boundaries. Loaded once at session creation and passed by reference
// into the state machine and the feedback engine; never mutated after.
type Config struct {
	Exercise      Exercise
	MinConfidence float64
	SuspendAfter  int
	thresholds    map[string]float64
}

// Threshold returns the named boundary value. Unknown names are a
// programming error in a variant's transition table.
func (c *Config) Threshold(name string) float64 {
	v, ok := c.thresholds[name]
	if !ok {
		panic(fmt.Sprintf("threshold %q not configured for %s", name, c.Exercise))
	}
	return v
}

var defaultThresholds = map[Exercise]map[string]float64{
	Squat: {
		ThrKneeEnterDescent: 160,
		ThrKneeEnterBottom:  150,
		ThrKneeExitBottom:   155,
		ThrKneeExitStanding: 165,
		ThrTorsoLeanMax:     50,
	},
	Pushup: {
		ThrElbowEnterDescent: 150,
		ThrElbowEnterBottom:  140,
		ThrElbowExitBottom:   145,
		ThrElbowExitTop:      160,
		ThrHipSagMildMin:     0.05,
		ThrHipSagSevereMin:   0.10,
	},
	Pullup: {
		ThrExtensionEnterPull: 150,
		ThrExtensionExitHang:  165,
		ThrExtensionExitLower: 90,
	},
	Deadlift: {
		ThrHipEnterPull:    110,
		ThrHipExitSetup:    90,
		ThrHipEnterLockout: 160,
		ThrHipExitLockout:  150,
		ThrHipEnterSetup:   100,
		ThrBackRoundMax:    140,
	},
	BenchPress: {
		ThrElbowEnterLower:  140,
		ThrElbowEnterChest:  80,
		ThrElbowExitChest:   90,
		ThrElbowExitLockout: 150,
	},
}

// ConfigFor returns a fresh Config with the default threshold table
// for the exercise, or ErrUnknownExercise.
func ConfigFor(ex Exercise) (*Config, error) {
	defaults, ok := defaultThresholds[ex]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExercise, ex)
	}

	thresholds := make(map[string]float64, len(defaults))
	for name, val := range defaults {
		thresholds[name] = val
	}

	return &Config{
		Exercise:      ex,
		MinConfidence: DefaultMinConfidence,
		SuspendAfter:  DefaultSuspendAfter,
		thresholds:    thresholds,
	}, nil
}

// ErrUnknownThreshold rejects overrides of boundaries the exercise
// does not have.
var ErrUnknownThreshold = errors.New("unknown threshold")

// WithThreshold returns a copy of the config with one boundary
// overridden. The receiver is left untouched.
func (c *Config) WithThreshold(name string, value float64) (*Config, error) {
	if _, ok := c.thresholds[name]; !ok {
		return nil, fmt.Errorf("%w: %q for %s", ErrUnknownThreshold, name, c.Exercise)
	}

	thresholds := make(map[string]float64, len(c.thresholds))
	for n, v := range c.thresholds {
		thresholds[n] = v
	}
	thresholds[name] = value

	clone := *c
	clone.thresholds = thresholds
	return &clone, nil
}
