// Package analysis is the exercise form analysis core: per-exercise
// threshold tables, the phase state machines doing rep counting, and
// the feedback engine turning completed reps into coaching messages.
package analysis

import (
	"errors"
	"fmt"
)

// Exercise identifies a supported exercise type.
type Exercise string

const (
	Squat      Exercise = "squat"
	Pushup     Exercise = "pushup"
	Pullup     Exercise = "pullup"
	Deadlift   Exercise = "deadlift"
	BenchPress Exercise = "benchpress"
)

// Exercises lists all supported exercise types, in stable order.
var Exercises = []Exercise{Squat, Pushup, Pullup, Deadlift, BenchPress}

// ErrUnknownExercise is returned for exercise types without a
// threshold table. Fatal at session creation, never mid-session.
var ErrUnknownExercise = errors.New("unknown exercise type")

func ParseExercise(s string) (Exercise, error) {
	for _, ex := range Exercises {
		if string(ex) == s {
			return ex, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExercise, s)
}
