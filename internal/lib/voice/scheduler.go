// Package voice decides when spoken navigation instructions are emitted.
package voice

import (
	"fmt"
	"math"
	"strings"
)

// Progressive cue thresholds in meters, nearest first.
const (
	NowMeters    = 10.0
	NearMeters   = 50.0
	MediumMeters = 200.0
	FarMeters    = 500.0
)

// CueState tracks which thresholds have been spoken for one instruction.
// Flags reset whenever the instruction text changes.
type CueState struct {
	Instruction    string `json:"instruction"`
	SpokenAtFar    bool   `json:"spoken_at_far"`
	SpokenAtMedium bool   `json:"spoken_at_medium"`
	SpokenAtNear   bool   `json:"spoken_at_near"`
	SpokenAtNow    bool   `json:"spoken_at_now"`
}

// NextUtterance returns the phrase to speak for instruction at
// distanceToManeuver, if any, and the updated state. At most one phrase is
// returned per call. Firing a threshold also marks every farther threshold
// as spoken, so a jump from 600m to 30m yields only the 50m phrase rather
// than a backlog of 500m, 200m and 50m phrases.
func NextUtterance(instruction string, distanceToManeuver float64, state CueState) (string, bool, CueState) {
	if state.Instruction != instruction {
		state = CueState{Instruction: instruction}
	}
	if instruction == "" || math.IsNaN(distanceToManeuver) {
		return "", false, state
	}

	d := distanceToManeuver
	switch {
	case d <= NowMeters:
		if state.SpokenAtNow {
			break
		}
		state.SpokenAtNow = true
		state.SpokenAtNear, state.SpokenAtMedium, state.SpokenAtFar = true, true, true
		return instruction + " now", true, state
	case d <= NearMeters:
		if state.SpokenAtNear {
			break
		}
		state.SpokenAtNear = true
		state.SpokenAtMedium, state.SpokenAtFar = true, true
		return inDistance(NearMeters, instruction), true, state
	case d <= MediumMeters:
		if state.SpokenAtMedium {
			break
		}
		state.SpokenAtMedium = true
		state.SpokenAtFar = true
		return inDistance(MediumMeters, instruction), true, state
	case d <= FarMeters:
		if state.SpokenAtFar {
			break
		}
		state.SpokenAtFar = true
		return inDistance(FarMeters, instruction), true, state
	}

	return "", false, state
}

func inDistance(meters float64, instruction string) string {
	return fmt.Sprintf("In %d meters, %s", int(meters), lowerFirst(instruction))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
