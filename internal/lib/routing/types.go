package routing

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
)

// ErrInvalidRoute is returned when a route cannot be navigated: it has no
// points or no steps.
var ErrInvalidRoute = errors.NewC("invalid route", codes.InvalidArgument).
	WithHTTPStatusCode(http.StatusUnprocessableEntity)

// ManeuverType is the kind of maneuver a step ends with. The set is open;
// providers may report types not listed here.
type ManeuverType string

const (
	ManeuverDepart     ManeuverType = "depart"
	ManeuverTurn       ManeuverType = "turn"
	ManeuverContinue   ManeuverType = "continue"
	ManeuverMerge      ManeuverType = "merge"
	ManeuverFork       ManeuverType = "fork"
	ManeuverRamp       ManeuverType = "ramp"
	ManeuverRoundabout ManeuverType = "roundabout"
	ManeuverUTurn      ManeuverType = "uturn"
	ManeuverArrive     ManeuverType = "arrive"
)

// Modifier refines a maneuver's direction
type Modifier string

const (
	ModifierNone        Modifier = ""
	ModifierLeft        Modifier = "left"
	ModifierRight       Modifier = "right"
	ModifierSharpLeft   Modifier = "sharp left"
	ModifierSharpRight  Modifier = "sharp right"
	ModifierSlightLeft  Modifier = "slight left"
	ModifierSlightRight Modifier = "slight right"
	ModifierStraight    Modifier = "straight"
	ModifierUTurn       Modifier = "uturn"
)

// Step is one maneuver of a route. The maneuver is located at the end of
// the step's distance: a step {turn, left, 1000} reads "turn left in 1000 m".
type Step struct {
	Maneuver       ManeuverType `json:"maneuver"`
	Modifier       Modifier     `json:"modifier,omitempty"`
	RoadName       string       `json:"road_name,omitempty"`
	DistanceMeters float64      `json:"distance_meters"`
	Instruction    string       `json:"instruction,omitempty"`
}

// Text returns the spoken/displayed instruction for the step, rendering one
// from the maneuver fields when the provider did not supply any.
func (s Step) Text() string {
	if s.Instruction != "" {
		return s.Instruction
	}

	var b strings.Builder
	switch s.Maneuver {
	case ManeuverArrive:
		b.WriteString("Arrive at your destination")
		if s.RoadName != "" {
			fmt.Fprintf(&b, " on %s", s.RoadName)
		}
		return b.String()
	case ManeuverRoundabout:
		b.WriteString("Enter the roundabout")
	case ManeuverUTurn:
		b.WriteString("Make a U-turn")
	case ManeuverMerge:
		b.WriteString("Merge")
	case ManeuverContinue, ManeuverDepart:
		b.WriteString("Continue")
	case ManeuverFork:
		b.WriteString("Keep")
	case ManeuverRamp:
		b.WriteString("Take the ramp")
	case "":
		b.WriteString("Continue")
	default:
		b.WriteString(capitalize(strings.ReplaceAll(string(s.Maneuver), "_", " ")))
	}

	if s.Modifier != ModifierNone && s.Modifier != ModifierUTurn && s.Maneuver != ManeuverUTurn {
		b.WriteString(" " + string(s.Modifier))
	}

	if s.RoadName != "" {
		fmt.Fprintf(&b, " onto %s", s.RoadName)
	}
	return b.String()
}

// Route is a precomputed route: a dense polyline plus the maneuver list
// describing it.
type Route struct {
	Points               []geo.Point `json:"points"`
	Steps                []Step      `json:"steps"`
	TotalDistanceMeters  float64     `json:"total_distance_meters"`
	TotalDurationSeconds float64     `json:"total_duration_seconds"`

	// TrafficFactor scales the ETA; zero means no adjustment.
	TrafficFactor float64   `json:"traffic_factor,omitempty"`
	Origin        geo.Point `json:"origin"`
	Destination   geo.Point `json:"destination"`
	Source        string    `json:"source,omitempty"`
}

// Validate reports ErrInvalidRoute when the route has no points or no steps.
func (r Route) Validate() error {
	if len(r.Points) == 0 {
		return fmt.Errorf("%w: route has no points", ErrInvalidRoute)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: route has no steps", ErrInvalidRoute)
	}
	return nil
}

// StepDistanceSum sums the step distances.
func (r Route) StepDistanceSum() float64 {
	total := 0.0
	for _, s := range r.Steps {
		total += s.DistanceMeters
	}
	return total
}

// SnapResult is the projection of a location onto the route polyline.
type SnapResult struct {
	ClosestIndex          int       `json:"closest_index"`
	ClosestPoint          geo.Point `json:"closest_point"`
	DistanceToRouteMeters float64   `json:"distance_to_route_meters"`
}

// StepProgress describes the upcoming maneuver relative to a snapped position.
type StepProgress struct {
	Index                    int     `json:"index"`
	Step                     Step    `json:"step"`
	DistanceToManeuverMeters float64 `json:"distance_to_maneuver_meters"`
	RemainingDistanceMeters  float64 `json:"remaining_distance_meters"`
}

// IsFinal reports whether the progress refers to the last step of route.
func (p StepProgress) IsFinal(route Route) bool {
	return p.Index == len(route.Steps)-1
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
