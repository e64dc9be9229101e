package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

// Source identifies routes produced by this client.
const Source = "google"

const fieldMask = "routes.duration,routes.staticDuration,routes.distanceMeters," +
	"routes.polyline.encodedPolyline,routes.travelAdvisory.speedReadingIntervals," +
	"routes.legs.steps.distanceMeters,routes.legs.steps.navigationInstruction"

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to Google Routes API v2
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
}

// RouteData represents the processed route information from Google Routes API
type RouteData struct {
	DurationSeconds       int32
	StaticDurationSeconds int32
	DistanceMeters        int32
	Polyline              string
	SpeedReadings         []SpeedReading
	Steps                 []routing.Step
}

// SpeedReading represents traffic speed data for route segments
type SpeedReading struct {
	StartIndex    int32
	EndIndex      int32
	SpeedCategory string // "NORMAL", "SLOW", "TRAFFIC_JAM"
}

// NewClient creates a new Google Routes API client
func NewClient(apiKey string) *Client {
	return NewClientWithHTTPDoer(apiKey, "https://routes.googleapis.com", &http.Client{
		Timeout: 30 * time.Second,
	})
}

// NewClientWithHTTPDoer creates a client with a custom transport, for tests.
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: doer,
	}
}

// FetchRoute computes a driving route and converts it for navigation. Steps
// are re-based so each maneuver sits at the end of its distance.
func (c *Client) FetchRoute(ctx context.Context, origin, destination geo.Point) (routing.Route, error) {
	data, err := c.ComputeRoutes(ctx, origin, destination)
	if err != nil {
		return routing.Route{}, err
	}

	points, err := geo.DecodePolyline(data.Polyline)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to decode route polyline: %w", err)
	}

	route := routing.Route{
		Points:               points,
		Steps:                routing.RebaseSteps(data.Steps),
		TotalDistanceMeters:  float64(data.DistanceMeters),
		TotalDurationSeconds: float64(data.DurationSeconds),
		Origin:               origin,
		Destination:          destination,
		Source:               Source,
	}
	// Duration already includes traffic; price ETA against the static
	// duration so the traffic factor carries the delay.
	if data.StaticDurationSeconds > 0 && data.DurationSeconds > 0 {
		route.TotalDurationSeconds = float64(data.StaticDurationSeconds)
		route.TrafficFactor = float64(data.DurationSeconds) / float64(data.StaticDurationSeconds)
	}
	return route, nil
}

// ComputeRoutes performs coordinate-based route computation
func (c *Client) ComputeRoutes(ctx context.Context, origin, destination geo.Point) (*RouteData, error) {
	requestBody := map[string]interface{}{
		"origin":            waypoint(origin),
		"destination":       waypoint(destination),
		"travelMode":        "DRIVE",
		"routingPreference": "TRAFFIC_AWARE",
		"extraComputations": []string{"TRAFFIC_ON_POLYLINE"},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/directions/v2:computeRoutes", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Field mask is required or the API rejects the request
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limit exceeded (3K QPM)")
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response GoogleRoutesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Routes) == 0 {
		return nil, fmt.Errorf("no routes found in response")
	}

	return c.processRouteResponse(response.Routes[0])
}

func waypoint(p geo.Point) map[string]interface{} {
	return map[string]interface{}{
		"location": map[string]interface{}{
			"latLng": map[string]interface{}{
				"latitude":  p.Latitude,
				"longitude": p.Longitude,
			},
		},
	}
}

// processRouteResponse converts Google Routes API response to our RouteData format
func (c *Client) processRouteResponse(route GoogleRoute) (*RouteData, error) {
	durationSeconds, err := parseDuration(route.Duration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration: %w", err)
	}

	var staticSeconds int32
	if route.StaticDuration != "" {
		if staticSeconds, err = parseDuration(route.StaticDuration); err != nil {
			return nil, fmt.Errorf("failed to parse static duration: %w", err)
		}
	}

	var speedReadings []SpeedReading
	if route.TravelAdvisory != nil {
		for _, interval := range route.TravelAdvisory.SpeedReadingIntervals {
			speedReadings = append(speedReadings, SpeedReading{
				StartIndex:    interval.StartPolylinePointIndex,
				EndIndex:      interval.EndPolylinePointIndex,
				SpeedCategory: interval.Speed,
			})
		}
	}

	var steps []routing.Step
	for _, leg := range route.Legs {
		for _, s := range leg.Steps {
			steps = append(steps, convertStep(s))
		}
	}

	return &RouteData{
		DurationSeconds:       durationSeconds,
		StaticDurationSeconds: staticSeconds,
		DistanceMeters:        route.DistanceMeters,
		Polyline:              route.Polyline.EncodedPolyline,
		SpeedReadings:         speedReadings,
		Steps:                 steps,
	}, nil
}

func convertStep(s GoogleStep) routing.Step {
	step := routing.Step{
		Maneuver:       routing.ManeuverContinue,
		DistanceMeters: float64(s.DistanceMeters),
	}
	if s.NavigationInstruction == nil {
		return step
	}
	step.Maneuver, step.Modifier = convertManeuver(s.NavigationInstruction.Maneuver)
	// Instructions may carry a second line such as "Destination will be on
	// the right"; only the first is spoken.
	instruction, _, _ := strings.Cut(s.NavigationInstruction.Instructions, "\n")
	step.Instruction = strings.TrimSpace(instruction)
	return step
}

var maneuvers = map[string]struct {
	maneuver routing.ManeuverType
	modifier routing.Modifier
}{
	"DEPART":             {routing.ManeuverDepart, routing.ModifierNone},
	"STRAIGHT":           {routing.ManeuverContinue, routing.ModifierStraight},
	"NAME_CHANGE":        {routing.ManeuverContinue, routing.ModifierNone},
	"TURN_LEFT":          {routing.ManeuverTurn, routing.ModifierLeft},
	"TURN_RIGHT":         {routing.ManeuverTurn, routing.ModifierRight},
	"TURN_SLIGHT_LEFT":   {routing.ManeuverTurn, routing.ModifierSlightLeft},
	"TURN_SLIGHT_RIGHT":  {routing.ManeuverTurn, routing.ModifierSlightRight},
	"TURN_SHARP_LEFT":    {routing.ManeuverTurn, routing.ModifierSharpLeft},
	"TURN_SHARP_RIGHT":   {routing.ManeuverTurn, routing.ModifierSharpRight},
	"UTURN_LEFT":         {routing.ManeuverUTurn, routing.ModifierLeft},
	"UTURN_RIGHT":        {routing.ManeuverUTurn, routing.ModifierRight},
	"RAMP_LEFT":          {routing.ManeuverRamp, routing.ModifierLeft},
	"RAMP_RIGHT":         {routing.ManeuverRamp, routing.ModifierRight},
	"MERGE":              {routing.ManeuverMerge, routing.ModifierNone},
	"FORK_LEFT":          {routing.ManeuverFork, routing.ModifierLeft},
	"FORK_RIGHT":         {routing.ManeuverFork, routing.ModifierRight},
	"ROUNDABOUT_LEFT":    {routing.ManeuverRoundabout, routing.ModifierLeft},
	"ROUNDABOUT_RIGHT":   {routing.ManeuverRoundabout, routing.ModifierRight},

	"ROUNDABOUT_CLOCKWISE":        {routing.ManeuverRoundabout, routing.ModifierNone},
	"ROUNDABOUT_COUNTERCLOCKWISE": {routing.ManeuverRoundabout, routing.ModifierNone},
}

func convertManeuver(m string) (routing.ManeuverType, routing.Modifier) {
	if mapped, ok := maneuvers[m]; ok {
		return mapped.maneuver, mapped.modifier
	}
	if m == "" || m == "MANEUVER_UNSPECIFIED" {
		return routing.ManeuverContinue, routing.ModifierNone
	}
	return routing.ManeuverType(strings.ToLower(m)), routing.ModifierNone
}

// parseDuration parses Google's duration format like "450s" to seconds
func parseDuration(durationStr string) (int32, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if len(durationStr) > 1 && durationStr[len(durationStr)-1] == 's' {
		durationStr = durationStr[:len(durationStr)-1]
	}

	var seconds int32
	_, err := fmt.Sscanf(durationStr, "%d", &seconds)
	return seconds, err
}

// GoogleRoutesResponse represents the API response structure
type GoogleRoutesResponse struct {
	Routes []GoogleRoute `json:"routes"`
}

// GoogleRoute represents a single route in the response
type GoogleRoute struct {
	Duration       string                `json:"duration"`
	StaticDuration string                `json:"staticDuration"`
	DistanceMeters int32                 `json:"distanceMeters"`
	Polyline       GooglePolyline        `json:"polyline"`
	TravelAdvisory *GoogleTravelAdvisory `json:"travelAdvisory,omitempty"`
	Legs           []GoogleLeg           `json:"legs"`
}

// GooglePolyline represents the route polyline
type GooglePolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

// GoogleTravelAdvisory represents traffic information
type GoogleTravelAdvisory struct {
	SpeedReadingIntervals []GoogleSpeedInterval `json:"speedReadingIntervals"`
}

// GoogleSpeedInterval represents speed data for a route segment
type GoogleSpeedInterval struct {
	StartPolylinePointIndex int32  `json:"startPolylinePointIndex"`
	EndPolylinePointIndex   int32  `json:"endPolylinePointIndex"`
	Speed                   string `json:"speed"` // "NORMAL", "SLOW", "TRAFFIC_JAM"
}

// GoogleLeg is the part of a route between two waypoints
type GoogleLeg struct {
	Steps []GoogleStep `json:"steps"`
}

// GoogleStep is one navigation step of a leg. Its instruction describes the
// maneuver at the start of the step.
type GoogleStep struct {
	DistanceMeters        int32                        `json:"distanceMeters"`
	NavigationInstruction *GoogleNavigationInstruction `json:"navigationInstruction,omitempty"`
}

// GoogleNavigationInstruction carries the maneuver and its display text
type GoogleNavigationInstruction struct {
	Maneuver     string `json:"maneuver"`
	Instructions string `json:"instructions"`
}
