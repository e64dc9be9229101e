// Package osrm fetches driving routes from an OSRM server.
package osrm

import (
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
const Source = "osrm"

// DefaultBaseURL is the public OSRM demo server.
const DefaultBaseURL = "https://router.project-osrm.org"

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the OSRM route service.
type Client struct {
	baseURL    string
	profile    string
	httpClient HTTPDoer
}

// NewClient creates a client for the driving profile.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTPDoer(baseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewClientWithHTTPDoer creates a client with a custom transport.
func NewClientWithHTTPDoer(baseURL string, doer HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    "driving",
		httpClient: doer,
	}
}

// FetchRoute requests a route with turn-by-turn steps. OSRM reports each
// maneuver at the start of its step, so steps are re-based.
func (c *Client) FetchRoute(ctx context.Context, origin, destination geo.Point) (routing.Route, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline&steps=true",
		c.baseURL, c.profile, origin.Longitude, origin.Latitude, destination.Longitude, destination.Latitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed routeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return routing.Route{}, fmt.Errorf("OSRM returned %d", resp.StatusCode)
		}
		return routing.Route{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Code != "Ok" {
		return routing.Route{}, fmt.Errorf("OSRM returned %d %s: %s", resp.StatusCode, parsed.Code, parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return routing.Route{}, fmt.Errorf("no routes found in response")
	}

	return convertRoute(parsed.Routes[0], origin, destination)
}

func convertRoute(r osrmRoute, origin, destination geo.Point) (routing.Route, error) {
	points, err := geo.DecodePolyline(r.Geometry)
	if err != nil {
		return routing.Route{}, fmt.Errorf("failed to decode route geometry: %w", err)
	}

	var steps []routing.Step
	for _, leg := range r.Legs {
		for _, s := range leg.Steps {
			steps = append(steps, routing.Step{
				Maneuver:       convertManeuver(s.Maneuver.Type),
				Modifier:       routing.Modifier(s.Maneuver.Modifier),
				RoadName:       s.Name,
				DistanceMeters: s.Distance,
			})
		}
	}

	return routing.Route{
		Points:               points,
		Steps:                routing.RebaseSteps(steps),
		TotalDistanceMeters:  r.Distance,
		TotalDurationSeconds: r.Duration,
		Origin:               origin,
		Destination:          destination,
		Source:               Source,
	}, nil
}

func convertManeuver(t string) routing.ManeuverType {
	switch t {
	case "new name", "continue", "use lane", "notification":
		return routing.ManeuverContinue
	case "on ramp", "off ramp":
		return routing.ManeuverRamp
	case "end of road":
		return routing.ManeuverTurn
	case "rotary", "roundabout turn", "exit roundabout", "exit rotary":
		return routing.ManeuverRoundabout
	case "":
		return routing.ManeuverContinue
	default:
		return routing.ManeuverType(strings.ReplaceAll(t, " ", "_"))
	}
}

type routeResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Geometry string    `json:"geometry"`
	Legs     []osrmLeg `json:"legs"`
}

type osrmLeg struct {
	Steps []osrmStep `json:"steps"`
}

type osrmStep struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Name     string  `json:"name"`
	Maneuver struct {
		Type     string `json:"type"`
		Modifier string `json:"modifier"`
	} `json:"maneuver"`
}
