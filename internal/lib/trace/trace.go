// Package trace records a navigation run and exports it as KML for viewing
// in Google Earth or similar tools.
package trace

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/twpayne/go-kml"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/eta"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

// Sample is one recorded fix with the state it produced.
type Sample struct {
	Location navigation.Location
	State    navigation.PublicState
}

// Event marks a status transition worth pinning on the map.
type Event struct {
	At     time.Time
	Point  geo.Point
	Status navigation.Status
	Detail string
}

// Recorder collects samples and routes. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
	routes  []routing.Route
	events  []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// AddRoute records a route the session followed.
func (r *Recorder) AddRoute(route routing.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Record stores a fix and derives an event when the status changed.
func (r *Recorder) Record(loc navigation.Location, state navigation.PublicState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := navigation.StatusIdle
	if n := len(r.samples); n > 0 {
		prev = r.samples[n-1].State.Status
	}
	r.samples = append(r.samples, Sample{Location: loc, State: state})

	if state.Status == prev {
		return
	}
	event := Event{At: loc.Timestamp, Point: loc.Point, Status: state.Status}
	switch state.Status {
	case navigation.StatusLoading:
		event.Detail = fmt.Sprintf("Reroute %d, %.0f m from route", state.RerouteCount, state.DistanceToRouteMeters)
	case navigation.StatusArrived:
		event.Detail = "Arrived"
	case navigation.StatusError:
		event.Detail = state.LastError
	case navigation.StatusActive:
		if prev != navigation.StatusWaitingForLocation && prev != navigation.StatusIdle {
			return
		}
		event.Detail = fmt.Sprintf("Tracking, %.0f m remaining, ETA %s",
			state.RemainingDistanceMeters, eta.Format(state.ETASeconds))
	default:
		return
	}
	r.events = append(r.events, event)
}

// Samples returns a copy of the recorded samples.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// WriteKML writes the routes, the driven track and the events as a KML
// document.
func (r *Recorder) WriteKML(w io.Writer, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var children []kml.Element
	children = append(children, kml.Name(name))

	for i, route := range r.routes {
		desc := fmt.Sprintf("%.0f m, %s", route.TotalDistanceMeters, eta.Format(route.TotalDurationSeconds))
		if route.Source != "" {
			desc += ", from " + route.Source
		}
		children = append(children, lineString(fmt.Sprintf("Route %d", i+1), desc, route.Points))
	}

	if len(r.samples) > 0 {
		track := make([]geo.Point, len(r.samples))
		for i, s := range r.samples {
			track[i] = s.Location.Point
		}
		children = append(children, lineString("Track", fmt.Sprintf("%d fixes", len(track)), track))
	}

	for _, e := range r.events {
		children = append(children, kml.Placemark(
			kml.Name(string(e.Status)),
			kml.Description(e.Detail),
			kml.TimeStamp(kml.When(e.At)),
			kml.Point(kml.Coordinates(coordinate(e.Point))),
		))
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func lineString(name, description string, points []geo.Point) kml.Element {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = coordinate(p)
	}
	return kml.Placemark(
		kml.Name(name),
		kml.Description(description),
		kml.LineString(
			kml.Tessellate(true),
			kml.Coordinates(coords...),
		),
	)
}

func coordinate(p geo.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
}
