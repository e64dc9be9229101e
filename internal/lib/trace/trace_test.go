package trace

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/navigation"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

var origin = geo.Point{Latitude: 38.0675, Longitude: -120.5436}

func fix(meters float64, at time.Time) navigation.Location {
	return navigation.Location{Point: geo.Destination(origin, 0, meters), Timestamp: at}
}

func TestRecorder_Events(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r := NewRecorder()

	r.Record(fix(0, t0), navigation.PublicState{Status: navigation.StatusActive, RemainingDistanceMeters: 1000, ETASeconds: 120})
	r.Record(fix(100, t0.Add(10*time.Second)), navigation.PublicState{Status: navigation.StatusActive})
	r.Record(fix(200, t0.Add(20*time.Second)), navigation.PublicState{Status: navigation.StatusLoading, RerouteCount: 1, DistanceToRouteMeters: 95})
	r.Record(fix(300, t0.Add(30*time.Second)), navigation.PublicState{Status: navigation.StatusActive})
	r.Record(fix(400, t0.Add(40*time.Second)), navigation.PublicState{Status: navigation.StatusArrived})

	assert.Len(t, r.Samples(), 5)

	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, navigation.StatusActive, events[0].Status)
	assert.Equal(t, "Tracking, 1000 m remaining, ETA 2 min", events[0].Detail)
	assert.Equal(t, "Reroute 1, 95 m from route", events[1].Detail)
	assert.Equal(t, navigation.StatusArrived, events[2].Status)
	assert.Equal(t, t0.Add(40*time.Second), events[2].At)
}

func TestRecorder_WriteKML(t *testing.T) {
	r := NewRecorder()
	r.AddRoute(routing.Route{
		Points:               []geo.Point{origin, geo.Destination(origin, 0, 500)},
		TotalDistanceMeters:  500,
		TotalDurationSeconds: 60,
		Source:               "osrm",
	})
	r.Record(fix(0, time.Now()), navigation.PublicState{Status: navigation.StatusActive})
	r.Record(fix(500, time.Now()), navigation.PublicState{Status: navigation.StatusArrived})

	var buf bytes.Buffer
	require.NoError(t, r.WriteKML(&buf, "Test drive"))

	out := buf.String()
	assert.Contains(t, out, "<kml")
	assert.Contains(t, out, "<name>Test drive</name>")
	assert.Contains(t, out, "<name>Route 1</name>")
	assert.Contains(t, out, "from osrm")
	assert.Contains(t, out, "<name>Track</name>")
	assert.Contains(t, out, "<LineString>")
	assert.Contains(t, out, "<name>arrived</name>")
}

func TestRecorder_WriteKMLEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRecorder().WriteKML(&buf, "Empty"))
	assert.Contains(t, buf.String(), "<name>Empty</name>")
	assert.NotContains(t, buf.String(), "<LineString>")
}
