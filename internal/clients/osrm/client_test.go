package osrm

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/geo"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

var (
	origin      = geo.Point{Latitude: 38.0675, Longitude: -120.5436}
	destination = geo.Point{Latitude: 38.1383, Longitude: -120.4563}
)

func respond(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func fixture(t *testing.T) string {
	data, err := os.ReadFile("testdata/route.json")
	require.NoError(t, err)
	return string(data)
}

func TestFetchRoute(t *testing.T) {
	var captured *http.Request
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Run(func(args mock.Arguments) {
		captured = args.Get(0).(*http.Request)
	}).Return(respond(200, fixture(t)), nil)

	client := NewClientWithHTTPDoer("http://osrm.local/", mockHTTP)
	route, err := client.FetchRoute(context.Background(), origin, destination)
	require.NoError(t, err)
	require.NoError(t, route.Validate())

	require.NotNil(t, captured)
	assert.Equal(t, "/route/v1/driving/-120.543600,38.067500;-120.456300,38.138300", captured.URL.Path)
	assert.Equal(t, "true", captured.URL.Query().Get("steps"))
	assert.Equal(t, "polyline", captured.URL.Query().Get("geometries"))

	assert.Len(t, route.Points, 3)
	assert.Equal(t, 1700.5, route.TotalDistanceMeters)
	assert.Equal(t, 150.2, route.TotalDurationSeconds)
	assert.Equal(t, Source, route.Source)

	require.Len(t, route.Steps, 2)
	assert.Equal(t, routing.Step{
		Maneuver:       routing.ManeuverTurn,
		Modifier:       routing.ModifierSlightRight,
		RoadName:       "Murphys Grade Road",
		DistanceMeters: 500.5,
	}, route.Steps[0])
	assert.Equal(t, "Turn slight right onto Murphys Grade Road", route.Steps[0].Text())
	assert.Equal(t, routing.ManeuverArrive, route.Steps[1].Maneuver)
	assert.Equal(t, 1200.0, route.Steps[1].DistanceMeters)

	mockHTTP.AssertExpectations(t)
}

func TestFetchRoute_NoRoute(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(
		respond(400, `{"code": "NoRoute", "message": "Impossible route between points"}`), nil)

	_, err := NewClientWithHTTPDoer("", mockHTTP).FetchRoute(context.Background(), origin, destination)
	assert.ErrorContains(t, err, "NoRoute")
	assert.ErrorContains(t, err, "Impossible route")
}

func TestFetchRoute_NonJSONError(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(respond(502, "Bad Gateway"), nil)

	_, err := NewClientWithHTTPDoer("", mockHTTP).FetchRoute(context.Background(), origin, destination)
	assert.ErrorContains(t, err, "OSRM returned 502")
}

func TestFetchRoute_EmptyRoutes(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(respond(200, `{"code": "Ok", "routes": []}`), nil)

	_, err := NewClientWithHTTPDoer("", mockHTTP).FetchRoute(context.Background(), origin, destination)
	assert.ErrorContains(t, err, "no routes found")
}

func TestConvertManeuver(t *testing.T) {
	assert.Equal(t, routing.ManeuverRamp, convertManeuver("off ramp"))
	assert.Equal(t, routing.ManeuverContinue, convertManeuver("new name"))
	assert.Equal(t, routing.ManeuverRoundabout, convertManeuver("rotary"))
	assert.Equal(t, routing.ManeuverType("end_of_road"), convertManeuver("end_of_road"))
	assert.Equal(t, routing.ManeuverMerge, convertManeuver("merge"))
}
