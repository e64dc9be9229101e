package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Highway 4 reference points used throughout the tests
var (
	angelsCamp = Point{Latitude: 38.0675, Longitude: -120.5436}
	murphys    = Point{Latitude: 38.1391, Longitude: -120.4561}
)

func TestGeoUtils_PointToPoint(t *testing.T) {
	geoUtils := NewGeoUtils()

	distance, err := geoUtils.PointToPoint(angelsCamp, murphys)
	require.NoError(t, err)

	// Expected distance ~11.0 km between Angels Camp and Murphys
	assert.InDelta(t, 11046, distance, 100, "Distance should be approximately 11.0km")

	invalidPoint := Point{Latitude: 200, Longitude: -300}
	_, err = geoUtils.PointToPoint(angelsCamp, invalidPoint)
	assert.Error(t, err, "Should return error for invalid coordinates")
}

func TestHaversine_Symmetric(t *testing.T) {
	assert.Equal(t, Haversine(angelsCamp, murphys), Haversine(murphys, angelsCamp))
	assert.Equal(t, 0.0, Haversine(angelsCamp, angelsCamp))
}

func TestDestination_MatchesHaversine(t *testing.T) {
	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		p := Destination(angelsCamp, bearing, 1000)
		assert.InDelta(t, 1000, Haversine(angelsCamp, p), 0.01, "bearing %v", bearing)
		if bearing != 0 {
			assert.InDelta(t, bearing, Bearing(angelsCamp, p), 0.1)
		}
	}
}

func TestPointToSegment(t *testing.T) {
	start := angelsCamp
	end := Destination(start, 0, 1000)
	middle := Destination(start, 0, 500)

	// 50m east of the segment midpoint
	offset := Destination(middle, 90, 50)
	assert.InDelta(t, 50, PointToSegment(offset, start, end), 0.5)

	// Before the segment start the nearest point is the start itself
	before := Destination(start, 180, 200)
	assert.InDelta(t, 200, PointToSegment(before, start, end), 0.5)

	// Past the end the nearest point is the end
	after := Destination(end, 0, 300)
	assert.InDelta(t, 300, PointToSegment(after, start, end), 0.5)

	// Degenerate segment
	assert.InDelta(t, Haversine(offset, start), PointToSegment(offset, start, start), 1e-9)
}

func TestClosestPointOnSegment(t *testing.T) {
	start := angelsCamp
	end := Destination(start, 0, 1000)
	offset := Destination(Destination(start, 0, 250), 270, 40)

	closest, frac := ClosestPointOnSegment(offset, start, end)
	assert.InDelta(t, 0.25, frac, 0.01)
	assert.InDelta(t, 250, Haversine(start, closest), 2)

	closest, frac = ClosestPointOnSegment(Destination(start, 180, 100), start, end)
	assert.Equal(t, 0.0, frac)
	assert.Equal(t, start, closest)
}

func TestPathLength(t *testing.T) {
	points := make([]Point, 5)
	for i := range points {
		points[i] = Destination(angelsCamp, 0, float64(i)*100)
	}

	assert.InDelta(t, 400, PathLength(points, 0, 4), 0.01)
	assert.InDelta(t, 200, PathLength(points, 2, 10), 0.01, "end index is clamped")
	assert.Equal(t, 0.0, PathLength(points, 3, 1))
	assert.Equal(t, 0.0, PathLength(points[:1], 0, 0))
}

func TestGeoUtils_PointToPolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	testPoint := Point{Latitude: 38.1000, Longitude: -120.5000}
	routePolyline := Polyline{Points: []Point{angelsCamp, murphys}}

	distance, err := geoUtils.PointToPolyline(testPoint, routePolyline)
	require.NoError(t, err)
	assert.Greater(t, distance, 0.0, "Distance should be positive")
	assert.Less(t, distance, 1000.0, "Point lies close to the straight segment")

	distance, err = geoUtils.PointToPolyline(angelsCamp, routePolyline)
	require.NoError(t, err)
	assert.Less(t, distance, 1.0, "Point on route should be on the polyline")
}

func TestGeoUtils_DecodePolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	points, err := geoUtils.DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 38.5, points[0].Latitude, 1e-6)
	assert.InDelta(t, -120.2, points[0].Longitude, 1e-6)
	assert.InDelta(t, 43.252, points[2].Latitude, 1e-6)

	_, err = geoUtils.DecodePolyline("")
	assert.Error(t, err, "Should return error for empty polyline")

	_, err = geoUtils.DecodePolyline("~")
	assert.Error(t, err, "Should return error for unterminated polyline")
}

func TestEncodePolyline_RoundTrip(t *testing.T) {
	points := []Point{angelsCamp, murphys}

	decoded, err := DecodePolyline(EncodePolyline(points))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.InDelta(t, murphys.Latitude, decoded[1].Latitude, 1e-5)
	assert.InDelta(t, murphys.Longitude, decoded[1].Longitude, 1e-5)
}

func TestGeoUtils_ClosestPointOnPolyline(t *testing.T) {
	geoUtils := NewGeoUtils()

	points := []Point{
		angelsCamp,
		Destination(angelsCamp, 0, 500),
		Destination(angelsCamp, 0, 1000),
	}
	query := Destination(Destination(angelsCamp, 0, 700), 90, 30)

	closest, segment, err := geoUtils.ClosestPointOnPolyline(query, Polyline{Points: points})
	require.NoError(t, err)
	assert.Equal(t, 1, segment)
	assert.InDelta(t, 30, Haversine(query, closest), 1)

	_, _, err = geoUtils.ClosestPointOnPolyline(query, Polyline{})
	assert.Error(t, err)
}

func TestGeoUtils_EdgeCases(t *testing.T) {
	geoUtils := NewGeoUtils()

	_, err := geoUtils.PointToPolyline(angelsCamp, Polyline{Points: []Point{}})
	assert.Error(t, err, "Should return error for empty polyline")

	distance, err := geoUtils.PointToPoint(angelsCamp, angelsCamp)
	require.NoError(t, err)
	assert.Equal(t, 0.0, distance, "Distance from point to itself should be 0")

	_, err = NewPoint(91, 0)
	assert.Error(t, err)
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint("38.0675, -120.5436")
	require.NoError(t, err)
	assert.Equal(t, angelsCamp, p)

	for _, bad := range []string{"", "38.0675", "north,west", "95,0"} {
		_, err := ParsePoint(bad)
		assert.Error(t, err, bad)
	}
}
