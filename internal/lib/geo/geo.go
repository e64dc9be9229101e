package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-polyline"
)

// EarthRadiusMeters is the mean earth radius used by every distance
// calculation in the engine.
const EarthRadiusMeters = 6371000

var errInvalidCoordinates = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// geoUtils implements the GeoUtils interface
type geoUtils struct{}

// NewGeoUtils creates a new GeoUtils implementation
func NewGeoUtils() GeoUtils {
	return &geoUtils{}
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(p1, p2 Point) float64 {
	if p1 == p2 {
		return 0
	}

	lat1 := toRadians(p1.Latitude)
	lon1 := toRadians(p1.Longitude)
	lat2 := toRadians(p2.Latitude)
	lon2 := toRadians(p2.Longitude)

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Bearing returns the initial bearing from p1 to p2 in degrees [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := toRadians(p1.Latitude)
	lat2 := toRadians(p2.Latitude)
	dlon := toRadians(p2.Longitude - p1.Longitude)

	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

// Destination returns the point reached by travelling distanceMeters from
// start along the given initial bearing.
func Destination(start Point, bearingDegrees, distanceMeters float64) Point {
	lat1 := toRadians(start.Latitude)
	lon1 := toRadians(start.Longitude)
	brng := toRadians(bearingDegrees)
	d := distanceMeters / EarthRadiusMeters

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Latitude:  toDegrees(lat2),
		Longitude: math.Mod(toDegrees(lon2)+540, 360) - 180,
	}
}

// Interpolate returns the point a fraction t of the way from start to end.
// Linear interpolation is adequate for road segments, which are short.
func Interpolate(start, end Point, t float64) Point {
	return Point{
		Latitude:  start.Latitude + t*(end.Latitude-start.Latitude),
		Longitude: start.Longitude + t*(end.Longitude-start.Longitude),
	}
}

// PathLength sums the haversine lengths of the segments between points[from]
// and points[to]. Out of range indices are clamped; from >= to yields 0.
func PathLength(points []Point, from, to int) float64 {
	if len(points) < 2 {
		return 0
	}
	from = max(from, 0)
	to = min(to, len(points)-1)

	total := 0.0
	for i := from; i < to; i++ {
		total += Haversine(points[i], points[i+1])
	}
	return total
}

// PointToSegment calculates the distance from point to the segment
// [segmentStart, segmentEnd] using the cross-track formula, falling back to
// the nearest endpoint when the projection lies outside the segment.
func PointToSegment(point, segmentStart, segmentEnd Point) float64 {
	if segmentStart == segmentEnd {
		return Haversine(point, segmentStart)
	}

	distanceToStart := Haversine(point, segmentStart)
	distanceToEnd := Haversine(point, segmentEnd)
	segmentLength := Haversine(segmentStart, segmentEnd)

	if segmentLength < 1 {
		return math.Min(distanceToStart, distanceToEnd)
	}

	d13 := distanceToStart / EarthRadiusMeters
	bearing13 := toRadians(Bearing(segmentStart, point))
	bearing12 := toRadians(Bearing(segmentStart, segmentEnd))

	// Projection falls before the segment start.
	if math.Cos(bearing13-bearing12) < 0 {
		return distanceToStart
	}

	dxt := math.Asin(math.Sin(d13) * math.Sin(bearing13-bearing12))
	dat := math.Acos(math.Min(1, math.Cos(d13)/math.Cos(dxt)))
	if dat*EarthRadiusMeters > segmentLength {
		return distanceToEnd
	}

	return math.Abs(dxt) * EarthRadiusMeters
}

// ClosestPointOnSegment projects point onto the segment using a local
// equirectangular approximation and returns the projected point and its
// fractional position t in [0, 1] along the segment.
func ClosestPointOnSegment(point, segmentStart, segmentEnd Point) (Point, float64) {
	if segmentStart == segmentEnd {
		return segmentStart, 0
	}

	cosLat := math.Cos(toRadians((segmentStart.Latitude + segmentEnd.Latitude) / 2))
	ax, ay := segmentStart.Longitude*cosLat, segmentStart.Latitude
	bx, by := segmentEnd.Longitude*cosLat, segmentEnd.Latitude
	px, py := point.Longitude*cosLat, point.Latitude

	dx, dy := bx-ax, by-ay
	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))

	return Interpolate(segmentStart, segmentEnd, t), t
}

// PointToPoint calculates great-circle distance between two points using Haversine formula
func (g *geoUtils) PointToPoint(p1, p2 Point) (float64, error) {
	if !IsValidCoordinate(p1) || !IsValidCoordinate(p2) {
		return 0, errInvalidCoordinates
	}
	return Haversine(p1, p2), nil
}

// PointToPolyline calculates minimum distance from point to polyline
func (g *geoUtils) PointToPolyline(point Point, polyline Polyline) (float64, error) {
	if !IsValidCoordinate(point) {
		return 0, errors.New("invalid point coordinates")
	}

	if len(polyline.Points) == 0 {
		return 0, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return g.PointToPoint(point, polyline.Points[0])
	}

	minDistance := math.Inf(1)
	for i := 0; i < len(polyline.Points)-1; i++ {
		distance := PointToSegment(point, polyline.Points[i], polyline.Points[i+1])
		if distance < minDistance {
			minDistance = distance
		}
	}

	return minDistance, nil
}

// DecodePolyline decodes Google polyline string to point sequence
func (g *geoUtils) DecodePolyline(encoded string) ([]Point, error) {
	return DecodePolyline(encoded)
}

// DecodePolyline decodes a precision-5 encoded polyline, as produced by
// Google Routes and by OSRM with geometries=polyline.
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !IsValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// EncodePolyline encodes points as a precision-5 polyline string
func (g *geoUtils) EncodePolyline(points []Point) string {
	return EncodePolyline(points)
}

// EncodePolyline encodes points as a precision-5 polyline string.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// ClosestPointOnPolyline finds closest point on polyline to given point
func (g *geoUtils) ClosestPointOnPolyline(point Point, polyline Polyline) (Point, int, error) {
	if !IsValidCoordinate(point) {
		return Point{}, 0, errors.New("invalid point coordinates")
	}

	if len(polyline.Points) == 0 {
		return Point{}, 0, errors.New("polyline has no points")
	}

	if len(polyline.Points) == 1 {
		return polyline.Points[0], 0, nil
	}

	var closestPoint Point
	closestSegment := 0
	minDistance := math.Inf(1)

	for i := 0; i < len(polyline.Points)-1; i++ {
		closestOnSegment, _ := ClosestPointOnSegment(point, polyline.Points[i], polyline.Points[i+1])
		distance := Haversine(point, closestOnSegment)

		if distance < minDistance {
			minDistance = distance
			closestPoint = closestOnSegment
			closestSegment = i
		}
	}

	return closestPoint, closestSegment, nil
}

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !IsValidCoordinate(point) {
		return Point{}, errInvalidCoordinates
	}
	return point, nil
}

// ParsePoint parses "lat,lon" into a validated Point.
func ParsePoint(input string) (Point, error) {
	latStr, lonStr, ok := strings.Cut(input, ",")
	if !ok {
		return Point{}, fmt.Errorf("invalid coordinate %q: want \"lat,lon\"", input)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err1 != nil || err2 != nil {
		return Point{}, fmt.Errorf("invalid lat/lon: %q", input)
	}
	return NewPoint(lat, lon)
}

// IsValidCoordinate validates latitude and longitude values
func IsValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
