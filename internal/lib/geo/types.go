package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Polyline represents an encoded polyline with optional decoded points
type Polyline struct {
	EncodedPolyline string  `json:"encoded_polyline,omitempty"`
	Points          []Point `json:"points"`
}

// GeoUtils interface defines validated geographic calculation utilities.
// Hot paths in the engine call the package-level functions directly.
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Calculate minimum distance from point to polyline in meters
	PointToPolyline(point Point, polyline Polyline) (float64, error)

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Encode a point sequence as a Google polyline string
	EncodePolyline(points []Point) string

	// Find closest point on polyline to given point, along with the index of
	// the segment start it lies on
	ClosestPointOnPolyline(point Point, polyline Polyline) (Point, int, error)
}

// NewGeoUtils is implemented in geo.go
