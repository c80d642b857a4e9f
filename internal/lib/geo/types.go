package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Location is a geocoded place. Values are treated as immutable once built.
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Point returns the coordinate of the location
func (l Location) Point() Point {
	return Point{Latitude: l.Lat, Longitude: l.Lng}
}

// IsZero reports whether the location carries neither an address nor coordinates
func (l Location) IsZero() bool {
	return l.Address == "" && l.Lat == 0 && l.Lng == 0
}

// Bounds is an axis-aligned lat/lng rectangle
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether the point lies inside the rectangle, edges included
func (b Bounds) Contains(p Point) bool {
	return p.Latitude <= b.North && p.Latitude >= b.South &&
		p.Longitude <= b.East && p.Longitude >= b.West
}

// GeoUtils interface defines geographic calculation utilities
type GeoUtils interface {
	// Calculate great-circle distance between two points in meters
	PointToPoint(p1, p2 Point) (float64, error)

	// Decode Google polyline string to point sequence
	DecodePolyline(encoded string) ([]Point, error)

	// Filter points to those within specified distance of center point
	FilterPointsByDistance(points []Point, center Point, maxDistanceMeters float64) ([]Point, error)
}

// NewGeoUtils is implemented in geo.go
