package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a longitude/latitude pair in degrees (EPSG:4326).
type Point struct {
	Lon float64
	Lat float64
}

// ParsePoint reads "lon,lat".
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("point %q: want \"lon,lat\"", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("point %q: longitude: %w", s, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("point %q: latitude: %w", s, err)
	}
	p := Point{Lon: lon, Lat: lat}
	if err := checkLonLat(lon, lat); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Extent is a lon/lat bounding box given by two opposite corners.
type Extent struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// NewExtent normalises two corners in any order, as sent by map clients
// ([x1, y1, x2, y2]).
func NewExtent(c [4]float64) (Extent, error) {
	for i := 0; i < 4; i += 2 {
		if err := checkLonLat(c[i], c[i+1]); err != nil {
			return Extent{}, fmt.Errorf("extent corner %d: %w", i/2, err)
		}
	}
	return Extent{
		MinLon: math.Min(c[0], c[2]),
		MinLat: math.Min(c[1], c[3]),
		MaxLon: math.Max(c[0], c[2]),
		MaxLat: math.Max(c[1], c[3]),
	}, nil
}

func (e Extent) Contains(p Point) bool {
	return p.Lon >= e.MinLon && p.Lon <= e.MaxLon && p.Lat >= e.MinLat && p.Lat <= e.MaxLat
}

// Projected is a coordinate in the working reference system, in metres.
type Projected struct {
	X float64
	Y float64
}

// String formats the coordinate as the "x,y" pair GIS modules expect.
func (p Projected) String() string {
	return strconv.FormatFloat(p.X, 'f', 6, 64) + "," + strconv.FormatFloat(p.Y, 'f', 6, 64)
}

// Bounds is a projected bounding box.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// ToConus projects a lon/lat point into EPSG:5070.
func ToConus(p Point) (Projected, error) {
	x, y, err := project(p.Lon, p.Lat)
	if err != nil {
		return Projected{}, err
	}
	return Projected{X: x, Y: y}, nil
}

// ExtentToConus projects the four corners of an extent and returns their
// bounding box; the conic projection bends parallels, so all corners count.
func ExtentToConus(e Extent) (Bounds, error) {
	corners := []Point{
		{e.MinLon, e.MinLat}, {e.MinLon, e.MaxLat},
		{e.MaxLon, e.MinLat}, {e.MaxLon, e.MaxLat},
	}
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, c := range corners {
		p, err := ToConus(c)
		if err != nil {
			return Bounds{}, err
		}
		b.MinX, b.MaxX = math.Min(b.MinX, p.X), math.Max(b.MaxX, p.X)
		b.MinY, b.MaxY = math.Min(b.MinY, p.Y), math.Max(b.MaxY, p.Y)
	}
	return b, nil
}
