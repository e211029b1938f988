// Package geo converts user coordinates into the engine's working reference
// system.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/wroge/wgs84"
)

var ErrOutOfDomain = errors.New("coordinate outside projection domain")

// conusAlbers is EPSG:5070, NAD83 / Conus Albers.
var conusAlbers = wgs84.NAD83().AlbersEqualAreaConic(-96, 23, 29.5, 45.5, 0, 0)

var toConus = wgs84.LonLat().SafeTo(conusAlbers)

// project converts WGS84 degrees to EPSG:5070 metres. Points outside the
// NAD83 area are rejected.
func project(lon, lat float64) (float64, float64, error) {
	if err := checkLonLat(lon, lat); err != nil {
		return 0, 0, err
	}
	x, y, _, err := toConus(lon, lat, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: (%g, %g): %v", ErrOutOfDomain, lon, lat, err)
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, fmt.Errorf("%w: (%g, %g)", ErrOutOfDomain, lon, lat)
	}
	return x, y, nil
}

func checkLonLat(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return fmt.Errorf("%w: non-finite coordinate", ErrOutOfDomain)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %g", ErrOutOfDomain, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %g", ErrOutOfDomain, lat)
	}
	return nil
}
