package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrProjection is returned when a grid coordinate cannot be converted.
var ErrProjection = errors.New("projection failed")

// Projector converts a planar grid coordinate to geographic degrees.
type Projector interface {
	Project(easting, northing float64) (orb.Point, error)
}

// HK1980 Grid parameters on the International 1924 ellipsoid.
const (
	hkSemiMajor     = 6378388.0
	hkFlattening    = 1 / 297.0
	hkFalseEasting  = 836694.05
	hkFalseNorthing = 819069.80
	hkScale         = 1.0

	// Lands Department approximation from HK80 to WGS84, in arc seconds.
	hkToWGS84LatShift = -5.5
	hkToWGS84LonShift = 8.8

	footpointTolerance  = 1e-12
	footpointIterations = 20
)

var (
	hkOriginLat = dms(22, 18, 43.68)
	hkOriginLon = dms(114, 10, 42.80)
)

// HK1980Projector converts HK1980 Grid (EPSG:2326) coordinates to WGS84
// (EPSG:4326) longitude/latitude. Safe for concurrent use.
type HK1980Projector struct {
	e2 float64
	a0 float64
	a2 float64
	a4 float64
	m0 float64 // meridian distance at the origin latitude
}

// NewHK1980Projector returns a projector for the HK1980 Grid.
func NewHK1980Projector() *HK1980Projector {
	e2 := 2*hkFlattening - hkFlattening*hkFlattening
	p := &HK1980Projector{
		e2: e2,
		a0: 1 - e2/4 - 3*e2*e2/64,
		a2: 3.0 / 8.0 * (e2 + e2*e2/4),
		a4: 15.0 / 256.0 * e2 * e2,
	}
	p.m0 = p.meridianDistance(hkOriginLat)
	return p
}

// Project returns orb.Point{lon, lat} in WGS84 degrees.
func (p *HK1980Projector) Project(easting, northing float64) (orb.Point, error) {
	if !finite(easting) || !finite(northing) {
		return orb.Point{}, fmt.Errorf("%w: non-finite coordinate (%v, %v)", ErrProjection, easting, northing)
	}

	phiP, err := p.footpointLatitude(p.m0 + (northing-hkFalseNorthing)/hkScale)
	if err != nil {
		return orb.Point{}, err
	}

	sinP := math.Sin(phiP)
	w := 1 - p.e2*sinP*sinP
	nu := hkSemiMajor / math.Sqrt(w)
	rho := hkSemiMajor * (1 - p.e2) / math.Pow(w, 1.5)
	psi := nu / rho
	t := math.Tan(phiP)
	secP := 1 / math.Cos(phiP)
	dE := easting - hkFalseEasting

	phi := phiP - (t/(hkScale*rho))*(dE*dE/(2*hkScale*nu))
	lambda := hkOriginLon +
		secP*(dE/(hkScale*nu)) -
		secP*(math.Pow(dE, 3)/(6*math.Pow(hkScale, 3)*math.Pow(nu, 3)))*(psi+2*t*t)

	lat := degrees(phi) + hkToWGS84LatShift/3600
	lon := degrees(lambda) + hkToWGS84LonShift/3600
	if !finite(lat) || !finite(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return orb.Point{}, fmt.Errorf("%w: result out of range for (%v, %v)", ErrProjection, easting, northing)
	}
	return orb.Point{lon, lat}, nil
}

// footpointLatitude solves M(phi) = m by Newton iteration.
func (p *HK1980Projector) footpointLatitude(m float64) (float64, error) {
	phi := hkOriginLat
	for i := 0; i < footpointIterations; i++ {
		sinP := math.Sin(phi)
		rho := hkSemiMajor * (1 - p.e2) / math.Pow(1-p.e2*sinP*sinP, 1.5)
		step := (p.meridianDistance(phi) - m) / rho
		phi -= step
		if math.Abs(step) < footpointTolerance {
			return phi, nil
		}
	}
	return 0, fmt.Errorf("%w: footpoint latitude did not converge", ErrProjection)
}

func (p *HK1980Projector) meridianDistance(phi float64) float64 {
	return hkSemiMajor * (p.a0*phi - p.a2*math.Sin(2*phi) + p.a4*math.Sin(4*phi))
}

func dms(d, m, s float64) float64 {
	return (d + m/60 + s/3600) * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
