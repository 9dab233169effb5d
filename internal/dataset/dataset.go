package dataset

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kjstillabower/trail-transit-service/internal/models"
)

// Property names in the trail GeoJSON.
const (
	propName       = "Trail_name_En"
	propStart      = "Startpt_En"
	propLength     = "Shape_Length"
	propDifficulty = "Difficult_En"
	propWebsite    = "Webpage_En"
)

// Load reads a GeoJSON FeatureCollection of trails from path.
// Features without a LineString or MultiLineString anchor are skipped.
func Load(path string) ([]models.TrailFeature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trail dataset: %w", err)
	}
	return Parse(data)
}

// Parse decodes trail features from raw GeoJSON. The trail ID is the English
// trail name, or trail_<index> when the name is missing.
func Parse(data []byte) ([]models.TrailFeature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse trail dataset: %w", err)
	}

	trails := make([]models.TrailFeature, 0, len(fc.Features))
	for i, f := range fc.Features {
		anchor, ok := anchorPoint(f.Geometry)
		if !ok {
			continue
		}
		props := f.Properties
		name := props.MustString(propName, "")
		id := name
		if id == "" {
			id = fmt.Sprintf("trail_%d", i)
		}
		trails = append(trails, models.TrailFeature{
			ID:            id,
			Name:          name,
			StartLocation: props.MustString(propStart, ""),
			LengthMeters:  props.MustFloat64(propLength, 0),
			Difficulty:    props.MustString(propDifficulty, ""),
			Website:       props.MustString(propWebsite, ""),
			Start:         anchor,
		})
	}
	return trails, nil
}

// anchorPoint returns the first coordinate of the first path segment.
func anchorPoint(g orb.Geometry) (orb.Point, bool) {
	switch geom := g.(type) {
	case orb.LineString:
		if len(geom) == 0 {
			return orb.Point{}, false
		}
		return geom[0], true
	case orb.MultiLineString:
		if len(geom) == 0 || len(geom[0]) == 0 {
			return orb.Point{}, false
		}
		return geom[0][0], true
	default:
		return orb.Point{}, false
	}
}
