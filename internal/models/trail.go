package models

import "github.com/paulmach/orb"

// TrailFeature is one hiking path from the source dataset. Start is in the
// dataset's planar grid units (easting, northing), not degrees.
type TrailFeature struct {
	ID            string
	Name          string
	StartLocation string
	LengthMeters  float64
	Difficulty    string
	Website       string
	Start         orb.Point
}

// StationMatch is the nearest transit station found for a trail's start point.
// Station, StationType and Distance are nil when no candidate was reachable.
type StationMatch struct {
	Name          string   `json:"name"`
	StartLocation string   `json:"startLocation"`
	Length        float64  `json:"length"`
	Difficulty    string   `json:"difficulty"`
	Station       *string  `json:"station"`
	StationType   *string  `json:"stationType"`
	Distance      *float64 `json:"distance"`
	Website       string   `json:"website"`
}
