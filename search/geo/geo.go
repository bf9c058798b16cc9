// Package geo provides the small amount of spatial math the search
// pipeline's GeoSort rule and the filter grammar's _geoRadius condition
// both need (§4.4): plain haversine distance plus a parser for the
// document-level `_geo` field.
package geo

import (
	"encoding/json"
	"math"
)

// FieldName is the reserved document attribute carrying geo coordinates,
// the convention the _geoRadius/_geoSort operations read from.
const FieldName = "_geo"

// Point is a latitude/longitude pair, in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// earthRadiusMeters is the mean Earth radius used by the haversine
// formula.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Point) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// field is the shape a document's "_geo" attribute is expected to decode
// into: {"lat": <number>, "lng": <number>}.
type field struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseField decodes a document's raw `_geo` field bytes (as stored by the
// document codec) into a Point. ok is false if raw is absent or not a
// {lat,lng} object.
func ParseField(raw []byte) (Point, bool) {
	if len(raw) == 0 {
		return Point{}, false
	}
	var f field
	if err := json.Unmarshal(raw, &f); err != nil {
		return Point{}, false
	}
	if f.Lat == 0 && f.Lng == 0 {
		// Indistinguishable from "absent" for this codec's purposes; a
		// document that legitimately sits at (0,0) is vanishingly rare.
		return Point{}, false
	}
	return Point{Lat: f.Lat, Lng: f.Lng}, true
}
