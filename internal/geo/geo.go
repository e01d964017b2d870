// Package geo contains the distance and coordinate helpers used by the
// feeder length calculation.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether p is inside the coordinate domain and is not the
// (0,0) placeholder that legacy clients send when GPS was unavailable.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return false
	}
	return !(p.Lat == 0 && p.Lng == 0)
}

// HaversineKm returns the great-circle distance between a and b in km.
func HaversineKm(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// HaversineMeters is HaversineKm in metres.
func HaversineMeters(a, b Point) float64 { return HaversineKm(a, b) * 1000 }

// PathKm sums the distance between consecutive points.
func PathKm(pts []Point) float64 {
	total := 0.0
	for i := 1; i < len(pts); i++ {
		total += HaversineKm(pts[i-1], pts[i])
	}
	return total
}

// locationFields are checked in order when a record carries more than one encoding.
var locationFields = []string{"location", "gpsLocation", "coordinates", "geoLocation"}

// FromRecord extracts a coordinate from a document. It understands
// {lat,lng}, {latitude,longitude}, GeoJSON points, [lng,lat] pairs,
// "lat,lng" strings and top-level latitude/longitude fields.
func FromRecord(doc map[string]any) (Point, bool) {
	for _, f := range locationFields {
		if v, ok := doc[f]; ok && v != nil {
			if p, ok := Parse(v); ok {
				return p, true
			}
		}
	}
	if p, ok := pairFromMap(doc); ok {
		return p, true
	}
	return Point{}, false
}

// Parse decodes a single coordinate value in any supported encoding.
func Parse(v any) (Point, bool) {
	switch t := v.(type) {
	case map[string]any:
		if coords, ok := t["coordinates"]; ok {
			return Parse(coords)
		}
		return pairFromMap(t)
	case []any:
		if len(t) != 2 {
			return Point{}, false
		}
		lng, ok1 := number(t[0])
		lat, ok2 := number(t[1])
		if !ok1 || !ok2 {
			return Point{}, false
		}
		return Point{Lat: lat, Lng: lng}, true
	case []float64:
		if len(t) != 2 {
			return Point{}, false
		}
		return Point{Lat: t[1], Lng: t[0]}, true
	case string:
		return parseString(t)
	case Point:
		return t, true
	case *Point:
		if t == nil {
			return Point{}, false
		}
		return *t, true
	}
	return Point{}, false
}

func pairFromMap(m map[string]any) (Point, bool) {
	for _, keys := range [][2]string{{"lat", "lng"}, {"latitude", "longitude"}, {"lat", "lon"}} {
		la, okLa := m[keys[0]]
		lo, okLo := m[keys[1]]
		if !okLa || !okLo {
			continue
		}
		lat, ok1 := number(la)
		lng, ok2 := number(lo)
		if ok1 && ok2 {
			return Point{Lat: lat, Lng: lng}, true
		}
	}
	return Point{}, false
}

func parseString(s string) (Point, bool) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "()"))
	if s == "" {
		return Point{}, false
	}
	var parts []string
	if strings.Contains(s, ",") {
		parts = strings.Split(s, ",")
	} else {
		parts = strings.Fields(s)
	}
	if len(parts) != 2 {
		return Point{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
