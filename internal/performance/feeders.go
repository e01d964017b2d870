package performance

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gridwatch/internal/geo"
	"gridwatch/internal/model"
)

type fix struct {
	at    time.Time
	id    string
	point geo.Point
}

// FeederLengths groups geotagged inspection records by feeder and returns
// the walked length of each feeder, in feeder name order. Records without a
// feeder name or a usable coordinate are ignored; a feeder with fewer than
// two points has zero length.
func FeederLengths(records []model.Record) []model.FeederLength {
	byFeeder := map[string][]fix{}
	for _, r := range records {
		name := strings.TrimSpace(r.String("feederName"))
		if name == "" {
			continue
		}
		p, ok := geo.FromRecord(r)
		if !ok || !p.Valid() {
			continue
		}
		at, _ := geo.Timestamp(r)
		byFeeder[name] = append(byFeeder[name], fix{at: at, id: r.ID(), point: p})
	}

	out := make([]model.FeederLength, 0, len(byFeeder))
	for name, fixes := range byFeeder {
		sort.SliceStable(fixes, func(i, j int) bool {
			if !fixes[i].at.Equal(fixes[j].at) {
				return fixes[i].at.Before(fixes[j].at)
			}
			return fixes[i].id < fixes[j].id
		})
		pts := make([]geo.Point, len(fixes))
		for i, f := range fixes {
			pts[i] = f.point
		}
		out = append(out, model.FeederLength{FeederName: name, Points: len(pts), LengthKm: geo.PathKm(pts)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeederName < out[j].FeederName })
	return out
}

// TotalKm sums feeder lengths.
func TotalKm(feeders []model.FeederLength) float64 {
	total := 0.0
	for _, f := range feeders {
		total += f.LengthKm
	}
	return total
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
