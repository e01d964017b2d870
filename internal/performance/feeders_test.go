package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/model"
)

func pole(id, feeder, date, clock string, lat, lng float64) model.Record {
	return model.Record{
		"id":         id,
		"feederName": feeder,
		"date":       date,
		"time":       clock,
		"location":   map[string]any{"lat": lat, "lng": lng},
	}
}

func TestFeederLengthsIndependentOfInputOrder(t *testing.T) {
	a := pole("a", "F1", "2024-05-02", "08:00", 5.600, -0.200)
	b := pole("b", "F1", "2024-05-02", "09:00", 5.610, -0.200)
	c := pole("c", "F1", "2024-05-02", "10:00", 5.620, -0.200)

	for _, in := range [][]model.Record{{a, b, c}, {c, a, b}, {b, c, a}} {
		got := FeederLengths(in)
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Points)
		assert.InDelta(t, 2.224, got[0].LengthKm, 0.01)
	}
}

func TestFeederLengthsSkipsBadRecords(t *testing.T) {
	recs := []model.Record{
		pole("a", "F1", "2024-05-02", "08:00", 5.600, -0.200),
		pole("b", "F1", "2024-05-02", "09:00", 0, 0),
		pole("c", "", "2024-05-02", "10:00", 5.610, -0.200),
		pole("d", "F1", "2024-05-02", "11:00", 95, -0.200),
		{"id": "e", "feederName": "F1", "date": "2024-05-02"},
	}
	got := FeederLengths(recs)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Points)
	assert.Zero(t, got[0].LengthKm)
}

func TestFeederLengthsSumsFeedersSeparately(t *testing.T) {
	recs := []model.Record{
		pole("a", "F2", "2024-05-02", "08:00", 5.600, -0.200),
		pole("b", "F2", "2024-05-02", "09:00", 5.610, -0.200),
		pole("c", "F1", "2024-05-03", "08:00", 6.600, -1.600),
		pole("d", "F1", "2024-05-03", "09:00", 6.610, -1.600),
	}
	got := FeederLengths(recs)
	require.Len(t, got, 2)
	assert.Equal(t, "F1", got[0].FeederName)
	assert.Equal(t, "F2", got[1].FeederName)
	assert.InDelta(t, 2.224, TotalKm(got), 0.01)
}

func TestFeederLengthsTimestampFallback(t *testing.T) {
	// no date/time: inspectionDate orders the points
	recs := []model.Record{
		{"id": "z", "feederName": "F1", "inspectionDate": "2024-05-03T00:00:00Z", "latitude": 5.62, "longitude": -0.2},
		{"id": "y", "feederName": "F1", "inspectionDate": "2024-05-01T00:00:00Z", "latitude": 5.60, "longitude": -0.2},
		{"id": "x", "feederName": "F1", "inspectionDate": "2024-05-02T00:00:00Z", "latitude": 5.61, "longitude": -0.2},
	}
	got := FeederLengths(recs)
	require.Len(t, got, 1)
	assert.InDelta(t, 2.224, got[0].LengthKm, 0.01)
}
