package performance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/directory"
	"gridwatch/internal/filter"
	"gridwatch/internal/model"
	"gridwatch/internal/query"
	"gridwatch/internal/store"
)

type fixture struct {
	store *store.Memory
	agg   *Aggregator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s := store.NewMemory()
	f := fixture{store: s, agg: New(s, directory.New(s))}
	f.put(t, query.Regions, model.Record{"id": "r1", "name": "ACCRA EAST REGION"})
	f.put(t, query.Regions, model.Record{"id": "r2", "name": "ASHANTI EAST REGION"})
	f.put(t, query.Districts, model.Record{"id": "d1", "name": "ACCRA EAST", "regionId": "r1"})
	f.put(t, query.Districts, model.Record{"id": "d2", "name": "ADENTA", "regionId": "r1"})
	f.put(t, query.Districts, model.Record{"id": "d9", "name": "EJISU", "regionId": "r2"})
	return f
}

func (f fixture) put(t *testing.T, coll string, r model.Record) {
	t.Helper()
	_, err := f.store.Put(context.Background(), coll, r)
	require.NoError(t, err)
}

func (f fixture) target(t *testing.T, id, districtID, tt string, v float64) {
	f.put(t, query.Targets, model.Record{
		"id": id, "regionId": "r1", "districtId": districtID,
		"month": "2024-05", "targetType": tt, "targetValue": v,
	})
}

func TestComputeCountsAgainstTarget(t *testing.T) {
	f := newFixture(t)
	f.target(t, "t1", "d1", model.TargetLoadMonitoring, 100)
	for i := range 45 {
		f.put(t, query.LoadMonitoring, model.Record{"district": "ACCRA EAST", "date": "2024-05-10", "n": i})
	}
	f.put(t, query.LoadMonitoring, model.Record{"district": "ACCRA EAST", "date": "2024-06-01"})
	f.put(t, query.LoadMonitoring, model.Record{"district": "ADENTA", "date": "2024-05-02"})

	rows, err := f.agg.Compute(context.Background(), Request{RegionID: "r1", DistrictID: "d1", Month: "2024-05", TargetType: model.TargetLoadMonitoring})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, 100.0, r.Target)
	assert.Equal(t, 45.0, r.Actual)
	assert.Equal(t, -55.0, r.Variance)
	assert.Equal(t, 45.0, r.Percentage)
	assert.Equal(t, "t1", r.TargetID)
	assert.Equal(t, "ACCRA EAST REGION", r.Region)
	assert.Equal(t, "ACCRA EAST", r.District)
}

func TestComputeZeroTargetGivesZeroPercent(t *testing.T) {
	f := newFixture(t)
	f.target(t, "t1", "d1", model.TargetSubstationInspection, 0)
	f.put(t, query.SubstationInspections, model.Record{"district": "ACCRA EAST", "date": "2024-05-10"})

	rows, err := f.agg.Compute(context.Background(), Request{RegionID: "r1", DistrictID: "d1", Month: "2024-05", TargetType: model.TargetSubstationInspection})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0].Actual)
	assert.Equal(t, 1.0, rows[0].Variance)
	assert.Zero(t, rows[0].Percentage)
}

func TestComputeMissingTarget(t *testing.T) {
	f := newFixture(t)

	rows, err := f.agg.Compute(context.Background(), Request{RegionID: "r1", DistrictID: "d1", Month: "2024-05", TargetType: model.TargetOverheadLine})
	require.NoError(t, err)
	require.Len(t, rows, 1, "explicit type yields a zero-filled row")
	assert.Zero(t, rows[0].Target)
	assert.Empty(t, rows[0].TargetID)

	rows, err = f.agg.Compute(context.Background(), Request{RegionID: "r1", DistrictID: "d1", Month: "2024-05"})
	require.NoError(t, err)
	assert.Empty(t, rows, "no type and no targets yields nothing")
	assert.NotNil(t, rows)
}

func TestComputePrefersDistrictTarget(t *testing.T) {
	f := newFixture(t)
	f.target(t, "region-wide", "", model.TargetLoadMonitoring, 500)
	f.target(t, "district", "d1", model.TargetLoadMonitoring, 80)

	rows, err := f.agg.Compute(context.Background(), Request{RegionID: "r1", Month: "2024-05"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byDistrict := map[string]model.PerformanceResult{}
	for _, r := range rows {
		byDistrict[r.DistrictID] = r
	}
	assert.Equal(t, 80.0, byDistrict["d1"].Target)
	assert.Equal(t, "district", byDistrict["d1"].TargetID)
	assert.Equal(t, 500.0, byDistrict["d2"].Target)
	assert.Equal(t, "region-wide", byDistrict["d2"].TargetID)
}

func TestComputeOverheadLineKm(t *testing.T) {
	f := newFixture(t)
	f.target(t, "t1", "d1", model.TargetOverheadLine, 10)
	f.put(t, query.OverheadLineInspections, accraEast(pole("c", "F1", "2024-05-02", "10:00", 5.620, -0.200)))
	f.put(t, query.OverheadLineInspections, accraEast(pole("a", "F1", "2024-05-02", "08:00", 5.600, -0.200)))
	f.put(t, query.OverheadLineInspections, accraEast(pole("b", "F1", "2024-05-02", "09:00", 5.610, -0.200)))

	rows, err := f.agg.Compute(context.Background(), Request{RegionID: "r1", DistrictID: "d1", Month: "2024-05", TargetType: model.TargetOverheadLine})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 2.22, rows[0].Actual, 0.01)
	assert.InDelta(t, 22.2, rows[0].Percentage, 0.2)

	b, err := f.agg.FeederBreakdown(context.Background(), Request{RegionID: "r1", Month: "2024-05"})
	require.NoError(t, err)
	require.Len(t, b.Feeders, 1)
	assert.Equal(t, 3, b.Feeders[0].Points)
	assert.InDelta(t, 2.22, b.TotalKm, 0.01)
}

func TestComputeAppliesScope(t *testing.T) {
	f := newFixture(t)
	f.target(t, "t1", "d1", model.TargetLoadMonitoring, 10)
	f.put(t, query.LoadMonitoring, model.Record{"district": "ACCRA EAST", "date": "2024-05-10"})

	rows, err := f.agg.Compute(context.Background(), Request{
		RegionID: "r1", DistrictID: "d1", Month: "2024-05", TargetType: model.TargetLoadMonitoring,
		Scope: []filter.Condition{filter.Nothing()},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Actual)
}

func TestComputeMonthFollowsTimestampFallback(t *testing.T) {
	f := newFixture(t)
	f.target(t, "t1", "d1", model.TargetOverheadLine, 10)
	f.target(t, "t2", "d1", model.TargetLoadMonitoring, 10)
	for _, p := range []model.Record{
		pole("a", "F1", "", "", 5.600, -0.200),
		pole("b", "F1", "", "", 5.610, -0.200),
		pole("c", "F1", "", "", 5.620, -0.200),
	} {
		delete(p, "date")
		delete(p, "time")
		p["inspectionDate"] = "2024-05-02T08:00:00.000Z"
		f.put(t, query.OverheadLineInspections, accraEast(p))
	}
	// date wins over a later inspectionDate
	april := pole("z", "F1", "2024-04-30", "", 5.700, -0.200)
	april["inspectionDate"] = "2024-05-01"
	f.put(t, query.OverheadLineInspections, accraEast(april))

	f.put(t, query.LoadMonitoring, model.Record{"district": "ACCRA EAST", "createdAt": "2024-05-10T09:00:00.000Z"})
	f.put(t, query.LoadMonitoring, model.Record{"district": "ACCRA EAST", "inspectionDate": "2024-05-11"})
	f.put(t, query.LoadMonitoring, model.Record{"district": "ACCRA EAST", "date": "", "createdAt": "2024-05-12"})
	f.put(t, query.LoadMonitoring, model.Record{"district": "ACCRA EAST", "date": "2024-06-01", "createdAt": "2024-05-12"})

	rows, err := f.agg.Compute(context.Background(), Request{RegionID: "r1", DistrictID: "d1", Month: "2024-05"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		switch r.TargetType {
		case model.TargetOverheadLine:
			assert.InDelta(t, 2.22, r.Actual, 0.01)
		case model.TargetLoadMonitoring:
			assert.Equal(t, 3.0, r.Actual)
		}
	}
}

type cancellingCounts struct {
	store.Store
	cancel context.CancelFunc
}

func (c cancellingCounts) Count(context.Context, string, []filter.Condition) (int, error) {
	c.cancel()
	return 1, nil
}

func TestComputeStopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	f.target(t, "t1", "", model.TargetLoadMonitoring, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.agg.Store = cancellingCounts{Store: f.store, cancel: cancel}
	f.agg.Parallel = 1

	_, err := f.agg.Compute(ctx, Request{RegionID: "r1", Month: "2024-05"})
	require.ErrorIs(t, err, context.Canceled)
}

type failingCounts struct {
	store.Store
}

func (failingCounts) Count(context.Context, string, []filter.Condition) (int, error) {
	return 0, errors.New("connection reset")
}

func TestComputeDegradesOnStorageError(t *testing.T) {
	f := newFixture(t)
	f.target(t, "t1", "d1", model.TargetLoadMonitoring, 100)
	f.agg.Store = failingCounts{Store: f.store}

	rows, err := f.agg.Compute(context.Background(), Request{RegionID: "r1", DistrictID: "d1", Month: "2024-05", TargetType: model.TargetLoadMonitoring})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Actual)
	assert.Equal(t, -100.0, rows[0].Variance)
}

func TestComputeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.Compute(ctx, Request{Month: "2024-05"})
	require.ErrorIs(t, err, query.ErrValidation)
	_, err = f.agg.Compute(ctx, Request{RegionID: "r1", Month: "05-2024"})
	require.ErrorIs(t, err, query.ErrValidation)
	_, err = f.agg.Compute(ctx, Request{RegionID: "r1", Month: "2024-05", TargetType: "poles"})
	require.ErrorIs(t, err, query.ErrValidation)
	_, err = f.agg.Compute(ctx, Request{RegionID: "r1", DistrictID: "d9", Month: "2024-05"})
	require.ErrorIs(t, err, query.ErrValidation)
	_, err = f.agg.Compute(ctx, Request{RegionID: "nope", Month: "2024-05"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveTarget(t *testing.T) {
	targets := []model.Target{
		{ID: "a", TargetType: model.TargetLoadMonitoring, TargetValue: 1},
		{ID: "b", DistrictID: "d1", TargetType: model.TargetLoadMonitoring, TargetValue: 2},
		{ID: "c", DistrictID: "d2", TargetType: model.TargetOverheadLine, TargetValue: 3},
	}
	got, ok := ResolveTarget(targets, "d1", model.TargetLoadMonitoring)
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)

	got, ok = ResolveTarget(targets, "d3", model.TargetLoadMonitoring)
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = ResolveTarget(targets, "d1", model.TargetOverheadLine)
	assert.False(t, ok)
}

func accraEast(r model.Record) model.Record {
	r["region"] = "ACCRA EAST REGION"
	r["district"] = "ACCRA EAST"
	return r
}
