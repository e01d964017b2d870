// Package performance compares what field crews recorded in a month with
// the targets set for their region and district.
package performance

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"gridwatch/internal/filter"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
	"gridwatch/internal/query"
	"gridwatch/internal/store"
)

// Geography resolves region and district ids.
type Geography interface {
	Region(ctx context.Context, id string) (model.Region, error)
	District(ctx context.Context, id string) (model.District, error)
	Districts(ctx context.Context, regionID string) ([]model.District, error)
}

// Request selects what to report on. DistrictID and TargetType are
// optional; Scope is ANDed into every record query.
type Request struct {
	RegionID   string
	DistrictID string
	Month      string
	TargetType string
	Scope      []filter.Condition
}

// Aggregator computes performance rows on demand.
type Aggregator struct {
	Store     store.Store
	Geography Geography
	// Parallel bounds concurrent actual computations. Zero means 4.
	Parallel int
}

func New(s store.Store, g Geography) *Aggregator {
	return &Aggregator{Store: s, Geography: g}
}

func (req Request) validate() error {
	if req.RegionID == "" {
		return fmt.Errorf("regionId is required: %w", query.ErrValidation)
	}
	if _, err := time.Parse("2006-01", req.Month); err != nil {
		return fmt.Errorf("month %q must be YYYY-MM: %w", req.Month, query.ErrValidation)
	}
	if req.TargetType != "" && !slices.Contains(model.TargetTypes, req.TargetType) {
		return fmt.Errorf("unknown targetType %q: %w", req.TargetType, query.ErrValidation)
	}
	return nil
}

// districts returns the region and the districts the request covers.
func (a *Aggregator) districts(ctx context.Context, req Request) (model.Region, []model.District, error) {
	region, err := a.Geography.Region(ctx, req.RegionID)
	if err != nil {
		return model.Region{}, nil, err
	}
	if req.DistrictID != "" {
		d, err := a.Geography.District(ctx, req.DistrictID)
		if err != nil {
			return model.Region{}, nil, err
		}
		if d.RegionID != region.ID {
			return model.Region{}, nil, fmt.Errorf("district %q is not in region %q: %w", d.Name, region.Name, query.ErrValidation)
		}
		return region, []model.District{d}, nil
	}
	ds, err := a.Geography.Districts(ctx, region.ID)
	if err != nil {
		return model.Region{}, nil, err
	}
	return region, ds, nil
}

func (a *Aggregator) targets(ctx context.Context, req Request) ([]model.Target, error) {
	where := []filter.Condition{
		filter.Equal("regionId", req.RegionID),
		filter.Equal("month", req.Month),
	}
	if req.TargetType != "" {
		where = append(where, filter.Equal("targetType", req.TargetType))
	}
	recs, err := a.Store.Query(ctx, query.Targets, filter.Query{Where: where})
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	out := make([]model.Target, 0, len(recs))
	for _, r := range recs {
		var t model.Target
		if err := model.Decode(r, &t); err != nil {
			logger.Warnf(ctx, "skipping malformed target %s: %v", r.ID(), err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// ResolveTarget picks the target for one district and type: a
// district-specific target wins over a region-wide one.
func ResolveTarget(targets []model.Target, districtID, targetType string) (model.Target, bool) {
	var regionWide *model.Target
	for i := range targets {
		t := &targets[i]
		if t.TargetType != targetType {
			continue
		}
		switch t.DistrictID {
		case districtID:
			if districtID != "" {
				return *t, true
			}
			regionWide = t
		case "":
			regionWide = t
		}
	}
	if regionWide != nil {
		return *regionWide, true
	}
	return model.Target{}, false
}

// Compute returns one row per district and target type. A type with no
// target is reported with zeroes only when it was asked for explicitly.
func (a *Aggregator) Compute(ctx context.Context, req Request) ([]model.PerformanceResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	region, districts, err := a.districts(ctx, req)
	if err != nil {
		return nil, err
	}
	targets, err := a.targets(ctx, req)
	if err != nil {
		return nil, err
	}

	types := model.TargetTypes
	if req.TargetType != "" {
		types = []string{req.TargetType}
	}

	var rows []model.PerformanceResult
	for _, d := range districts {
		for _, tt := range types {
			t, ok := ResolveTarget(targets, d.ID, tt)
			if !ok && req.TargetType == "" {
				continue
			}
			rows = append(rows, model.PerformanceResult{
				DistrictID: d.ID,
				District:   d.Name,
				RegionID:   region.ID,
				Region:     region.Name,
				Month:      req.Month,
				TargetType: tt,
				Target:     t.TargetValue,
				TargetID:   t.ID,
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel())
	for i := range rows {
		row := &rows[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row.Actual = a.actual(gctx, req, row.District, row.TargetType)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range rows {
		finish(&rows[i])
	}
	if rows == nil {
		rows = []model.PerformanceResult{}
	}
	return rows, nil
}

func finish(r *model.PerformanceResult) {
	r.Actual = round2(r.Actual)
	r.Variance = round2(r.Actual - r.Target)
	if r.Target > 0 {
		r.Percentage = round2(r.Actual / r.Target * 100)
	} else {
		r.Percentage = 0
	}
}

func (a *Aggregator) parallel() int {
	if a.Parallel > 0 {
		return a.Parallel
	}
	return 4
}

func monthConditions(req Request, collection string) []filter.Condition {
	s, _ := query.ByCollection(collection)
	where := append([]filter.Condition{}, req.Scope...)
	return append(where, s.MonthCondition(req.Month))
}

// actual computes one figure. Failures are logged and reported as zero
// so the rest of the report still renders.
func (a *Aggregator) actual(ctx context.Context, req Request, district, targetType string) float64 {
	var (
		v   float64
		err error
	)
	switch targetType {
	case model.TargetOverheadLine:
		var feeders []model.FeederLength
		feeders, err = a.feeders(ctx, req, district)
		v = TotalKm(feeders)
	case model.TargetLoadMonitoring:
		v, err = a.count(ctx, req, query.LoadMonitoring, district)
	case model.TargetSubstationInspection:
		v, err = a.count(ctx, req, query.SubstationInspections, district)
	}
	if err != nil {
		metrics.PerformanceActuals.WithLabelValues(targetType, "degraded").Inc()
		logger.Errorf(ctx, "performance %s for %s %s: %v", targetType, district, req.Month, err)
		return 0
	}
	metrics.PerformanceActuals.WithLabelValues(targetType, "ok").Inc()
	return v
}

func (a *Aggregator) count(ctx context.Context, req Request, collection, district string) (float64, error) {
	where := append(monthConditions(req, collection), filter.Equal("district", district))
	n, err := a.Store.Count(ctx, collection, where)
	return float64(n), err
}

func (a *Aggregator) feeders(ctx context.Context, req Request, district string) ([]model.FeederLength, error) {
	where := monthConditions(req, query.OverheadLineInspections)
	if district != "" {
		where = append(where, filter.Equal("district", district))
	}
	recs, err := a.Store.Query(ctx, query.OverheadLineInspections, filter.Query{Where: where})
	if err != nil {
		return nil, err
	}
	return FeederLengths(recs), nil
}

// Breakdown is the per-feeder detail behind an overhead line actual.
type Breakdown struct {
	RegionID   string               `json:"regionId"`
	Region     string               `json:"region"`
	DistrictID string               `json:"districtId,omitempty"`
	District   string               `json:"district,omitempty"`
	Month      string               `json:"month"`
	Feeders    []model.FeederLength `json:"feeders"`
	TotalKm    float64              `json:"totalKm"`
}

// FeederBreakdown reports feeder lengths for a district, or for the whole
// region when no district is given.
func (a *Aggregator) FeederBreakdown(ctx context.Context, req Request) (Breakdown, error) {
	req.TargetType = ""
	if err := req.validate(); err != nil {
		return Breakdown{}, err
	}
	region, districts, err := a.districts(ctx, req)
	if err != nil {
		return Breakdown{}, err
	}
	out := Breakdown{RegionID: region.ID, Region: region.Name, Month: req.Month}
	if req.DistrictID != "" {
		out.DistrictID, out.District = districts[0].ID, districts[0].Name
	} else {
		req.Scope = append(slices.Clone(req.Scope), filter.Equal("region", region.Name))
	}
	feeders, err := a.feeders(ctx, req, out.District)
	if err != nil {
		return Breakdown{}, fmt.Errorf("feeder breakdown: %w", err)
	}
	out.TotalKm = round2(TotalKm(feeders))
	for i := range feeders {
		feeders[i].LengthKm = round2(feeders[i].LengthKm)
	}
	out.Feeders = feeders
	return out, nil
}
