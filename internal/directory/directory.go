// Package directory answers reference-data questions (region and district
// names, custom roles) on top of the store.
package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gridwatch/internal/filter"
	"gridwatch/internal/logger"
	"gridwatch/internal/model"
	"gridwatch/internal/query"
	"gridwatch/internal/store"
)

// Directory reads regions, districts and roles. Wrap the store in a
// store.Cached to keep these lookups off the database.
type Directory struct {
	store store.Store
}

func New(s store.Store) *Directory { return &Directory{store: s} }

func decodeAll[T any](recs []model.Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := model.Decode(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *Directory) Regions(ctx context.Context) ([]model.Region, error) {
	recs, err := d.store.Query(ctx, query.Regions, filter.Query{Sort: filter.Sort{Field: "name"}})
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return decodeAll[model.Region](recs)
}

// Districts lists districts, limited to one region when regionID is set.
func (d *Directory) Districts(ctx context.Context, regionID string) ([]model.District, error) {
	q := filter.Query{Sort: filter.Sort{Field: "name"}}
	if regionID != "" {
		q.Where = []filter.Condition{filter.Equal("regionId", regionID)}
	}
	recs, err := d.store.Query(ctx, query.Districts, q)
	if err != nil {
		return nil, fmt.Errorf("list districts: %w", err)
	}
	return decodeAll[model.District](recs)
}

func (d *Directory) Region(ctx context.Context, id string) (model.Region, error) {
	var out model.Region
	r, err := d.store.Get(ctx, query.Regions, id)
	if err != nil {
		return out, fmt.Errorf("region %q: %w", id, err)
	}
	if err := model.Decode(r, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (d *Directory) District(ctx context.Context, id string) (model.District, error) {
	var out model.District
	r, err := d.store.Get(ctx, query.Districts, id)
	if err != nil {
		return out, fmt.Errorf("district %q: %w", id, err)
	}
	if err := model.Decode(r, &out); err != nil {
		return out, err
	}
	return out, nil
}

// RegionsOfDistrict returns the names of every region with a district
// called district. District names repeat across regions.
func (d *Directory) RegionsOfDistrict(ctx context.Context, district string) []string {
	recs, err := d.store.Query(ctx, query.Districts, filter.Query{
		Where: []filter.Condition{filter.Equal("name", district)},
	})
	if err != nil {
		logger.Warnf(ctx, "district lookup %q: %v", district, err)
		return nil
	}
	var out []string
	for _, rec := range recs {
		region, err := d.store.Get(ctx, query.Regions, rec.String("regionId"))
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Warnf(ctx, "region lookup for district %q: %v", district, err)
			}
			continue
		}
		if name := region.String("name"); !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// LookupRole finds a role document by name.
func (d *Directory) LookupRole(ctx context.Context, name string) (model.Role, bool, error) {
	recs, err := d.store.Query(ctx, query.Roles, filter.Query{
		Where: []filter.Condition{filter.Equal("name", name)},
		Limit: 1,
	})
	if err != nil {
		return model.Role{}, false, err
	}
	if len(recs) == 0 {
		return model.Role{}, false, nil
	}
	var role model.Role
	if err := model.Decode(recs[0], &role); err != nil {
		return model.Role{}, false, err
	}
	return role, true, nil
}

// Names resolves region and district ids to names. Empty ids give empty
// names; an unknown id is an error wrapping store.ErrNotFound.
func (d *Directory) Names(ctx context.Context, regionID, districtID string) (region, district string, err error) {
	if regionID != "" {
		r, err := d.Region(ctx, regionID)
		if err != nil {
			return "", "", err
		}
		region = r.Name
	}
	if districtID != "" {
		dd, err := d.District(ctx, districtID)
		if err != nil {
			return "", "", err
		}
		district = dd.Name
	}
	return region, district, nil
}
