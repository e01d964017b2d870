package api

import (
	"context"

	"gridwatch/internal/access"
	"gridwatch/internal/query"
)

// scopeFor resolves the caller's scope for a list request, turning any
// regionId/districtId parameters into names first.
func (s *Server) scopeFor(ctx context.Context, p access.Principal, schema query.Schema, req query.Request) (access.Scope, error) {
	if !schema.Scoped {
		return access.Scope{}, nil
	}
	return s.explicitScope(ctx, p, req.Region, req.RegionID, req.District, req.DistrictID)
}

func (s *Server) explicitScope(ctx context.Context, p access.Principal, region, regionID, district, districtID string) (access.Scope, error) {
	if regionID != "" || districtID != "" {
		rn, dn, err := s.Directory.Names(ctx, regionID, districtID)
		if err != nil {
			return access.Scope{}, notFoundAsInvalid(err)
		}
		if region == "" {
			region = rn
		}
		if district == "" {
			district = dn
		}
	}
	return s.Resolver.Resolve(ctx, access.Request{Principal: p, Region: region, District: district})
}

// writeScope is the scope a record must fall in to be read or written by
// id. Unscoped collections return the zero scope.
func (s *Server) writeScope(ctx context.Context, p access.Principal, schema query.Schema) (access.Scope, error) {
	if !schema.Scoped {
		return access.Scope{}, nil
	}
	return s.Resolver.RoleScope(ctx, p)
}
