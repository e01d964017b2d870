// Package access turns a caller's role and assigned geography into the
// filter conditions every collection query is ANDed with.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"gridwatch/internal/filter"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/model"
)

// Record fields the scope applies to.
const (
	FieldRegion   = "region"
	FieldDistrict = "district"
)

// ErrOutOfScope is returned when an explicit region/district lies outside
// what the caller may see, or a write touches a record outside it.
var ErrOutOfScope = errors.New("outside caller scope")

// RoleSource looks up custom role documents.
type RoleSource interface {
	LookupRole(ctx context.Context, name string) (model.Role, bool, error)
}

// DistrictRegions maps a district name to the regions that have a
// district of that name.
type DistrictRegions interface {
	RegionsOfDistrict(ctx context.Context, district string) []string
}

// Scope is the resolved restriction for one request.
type Scope struct {
	Class      Class
	Conditions []filter.Condition
}

// Unrestricted reports whether the scope lets every record through.
func (s Scope) Unrestricted() bool { return len(s.Conditions) == 0 }

// Allows evaluates the scope as a predicate.
func (s Scope) Allows(r model.Record) bool { return filter.Match(r, s.Conditions) }

// Request carries the principal and any explicit region/district
// (names, already resolved from ids by the caller).
type Request struct {
	Principal Principal
	Region    string
	District  string
}

// Resolver builds scopes. The zero value applies the built-in table and
// denies unknown roles.
type Resolver struct {
	Roles     RoleSource
	Districts DistrictRegions

	// AllowUnknownRoles lets roles with no rule and no role document see
	// everything. Off by default.
	AllowUnknownRoles bool
	// TrustExplicitScope makes an explicit region/district replace the
	// role restriction for that dimension instead of narrowing it.
	TrustExplicitScope bool
}

// grant is the role restriction before explicit parameters are applied.
// A nil slice means the dimension is not restricted.
type grant struct {
	class     Class
	deny      bool
	regions   []string
	districts []string
}

// Resolve computes the scope for req.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Scope, error) {
	g, err := r.grantFor(ctx, req.Principal)
	if err != nil {
		return Scope{}, err
	}
	metrics.ScopeDecisions.WithLabelValues(string(g.class)).Inc()

	if g.deny {
		return Scope{Class: g.class, Conditions: []filter.Condition{filter.Nothing()}}, nil
	}

	if req.Region != "" {
		if r.TrustExplicitScope {
			g.regions = nil
		} else if g.regions != nil && !slices.Contains(g.regions, req.Region) {
			return Scope{}, fmt.Errorf("region %q: %w", req.Region, ErrOutOfScope)
		}
	}
	if req.District != "" {
		if r.TrustExplicitScope {
			g.districts = nil
		} else {
			if g.districts != nil && !slices.Contains(g.districts, req.District) {
				return Scope{}, fmt.Errorf("district %q: %w", req.District, ErrOutOfScope)
			}
			if g.regions != nil && r.Districts != nil {
				regions := r.Districts.RegionsOfDistrict(ctx, req.District)
				if len(regions) > 0 && !slices.ContainsFunc(regions, func(name string) bool { return slices.Contains(g.regions, name) }) {
					return Scope{}, fmt.Errorf("district %q: %w", req.District, ErrOutOfScope)
				}
			}
		}
	}

	var conds []filter.Condition
	switch {
	case req.Region != "":
		conds = append(conds, filter.Equal(FieldRegion, req.Region))
	case len(g.regions) == 1:
		conds = append(conds, filter.Equal(FieldRegion, g.regions[0]))
	case g.regions != nil:
		conds = append(conds, filter.OneOf(FieldRegion, g.regions...))
	}
	switch {
	case req.District != "":
		conds = append(conds, filter.Equal(FieldDistrict, req.District))
	case len(g.districts) == 1:
		conds = append(conds, filter.Equal(FieldDistrict, g.districts[0]))
	case g.districts != nil:
		conds = append(conds, filter.OneOf(FieldDistrict, g.districts...))
	}
	return Scope{Class: g.class, Conditions: conds}, nil
}

// RoleScope is Resolve without explicit parameters.
func (r *Resolver) RoleScope(ctx context.Context, p Principal) (Scope, error) {
	return r.Resolve(ctx, Request{Principal: p})
}

func (r *Resolver) grantFor(ctx context.Context, p Principal) (grant, error) {
	switch ClassOf(p.Role) {
	case ClassGlobal:
		return grant{class: ClassGlobal}, nil
	case ClassDistrict:
		g := grant{class: ClassDistrict}
		if p.District != "" {
			g.districts = []string{p.District}
		} else {
			logger.Warn(ctx, "district role without district, no restriction applied", zap.String("role", p.Role))
		}
		return g, nil
	case ClassRegional:
		g := grant{class: ClassRegional}
		if p.Region != "" {
			g.regions = []string{p.Region}
		} else {
			logger.Warn(ctx, "regional role without region, no restriction applied", zap.String("role", p.Role))
		}
		return g, nil
	case ClassGroup:
		return grant{class: ClassGroup, regions: slices.Clone(groupRegions[p.Role])}, nil
	}

	if r.Roles != nil && p.Role != "" {
		role, ok, err := r.Roles.LookupRole(ctx, p.Role)
		if err != nil {
			return grant{}, fmt.Errorf("lookup role %q: %w", p.Role, err)
		}
		if ok {
			return customGrant(role, p), nil
		}
	}
	if r.AllowUnknownRoles {
		logger.Warn(ctx, "unhandled role, no restriction applied", zap.String("role", p.Role))
		return grant{class: ClassUnknown}, nil
	}
	logger.Warn(ctx, "unhandled role, access denied", zap.String("role", p.Role))
	return grant{class: ClassUnknown, deny: true}, nil
}

func customGrant(role model.Role, p Principal) grant {
	g := grant{class: ClassCustom}
	switch role.AccessLevel {
	case model.AccessGlobal:
	case model.AccessRegional:
		g.regions = slices.Clone(role.AllowedRegions)
		if len(g.regions) == 0 && p.Region != "" {
			g.regions = []string{p.Region}
		}
		g.deny = len(g.regions) == 0
	case model.AccessDistrict:
		g.districts = slices.Clone(role.AllowedDistricts)
		if len(g.districts) == 0 && p.District != "" {
			g.districts = []string{p.District}
		}
		g.deny = len(g.districts) == 0
	default:
		g.deny = true
	}
	return g
}

// CheckWrite verifies that a record being written lies inside the scope.
func (s Scope) CheckWrite(r model.Record) error {
	if !s.Allows(r) {
		return fmt.Errorf("record %q: %w", r.ID(), ErrOutOfScope)
	}
	return nil
}
