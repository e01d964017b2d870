package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/filter"
	"gridwatch/internal/model"
)

type fakeRoles map[string]model.Role

func (f fakeRoles) LookupRole(_ context.Context, name string) (model.Role, bool, error) {
	r, ok := f[name]
	return r, ok, nil
}

type failingRoles struct{}

func (failingRoles) LookupRole(context.Context, string) (model.Role, bool, error) {
	return model.Role{}, false, errors.New("store down")
}

type fakeDistricts map[string][]string

func (f fakeDistricts) RegionsOfDistrict(_ context.Context, d string) []string { return f[d] }

func rec(region, district string) model.Record {
	return model.Record{"id": "x", "region": region, "district": district}
}

func TestGlobalRolesAreUnrestricted(t *testing.T) {
	var r Resolver
	for _, role := range []string{RoleSystemAdmin, RoleGlobalEngineer} {
		s, err := r.RoleScope(context.Background(), Principal{Role: role, Region: "ACCRA EAST REGION"})
		require.NoError(t, err)
		assert.True(t, s.Unrestricted(), role)
		assert.Equal(t, ClassGlobal, s.Class)
	}
}

func TestRegionalAndDistrictRoles(t *testing.T) {
	var r Resolver
	ctx := context.Background()

	s, err := r.RoleScope(ctx, Principal{Role: RoleRegionalEngineer, Region: "ACCRA EAST REGION", District: "TEMA"})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{filter.Equal(FieldRegion, "ACCRA EAST REGION")}, s.Conditions)
	assert.True(t, s.Allows(rec("ACCRA EAST REGION", "ANY")))
	assert.False(t, s.Allows(rec("ASHANTI EAST REGION", "TEMA")))

	s, err = r.RoleScope(ctx, Principal{Role: RoleTechnician, Region: "ACCRA EAST REGION", District: "TEMA"})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{filter.Equal(FieldDistrict, "TEMA")}, s.Conditions)
	assert.True(t, s.Allows(rec("", "TEMA")))
	assert.False(t, s.Allows(rec("ACCRA EAST REGION", "ACCRA EAST")))
}

func TestRoleWithoutAssignmentIsNotRestricted(t *testing.T) {
	var r Resolver
	s, err := r.RoleScope(context.Background(), Principal{Role: RoleDistrictManager})
	require.NoError(t, err)
	assert.True(t, s.Unrestricted())
}

func TestGroupRoles(t *testing.T) {
	var r Resolver
	s, err := r.RoleScope(context.Background(), Principal{Role: RoleAshantiSubtransmission})
	require.NoError(t, err)
	require.Len(t, s.Conditions, 1)
	assert.Equal(t, filter.In, s.Conditions[0].Op)
	assert.ElementsMatch(t, AshantiSubtransmissionRegions, s.Conditions[0].Values)
	assert.True(t, s.Allows(rec("SUBTRANSMISSION ASHANTI", "")))
	assert.False(t, s.Allows(rec("ACCRA EAST REGION", "")))
}

func TestUnknownRoleDenied(t *testing.T) {
	var r Resolver
	s, err := r.RoleScope(context.Background(), Principal{Role: "auditor"})
	require.NoError(t, err)
	assert.Equal(t, ClassUnknown, s.Class)
	assert.False(t, s.Allows(rec("ACCRA EAST REGION", "TEMA")))
	assert.False(t, s.Allows(model.Record{}))

	r.AllowUnknownRoles = true
	s, err = r.RoleScope(context.Background(), Principal{Role: "auditor"})
	require.NoError(t, err)
	assert.True(t, s.Unrestricted())
}

func TestCustomRoles(t *testing.T) {
	r := Resolver{Roles: fakeRoles{
		"east_auditor":  {Name: "east_auditor", AccessLevel: model.AccessRegional, AllowedRegions: []string{"ACCRA EAST REGION", "ACCRA WEST REGION"}},
		"field_lead":    {Name: "field_lead", AccessLevel: model.AccessDistrict},
		"head_office":   {Name: "head_office", AccessLevel: model.AccessGlobal},
		"misconfigured": {Name: "misconfigured", AccessLevel: "planet"},
	}}
	ctx := context.Background()

	s, err := r.RoleScope(ctx, Principal{Role: "east_auditor"})
	require.NoError(t, err)
	assert.Equal(t, ClassCustom, s.Class)
	assert.True(t, s.Allows(rec("ACCRA WEST REGION", "")))
	assert.False(t, s.Allows(rec("ASHANTI EAST REGION", "")))

	s, err = r.RoleScope(ctx, Principal{Role: "field_lead", District: "EJISU"})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{filter.Equal(FieldDistrict, "EJISU")}, s.Conditions)

	s, err = r.RoleScope(ctx, Principal{Role: "field_lead"})
	require.NoError(t, err)
	assert.False(t, s.Allows(rec("", "EJISU")))

	s, err = r.RoleScope(ctx, Principal{Role: "head_office"})
	require.NoError(t, err)
	assert.True(t, s.Unrestricted())

	s, err = r.RoleScope(ctx, Principal{Role: "misconfigured"})
	require.NoError(t, err)
	assert.False(t, s.Allows(rec("", "")))
}

func TestRoleLookupError(t *testing.T) {
	r := Resolver{Roles: failingRoles{}}
	_, err := r.RoleScope(context.Background(), Principal{Role: "auditor"})
	require.Error(t, err)

	// built-in roles never hit the role source
	_, err = r.RoleScope(context.Background(), Principal{Role: RoleSystemAdmin})
	require.NoError(t, err)
}

func TestExplicitScopeNarrows(t *testing.T) {
	r := Resolver{Districts: fakeDistricts{
		"TEMA":    {"ACCRA EAST REGION"},
		"EJISU":   {"ASHANTI EAST REGION"},
		"CENTRAL": {"ASHANTI EAST REGION", "ACCRA EAST REGION"},
	}}
	ctx := context.Background()
	regional := Principal{Role: RoleRegionalEngineer, Region: "ACCRA EAST REGION"}

	s, err := r.Resolve(ctx, Request{Principal: regional, District: "TEMA"})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{
		filter.Equal(FieldRegion, "ACCRA EAST REGION"),
		filter.Equal(FieldDistrict, "TEMA"),
	}, s.Conditions)

	_, err = r.Resolve(ctx, Request{Principal: regional, District: "EJISU"})
	assert.ErrorIs(t, err, ErrOutOfScope)

	// a name shared across regions is accepted when one of them is granted
	s, err = r.Resolve(ctx, Request{Principal: regional, District: "CENTRAL"})
	require.NoError(t, err)
	assert.True(t, s.Allows(rec("ACCRA EAST REGION", "CENTRAL")))
	assert.False(t, s.Allows(rec("ASHANTI EAST REGION", "CENTRAL")))

	_, err = r.Resolve(ctx, Request{Principal: regional, Region: "ASHANTI EAST REGION"})
	assert.ErrorIs(t, err, ErrOutOfScope)

	tech := Principal{Role: RoleTechnician, District: "TEMA"}
	_, err = r.Resolve(ctx, Request{Principal: tech, District: "EJISU"})
	assert.ErrorIs(t, err, ErrOutOfScope)

	group := Principal{Role: RoleAccraSubtransmission}
	s, err = r.Resolve(ctx, Request{Principal: group, Region: "ACCRA WEST REGION"})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{filter.Equal(FieldRegion, "ACCRA WEST REGION")}, s.Conditions)

	admin := Principal{Role: RoleSystemAdmin}
	s, err = r.Resolve(ctx, Request{Principal: admin, Region: "ASHANTI EAST REGION"})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{filter.Equal(FieldRegion, "ASHANTI EAST REGION")}, s.Conditions)
}

func TestTrustExplicitScope(t *testing.T) {
	r := Resolver{TrustExplicitScope: true}
	s, err := r.Resolve(context.Background(), Request{
		Principal: Principal{Role: RoleTechnician, District: "TEMA"},
		District:  "EJISU",
	})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{filter.Equal(FieldDistrict, "EJISU")}, s.Conditions)
}

func TestExplicitScopeCannotLiftDenial(t *testing.T) {
	r := Resolver{TrustExplicitScope: true}
	s, err := r.Resolve(context.Background(), Request{Principal: Principal{Role: "auditor"}, Region: "ACCRA EAST REGION"})
	require.NoError(t, err)
	assert.False(t, s.Allows(rec("ACCRA EAST REGION", "")))
}

func TestCheckWrite(t *testing.T) {
	var r Resolver
	s, err := r.RoleScope(context.Background(), Principal{Role: RoleDistrictEngineer, District: "TEMA"})
	require.NoError(t, err)
	assert.NoError(t, s.CheckWrite(rec("ACCRA EAST REGION", "TEMA")))
	assert.ErrorIs(t, s.CheckWrite(rec("ACCRA EAST REGION", "ACCRA EAST")), ErrOutOfScope)
}

func TestPrincipalPermissions(t *testing.T) {
	assert.True(t, Principal{Role: RoleSystemAdmin}.IsAdmin())
	assert.False(t, Principal{Role: RoleGlobalEngineer}.IsAdmin())
	assert.True(t, Principal{Role: RoleGlobalEngineer}.CanManageTargets())
	assert.False(t, Principal{Role: RoleRegionalEngineer}.CanManageTargets())
	assert.Equal(t, ClassGroup, ClassOf(RoleAccraSubtransmission))
	assert.False(t, IsBuiltin("auditor"))
}
