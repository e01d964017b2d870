package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridwatch/internal/filter"
	"gridwatch/internal/model"
)

func mustSchema(t *testing.T, path string) Schema {
	t.Helper()
	s, ok := Lookup(path)
	require.True(t, ok, path)
	return s
}

func TestParseDefaults(t *testing.T) {
	s := mustSchema(t, "op5-faults")
	req, err := Parse(s, url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 50, req.Limit)
	assert.Equal(t, 0, req.Offset)
	assert.Equal(t, filter.Sort{Field: "occurrenceDate", Desc: true}, req.Sort)
	assert.Empty(t, req.Filters)
	assert.False(t, req.CountOnly)
}

func TestParseDateRangeInclusive(t *testing.T) {
	s := mustSchema(t, "op5-faults")
	req, err := Parse(s, url.Values{"startDate": {"2024-05-01"}, "endDate": {"2024-05-31"}})
	require.NoError(t, err)

	q := req.Build(nil)
	in := model.Record{"id": "a", "occurrenceDate": "2024-05-31T18:20:00.000Z"}
	before := model.Record{"id": "b", "occurrenceDate": "2024-04-30T23:59:59.000Z"}
	after := model.Record{"id": "c", "occurrenceDate": "2024-06-01T00:00:00.000Z"}
	assert.True(t, filter.Match(in, q.Where))
	assert.False(t, filter.Match(before, q.Where))
	assert.False(t, filter.Match(after, q.Where))
}

func TestParseSingleDay(t *testing.T) {
	s := mustSchema(t, "overhead-line-inspections")
	req, err := Parse(s, url.Values{"date": {"2024-05-10"}})
	require.NoError(t, err)
	q := req.Build(nil)
	assert.True(t, filter.Match(model.Record{"date": "2024-05-10"}, q.Where))
	assert.True(t, filter.Match(model.Record{"date": "2024-05-10T09:00:00.000Z"}, q.Where))
	assert.False(t, filter.Match(model.Record{"date": "2024-05-11"}, q.Where))

	_, err = Parse(s, url.Values{"date": {"10/05/2024"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseMonthPrefix(t *testing.T) {
	s := mustSchema(t, "load-monitoring")
	req, err := Parse(s, url.Values{"month": {"2024-05"}})
	require.NoError(t, err)
	require.Len(t, req.Filters, 1)
	assert.Equal(t, filter.PrefixOfFirst("2024-05", "date", "inspectionDate", "createdAt"), req.Filters[0])

	req, err = Parse(mustSchema(t, "op5-faults"), url.Values{"month": {"2024-05"}})
	require.NoError(t, err)
	assert.Equal(t, filter.Condition{Field: "occurrenceDate", Op: filter.Prefix, Value: "2024-05"}, req.Filters[0])

	_, err = Parse(s, url.Values{"month": {"May"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseSortAllowList(t *testing.T) {
	s := mustSchema(t, "vit-inspections")
	req, err := Parse(s, url.Values{"sort": {"serialNumber"}, "order": {"asc"}})
	require.NoError(t, err)
	assert.Equal(t, filter.Sort{Field: "serialNumber"}, req.Sort)

	_, err = Parse(s, url.Values{"sort": {"body; drop table documents"}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = Parse(s, url.Values{"order": {"sideways"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseUnknownKeyRejected(t *testing.T) {
	s := mustSchema(t, "substation-inspections")
	_, err := Parse(s, url.Values{"password": {"x"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseEqualityFilters(t *testing.T) {
	s := mustSchema(t, "op5-faults")
	req, err := Parse(s, url.Values{"status": {"pending"}, "faultType": {"Unplanned"}, "feederName": {""}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []filter.Condition{
		filter.Equal("faultType", "Unplanned"),
		filter.Equal("status", "pending"),
	}, req.Filters)
}

func TestParseScopeKeysSeparated(t *testing.T) {
	s := mustSchema(t, "op5-faults")
	req, err := Parse(s, url.Values{"regionId": {"r1"}, "district": {"ACCRA EAST"}})
	require.NoError(t, err)
	assert.Empty(t, req.Filters)
	assert.Equal(t, "r1", req.RegionID)
	assert.Equal(t, "ACCRA EAST", req.District)

	// unscoped collections treat the same keys as plain fields
	d := mustSchema(t, "districts")
	req, err = Parse(d, url.Values{"regionId": {"r1"}})
	require.NoError(t, err)
	assert.Equal(t, []filter.Condition{filter.Equal("regionId", "r1")}, req.Filters)
}

func TestParseWindow(t *testing.T) {
	s := mustSchema(t, "vit-inspections")

	req, err := Parse(s, url.Values{"limit": {"100000"}})
	require.NoError(t, err)
	assert.Equal(t, 500, req.Limit)

	req, err = Parse(s, url.Values{"limit": {"20"}, "page": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, 40, req.Offset)

	req, err = Parse(s, url.Values{"limit": {"20"}, "page": {"3"}, "offset": {"5"}})
	require.NoError(t, err)
	assert.Equal(t, 5, req.Offset)

	req, err = Parse(s, url.Values{"offset": {"-4"}, "limit": {"0"}})
	require.NoError(t, err)
	assert.Equal(t, 0, req.Offset)
	assert.Equal(t, 50, req.Limit)

	_, err = Parse(s, url.Values{"limit": {"ten"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestParseCountOnlyAndSearch(t *testing.T) {
	s := mustSchema(t, "control-outages")
	req, err := Parse(s, url.Values{"countOnly": {"true"}, "search": {"kaneshie"}})
	require.NoError(t, err)
	assert.True(t, req.CountOnly)
	require.Len(t, req.Filters, 1)
	assert.Equal(t, filter.Contains, req.Filters[0].Op)
	assert.True(t, filter.Match(model.Record{"feederName": "KANESHIE F3"}, req.Filters))

	_, err = Parse(s, url.Values{"countOnly": {"maybe"}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestBuildPutsScopeFirst(t *testing.T) {
	s := mustSchema(t, "op5-faults")
	req, err := Parse(s, url.Values{"status": {"open"}})
	require.NoError(t, err)
	q := req.Build([]filter.Condition{filter.Equal("district", "ACCRA EAST")})
	require.Len(t, q.Where, 2)
	assert.Equal(t, "district", q.Where[0].Field)
	assert.Equal(t, "status", q.Where[1].Field)
	assert.Equal(t, req.Limit, q.Limit)
}

func TestSchemasConsistent(t *testing.T) {
	for _, s := range All() {
		assert.True(t, s.Allowed(s.DefaultSort), "%s default sort", s.Path)
		if s.DateField != "" {
			assert.True(t, s.Allowed(s.DateField), "%s date field", s.Path)
		}
		assert.Positive(t, s.MaxLimit, s.Path)
		got, ok := ByCollection(s.Collection)
		assert.True(t, ok)
		assert.Equal(t, s.Path, got.Path)
	}
}
