package query

import (
	"slices"

	"gridwatch/internal/filter"
)

// Schema describes one collection: which fields callers may filter and sort
// on, where its dates live, and how large a page may get.
type Schema struct {
	// Collection is the storage name, Path the URL segment.
	Collection string
	Path       string

	Fields       []string
	SearchFields []string

	// DateField backs startDate/endDate/date, MonthField backs month.
	DateField  string
	MonthField string

	// MonthFallback lists fields consulted, in order, for records that
	// lack MonthField.
	MonthFallback []string

	DefaultSort  string
	DefaultLimit int
	MaxLimit     int

	// Scoped collections carry region/district names and are filtered by
	// the caller's access scope.
	Scoped bool
	// AdminWrite restricts create/update/delete to administrators.
	AdminWrite bool
}

// MonthCondition matches records stamped in month (YYYY-MM).
func (s Schema) MonthCondition(month string) filter.Condition {
	if len(s.MonthFallback) == 0 {
		return filter.Condition{Field: s.MonthField, Op: filter.Prefix, Value: month}
	}
	return filter.PrefixOfFirst(month, append([]string{s.MonthField}, s.MonthFallback...)...)
}

// Allowed reports whether field may appear in a filter or sort.
func (s Schema) Allowed(field string) bool { return slices.Contains(s.Fields, field) }

// Collection names.
const (
	OverheadLineInspections = "overhead_line_inspections"
	SubstationInspections   = "substation_inspections"
	VITInspections          = "vit_inspections"
	LoadMonitoring          = "load_monitoring"
	OP5Faults               = "op5_faults"
	ControlOutages          = "control_outages"
	Users                   = "users"
	Roles                   = "roles"
	Regions                 = "regions"
	Districts               = "districts"
	Targets                 = "targets"
)

var inspectionTimeFallback = []string{"inspectionDate", "createdAt"}

var scopedBase = []string{"id", "region", "district", "regionId", "districtId", "createdAt", "updatedAt", "createdBy"}

func withBase(extra ...string) []string {
	out := slices.Clone(scopedBase)
	return append(out, extra...)
}

var schemas = []Schema{
	{
		Collection:    OverheadLineInspections,
		Path:          "overhead-line-inspections",
		Fields:        withBase("feederName", "voltageLevel", "status", "inspector", "date", "time", "inspectionDate", "poleId", "referencePole"),
		SearchFields:  []string{"feederName", "poleId", "inspector", "referencePole"},
		DateField:     "date",
		MonthField:    "date",
		MonthFallback: inspectionTimeFallback,
		DefaultSort:   "date",
		DefaultLimit:  50,
		MaxLimit:      1000,
		Scoped:        true,
	},
	{
		Collection:    SubstationInspections,
		Path:          "substation-inspections",
		Fields:        withBase("substationNo", "substationName", "type", "status", "date", "inspectionDate", "inspector"),
		SearchFields:  []string{"substationNo", "substationName", "inspector"},
		DateField:     "date",
		MonthField:    "date",
		MonthFallback: inspectionTimeFallback,
		DefaultSort:   "date",
		DefaultLimit:  50,
		MaxLimit:      1000,
		Scoped:        true,
	},
	{
		Collection:   VITInspections,
		Path:         "vit-inspections",
		Fields:       withBase("assetId", "serialNumber", "typeOfUnit", "voltageLevel", "feederName", "status", "inspectionDate"),
		SearchFields: []string{"serialNumber", "assetId", "feederName"},
		DateField:    "inspectionDate",
		MonthField:   "inspectionDate",
		DefaultSort:  "inspectionDate",
		DefaultLimit: 50,
		MaxLimit:     500,
		Scoped:       true,
	},
	{
		Collection:    LoadMonitoring,
		Path:          "load-monitoring",
		Fields:        withBase("substationName", "substationNumber", "feederName", "date", "time", "ratedLoad", "percentageLoad"),
		SearchFields:  []string{"substationName", "substationNumber", "feederName"},
		DateField:     "date",
		MonthField:    "date",
		MonthFallback: inspectionTimeFallback,
		DefaultSort:   "date",
		DefaultLimit:  100,
		MaxLimit:      10000,
		Scoped:        true,
	},
	{
		Collection:   OP5Faults,
		Path:         "op5-faults",
		Fields:       withBase("faultType", "specificFaultType", "status", "occurrenceDate", "restorationDate", "substationName", "feederName"),
		SearchFields: []string{"faultType", "substationName", "feederName"},
		DateField:    "occurrenceDate",
		MonthField:   "occurrenceDate",
		DefaultSort:  "occurrenceDate",
		DefaultLimit: 50,
		MaxLimit:     1000,
		Scoped:       true,
	},
	{
		Collection:   ControlOutages,
		Path:         "control-outages",
		Fields:       withBase("outageType", "faultType", "status", "occurrenceDate", "restorationDate", "substationName", "feederName", "customersAffected"),
		SearchFields: []string{"outageType", "substationName", "feederName"},
		DateField:    "occurrenceDate",
		MonthField:   "occurrenceDate",
		DefaultSort:  "occurrenceDate",
		DefaultLimit: 50,
		MaxLimit:     1000,
		Scoped:       true,
	},
	{
		Collection:   Users,
		Path:         "users",
		Fields:       []string{"id", "name", "email", "role", "region", "district", "disabled", "createdAt"},
		SearchFields: []string{"name", "email"},
		DateField:    "createdAt",
		MonthField:   "createdAt",
		DefaultSort:  "name",
		DefaultLimit: 50,
		MaxLimit:     500,
		Scoped:       true,
		AdminWrite:   true,
	},
	{
		Collection:   Roles,
		Path:         "roles",
		Fields:       []string{"id", "name", "accessLevel"},
		SearchFields: []string{"name", "description"},
		DefaultSort:  "name",
		DefaultLimit: 100,
		MaxLimit:     100,
		AdminWrite:   true,
	},
	{
		Collection:   Regions,
		Path:         "regions",
		Fields:       []string{"id", "name"},
		SearchFields: []string{"name"},
		DefaultSort:  "name",
		DefaultLimit: 100,
		MaxLimit:     1000,
		AdminWrite:   true,
	},
	{
		Collection:   Districts,
		Path:         "districts",
		Fields:       []string{"id", "name", "regionId"},
		SearchFields: []string{"name"},
		DefaultSort:  "name",
		DefaultLimit: 100,
		MaxLimit:     1000,
		AdminWrite:   true,
	},
	{
		Collection:   Targets,
		Path:         "targets",
		Fields:       []string{"id", "regionId", "districtId", "month", "targetType", "targetValue", "updatedAt"},
		MonthField:   "month",
		DefaultSort:  "month",
		DefaultLimit: 100,
		MaxLimit:     1000,
	},
}

// Lookup finds a schema by URL path segment.
func Lookup(path string) (Schema, bool) {
	for _, s := range schemas {
		if s.Path == path {
			return s, true
		}
	}
	return Schema{}, false
}

// ByCollection finds a schema by storage name.
func ByCollection(name string) (Schema, bool) {
	for _, s := range schemas {
		if s.Collection == name {
			return s, true
		}
	}
	return Schema{}, false
}

// All returns every registered schema.
func All() []Schema { return slices.Clone(schemas) }
