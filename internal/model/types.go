package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is a schemaless document as stored in a collection. Inspection,
// outage and load-monitoring entries all share this shape; typed views
// (Target, Role, User, ...) are decoded from it on demand.
type Record map[string]any

// ID returns the record id or "".
func (r Record) ID() string { return r.String("id") }

// Region returns the region name the record belongs to.
func (r Record) Region() string { return r.String("region") }

// District returns the district name the record belongs to.
func (r Record) District() string { return r.String("district") }

// Field returns the value of a top-level field rendered as text, the same
// way Postgres renders body->>'field'. Missing and null fields report ok=false.
func (r Record) Field(name string) (string, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return "", false
	}
	return Text(v), true
}

// String is Field without the presence flag.
func (r Record) String(name string) string {
	s, _ := r.Field(name)
	return s
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text renders a JSON-ish value as text.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Decode converts a record into a typed struct using its json tags.
func Decode(r Record, out any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Encode converts a typed struct into a record.
func Encode(v any) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return r, nil
}

// Region is reference data managed by system admins.
type Region struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required,max=120"`
}

// District belongs to a Region.
type District struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required,max=120"`
	RegionID string `json:"regionId" validate:"required"`
}

// Access levels for Role documents.
const (
	AccessGlobal   = "global"
	AccessRegional = "regional"
	AccessDistrict = "district"
)

// Role describes a named role and the geography it may see.
type Role struct {
	ID               string   `json:"id"`
	Name             string   `json:"name" validate:"required,max=64"`
	Description      string   `json:"description,omitempty"`
	AccessLevel      string   `json:"accessLevel" validate:"required,oneof=global regional district"`
	AllowedRegions   []string `json:"allowedRegions,omitempty"`
	AllowedDistricts []string `json:"allowedDistricts,omitempty"`
}

// User is an application account. Region and District hold names.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty" validate:"max=200"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required"`
	Region   string `json:"region,omitempty"`
	District string `json:"district,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Target types.
const (
	TargetLoadMonitoring       = "loadMonitoring"
	TargetSubstationInspection = "substationInspection"
	TargetOverheadLine         = "overheadLine"
)

// TargetTypes lists every target type in reporting order.
var TargetTypes = []string{TargetLoadMonitoring, TargetSubstationInspection, TargetOverheadLine}

// Target is a monthly numeric goal. An empty DistrictID means region-wide.
type Target struct {
	ID          string  `json:"id"`
	RegionID    string  `json:"regionId" validate:"required"`
	DistrictID  string  `json:"districtId,omitempty"`
	Month       string  `json:"month" validate:"required,datetime=2006-01"`
	TargetType  string  `json:"targetType" validate:"required,oneof=loadMonitoring substationInspection overheadLine"`
	TargetValue float64 `json:"targetValue" validate:"gte=0"`
	UpdatedAt   string  `json:"updatedAt,omitempty"`
	UpdatedBy   string  `json:"updatedBy,omitempty"`
}

// PerformanceResult is computed on demand and never stored.
type PerformanceResult struct {
	DistrictID string  `json:"districtId"`
	District   string  `json:"district"`
	RegionID   string  `json:"regionId"`
	Region     string  `json:"region"`
	Month      string  `json:"month"`
	TargetType string  `json:"targetType"`
	Target     float64 `json:"target"`
	Actual     float64 `json:"actual"`
	Variance   float64 `json:"variance"`
	Percentage float64 `json:"percentage"`
	TargetID   string  `json:"targetId,omitempty"`
}

// FeederLength is the per-feeder breakdown of an overhead line total.
type FeederLength struct {
	FeederName string  `json:"feederName"`
	Points     int     `json:"points"`
	LengthKm   float64 `json:"lengthKm"`
}

// Page is the list envelope returned by collection endpoints.
type Page struct {
	Data            []Record `json:"data"`
	Total           int      `json:"total"`
	Page            int      `json:"page"`
	PageSize        int      `json:"pageSize"`
	TotalPages      int      `json:"totalPages"`
	HasNextPage     bool     `json:"hasNextPage"`
	HasPreviousPage bool     `json:"hasPreviousPage"`
}

// NewPage fills the derived paging fields.
func NewPage(data []Record, total, offset, limit int) Page {
	if data == nil {
		data = []Record{}
	}
	if limit <= 0 {
		limit = 1
	}
	page := offset/limit + 1
	pages := (total + limit - 1) / limit
	return Page{
		Data:            data,
		Total:           total,
		Page:            page,
		PageSize:        limit,
		TotalPages:      pages,
		HasNextPage:     offset+len(data) < total,
		HasPreviousPage: offset > 0,
	}
}
