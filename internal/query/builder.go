// Package query turns list request parameters into a filter.Query for one
// collection. Only allow-listed fields ever reach storage.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridwatch/internal/filter"
)

// ErrValidation marks a malformed or disallowed parameter.
var ErrValidation = errors.New("invalid query")

const dayEnd = "T23:59:59.999Z"

// Scope parameters are resolved by the access layer, not turned into
// plain equality filters.
var scopeKeys = map[string]bool{"region": true, "regionId": true, "district": true, "districtId": true}

var reserved = map[string]bool{
	"startDate": true, "endDate": true, "date": true, "month": true,
	"sort": true, "order": true, "limit": true, "offset": true, "page": true, "pageSize": true,
	"countOnly": true, "search": true,
}

// Request is a parsed list request, not yet combined with a scope.
type Request struct {
	Filters   []filter.Condition
	Sort      filter.Sort
	Offset    int
	Limit     int
	CountOnly bool

	// Explicit scope parameters as given; names win over ids when both
	// are present.
	Region     string
	RegionID   string
	District   string
	DistrictID string
}

// Build ANDs the scope conditions in front of the request filters.
func (r Request) Build(scope []filter.Condition) filter.Query {
	where := make([]filter.Condition, 0, len(scope)+len(r.Filters))
	where = append(where, scope...)
	where = append(where, r.Filters...)
	return filter.Query{Where: where, Sort: r.Sort, Offset: r.Offset, Limit: r.Limit}
}

// Parse validates params against s.
func Parse(s Schema, params url.Values) (Request, error) {
	req := Request{Limit: s.DefaultLimit}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	get := func(k string) string { return strings.TrimSpace(params.Get(k)) }

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := get(k)
		switch {
		case reserved[k]:
			continue
		case s.Scoped && scopeKeys[k]:
			switch k {
			case "region":
				req.Region = v
			case "regionId":
				req.RegionID = v
			case "district":
				req.District = v
			case "districtId":
				req.DistrictID = v
			}
		case s.Allowed(k):
			if v != "" {
				req.Filters = append(req.Filters, filter.Equal(k, v))
			}
		default:
			return Request{}, fmt.Errorf("unknown parameter %q: %w", k, ErrValidation)
		}
	}

	if err := dateFilters(s, &req, get("startDate"), get("endDate"), get("date"), get("month")); err != nil {
		return Request{}, err
	}

	if q := get("search"); q != "" {
		if len(s.SearchFields) == 0 {
			return Request{}, fmt.Errorf("search not supported on %s: %w", s.Path, ErrValidation)
		}
		req.Filters = append(req.Filters, filter.Condition{Op: filter.Contains, Fields: s.SearchFields, Value: q})
	}

	req.Sort = filter.Sort{Field: s.DefaultSort, Desc: true}
	if f := get("sort"); f != "" {
		if !s.Allowed(f) {
			return Request{}, fmt.Errorf("cannot sort by %q: %w", f, ErrValidation)
		}
		req.Sort.Field = f
	}
	switch strings.ToLower(get("order")) {
	case "", "desc":
	case "asc":
		req.Sort.Desc = false
	default:
		return Request{}, fmt.Errorf("order must be asc or desc: %w", ErrValidation)
	}

	if err := window(s, &req, get); err != nil {
		return Request{}, err
	}

	switch strings.ToLower(get("countOnly")) {
	case "", "false", "0":
	case "true", "1":
		req.CountOnly = true
	default:
		return Request{}, fmt.Errorf("countOnly must be a boolean: %w", ErrValidation)
	}
	return req, nil
}

func dateFilters(s Schema, req *Request, start, end, day, month string) error {
	if (start != "" || end != "" || day != "") && s.DateField == "" {
		return fmt.Errorf("date filters not supported on %s: %w", s.Path, ErrValidation)
	}
	if start != "" {
		if !isDate(start) {
			return fmt.Errorf("startDate %q: %w", start, ErrValidation)
		}
		req.Filters = append(req.Filters, filter.Condition{Field: s.DateField, Op: filter.Gte, Value: start})
	}
	if end != "" {
		if !isDate(end) {
			return fmt.Errorf("endDate %q: %w", end, ErrValidation)
		}
		// a bare day includes everything stamped on it
		if len(end) == len(time.DateOnly) {
			end += dayEnd
		}
		req.Filters = append(req.Filters, filter.Condition{Field: s.DateField, Op: filter.Lte, Value: end})
	}
	if day != "" {
		if _, err := time.Parse(time.DateOnly, day); err != nil {
			return fmt.Errorf("date %q must be YYYY-MM-DD: %w", day, ErrValidation)
		}
		req.Filters = append(req.Filters,
			filter.Condition{Field: s.DateField, Op: filter.Gte, Value: day},
			filter.Condition{Field: s.DateField, Op: filter.Lte, Value: day + dayEnd},
		)
	}
	if month != "" {
		if s.MonthField == "" {
			return fmt.Errorf("month filter not supported on %s: %w", s.Path, ErrValidation)
		}
		if _, err := time.Parse("2006-01", month); err != nil {
			return fmt.Errorf("month %q must be YYYY-MM: %w", month, ErrValidation)
		}
		req.Filters = append(req.Filters, s.MonthCondition(month))
	}
	return nil
}

// isDate accepts a day or a full ISO-8601 timestamp.
func isDate(v string) bool {
	if len(v) < len(time.DateOnly) {
		return false
	}
	_, err := time.Parse(time.DateOnly, v[:len(time.DateOnly)])
	return err == nil
}

func window(s Schema, req *Request, get func(string) string) error {
	limitKey := "limit"
	if get(limitKey) == "" && get("pageSize") != "" {
		limitKey = "pageSize"
	}
	if v := get(limitKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s %q: %w", limitKey, v, ErrValidation)
		}
		if n > 0 {
			req.Limit = n
		}
	}
	if s.MaxLimit > 0 && req.Limit > s.MaxLimit {
		req.Limit = s.MaxLimit
	}

	if v := get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("offset %q: %w", v, ErrValidation)
		}
		req.Offset = max(n, 0)
		return nil
	}
	if v := get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("page %q: %w", v, ErrValidation)
		}
		if n > 1 {
			req.Offset = (n - 1) * req.Limit
		}
	}
	return nil
}
