package api

import (
	"fmt"
	"net/http"
	"strings"

	"gridwatch/internal/access"
	"gridwatch/internal/model"
	"gridwatch/internal/performance"
	"gridwatch/internal/query"
)

var performanceParams = map[string]bool{"regionId": true, "districtId": true, "month": true, "targetType": true}

// performanceRequest parses the query string and resolves the caller's
// scope for the requested region/district.
func (s *Server) performanceRequest(r *http.Request, p access.Principal) (performance.Request, access.Scope, error) {
	params := r.URL.Query()
	for k := range params {
		if !performanceParams[k] {
			return performance.Request{}, access.Scope{}, fmt.Errorf("unknown parameter %q: %w", k, query.ErrValidation)
		}
	}
	get := func(k string) string { return strings.TrimSpace(params.Get(k)) }
	req := performance.Request{
		RegionID:   get("regionId"),
		DistrictID: get("districtId"),
		Month:      get("month"),
		TargetType: get("targetType"),
	}
	if req.RegionID == "" {
		return req, access.Scope{}, fmt.Errorf("regionId is required: %w", query.ErrValidation)
	}
	scope, err := s.explicitScope(r.Context(), p, "", req.RegionID, "", req.DistrictID)
	if err != nil {
		return req, access.Scope{}, err
	}
	req.Scope = scope.Conditions
	return req, scope, nil
}

// PerformanceHandler handles GET /v1/performance
func (s *Server) PerformanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	req, scope, err := s.performanceRequest(r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.Aggregator.Compute(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// drop districts the caller cannot see
	visible := make([]model.PerformanceResult, 0, len(rows))
	for _, row := range rows {
		if scope.Allows(model.Record{"region": row.Region, "district": row.District}) {
			visible = append(visible, row)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

// FeedersHandler handles GET /v1/performance/feeders
func (s *Server) FeedersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	req, _, err := s.performanceRequest(r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.Aggregator.FeederBreakdown(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
