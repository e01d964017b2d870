package api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"golang.org/x/sync/errgroup"

	"gridwatch/internal/filter"
	"gridwatch/internal/model"
	"gridwatch/internal/query"
)

// faultSources are merged by /v1/faults, tagged with their source.
var faultSources = []struct {
	collection string
	source     string
}{
	{query.OP5Faults, "op5"},
	{query.ControlOutages, "controlOutage"},
}

// maxFaultsOffset bounds how deep the merged view pages. Every source loads
// offset+limit rows to fill the window.
const maxFaultsOffset = 10000

type faultsPage struct {
	Data   []model.Record `json:"data"`
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// FaultsHandler handles GET /v1/faults: OP5 faults and control outages in
// one list, newest occurrence first.
func (s *Server) FaultsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	params := r.URL.Query()

	type part struct {
		req   query.Request
		q     filter.Query
		recs  []model.Record
		total int
		skip  bool
	}
	parts := make([]part, len(faultSources))
	for i, src := range faultSources {
		schema, _ := query.ByCollection(src.collection)
		own, ok := sourceParams(schema, params)
		if !ok {
			parts[i] = part{skip: true}
			continue
		}
		req, err := query.Parse(schema, own)
		if err != nil {
			writeError(w, r, err)
			return
		}
		scope, err := s.scopeFor(ctx, p, schema, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if req.Offset > maxFaultsOffset {
			writeError(w, r, fmt.Errorf("offset %d exceeds %d on the combined view: %w", req.Offset, maxFaultsOffset, query.ErrValidation))
			return
		}
		q := req.Build(scope.Conditions)
		// each source must supply enough rows to fill the merged window
		q.Limit = req.Offset + req.Limit
		q.Offset = 0
		parts[i] = part{req: req, q: q}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range parts {
		pt := &parts[i]
		if pt.skip {
			continue
		}
		coll := faultSources[i].collection
		g.Go(func() error {
			var err error
			pt.recs, err = s.Store.Query(gctx, coll, pt.q)
			return err
		})
		g.Go(func() error {
			var err error
			pt.total, err = s.Store.Count(gctx, coll, pt.q.Where)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	var lead part
	for _, pt := range parts {
		if !pt.skip {
			lead = pt
			break
		}
	}
	out := faultsPage{Counts: map[string]int{}, Offset: lead.req.Offset, Limit: lead.req.Limit}
	var merged []model.Record
	for i, pt := range parts {
		for _, rec := range pt.recs {
			rec["source"] = faultSources[i].source
			merged = append(merged, rec)
		}
		out.Counts[faultSources[i].source] = pt.total
		out.Total += pt.total
	}
	order := lead.q.Sort
	sort.SliceStable(merged, func(i, j int) bool { return filter.Less(merged[i], merged[j], order) })

	end := min(out.Offset+out.Limit, len(merged))
	if out.Offset < end {
		out.Data = merged[out.Offset:end]
	} else {
		out.Data = []model.Record{}
	}
	writeJSON(w, http.StatusOK, out)
}

// sourceParams reports whether a source takes part in the merged view. A
// filter on a field only the other source has, such as outageType, leaves
// this source out.
func sourceParams(schema query.Schema, params url.Values) (url.Values, bool) {
	for k := range params {
		if isFaultSourceField(k) && !schema.Allowed(k) {
			return nil, false
		}
	}
	return params, true
}

func isFaultSourceField(k string) bool {
	for _, src := range faultSources {
		if s, ok := query.ByCollection(src.collection); ok && s.Allowed(k) {
			return true
		}
	}
	return false
}
