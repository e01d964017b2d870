package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gridwatch/internal/access"
	"gridwatch/internal/filter"
	"gridwatch/internal/model"
	"gridwatch/internal/query"
)

// CollectionHandler serves /v1/{collection}, /v1/{collection}/{id} and
// /v1/{collection}/events for every registered schema.
func (s *Server) CollectionHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/"), "/")
	parts := strings.Split(rest, "/")
	schema, ok := query.Lookup(parts[0])
	if !ok || schema.Collection == query.Targets || len(parts) > 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.listRecords(w, r, schema)
		case http.MethodPost:
			s.createRecord(w, r, schema)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if parts[1] == "events" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.streamEvents(w, r, schema)
		return
	}
	id := parts[1]
	switch r.Method {
	case http.MethodGet:
		s.getRecord(w, r, schema, id)
	case http.MethodPut:
		s.updateRecord(w, r, schema, id, false)
	case http.MethodPatch:
		s.updateRecord(w, r, schema, id, true)
	case http.MethodDelete:
		s.deleteRecord(w, r, schema, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request, schema query.Schema) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, err := query.Parse(schema, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	scope, err := s.scopeFor(ctx, p, schema, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeList(w, r, schema.Collection, req.CountOnly, req.Build(scope.Conditions))
}

// writeList answers a list request: a bare {"total": n} for countOnly,
// otherwise the page with the total matched before windowing.
func (s *Server) writeList(w http.ResponseWriter, r *http.Request, collection string, countOnly bool, q filter.Query) {
	ctx := r.Context()
	if countOnly {
		n, err := s.Store.Count(ctx, collection, q.Where)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"total": n})
		return
	}

	var (
		recs  []model.Record
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recs, err = s.Store.Query(gctx, collection, q)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.Store.Count(gctx, collection, q.Where)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewPage(recs, total, q.Offset, q.Limit))
}

// load fetches a record and checks it against the caller's scope.
func (s *Server) load(ctx context.Context, p access.Principal, schema query.Schema, id string) (model.Record, access.Scope, error) {
	rec, err := s.Store.Get(ctx, schema.Collection, id)
	if err != nil {
		return nil, access.Scope{}, fmt.Errorf("%s %q: %w", schema.Path, id, err)
	}
	scope, err := s.writeScope(ctx, p, schema)
	if err != nil {
		return nil, access.Scope{}, err
	}
	if err := scope.CheckWrite(rec); err != nil {
		return nil, access.Scope{}, err
	}
	return rec, scope, nil
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request, schema query.Schema, id string) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	rec, _, err := s.load(r.Context(), p, schema, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) canWrite(p access.Principal, schema query.Schema) error {
	if schema.AdminWrite && !p.IsAdmin() {
		return fmt.Errorf("%s are managed by administrators: %w", schema.Path, errForbidden)
	}
	return nil
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request, schema query.Schema) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.canWrite(p, schema); err != nil {
		writeError(w, r, err)
		return
	}
	var rec model.Record
	if err := decodeJSON(r, &rec); err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, fmt.Errorf("empty body: %w", query.ErrValidation))
		return
	}
	delete(rec, "id")

	if schema.Scoped && schema.Collection != query.Users {
		// records default to the caller's own geography
		if rec.Region() == "" && p.Region != "" {
			rec["region"] = p.Region
		}
		if rec.District() == "" && p.District != "" {
			rec["district"] = p.District
		}
	}
	scope, err := s.writeScope(ctx, p, schema)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := scope.CheckWrite(rec); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validateRecord(ctx, schema.Collection, rec); err != nil {
		writeError(w, r, err)
		return
	}

	now := s.timestamp()
	rec["createdAt"] = now
	rec["updatedAt"] = now
	if p.UserID != "" {
		rec["createdBy"] = p.UserID
	}
	saved, err := s.Store.Put(ctx, schema.Collection, rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(ctx, schema.Collection, SSEEvent{Type: EventCreated, Data: saved})
	writeJSON(w, http.StatusCreated, saved)
}

// updateRecord replaces (PUT) or merges into (PATCH) a stored record. The
// stored and resulting records must both lie in the caller's scope.
func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request, schema query.Schema, id string, merge bool) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.canWrite(p, schema); err != nil {
		writeError(w, r, err)
		return
	}
	existing, scope, err := s.load(ctx, p, schema, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch model.Record
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	next := model.Record{}
	if merge {
		next = existing.Clone()
	}
	for k, v := range patch {
		next[k] = v
	}
	next["id"] = id
	for _, k := range []string{"createdAt", "createdBy"} {
		if v, ok := existing[k]; ok {
			next[k] = v
		}
	}
	next["updatedAt"] = s.timestamp()
	if p.UserID != "" {
		next["updatedBy"] = p.UserID
	}

	if err := scope.CheckWrite(next); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validateRecord(ctx, schema.Collection, next); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.Store.Put(ctx, schema.Collection, next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(ctx, schema.Collection, SSEEvent{Type: EventUpdated, Data: saved})
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request, schema query.Schema, id string) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.canWrite(p, schema); err != nil {
		writeError(w, r, err)
		return
	}
	existing, _, err := s.load(ctx, p, schema, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Store.Delete(ctx, schema.Collection, id); err != nil {
		writeError(w, r, err)
		return
	}
	s.publish(ctx, schema.Collection, SSEEvent{Type: EventDeleted, Data: existing})
	w.WriteHeader(http.StatusNoContent)
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	type pinger interface{ Ping(ctx context.Context) error }
	if pb, ok := s.Broker.(pinger); ok {
		if err := pb.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
