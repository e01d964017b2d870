package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gridwatch/internal/model"
	"gridwatch/internal/query"
	"gridwatch/internal/store"
)

var targetNamespace = uuid.MustParse("0d4e8f6c-2b7a-4d6b-8a51-3c9e0f1b7d22")

// TargetID is the deterministic id of the target slot (region, district or
// region-wide, month, type). Saving a target for an occupied slot replaces it.
func TargetID(t model.Target) string {
	key := strings.Join([]string{t.RegionID, t.DistrictID, t.Month, t.TargetType}, "|")
	return uuid.NewSHA1(targetNamespace, []byte(key)).String()
}

// TargetsHandler handles GET/POST /v1/targets
func (s *Server) TargetsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTargets(w, r)
	case http.MethodPost, http.MethodPut:
		s.saveTarget(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.principal(w, r); !ok {
		return
	}
	schema, _ := query.ByCollection(query.Targets)
	req, err := query.Parse(schema, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeList(w, r, query.Targets, req.CountOnly, req.Build(nil))
}

func (s *Server) saveTarget(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	if !p.CanManageTargets() {
		writeError(w, r, fmt.Errorf("targets are managed by system administrators and global engineers: %w", errForbidden))
		return
	}
	ctx := r.Context()
	var t model.Target
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.validateStruct(t); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.Directory.Region(ctx, t.RegionID); err != nil {
		writeError(w, r, notFoundAsInvalid(err))
		return
	}
	if t.DistrictID != "" {
		d, err := s.Directory.District(ctx, t.DistrictID)
		if err != nil {
			writeError(w, r, notFoundAsInvalid(err))
			return
		}
		if d.RegionID != t.RegionID {
			writeError(w, r, fmt.Errorf("district %q is not in region %q: %w", t.DistrictID, t.RegionID, query.ErrValidation))
			return
		}
	}

	t.ID = TargetID(t)
	t.UpdatedAt = s.timestamp()
	t.UpdatedBy = p.UserID
	status := http.StatusOK
	if _, err := s.Store.Get(ctx, query.Targets, t.ID); errors.Is(err, store.ErrNotFound) {
		status = http.StatusCreated
	} else if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := model.Encode(t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.Store.Put(ctx, query.Targets, rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, saved)
}

// TargetByIDHandler handles GET/DELETE /v1/targets/{id}
func (s *Server) TargetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/targets/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		rec, err := s.Store.Get(r.Context(), query.Targets, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if !p.CanManageTargets() {
			writeError(w, r, fmt.Errorf("targets are managed by system administrators and global engineers: %w", errForbidden))
			return
		}
		if err := s.Store.Delete(r.Context(), query.Targets, id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func notFoundAsInvalid(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, query.ErrValidation)
	}
	return err
}
