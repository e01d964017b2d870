// Package api implements HTTP handlers and helpers for the gridwatch service.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"gridwatch/internal/access"
)

// getPrincipal extracts role and geography from a bearer token or, in dev
// mode only, from X-Role/X-Region/X-District headers.
func (s *Server) getPrincipal(r *http.Request) (access.Principal, error) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(r.Context(), tok)
		if err != nil {
			return access.Principal{}, err
		}
		return access.Principal{UserID: pr.UserID, Role: pr.Role, Region: pr.Region, District: pr.District}, nil
	}
	if s.Auth.Mode() != "dev" {
		return access.Principal{}, fmt.Errorf("bearer token: %w", errUnauthenticated)
	}
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
	if role == "" {
		return access.Principal{}, fmt.Errorf("X-Role header: %w", errUnauthenticated)
	}
	return access.Principal{
		UserID:   r.Header.Get("X-User-Id"),
		Role:     role,
		Region:   strings.TrimSpace(r.Header.Get("X-Region")),
		District: strings.TrimSpace(r.Header.Get("X-District")),
	}, nil
}

// principal writes a 401 and reports false when the caller is anonymous.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (access.Principal, bool) {
	p, err := s.getPrincipal(r)
	if err != nil {
		writeError(w, r, err)
		return access.Principal{}, false
	}
	return p, true
}
