package api

import (
	"net/http"

	"gridwatch/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the running config.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	if !p.IsAdmin() {
		writeError(w, r, errForbidden)
		return
	}
	cfg := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  s.timestamp(),
		"config": map[string]any{
			"addr":               cfg.Addr,
			"authMode":           cfg.AuthMode,
			"allowOrigins":       cfg.AllowOrigins,
			"rateRps":            cfg.RateRPS,
			"rateBurst":          cfg.RateBurst,
			"cacheTtl":           cfg.CacheTTL.String(),
			"allowUnknownRoles":  cfg.AllowUnknownRoles,
			"trustExplicitScope": cfg.TrustExplicitScope,
			"hasDatabaseUrl":     cfg.DatabaseURL != "",
			"hasRedisUrl":        cfg.RedisURL != "",
		},
	})
}
