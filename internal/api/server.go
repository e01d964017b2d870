package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"gridwatch/internal/access"
	"gridwatch/internal/auth"
	"gridwatch/internal/config"
	"gridwatch/internal/directory"
	"gridwatch/internal/logger"
	"gridwatch/internal/metrics"
	"gridwatch/internal/performance"
	"gridwatch/internal/store"
	"gridwatch/internal/webhooks"
)

type Server struct {
	Store      store.Store
	Directory  *directory.Directory
	Resolver   *access.Resolver
	Aggregator *performance.Aggregator
	Auth       *auth.Verifier
	Broker     EventBroker
	Hooks      *webhooks.Publisher
	Validate   *validator.Validate
	Config     config.Config

	limiter   *rate.Limiter
	heartbeat time.Duration
	now       func() time.Time
}

// NewServer wires the domain services around st. A nil broker selects the
// in-process one.
func NewServer(cfg config.Config, st store.Store, broker EventBroker) *Server {
	dir := directory.New(st)
	if broker == nil {
		broker = NewBroker()
	}
	s := &Server{
		Store:     st,
		Directory: dir,
		Resolver: &access.Resolver{
			Roles:              dir,
			Districts:          dir,
			AllowUnknownRoles:  cfg.AllowUnknownRoles,
			TrustExplicitScope: cfg.TrustExplicitScope,
		},
		Aggregator: performance.New(st, dir),
		Auth: auth.NewVerifier(auth.Options{
			Mode:          cfg.AuthMode,
			HMACSecret:    cfg.AuthHMACSecret,
			JWKSURL:       cfg.AuthJWKSURL,
			RoleClaim:     cfg.RoleClaim,
			RegionClaim:   cfg.RegionClaim,
			DistrictClaim: cfg.DistrictClaim,
		}),
		Broker:    broker,
		Validate:  validator.New(),
		Config:    cfg,
		heartbeat: 15 * time.Second,
		now:       time.Now,
	}
	if len(cfg.WebhookURLs) > 0 {
		s.Hooks = webhooks.NewPublisher(st, WebhookEndpoints(cfg))
	}
	if cfg.RateRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst)
	}
	return s
}

// Routes builds the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Docs
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)
	mux.HandleFunc("/docs/console", s.SwaggerHandler)
	mux.HandleFunc("/v1/debug", s.DebugJSON)

	// Reporting
	mux.HandleFunc("/v1/faults", s.FaultsHandler)
	mux.HandleFunc("/v1/targets", s.TargetsHandler)
	mux.HandleFunc("/v1/targets/", s.TargetByIDHandler)
	mux.HandleFunc("/v1/performance", s.PerformanceHandler)
	mux.HandleFunc("/v1/performance/feeders", s.FeedersHandler)

	// Collections: /v1/{collection}, /v1/{collection}/{id}, /v1/{collection}/events
	mux.HandleFunc("/v1/", s.CollectionHandler)

	return s.middleware(mux)
}

// WebhookEndpoints lists the configured change subscribers.
func WebhookEndpoints(cfg config.Config) []webhooks.Endpoint {
	out := make([]webhooks.Endpoint, 0, len(cfg.WebhookURLs))
	for _, u := range cfg.WebhookURLs {
		out = append(out, webhooks.Endpoint{URL: u, Secret: cfg.WebhookSecret})
	}
	return out
}

// publish fans a record change out to stream subscribers and webhooks.
func (s *Server) publish(ctx context.Context, collection string, evt SSEEvent) {
	s.Broker.Publish(collection, evt)
	if s.Hooks == nil {
		return
	}
	if err := s.Hooks.Emit(ctx, evt.Type, collection, evt.Data); err != nil {
		logger.Errorf(ctx, "queue webhook %s on %s: %v", evt.Type, collection, err)
	}
}

// timestamp renders fixed-width UTC times so they sort lexically.
func (s *Server) timestamp() string { return s.now().UTC().Format("2006-01-02T15:04:05.000Z") }
