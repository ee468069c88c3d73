package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperfoil/horreum-auth/internal/auth/metrics"
	"github.com/hyperfoil/horreum-auth/internal/auth/service"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
	"github.com/hyperfoil/horreum-auth/pkg/httpx"
	"github.com/hyperfoil/horreum-auth/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	registry *prometheus.Registry

	ApiKeyService *service.ApiKeyService
	Resolver      *service.IdentityResolver

	// Fallbacks authenticate requests that carry no API key header, for
	// deployments that front the service with another identity source.
	Fallbacks []httpx.Authenticator
}

func NewRouter(
	buildVersion string,
	st store.Store,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		registry:     registry,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers all routes. Must be called after the service fields
// are assigned; authentication is part of the global chain so every route
// sees a resolved identity (or none) in its context.
func (r *Router) ApplyRoutes() {
	r.middlewares = append(r.middlewares,
		httpx.TokenAuthn(r.Resolver, r.Fallbacks...),
	)

	r.registerApiKeys()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerApiKeys() {
	h := &ApiKeysHandler{ApiKeyService: r.ApiKeyService}

	// POST /api/user/apikeys - issuance, moderate rate limit by user
	r.Mux.Handle("POST /api/user/apikeys",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			httpx.RequireIdentity(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// GET /api/user/apikeys - listing, lenient rate limit by user
	r.Mux.Handle("GET /api/user/apikeys",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.RequireIdentity(),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	// PUT /api/user/apikeys/{id}/rename
	r.Mux.Handle("PUT /api/user/apikeys/{id}/rename",
		httpx.Chain(http.HandlerFunc(h.HandleRename),
			httpx.RequireIdentity(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// PUT /api/user/apikeys/{id}/revoke
	r.Mux.Handle("PUT /api/user/apikeys/{id}/revoke",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			httpx.RequireIdentity(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
	r.Mux.Handle("GET /metrics", metrics.Handler(r.registry))
}
