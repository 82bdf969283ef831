package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iago/contact-distributor/internal/http/handlers"
	"github.com/iago/contact-distributor/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *slog.Logger
	AuthToken      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type route struct {
	pattern string
	methods []string
	handler func(*handlers.API) http.HandlerFunc
}

// routes is the single source for mux patterns and CORS preflight methods.
// Patterns ending in "/" match every path below them, as in ServeMux.
var routes = []route{
	{"/healthz", []string{http.MethodGet}, func(api *handlers.API) http.HandlerFunc { return api.Health }},
	{"/v1/distributions", []string{http.MethodGet, http.MethodPost}, func(api *handlers.API) http.HandlerFunc { return api.Distributions }},
	{"/v1/distributions/", []string{http.MethodGet}, func(api *handlers.API) http.HandlerFunc { return api.DistributionByID }},
	{"/v1/agents", []string{http.MethodGet}, func(api *handlers.API) http.HandlerFunc { return api.Agents }},
	{"/v1/agents/", []string{http.MethodGet}, func(api *handlers.API) http.HandlerFunc { return api.AgentContacts }},
}

// methodsFor returns the methods of the most specific route matching path.
func methodsFor(path string) []string {
	var (
		best    []string
		bestLen = -1
	)
	for _, r := range routes {
		matches := path == r.pattern ||
			(strings.HasSuffix(r.pattern, "/") && strings.HasPrefix(path, r.pattern))
		if matches && len(r.pattern) > bestLen {
			best = r.methods
			bestLen = len(r.pattern)
		}
	}
	if best == nil {
		return nil
	}
	return append([]string(nil), best...)
}

// NewRouter wires routes and middleware. ctx bounds the rate limiter's
// background cleanup.
func NewRouter(ctx context.Context, deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	for _, r := range routes {
		mux.HandleFunc(r.pattern, r.handler(deps.API))
	}

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.AuthToken)(handler)
	handler = middleware.RateLimit(ctx, middleware.RateLimitConfig{
		RPS:   deps.RateLimitRPS,
		Burst: deps.RateLimitBurst,
	})(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
		Methods:        methodsFor,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
