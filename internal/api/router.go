package api

import (
	"log/slog"
	"net/http"

	"github.com/peakform/peakform/internal/auth"
	"github.com/peakform/peakform/internal/idempotency"
	"github.com/peakform/peakform/internal/middleware"
)

// RouterConfig carries the wired handlers and the middleware dependencies.
type RouterConfig struct {
	Logger *slog.Logger

	Webhook  *WebhookHandlers
	Access   *AccessHandlers
	Checkout *CheckoutHandlers
	Catalog  *CatalogHandlers
	Health   *HealthHandlers

	TokenValidator middleware.TokenValidator

	RateLimitStore  middleware.RateLimitStore
	IdempotencyRepo idempotency.Repository

	HTTPMetrics    *middleware.Metrics
	MetricsHandler http.Handler

	ServiceName string
	CORSOrigins []string
}

// NewRouter assembles the full route table and middleware stack.
//
// Outer chain (applied to everything, innermost first):
// CORS -> rate limit -> HTTP metrics -> logging -> tracing -> request id.
// Authentication is applied per route group so the webhook and health
// endpoints stay anonymous.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.Authenticate(cfg.TokenValidator)
	coachOnly := func(h http.Handler) http.Handler {
		return authed(middleware.RequireRole(auth.RoleCoach)(h))
	}

	// Unauthenticated surface. The webhook authenticates via its signature,
	// not a bearer token.
	mux.HandleFunc("POST /internal/stripe", cfg.Webhook.HandleStripeWebhook)
	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	// Athlete-facing surface.
	statusHandler := http.Handler(http.HandlerFunc(cfg.Access.Status))
	if cfg.RateLimitStore != nil {
		statusLimit := middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultStatusLimit(), middleware.UserKeyFunc())
		statusHandler = statusLimit(statusHandler)
	}
	mux.Handle("GET /access/status", authed(statusHandler))

	checkoutHandler := http.Handler(http.HandlerFunc(cfg.Checkout.CreateCheckout))
	if cfg.IdempotencyRepo != nil {
		idem := middleware.Idempotency(cfg.IdempotencyRepo, map[string]bool{"/payments/checkout": true})
		checkoutHandler = idem(checkoutHandler)
	}
	if cfg.RateLimitStore != nil {
		checkoutLimit := middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultCheckoutLimit(), middleware.UserKeyFunc())
		checkoutHandler = checkoutLimit(checkoutHandler)
	}
	mux.Handle("POST /payments/checkout", authed(checkoutHandler))

	// Program browsing is shared: coaches see their catalog, athletes the
	// published storefront.
	mux.Handle("GET /programs", authed(http.HandlerFunc(cfg.Catalog.ListPrograms)))
	mux.Handle("GET /programs/{id}", authed(http.HandlerFunc(cfg.Catalog.GetProgram)))

	// Coach catalog surface.
	coachRoutes := map[string]http.HandlerFunc{
		"POST /exercises":        cfg.Catalog.CreateExercise,
		"GET /exercises":         cfg.Catalog.ListExercises,
		"GET /exercises/{id}":    cfg.Catalog.GetExercise,
		"PUT /exercises/{id}":    cfg.Catalog.UpdateExercise,
		"DELETE /exercises/{id}": cfg.Catalog.DeleteExercise,

		"POST /protocols":        cfg.Catalog.CreateProtocol,
		"GET /protocols":         cfg.Catalog.ListProtocols,
		"GET /protocols/{id}":    cfg.Catalog.GetProtocol,
		"PUT /protocols/{id}":    cfg.Catalog.UpdateProtocol,
		"DELETE /protocols/{id}": cfg.Catalog.DeleteProtocol,

		"POST /blocks":        cfg.Catalog.CreateBlock,
		"GET /blocks":         cfg.Catalog.ListBlocks,
		"GET /blocks/{id}":    cfg.Catalog.GetBlock,
		"PUT /blocks/{id}":    cfg.Catalog.UpdateBlock,
		"DELETE /blocks/{id}": cfg.Catalog.DeleteBlock,

		"POST /workouts":                 cfg.Catalog.CreateWorkout,
		"GET /workouts":                  cfg.Catalog.ListWorkouts,
		"GET /workouts/{id}":             cfg.Catalog.GetWorkout,
		"PUT /workouts/{id}":             cfg.Catalog.UpdateWorkout,
		"DELETE /workouts/{id}":          cfg.Catalog.DeleteWorkout,
		"PUT /workouts/{id}/block-order": cfg.Catalog.ReorderWorkoutBlocks,

		"POST /programs":                   cfg.Catalog.CreateProgram,
		"PUT /programs/{id}":               cfg.Catalog.UpdateProgram,
		"DELETE /programs/{id}":            cfg.Catalog.DeleteProgram,
		"POST /programs/{id}/publish":      cfg.Catalog.Publish,
		"PUT /programs/{id}/workout-order": cfg.Catalog.ReorderProgramWorkouts,

		"POST /programs/{id}/grants":             cfg.Access.Grant,
		"GET /programs/{id}/grants":              cfg.Access.ListGrants,
		"PATCH /programs/{id}/grants/{user_id}":  cfg.Access.UpdateExpiry,
		"DELETE /programs/{id}/grants/{user_id}": cfg.Access.Revoke,
	}
	for pattern, handler := range coachRoutes {
		mux.Handle(pattern, coachOnly(handler))
	}

	var h http.Handler = mux
	h = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins))(h)
	if cfg.RateLimitStore != nil {
		h = middleware.RateLimiter(cfg.RateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())(h)
	}
	if cfg.HTTPMetrics != nil {
		h = middleware.HTTPMetrics(cfg.HTTPMetrics)(h)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h = middleware.Logging(logger)(h)
	h = middleware.Tracing(cfg.ServiceName)(h)
	h = middleware.RequestID(h)
	return h
}
