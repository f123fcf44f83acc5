package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/authgate-io/authgate/internal/auth"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
// It is populated in main.go after all components are initialized and
// passed to NewRouter as a single struct to keep the constructor signature
// manageable as the number of dependencies grows.
type RouterConfig struct {
	Auth   *auth.Authentication
	Logger *zap.Logger

	// Gatherer serves /metrics. Leave nil to disable the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter builds and returns the fully configured Chi router. All API
// routes are registered under /api/v1.
//
// There is no authentication middleware: tokens are opaque and every
// authorization decision belongs to the engine, so handlers pass the raw
// bearer token straight through. A route is "authenticated" only in the
// sense that its engine operation demands a valid token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// --- Global middleware ---
	// RequestID generates a unique ID for each request, used in logs and
	// response headers for tracing.
	r.Use(middleware.RequestID)

	// RealIP extracts the real client IP from X-Forwarded-For or X-Real-IP
	// headers when the server runs behind a reverse proxy.
	r.Use(middleware.RealIP)

	// RequestLogger logs every request with method, path, status and latency.
	r.Use(RequestLogger(cfg.Logger))

	// Recoverer catches panics in handlers, logs them, and returns a 500
	// instead of crashing the server.
	r.Use(middleware.Recoverer)

	// --- Initialize handlers ---
	loginHandler := NewLoginHandler(cfg.Auth, cfg.Logger)
	linkHandler := NewLinkHandler(cfg.Auth, cfg.Logger)
	tokenHandler := NewTokenHandler(cfg.Auth, cfg.Logger)
	userHandler := NewUserHandler(cfg.Auth, cfg.Logger)
	adminHandler := NewAdminHandler(cfg.Auth, cfg.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		Ok(w, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {

		// --- Login flows (the caller has no login token yet) ---
		r.Post("/login/local", loginHandler.LocalLogin)
		r.Put("/login/local/password", loginHandler.ChangePassword)

		r.Get("/providers", loginHandler.ListProviders)
		r.Get("/providers/{provider}/login", loginHandler.StartLogin)
		r.Get("/providers/{provider}/image", loginHandler.ProviderImage)
		r.Post("/login/complete", loginHandler.CompleteProviderLogin)

		// Deferred login continuation, driven by the temporary token.
		r.Get("/login/choice", loginHandler.LoginChoice)
		r.Post("/login/pick", loginHandler.PickAccount)
		r.Post("/login/create", loginHandler.CreateAccount)
		r.Get("/login/suggestname/{name}", loginHandler.SuggestName)

		// --- Current user ---
		r.Get("/me", userHandler.GetMe)
		r.Put("/me", userHandler.UpdateMe)
		r.Delete("/me/roles", userHandler.RemoveOwnRoles)
		r.Delete("/me/identities/{id}", linkHandler.Unlink)

		// --- Other users ---
		r.Get("/users/{user}", userHandler.GetUser)
		r.Get("/users", userHandler.GetDisplayNames)
		r.Get("/users/search/{prefix}", userHandler.Search)

		// --- Tokens ---
		r.Get("/token", tokenHandler.GetCurrent)
		r.Delete("/token", tokenHandler.Logout)
		r.Get("/tokens", tokenHandler.List)
		r.Post("/tokens", tokenHandler.Create)
		r.Delete("/tokens", tokenHandler.RevokeAll)
		r.Delete("/tokens/{id}", tokenHandler.Revoke)

		// --- Identity linking ---
		r.Get("/link/start/{provider}", linkHandler.Start)
		r.Post("/link/complete", linkHandler.Complete)
		r.Get("/link/choice", linkHandler.Choice)
		r.Post("/link/pick", linkHandler.Pick)

		// --- Custom roles (read-only for regular users) ---
		r.Get("/customroles", userHandler.ListCustomRoles)

		// --- Administration ---
		// Every operation under /admin is authorized by the engine against
		// the caller's roles; no route-level gating is needed.
		r.Route("/admin", func(r chi.Router) {
			r.Post("/localuser", adminHandler.CreateLocalUser)
			r.Get("/user/{user}", adminHandler.GetUser)
			r.Put("/user/{user}/disable", adminHandler.DisableUser)
			r.Put("/user/{user}/reset", adminHandler.ResetPassword)
			r.Put("/user/{user}/forcereset", adminHandler.ForceResetPassword)
			r.Put("/forcereset", adminHandler.ForceResetAllPasswords)

			r.Put("/user/{user}/roles", adminHandler.UpdateRoles)
			r.Put("/user/{user}/customroles", adminHandler.UpdateCustomRoles)

			r.Get("/user/{user}/tokens", adminHandler.GetUserTokens)
			r.Delete("/user/{user}/tokens", adminHandler.RevokeUserTokens)
			r.Delete("/user/{user}/tokens/{id}", adminHandler.RevokeUserToken)
			r.Delete("/tokens", adminHandler.RevokeAllTokens)

			r.Get("/customroles", adminHandler.ListCustomRoles)
			r.Put("/customroles", adminHandler.SetCustomRole)
			r.Delete("/customroles/{id}", adminHandler.DeleteCustomRole)

			r.Get("/search/{prefix}", adminHandler.Search)

			r.Get("/config", adminHandler.GetConfig)
			r.Put("/config", adminHandler.UpdateConfig)
		})
	})

	return r
}
