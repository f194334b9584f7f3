package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cargolog/console/internal/config"
	"github.com/cargolog/console/internal/dashboard"
	"github.com/cargolog/console/internal/entity"
	"github.com/cargolog/console/internal/listing"
	"github.com/cargolog/console/internal/observability"
	"github.com/cargolog/console/internal/resource"
	"github.com/cargolog/console/internal/search"
	"github.com/cargolog/console/internal/session"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Registry  *entity.Registry
	Backend   *resource.Client
	Auth      *session.Manager
	Sessions  *session.Store
	Listing   *listing.Provider
	Lookups   *search.LookupProvider
	Tracker   *search.Tracker
	Dashboard *dashboard.Aggregator
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics, sign-in, and the public
// tracking lookup bypass the authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	h := &handlers{deps: deps}

	r := chi.NewRouter()

	r.Use(Recovery(deps.Logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if deps.Config.Observability.Tracing.Enabled {
		r.Use(observability.TracingMiddleware)
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}

	// Public routes.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}
	r.Post("/ui/signin", h.handleSignIn)
	r.Post("/ui/signout", h.handleSignOut)
	r.Get("/ui/tracking/{entity}", h.handleTracking)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(deps.Sessions, deps.Config.Session.CookieName))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(deps.Logger))

		r.Post("/ui/company", h.handleCompanySwitch)

		r.Get("/ui/entities", h.handleEntityIndex)
		r.Get("/ui/entities/{entity}", h.handleEntityMetadata)
		r.Get("/ui/entities/{entity}/rows", h.handleRows)

		r.Get("/ui/entities/{entity}/records/{id}", h.handleRecordGet)
		r.Post("/ui/entities/{entity}/records/{id}/save", h.handleRecordSave)
		r.Post("/ui/entities/{entity}/records/{id}/cancel", h.handleRecordCancel)

		r.Post("/ui/entities/{entity}/stages", h.handleStages)
		r.Post("/ui/entities/{entity}/import", h.handleImport)

		r.Get("/ui/lookups/{entity}", h.handleLookup)
		r.Get("/ui/dashboard/{entity}", h.handleDashboard)
	})

	return r
}

// handlers groups the request handlers over their shared dependencies.
type handlers struct {
	deps Dependencies
}
