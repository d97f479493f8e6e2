// Package http assembles the public router: every feature handler mounted
// under /api, plus health, metrics and the static file mount.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhandler "certo/internal/admin/handler"
	certificatehandler "certo/internal/certificate/handler"
	eventhandler "certo/internal/event/handler"
	identityhandler "certo/internal/identity/handler"
	"certo/internal/platform/metrics"
	"certo/internal/platform/middleware"
	"certo/internal/policy"
	questionbankhandler "certo/internal/questionbank/handler"
	registrationhandler "certo/internal/registration/handler"
	"certo/internal/transport/http/shared"
)

// Deps collects everything the router mounts.
type Deps struct {
	Identity      *identityhandler.Handler
	Events        *eventhandler.Handler
	Questions     *questionbankhandler.Handler
	Registrations *registrationhandler.Handler
	Certificates  *certificatehandler.Handler
	Admin         *adminhandler.Handler

	TokenValidator middleware.TokenValidator
	Revocations    middleware.RevocationChecker
	Users          middleware.UserChecker

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// FilesDir is served read-only under /files when non-empty.
	FilesDir string

	// Health reports readiness of backing services.
	Health func() error
}

// New builds the router.
func New(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Instrument(d.Metrics))

	requireAuth := middleware.RequireAuth(d.TokenValidator, d.Users, d.Revocations, d.Logger)
	requireManageEvents := middleware.RequireAction(policy.ActionManageEvents, d.Logger)
	requireManageCerts := middleware.RequireAction(policy.ActionManageCertificates, d.Logger)
	requireManageUsers := middleware.RequireAction(policy.ActionManageUsers, d.Logger)
	requireViewRegs := middleware.RequireAction(policy.ActionViewRegistrations, d.Logger)
	requireGrade := middleware.RequireAction(policy.ActionGradeRegistrations, d.Logger)
	requireAnalytics := middleware.RequireAction(policy.ActionViewAnalytics, d.Logger)

	r.Route("/api", func(api chi.Router) {
		d.Identity.Register(api, requireAuth)
		d.Events.Register(api, requireAuth, requireManageEvents)
		d.Questions.Register(api, requireAuth, requireManageEvents)
		d.Registrations.Register(api, requireAuth, requireViewRegs, requireGrade)
		d.Certificates.Register(api, requireAuth, requireManageCerts)
		d.Admin.Register(api, requireAuth, requireManageUsers, requireViewRegs, requireAnalytics)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if d.Health != nil {
			if err := d.Health(); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, nil, "unhealthy")
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, nil, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())

	if d.FilesDir != "" {
		fs := http.StripPrefix("/files/", http.FileServer(http.Dir(d.FilesDir)))
		r.Get("/files/*", fs.ServeHTTP)
	}
	return r
}
