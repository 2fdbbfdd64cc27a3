package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-catalog/api/controllers"
	importcontrollers "github.com/angelmondragon/packfinderz-catalog/api/controllers/imports"
	"github.com/angelmondragon/packfinderz-catalog/api/middleware"
	"github.com/angelmondragon/packfinderz-catalog/internal/imports"
	"github.com/angelmondragon/packfinderz-catalog/pkg/config"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	"github.com/angelmondragon/packfinderz-catalog/pkg/logger"
)

// Params collects the dependencies the router hands to controllers.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Imports  imports.Service
	Gatherer prometheus.Gatherer
	Checks   []controllers.ReadinessCheck
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Checks...))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	writers := middleware.RequireRoles(logg,
		enums.MemberRoleOwner,
		enums.MemberRoleAdmin,
		enums.MemberRoleManager,
	)

	r.Route("/api/v1/imports", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.TenantContext(logg))

		r.Get("/template", importcontrollers.Template(logg))
		r.With(writers).Post("/", importcontrollers.Upload(p.Imports, cfg.Import.MaxUploadBytes(), logg))

		r.Route("/{importId}", func(r chi.Router) {
			r.Get("/", importcontrollers.Get(p.Imports, logg))

			r.Group(func(r chi.Router) {
				r.Use(writers)
				r.Patch("/products", importcontrollers.SetActions(p.Imports, logg))
				r.Post("/products/bulk", importcontrollers.BulkApply(p.Imports, logg))
				r.Patch("/categories", importcontrollers.SetCategories(p.Imports, logg))
				r.Post("/refresh", importcontrollers.Refresh(p.Imports, logg))
				r.Post("/run", importcontrollers.Run(p.Imports, logg))
			})
		})
	})

	return r
}
