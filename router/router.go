// Package router assembles the admin HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/handler"
	plumemw "github.com/caldera-labs/plume/middleware"
	"github.com/caldera-labs/plume/observability"
)

// Config bundles everything NewRouter needs to assemble the route table.
type Config struct {
	Auth        *plumemw.AuthMiddleware
	AuthHandler *handler.AuthHandler
	Admin       *handler.AdminHandler
	Metrics     *observability.Metrics
	CORSOrigins []string
	Logger      zerolog.Logger
}

// NewRouter builds the chi router for the admin surface.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(plumemw.RequestIDMiddleware)
	r.Use(plumemw.SecurityHeadersMiddleware)
	r.Use(plumemw.CORSMiddleware(cfg.CORSOrigins))

	r.Get("/healthz", cfg.Admin.Health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Post("/api/auth/login", cfg.AuthHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Handler)

		r.Post("/api/auth/logout", cfg.AuthHandler.Logout)
		r.Get("/api/auth/me", cfg.AuthHandler.Me)

		r.Get("/admin/status", cfg.Admin.Status)
		r.Get("/admin/queue-status", cfg.Admin.QueueStatus)
		r.Post("/admin/clear-queue-cooldowns", cfg.Admin.ClearQueueCooldowns)
		r.Post("/admin/reprocess-summary", cfg.Admin.ReprocessSummary)
		r.Post("/admin/vacuum", cfg.Admin.Vacuum)
		r.Get("/admin/models", cfg.Admin.Models)
	})

	return r
}
