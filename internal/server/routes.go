package server

import (
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Map Quiz API", "/openapi.json", "/docs"))
	r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(deps.Identity))

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(deps.AuthRateLimit, time.Minute))
				r.Post("/signup", handleSignUp(logger, deps.Identity))
				r.Post("/signin", handleSignIn(logger, deps.Identity))
			})
			r.With(requireUser).Post("/signout", handleSignOut(logger, deps.Identity, deps.Tracker))
			r.With(requireUser).Get("/me", handleMe())
		})

		r.Get("/locations", handleListLocations(deps.Catalog, deps.Tracker))
		r.Route("/locations/{id}", func(r chi.Router) {
			r.Get("/", handleGetLocation(deps.Catalog, deps.Tracker))
			r.With(requireUser).Get("/unlocked", handleUnlocked(deps.Catalog, deps.Tracker))
			r.With(requireUser).Post("/answer", handleAnswer(logger, deps.Catalog, deps.Tracker, deps.Broker))
		})

		r.Route("/progress", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", handleProgress(deps.Tracker))
			r.Get("/events", handleEvents(logger, deps.Broker))
			r.Get("/ws", handleProgressWS(logger, deps.Broker, originPatterns(deps.CORSOrigins)))
		})
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
