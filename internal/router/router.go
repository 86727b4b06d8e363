package router

import (
	"net/http"

	"econscour/internal/handler"
	"econscour/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	EconHandler     *handler.EconHandler
	LoadHandler     *handler.LoadHandler
	SettingsHandler *handler.SettingsHandler
	AdminHandler    *handler.AdminHandler
	ProxyHandler    *handler.ProxyHandler
	AuthMiddleware  func(http.Handler) http.Handler
	AllowedOrigins  []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	auth := cfg.AuthMiddleware
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	// Restricted upstream passthrough
	if cfg.ProxyHandler != nil {
		r.Get("/proxy", cfg.ProxyHandler.ServeHTTP)
		r.Get("/proxy/*", cfg.ProxyHandler.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		// Reads are public
		if cfg.EconHandler != nil {
			r.Get("/summary", cfg.EconHandler.Summary)
			r.Get("/records", cfg.EconHandler.Records)
			r.Get("/ships", cfg.EconHandler.Ships)
			r.Get("/ships/{hex}/history", cfg.EconHandler.ShipHistory)
			r.Get("/items", cfg.EconHandler.Items)
			r.Get("/bot-drops", cfg.EconHandler.BotDrops)
		}

		if cfg.LoadHandler != nil {
			r.Route("/loads", func(r chi.Router) {
				r.Get("/current", cfg.LoadHandler.Current)
				r.With(auth).Post("/", cfg.LoadHandler.Start)
				r.With(auth).Delete("/current", cfg.LoadHandler.Abort)
			})
		}

		if cfg.SettingsHandler != nil {
			r.Get("/settings", cfg.SettingsHandler.Get)
			r.With(auth).Put("/settings", cfg.SettingsHandler.Put)
		}

		// Admin endpoints sit behind the API key
		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth)
				r.Get("/stats", cfg.AdminHandler.GetStats)
				r.Post("/cache/evict", cfg.AdminHandler.RunJanitor)
				r.Delete("/cache", cfg.AdminHandler.ClearCache)
			})
		}
	})

	return r
}
