package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"econscour/internal/app"
	"econscour/internal/config"
	"econscour/internal/handler"
	"econscour/internal/middleware"
	"econscour/internal/router"
	"econscour/internal/service"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting econscour API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)
	if !cfg.App.IsDevelopment() {
		log.SetFlags(log.LstdFlags)
	}
	if cfg.App.IsProduction() && len(cfg.App.APIKeys) == 0 {
		log.Println("Warning: API_KEYS is empty, load control and settings writes are open")
	}

	application, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	// Cache janitor
	janitor := service.NewCacheJanitor(application.Cache, service.JanitorConfig{
		Interval: cfg.Cache.JanitorInterval,
		MaxAge:   cfg.Cache.MaxAge,
	})
	janitor.Start()

	proxyHandler, err := handler.NewProxyHandler(handler.ProxyConfig{
		AllowedPrefix: cfg.Proxy.AllowedPrefix,
		Timeout:       cfg.Upstream.Timeout,
		MaxRedirects:  cfg.Proxy.MaxRedirects,
		UserAgent:     cfg.Upstream.UserAgent,
	})
	if err != nil {
		log.Fatalf("Failed to initialize proxy: %v", err)
	}

	// Initialize handlers
	healthHandler := handler.New(cfg.App.Name, cfg.App.Version)
	healthHandler.AddCheck("cache", application.CacheReady)

	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		APIKeys: cfg.App.APIKeys,
	})

	r := router.New(router.Config{
		Handler:         healthHandler,
		EconHandler:     handler.NewEconHandler(application.Session),
		LoadHandler:     handler.NewLoadHandler(application.Session),
		SettingsHandler: handler.NewSettingsHandler(application.Session),
		AdminHandler:    handler.NewAdminHandler(application.Session, janitor),
		ProxyHandler:    proxyHandler,
		AuthMiddleware:  authMiddleware,
		AllowedOrigins:  cfg.Proxy.AllowedOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	janitor.Stop()
	if err := application.Close(); err != nil {
		log.Printf("Close error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
