package handler

import (
	"net/http"
	"runtime"
	"time"

	"econscour/internal/cache"
	"econscour/internal/service"
	"econscour/internal/session"
	"econscour/pkg/response"
)

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	session   *session.Controller
	janitor   *service.CacheJanitor
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. janitor may be nil.
func NewAdminHandler(s *session.Controller, janitor *service.CacheJanitor) *AdminHandler {
	return &AdminHandler{
		session:   s,
		janitor:   janitor,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loader := h.session.Loader()
	stats := make(map[string]any)

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]any{
		"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
		"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
		"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":  float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":         memStats.NumGC,
		"goroutines":     runtime.NumGoroutine(),
	}

	// Cache stats
	fetcher := loader.Fetcher()
	cacheStats := map[string]any{"fetcher": fetcher.Stats()}
	if c := fetcher.Cache(); c == nil {
		cacheStats["status"] = "disabled"
	} else if sp, ok := c.(cache.StatsProvider); ok {
		if s, err := sp.Stats(ctx); err == nil {
			cacheStats["status"] = "connected"
			cacheStats["backend"] = s
		} else {
			cacheStats["status"] = "error"
			cacheStats["error"] = err.Error()
		}
	}
	stats["cache"] = cacheStats

	// Upstream fetch stats
	rc := loader.Retry()
	stats["upstream"] = map[string]any{
		"loads":         loader.Loads(),
		"retries":       rc.Retries(),
		"current_proxy": rc.CurrentProxy().Name(),
	}
	stats["session"] = h.session.Status()

	// Runtime info
	stats["runtime"] = map[string]any{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// RunJanitor handles POST /api/v1/admin/cache/evict
func (h *AdminHandler) RunJanitor(w http.ResponseWriter, r *http.Request) {
	if h.janitor == nil {
		response.OK(w, service.RunStats{})
		return
	}
	stats, err := h.janitor.RunNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, stats)
}

// ClearCache handles DELETE /api/v1/admin/cache
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if c := h.session.Loader().Fetcher().Cache(); c != nil {
		if err := c.Clear(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	response.NoContent(w)
}
