package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is the liveness probe; it never touches dependencies.
func (h HandlerSet) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type readyResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func (h HandlerSet) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := readyResponse{
		Status:   "ok",
		Database: h.pingStatus(ctx, h.database, "database"),
		Cache:    h.pingStatus(ctx, h.cache, "cache"),
	}

	// the cache is optional; the database is not
	status := http.StatusOK
	if resp.Database != "ok" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (h HandlerSet) pingStatus(ctx context.Context, p Pinger, name string) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		h.log.Error().Err(err).Str("dependency", name).Msg("readiness ping failed")
		return "error"
	}
	return "ok"
}
