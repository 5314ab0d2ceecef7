package http

import (
	"context"
	"net/http"

	"github.com/dkeye/botrelay/internal/adapters/signal"
	"github.com/dkeye/botrelay/internal/config"
	"github.com/dkeye/botrelay/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// SetupRouter serves the relay socket at / (where existing bots and
// listeners connect) and at /ws, plus health, metrics and a bot listing.
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.SignalWSController, reg *prometheus.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ws := []gin.HandlerFunc{}
	if cfg.ConnRate.Limit > 0 {
		ws = append(ws, signal.NewConnRateLimiter(cfg.ConnRate.Limit, cfg.ConnRate.Interval).Middleware())
	}
	ws = append(ws, func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})
	r.GET("/", ws...)
	r.GET("/ws", ws...)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(reg)))

	api := r.Group("/api")
	api.GET("/bots", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"bots":        ctl.Orch.Registry.Snapshot(),
			"online":      ctl.Orch.Registry.OnlineBots(),
			"connections": ctl.Orch.Conns.Count(),
		})
	})

	log.Info().Str("module", "adapters.http").Int("conn_rate_limit", cfg.ConnRate.Limit).Msg("router setup")
	return r
}
