package http

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/dkeye/voicestream/internal/adapters/signal"
	"github.com/dkeye/voicestream/internal/app/orch"
	"github.com/dkeye/voicestream/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type HealthResponse struct {
	Status           string `json:"status"`
	WebRTCAvailable  bool   `json:"webrtc_available"`
	ActiveStreams    int    `json:"active_streams"`
	ConnectedClients int    `json:"connected_clients"`
}

func SignalOptions(cfg *config.Config) signal.Options {
	return signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		MaxConnections: cfg.MaxConnections,
		RateLimit:      cfg.RateLimit.Messages,
		RateInterval:   cfg.RateLimit.Interval,
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(OriginFilter(cfg.AllowedOrigins))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("VoiceStreamSession", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, health(o))
	})

	ctrl := signal.NewSignalWSController(o, SignalOptions(cfg))
	ws := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client_token", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	}
	r.GET("/ws", ws)

	api := r.Group("/api")
	api.GET("/voice-streaming/ws", ws)
	api.GET("/streams", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"streams": o.Streams.Snapshot()})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func health(o *orch.Orchestrator) HealthResponse {
	resp := HealthResponse{
		Status:           "healthy",
		WebRTCAvailable:  o.Engine != nil,
		ActiveStreams:    o.Streams.Count(),
		ConnectedClients: o.Conns.Count(),
	}
	if !resp.WebRTCAvailable {
		resp.Status = "degraded"
	}
	return resp
}
