package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/middleware"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

// PresenceReader exposes the redis mirror to the admin API.
type PresenceReader interface {
	Occupants(ctx context.Context, roomID string) ([]models.PresenceRecord, error)
}

// Handler owns the HTTP and websocket endpoints of the signaling server.
type Handler struct {
	cfg      *config.Config
	registry *registry.Registry
	presence PresenceReader
	logger   *slog.Logger

	pingPeriod time.Duration
}

// New wires the handlers. presence may be nil when the mirror is disabled.
func New(cfg *config.Config, reg *registry.Registry, presence PresenceReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:        cfg,
		registry:   reg,
		presence:   presence,
		logger:     logger.With("component", "handlers"),
		pingPeriod: pingPeriod,
	}
}

// NewRouter builds the gin engine with every route of the server.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(h.cfg.AllowedOrigins))

	router.GET("/health", h.Health)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", h.Login)

		// Public occupancy lookup
		apiGroup.GET("/rooms/:roomId", h.GetRoom)

		operator := apiGroup.Group("", middleware.JWTAuth(h.cfg.JWTSecret))
		operator.GET("/rooms", h.ListRooms)
		operator.DELETE("/rooms/:roomId", h.DeleteRoom)
		operator.GET("/presence/:roomId", h.GetPresence)
	}

	router.GET("/ws", h.HandleSignaling)

	return router
}
