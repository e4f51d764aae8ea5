package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/appminuta/mapa-ventas/internal/auth"
	"github.com/appminuta/mapa-ventas/internal/snapshots"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	subjectContextKey        = "mapa_ventas_subject"
	defaultGenerationTimeout = 10 * time.Minute
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingSnapshotService  = errors.New("snapshot service dependency required")
	errMissingRealtime         = errors.New("realtime dispatcher dependency required")
)

// SessionValidator authenticates API callers.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// SnapshotService is the snapshot engine exposed over HTTP.
type SnapshotService interface {
	Generate(ctx context.Context, kind snapshots.Kind) (snapshots.GenerationSummary, error)
	ListByDate(ctx context.Context, fecha time.Time) ([]snapshots.Snapshot, error)
	ListByRange(ctx context.Context, from, to time.Time) ([]snapshots.Snapshot, error)
	Compare(ctx context.Context, request snapshots.ComparisonRequest) ([]snapshots.ProjectComparison, error)
	Details(ctx context.Context, snapshotID string) (snapshots.Snapshot, []snapshots.SnapshotDetail, error)
	UnitHistory(ctx context.Context, unitID string, limit int) ([]snapshots.UnitHistoryEntry, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Sessions          SessionValidator
	Snapshots         SnapshotService
	Realtime          *RealtimeDispatcher
	HealthCheck       func(ctx context.Context) error
	GenerationTimeout time.Duration
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Snapshots == nil {
		return nil, errMissingSnapshotService
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	generationTimeout := deps.GenerationTimeout
	if generationTimeout <= 0 {
		generationTimeout = defaultGenerationTimeout
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions:          deps.Sessions,
		snapshots:         deps.Snapshots,
		realtime:          deps.Realtime,
		healthCheck:       deps.HealthCheck,
		generationTimeout: generationTimeout,
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/snapshots")
	protected.Use(handler.authorizeRequest)
	protected.POST("/generate", handler.handleGenerate)
	protected.GET("", handler.handleListByDate)
	protected.GET("/range", handler.handleListByRange)
	protected.GET("/comparativo", handler.handleCompare)
	protected.GET("/stream", handler.handleSnapshotStream)
	protected.GET("/unidades/:unidadId/historial", handler.handleUnitHistory)
	protected.GET("/:id/detalle", handler.handleDetails)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:          12 * time.Hour,
	})
}

type httpHandler struct {
	sessions          SessionValidator
	snapshots         SnapshotService
	realtime          *RealtimeDispatcher
	healthCheck       func(ctx context.Context) error
	generationTimeout time.Duration
	heartbeatInterval time.Duration
	logger            *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.healthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.healthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, claims.Subject)
	c.Next()
}
