package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/appminuta/mapa-ventas/internal/snapshots"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleGenerate(c *gin.Context) {
	kind, err := snapshots.ParseKind(c.Query("tipo"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind", "field": "tipo"})
		return
	}

	// Generation outlives a dropped client connection; only the configured timeout stops it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.generationTimeout)
	defer cancel()

	h.logger.Info("snapshot generation requested",
		zap.String("tipo", string(kind)),
		zap.String("subject", c.GetString(subjectContextKey)))
	summary, err := h.snapshots.Generate(ctx, kind)
	if err != nil {
		response := gin.H{"error": "generation_failed", "summary": newGenerationPayload(summary)}
		var serviceErr *snapshots.ServiceError
		if errors.As(err, &serviceErr) {
			response["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, response)
		return
	}
	c.JSON(http.StatusOK, newGenerationPayload(summary))
}

func (h *httpHandler) handleListByDate(c *gin.Context) {
	fecha, ok := requireDate(c, "fecha")
	if !ok {
		return
	}
	headers, err := h.snapshots.ListByDate(c.Request.Context(), fecha)
	if err != nil {
		h.respondServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotPayloads(headers))
}

func (h *httpHandler) handleListByRange(c *gin.Context) {
	desde, ok := requireDate(c, "desde")
	if !ok {
		return
	}
	hasta, ok := requireDate(c, "hasta")
	if !ok {
		return
	}
	if desde.After(hasta) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_range", "field": "desde"})
		return
	}
	headers, err := h.snapshots.ListByRange(c.Request.Context(), desde, hasta)
	if err != nil {
		h.respondServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, newSnapshotPayloads(headers))
}

func (h *httpHandler) handleCompare(c *gin.Context) {
	current, ok := requireDate(c, "mesActual")
	if !ok {
		return
	}
	previous, ok := requireDate(c, "mesAnterior")
	if !ok {
		return
	}
	request := snapshots.ComparisonRequest{Current: current, Previous: previous}
	if rawKind := strings.TrimSpace(c.Query("tipo")); rawKind != "" {
		kind, err := snapshots.ParseKind(rawKind)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind", "field": "tipo"})
			return
		}
		request.Kind = kind
	}

	comparisons, err := h.snapshots.Compare(c.Request.Context(), request)
	if err != nil {
		h.respondServiceError(c, "compare_failed", err)
		return
	}
	c.JSON(http.StatusOK, newComparisonPayloads(comparisons))
}

func (h *httpHandler) handleDetails(c *gin.Context) {
	snapshotID := strings.TrimSpace(c.Param("id"))
	header, details, err := h.snapshots.Details(c.Request.Context(), snapshotID)
	if err != nil {
		h.respondServiceError(c, "detail_failed", err)
		return
	}
	c.JSON(http.StatusOK, snapshotDetailResponse{
		Snapshot: newSnapshotPayload(header),
		Detalle:  newDetailPayloads(details),
	})
}

func (h *httpHandler) handleUnitHistory(c *gin.Context) {
	limit := 0
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "field": "limit"})
			return
		}
		limit = parsed
	}
	entries, err := h.snapshots.UnitHistory(c.Request.Context(), c.Param("unidadId"), limit)
	if err != nil {
		h.respondServiceError(c, "history_failed", err)
		return
	}
	c.JSON(http.StatusOK, newUnitHistoryPayloads(entries))
}

func (h *httpHandler) handleSnapshotStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.writeHeartbeat(c)
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			payload := newGenerationPayload(message.Summary)
			generatedAt := message.Timestamp.UTC()
			payload.GeneratedAt = &generatedAt
			c.SSEvent(message.EventType, payload)
			c.Writer.Flush()
		case <-ticker.C:
			h.writeHeartbeat(c)
		}
	}
}

func (h *httpHandler) writeHeartbeat(c *gin.Context) {
	c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{
		Source:    realtimeSourceBackend,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	c.Writer.Flush()
}

// requireDate parses a YYYY-MM-DD query parameter into UTC midnight, answering 400 when it is
// missing or malformed.
func requireDate(c *gin.Context, field string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(field))
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date", "field": field})
		return time.Time{}, false
	}
	return parsed, true
}

func (h *httpHandler) respondServiceError(c *gin.Context, fallback string, err error) {
	switch {
	case errors.Is(err, snapshots.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_range"})
		return
	case errors.Is(err, snapshots.ErrInvalidKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind", "field": "tipo"})
		return
	case errors.Is(err, snapshots.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	response := gin.H{"error": fallback}
	var serviceErr *snapshots.ServiceError
	if errors.As(err, &serviceErr) {
		response["code"] = serviceErr.Code()
	}
	h.logger.Error("snapshot request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, response)
}
