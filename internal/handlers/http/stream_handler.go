package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"homehub/internal/core/domain"
	"homehub/internal/core/services"
	apperrors "homehub/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SegmentMetrics observes segment fetches; nil is allowed.
type SegmentMetrics interface {
	RecordSegmentRequest(status string, duration time.Duration)
}

// StreamHandler serves live doorbell media: HLS playlists and segments
// out of a session's directory. Requests are authenticated by the
// stream token middleware; the service enforces session ownership and
// filename hygiene.
type StreamHandler struct {
	streamService *services.StreamService
	metrics       SegmentMetrics
}

func NewStreamHandler(streamService *services.StreamService, metrics SegmentMetrics) *StreamHandler {
	return &StreamHandler{
		streamService: streamService,
		metrics:       metrics,
	}
}

func (h *StreamHandler) SetupRoutes(streamAuthed *gin.RouterGroup, authenticated *gin.RouterGroup) {
	streamAuthed.GET("/live/:sessionId/:filename", h.GetSegment)
	authenticated.DELETE("/live/:sessionId", h.EndSession)
}

func (h *StreamHandler) GetSegment(c *gin.Context) {
	start := time.Now()

	userID, ok := currentUserID(c)
	if !ok {
		h.observe(http.StatusUnauthorized, start)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	sessionID := domain.StreamSessionID(c.Param("sessionId"))
	filename := c.Param("filename")

	path, err := h.streamService.Resolve(c.Request.Context(), userID, sessionID, filename)
	if err != nil {
		status := h.segmentError(c, err)
		h.observe(status, start)
		return
	}

	c.Header("Content-Type", services.ContentTypeFor(filename))
	c.Header("Cache-Control", "no-store")
	c.File(path)
	h.observe(http.StatusOK, start)
}

func (h *StreamHandler) EndSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	sessionID := domain.StreamSessionID(c.Param("sessionId"))
	if err := h.streamService.EndSession(c.Request.Context(), userID, sessionID); err != nil {
		h.segmentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ended": true})
}

// segmentError maps stream errors onto the gateway's response contract:
// malformed requests are 400, missing auth or foreign sessions 401,
// anything absent 404.
func (h *StreamHandler) segmentError(c *gin.Context, err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidStreamRequest):
		c.Error(apperrors.NewInvalidStreamError(err.Error()))
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrStreamNotFound):
		c.Error(apperrors.NewNotFoundError("stream session"))
		return http.StatusNotFound
	default:
		c.Error(apperrors.NewInternalError("failed to serve segment"))
		return http.StatusInternalServerError
	}
}

func (h *StreamHandler) observe(status int, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordSegmentRequest(strconv.Itoa(status), time.Since(start))
	}
}
