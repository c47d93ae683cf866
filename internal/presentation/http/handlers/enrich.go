// Package handlers provides the HTTP handlers for the admin and enrichment
// surface.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hivewatch/hivewatch-go/internal/application/services"
	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
)

// EnrichHandlers exposes the enrichment façade over HTTP
type EnrichHandlers struct {
	enrichmentService *services.EnrichmentService
	logger            *logging.ChanneledLogger
}

// NewEnrichHandlers creates enrichment handlers with dependencies
func NewEnrichHandlers(enrichmentService *services.EnrichmentService, logger *logging.ChanneledLogger) *EnrichHandlers {
	return &EnrichHandlers{enrichmentService: enrichmentService, logger: logger}
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
	SrcIP     string `json:"src_ip" binding:"required"`
}

type fileRequest struct {
	FileHash string `json:"file_hash" binding:"required"`
	Filename string `json:"filename"`
}

type sessionResponse struct {
	*enrichment.SessionRecord
	Flags enrichment.SessionFlags `json:"flags"`
}

// PostSession handles POST /api/v1/enrich/session
func (h *EnrichHandlers) PostSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and src_ip required"})
		return
	}

	record, err := h.enrichmentService.EnrichSession(c.Request.Context(), req.SessionID, req.SrcIP)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		SessionRecord: record,
		Flags:         h.enrichmentService.SessionFlags(record),
	})
}

// PostFile handles POST /api/v1/enrich/file
func (h *EnrichHandlers) PostFile(c *gin.Context) {
	var req fileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_hash required"})
		return
	}

	record, err := h.enrichmentService.EnrichFile(c.Request.Context(), req.FileHash, req.Filename)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *EnrichHandlers) writeServiceError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrServiceClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service is shutting down"})
		return
	}
	if h.logger != nil {
		h.logger.HTTP().Error("Enrichment request failed", "path", c.FullPath(), "error", err.Error())
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "enrichment failed"})
}
