package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classbridge/classbridge-api/internal/service"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
	"github.com/classbridge/classbridge-api/pkg/response"
)

// ExportHandler wires HTTP endpoints to the gradebook export service.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Gradebook godoc
// @Summary Export gradebook
// @Description Render the subject gradebook as CSV or PDF
// @Tags Exports
// @Produce octet-stream
// @Param id path string true "Subject ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id}/gradebook [get]
func (h *ExportHandler) Gradebook(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.GradebookFormat(strings.ToLower(c.DefaultQuery("format", "csv")))

	file, err := h.service.Gradebook(c.Request.Context(), claims.UserID, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
