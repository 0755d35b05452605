package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classbridge/classbridge-api/internal/service"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
	"github.com/classbridge/classbridge-api/pkg/response"
)

// MaterialHandler wires HTTP endpoints to the study material service.
type MaterialHandler struct {
	service *service.MaterialService
}

// NewMaterialHandler creates a new handler.
func NewMaterialHandler(svc *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{service: svc}
}

// Create godoc
// @Summary Share study material
// @Description Attach a study material to a subject the teacher owns
// @Tags Materials
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body service.CreateMaterialRequest true "Material payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id}/materials [post]
func (h *MaterialHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid material payload"))
		return
	}

	material, err := h.service.Create(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, material)
}

// ListBySubject godoc
// @Summary List study materials
// @Description List materials for a subject visible to the caller
// @Tags Materials
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id}/materials [get]
func (h *MaterialHandler) ListBySubject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	materials, err := h.service.ListBySubject(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, materials)
}

// Delete godoc
// @Summary Delete study material
// @Description Delete a material from a subject the teacher owns
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /materials/{id} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
