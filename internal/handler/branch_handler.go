package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classbridge/classbridge-api/internal/service"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
	"github.com/classbridge/classbridge-api/pkg/response"
)

// BranchHandler wires HTTP endpoints to the branch service.
type BranchHandler struct {
	service *service.BranchService
}

// NewBranchHandler creates a new handler.
func NewBranchHandler(svc *service.BranchService) *BranchHandler {
	return &BranchHandler{service: svc}
}

// Create godoc
// @Summary Create branch
// @Description Create a branch owned by the authenticated teacher
// @Tags Branches
// @Accept json
// @Produce json
// @Param payload body service.CreateBranchRequest true "Branch payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /branches [post]
func (h *BranchHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid branch payload"))
		return
	}

	branch, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, branch)
}

// List godoc
// @Summary List branches
// @Description List branches owned by the authenticated teacher
// @Tags Branches
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /branches [get]
func (h *BranchHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	branches, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, branches)
}

// Delete godoc
// @Summary Delete branch
// @Description Delete a branch and everything beneath it
// @Tags Branches
// @Produce json
// @Param id path string true "Branch ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /branches/{id} [delete]
func (h *BranchHandler) Delete(c *gin.Context) {
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
