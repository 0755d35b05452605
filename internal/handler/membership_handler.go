package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classbridge/classbridge-api/internal/service"
	appErrors "github.com/classbridge/classbridge-api/pkg/errors"
	"github.com/classbridge/classbridge-api/pkg/response"
)

// MembershipHandler wires HTTP endpoints to the membership service.
type MembershipHandler struct {
	service *service.MembershipService
}

// NewMembershipHandler creates a new handler.
func NewMembershipHandler(svc *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{service: svc}
}

// Join godoc
// @Summary Join subject by class code
// @Description Enroll the authenticated student in the subject behind the code
// @Tags Membership
// @Accept json
// @Produce json
// @Param payload body service.JoinSubjectRequest true "Join payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/join [post]
func (h *MembershipHandler) Join(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.JoinSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid join payload"))
		return
	}

	subject, err := h.service.Join(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, subject)
}

// Roster godoc
// @Summary Subject roster
// @Description List enrolled students for a subject the teacher owns
// @Tags Membership
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id}/roster [get]
func (h *MembershipHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	roster, err := h.service.Roster(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, roster)
}

// Remove godoc
// @Summary Remove student from subject
// @Description Remove a membership record from a subject the teacher owns
// @Tags Membership
// @Produce json
// @Param id path string true "Membership ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /members/{id} [delete]
func (h *MembershipHandler) Remove(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.RemoveStudent(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// MySubjects godoc
// @Summary Joined subjects
// @Description List subjects the authenticated student has joined
// @Tags Membership
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me/subjects [get]
func (h *MembershipHandler) MySubjects(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	subjects, err := h.service.SubjectsByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, subjects)
}
