package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuscare/campuscare-api/internal/service"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
	"github.com/campuscare/campuscare-api/pkg/response"
)

// UserHandler serves profile and staff directory endpoints.
type UserHandler struct {
	service *service.UserService
}

// NewUserHandler creates a new handler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{service: svc}
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's profile including reputation
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info, err := h.service.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, info, nil)
}

// ListStaff godoc
// @Summary List staff members
// @Description Active maintenance staff for the assignment picker
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users/staff [get]
func (h *UserHandler) ListStaff(c *gin.Context) {
	staff, err := h.service.ListStaff(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, staff, nil)
}
