package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuscare/campuscare-api/internal/dto"
	"github.com/campuscare/campuscare-api/internal/service"
	appErrors "github.com/campuscare/campuscare-api/pkg/errors"
	"github.com/campuscare/campuscare-api/pkg/response"
)

// IssueHandler wires HTTP endpoints to the issue and vote services.
type IssueHandler struct {
	issues *service.IssueService
	votes  *service.VoteService
}

// NewIssueHandler creates a new handler.
func NewIssueHandler(issues *service.IssueService, votes *service.VoteService) *IssueHandler {
	return &IssueHandler{issues: issues, votes: votes}
}

// Create godoc
// @Summary Report a new issue
// @Description Create a facility issue with BEFORE photo evidence
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body dto.CreateIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid issue payload"))
		return
	}

	detail, err := h.issues.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, detail)
}

// List godoc
// @Summary Browse issues
// @Description List issues filtered by status, category, priority, and location
// @Tags Issues
// @Produce json
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Param priority query string false "Priority filter"
// @Param location query string false "Location filter"
// @Param sort query string false "Sort order (urgency or recency)"
// @Success 200 {object} response.Envelope
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var query dto.IssueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	issues, pagination, err := h.issues.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, issues, pagination)
}

// ListMine godoc
// @Summary List my reports
// @Tags Issues
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /issues/mine [get]
func (h *IssueHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var query dto.IssueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	issues, pagination, err := h.issues.ListMine(c.Request.Context(), claims.UserID, query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, issues, pagination)
}

// Get godoc
// @Summary Get one issue
// @Description Returns an issue with photos, vote state, and open assignment
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	callerID := ""
	if claims := claimsFromContext(c); claims != nil {
		callerID = claims.UserID
	}

	detail, err := h.issues.Get(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Edit an issue
// @Description Partial edit; reporters only while pending, staff anytime including status overrides
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body dto.UpdateIssueRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /issues/{id} [patch]
func (h *IssueHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.UpdateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}

	issue, err := h.issues.Update(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, issue, nil)
}

// History godoc
// @Summary Issue status history
// @Description Append-only ledger of status transitions
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /issues/{id}/history [get]
func (h *IssueHandler) History(c *gin.Context) {
	entries, err := h.issues.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}

// Vote godoc
// @Summary Toggle a vote
// @Description Flip the caller's vote; may trigger an escalation
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /issues/{id}/vote [post]
func (h *IssueHandler) Vote(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.votes.Toggle(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Locations godoc
// @Summary List campus locations
// @Tags Issues
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /locations [get]
func (h *IssueHandler) Locations(c *gin.Context) {
	locations, err := h.issues.Locations(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, locations, nil)
}
