package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/models"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
	"github.com/noah-isme/church-attendance-api/pkg/response"
)

type conflictService interface {
	ListOpen(ctx context.Context, req dto.ConflictListRequest) ([]models.ConflictCase, *models.Pagination, error)
	Resolve(ctx context.Context, req dto.ResolveConflictRequest) error
	TriggerSweep(ctx context.Context) (*dto.SweepResponse, error)
}

// ConflictHandler exposes the review and resolution of tribe/department attendance conflicts.
type ConflictHandler struct {
	conflicts conflictService
}

// NewConflictHandler constructs the handler.
func NewConflictHandler(conflicts conflictService) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts}
}

// List godoc
// @Summary List open attendance conflicts
// @Tags Conflicts
// @Produce json
// @Param memberId query string false "Member ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/conflicts [get]
func (h *ConflictHandler) List(c *gin.Context) {
	entity, entityID, err := conflictScope(claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	req := dto.ConflictListRequest{MemberID: strings.TrimSpace(c.Query("memberId")), Entity: entity, EntityID: entityID}
	if req.Page, err = intQuery(c, "page"); err != nil {
		response.Error(c, err)
		return
	}
	if req.PageSize, err = intQuery(c, "limit"); err != nil {
		response.Error(c, err)
		return
	}
	if req.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if req.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	cases, pagination, err := h.conflicts.ListOpen(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cases, pagination)
}

// Resolve godoc
// @Summary Resolve an attendance conflict
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.ResolveConflictRequest true "Agreed values"
// @Success 204
// @Router /attendance/conflicts/resolve [post]
func (h *ConflictHandler) Resolve(c *gin.Context) {
	entity, entityID, err := conflictScope(claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolve payload"))
		return
	}
	req.Entity, req.EntityID = entity, entityID
	if err := h.conflicts.Resolve(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Sweep godoc
// @Summary Queue a conflict detection sweep
// @Tags Conflicts
// @Produce json
// @Success 202 {object} response.Envelope
// @Router /attendance/conflicts/sweep [post]
func (h *ConflictHandler) Sweep(c *gin.Context) {
	result, err := h.conflicts.TriggerSweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result)
}

// conflictScope leaves admins unscoped and limits managers to conflicts touching their own entity.
func conflictScope(claims *models.JWTClaims) (models.Entity, string, error) {
	if claims == nil {
		return "", "", appErrors.ErrUnauthorized
	}
	switch {
	case claims.Role == models.RoleSuperAdmin || claims.Role == models.RoleAdmin:
		return "", "", nil
	case claims.Role == models.RoleTribeManager && claims.EntityID != "":
		return models.EntityTribe, claims.EntityID, nil
	case claims.Role == models.RoleDepartmentManager && claims.EntityID != "":
		return models.EntityDepartment, claims.EntityID, nil
	}
	return "", "", appErrors.Clone(appErrors.ErrForbidden, "conflicts outside your responsibility")
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return value, nil
}

func dateQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must use YYYY-MM-DD")
	}
	return &value, nil
}
