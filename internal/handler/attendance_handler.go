package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/middleware"
	"github.com/noah-isme/church-attendance-api/internal/models"
	"github.com/noah-isme/church-attendance-api/internal/service"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
	"github.com/noah-isme/church-attendance-api/pkg/response"
)

type statisticsService interface {
	Statistics(ctx context.Context, req dto.StatisticsRequest) (*models.StatisticsReport, bool, error)
}

type statisticsExporter interface {
	ExportStatistics(ctx context.Context, req dto.ExportStatisticsRequest) (*dto.ExportResponse, error)
}

// AttendanceHandler exposes regularity statistics endpoints.
type AttendanceHandler struct {
	stats   statisticsService
	exports statisticsExporter
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(stats statisticsService, exports statisticsExporter) *AttendanceHandler {
	return &AttendanceHandler{stats: stats, exports: exports}
}

// Statistics godoc
// @Summary Attendance regularity statistics
// @Tags Attendance
// @Produce json
// @Param entity query string true "TRIBE, DEPARTMENT or HONOR_FAMILY"
// @Param entityId query string true "Entity ID"
// @Param month query string true "Month (YYYY-MM)"
// @Param kind query string false "CHURCH, SERVICE or MEETING"
// @Param breakdown query bool false "Split new and existing members"
// @Success 200 {object} response.Envelope
// @Router /attendance/statistics [get]
func (h *AttendanceHandler) Statistics(c *gin.Context) {
	req, err := statisticsRequestFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authorizeEntity(claimsFromContext(c), req.Entity, req.EntityID); err != nil {
		response.Error(c, err)
		return
	}
	report, cached, err := h.stats.Statistics(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	meta := middleware.ResponseMeta(c)
	meta["generated_at"] = report.GeneratedAt
	response.JSON(c, http.StatusOK, service.ToStatisticsResponse(report), nil, meta)
}

// Export godoc
// @Summary Export attendance regularity statistics
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.ExportStatisticsRequest true "Statistics filters and format"
// @Success 201 {object} response.Envelope
// @Router /attendance/statistics/export [post]
func (h *AttendanceHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	var req dto.ExportStatisticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}
	req.Entity = models.Entity(strings.ToUpper(string(req.Entity)))
	if err := authorizeEntity(claimsFromContext(c), req.Entity, req.EntityID); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exports.ExportStatistics(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func statisticsRequestFromQuery(c *gin.Context) (dto.StatisticsRequest, error) {
	req := dto.StatisticsRequest{
		Entity:   models.Entity(strings.ToUpper(strings.TrimSpace(c.Query("entity")))),
		EntityID: strings.TrimSpace(c.Query("entityId")),
		Month:    strings.TrimSpace(c.Query("month")),
		Kind:     models.AttendanceKind(strings.ToUpper(strings.TrimSpace(c.Query("kind")))),
	}
	if raw := c.Query("breakdown"); raw != "" {
		breakdown, err := strconv.ParseBool(raw)
		if err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "breakdown must be a boolean")
		}
		req.Breakdown = breakdown
	}
	return req, nil
}

// authorizeEntity lets administrators read any entity and managers only the entity they manage.
func authorizeEntity(claims *models.JWTClaims, entity models.Entity, entityID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	switch claims.Role {
	case models.RoleSuperAdmin, models.RoleAdmin:
		return nil
	case models.RoleTribeManager:
		if entity == models.EntityTribe && entityID == claims.EntityID {
			return nil
		}
	case models.RoleDepartmentManager:
		if entity == models.EntityDepartment && entityID == claims.EntityID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "entity outside your responsibility")
}
