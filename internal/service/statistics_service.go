package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/models"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
)

const monthLayout = "2006-01"

type statisticsMemberStore interface {
	ListByEntity(ctx context.Context, entity models.Entity, entityID string) ([]models.Member, error)
}

type statisticsFactStore interface {
	ListByMembers(ctx context.Context, filter models.AttendanceFactFilter) ([]models.AttendanceFact, error)
}

type statisticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// StatisticsService loads attendance for an entity and aggregates regularity buckets.
type StatisticsService struct {
	members   statisticsMemberStore
	facts     statisticsFactStore
	cache     statisticsCache
	validator *validator.Validate
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewStatisticsService builds the service; cache may be nil.
func NewStatisticsService(members statisticsMemberStore, facts statisticsFactStore, cache statisticsCache, validate *validator.Validate, ttl time.Duration, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	RegisterAttendanceValidations(validate)
	return &StatisticsService{
		members:   members,
		facts:     facts,
		cache:     cache,
		validator: validate,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
}

// RegisterAttendanceValidations adds the entity and attendance_kind tags.
func RegisterAttendanceValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("entity", func(fl validator.FieldLevel) bool {
		return models.Entity(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = validate.RegisterValidation("attendance_kind", func(fl validator.FieldLevel) bool {
		return models.AttendanceKind(strings.ToUpper(fl.Field().String())).Valid()
	})
}

// Statistics returns the regularity report of one entity for one month, reporting whether it came from cache.
func (s *StatisticsService) Statistics(ctx context.Context, req dto.StatisticsRequest) (*models.StatisticsReport, bool, error) {
	req.Entity = models.Entity(strings.ToUpper(string(req.Entity)))
	req.Kind = models.AttendanceKind(strings.ToUpper(string(req.Kind)))
	if req.Kind == "" {
		req.Kind = models.AttendanceKindChurch
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid statistics filter")
	}
	month, err := time.Parse(monthLayout, req.Month)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "month must use YYYY-MM")
	}

	key := statisticsCacheKey(req)
	if s.cache != nil {
		var cached models.StatisticsReport
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
	}

	window := models.MonthWindow(month.Year(), month.Month())
	members, err := s.members.ListByEntity(ctx, req.Entity, req.EntityID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load members")
	}

	input := make([]models.MemberAttendance, 0, len(members))
	if len(members) > 0 {
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		facts, err := s.facts.ListByMembers(ctx, models.AttendanceFactFilter{
			MemberIDs: ids,
			Entity:    req.Entity,
			EntityID:  req.EntityID,
			From:      window.From,
			To:        window.To,
		})
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		byMember := make(map[string][]models.AttendanceFact, len(members))
		for _, fact := range facts {
			byMember[fact.MemberID] = append(byMember[fact.MemberID], fact)
		}
		for _, m := range members {
			input = append(input, models.MemberAttendance{Member: m, Facts: byMember[m.ID]})
		}
	}

	report := Aggregate(input, AggregateOptions{
		Window:    window,
		Kind:      req.Kind,
		Entity:    req.Entity,
		EntityID:  req.EntityID,
		Breakdown: req.Breakdown,
	})
	report.GeneratedAt = s.now().UTC()

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, report, s.ttl)
	}
	return &report, false, nil
}

// Invalidate drops every cached report of the entity.
func (s *StatisticsService) Invalidate(ctx context.Context, entity models.Entity, entityID string) error {
	if s.cache == nil || entityID == "" {
		return nil
	}
	return s.cache.Invalidate(ctx, fmt.Sprintf("stats:%s:%s:*", entity, entityID))
}

func statisticsCacheKey(req dto.StatisticsRequest) string {
	return fmt.Sprintf("stats:%s:%s:%s:%s:%t", req.Entity, req.EntityID, req.Month, req.Kind, req.Breakdown)
}

// ToStatisticsResponse renders a report, dropping zero-count buckets.
func ToStatisticsResponse(report *models.StatisticsReport) dto.StatisticsResponse {
	resp := dto.StatisticsResponse{
		Entity:   report.Entity,
		EntityID: report.EntityID,
		Kind:     report.Kind,
		Month:    report.Window.From.Format(monthLayout),
		Total:    report.Overall.Total,
		Overall:  report.Overall.Visible(),
		Members:  report.Members,
	}
	if report.New != nil {
		resp.New = report.New.Visible()
	}
	if report.Old != nil {
		resp.Old = report.Old.Visible()
	}
	return resp
}
