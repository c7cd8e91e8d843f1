package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/church-attendance-api/internal/dto"
	"github.com/noah-isme/church-attendance-api/internal/models"
	appErrors "github.com/noah-isme/church-attendance-api/pkg/errors"
	"github.com/noah-isme/church-attendance-api/pkg/jobs"
)

// JobTypeConflictSweep identifies sweep jobs on the conflict queue.
const JobTypeConflictSweep = "conflict.sweep"

// ErrSweepIncomplete reports that at least one member could not be processed.
var ErrSweepIncomplete = errors.New("conflict sweep incomplete")

type conflictFactStore interface {
	ListForMember(ctx context.Context, memberID string) ([]models.AttendanceFact, error)
	MarkConflict(ctx context.Context, tribeFactID, departmentFactID string) (bool, error)
	MarkNotified(ctx context.Context, tribeFactID, departmentFactID string) error
	ResolveConflict(ctx context.Context, params models.ResolveConflictParams) ([]models.AttendanceFact, error)
	ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.ConflictCase, int, error)
}

type conflictMemberStore interface {
	ListWithBothEntities(ctx context.Context) ([]models.Member, error)
	ManagerFor(ctx context.Context, entity models.Entity, entityID string) (*models.EntityManager, error)
}

type notificationDispatcher interface {
	Enqueue(ctx context.Context, title, content, targetUserID, url string) error
}

type statisticsInvalidator interface {
	Invalidate(ctx context.Context, entity models.Entity, entityID string) error
}

type sweepDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ConflictServiceConfig tunes the sweep.
type ConflictServiceConfig struct {
	Workers   int
	PublicURL string
}

// ConflictServiceParams groups the collaborators of ConflictService.
type ConflictServiceParams struct {
	Facts      conflictFactStore
	Members    conflictMemberStore
	Notifier   notificationDispatcher
	Statistics statisticsInvalidator
	Queue      sweepDispatcher
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
	Config     ConflictServiceConfig
}

// ConflictService detects and resolves tribe/department attendance disagreements.
type ConflictService struct {
	facts     conflictFactStore
	members   conflictMemberStore
	notifier  notificationDispatcher
	stats     statisticsInvalidator
	queue     sweepDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ConflictServiceConfig
	locks     *keyedMutex
	now       func() time.Time
}

// NewConflictService constructs the conflict service.
func NewConflictService(params ConflictServiceParams) *ConflictService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	cfg := params.Config
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &ConflictService{
		facts:     params.Facts,
		members:   params.Members,
		notifier:  params.Notifier,
		stats:     params.Statistics,
		queue:     params.Queue,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// FindConflicts compares, per calendar day, the member's tribe fact with their department fact.
// Facts keep their fetch order; when a day holds several facts for one entity the first is
// compared and the day is returned in duplicates.
func FindConflicts(member models.Member, facts []models.AttendanceFact) (cases []models.ConflictCase, duplicates []string) {
	tribeID := member.EntityID(models.EntityTribe)
	departmentID := member.EntityID(models.EntityDepartment)
	if tribeID == "" || departmentID == "" {
		return nil, nil
	}

	type dayGroup struct {
		tribe      []models.AttendanceFact
		department []models.AttendanceFact
	}
	groups := make(map[string]*dayGroup)
	order := make([]string, 0)
	for _, fact := range facts {
		day := fact.Day()
		group, ok := groups[day]
		if !ok {
			group = &dayGroup{}
			groups[day] = group
			order = append(order, day)
		}
		switch {
		case fact.Entity == models.EntityTribe && fact.EntityID == tribeID:
			group.tribe = append(group.tribe, fact)
		case fact.Entity == models.EntityDepartment && fact.EntityID == departmentID:
			group.department = append(group.department, fact)
		}
	}

	for _, day := range order {
		group := groups[day]
		if len(group.tribe) == 0 || len(group.department) == 0 {
			continue
		}
		if len(group.tribe) > 1 || len(group.department) > 1 {
			duplicates = append(duplicates, day)
		}
		tribe, department := group.tribe[0], group.department[0]
		if !inChurchDiffers(tribe, department) {
			continue
		}
		cases = append(cases, models.ConflictCase{
			MemberID:       member.ID,
			MemberName:     member.FullName,
			Date:           models.DayStart(tribe.Date),
			TribeFact:      tribe,
			DepartmentFact: department,
		})
	}
	return cases, duplicates
}

func inChurchDiffers(a, b models.AttendanceFact) bool {
	if a.InChurch == nil || b.InChurch == nil {
		return false
	}
	return *a.InChurch != *b.InChurch
}

// DetectConflicts sweeps members concurrently, flags every new conflict and notifies its manager once.
// A failing member is logged and counted without stopping the others; the returned error then
// wraps ErrSweepIncomplete.
func (s *ConflictService) DetectConflicts(ctx context.Context, members []models.Member) (*models.SweepResult, error) {
	started := s.now()
	result := &models.SweepResult{Members: len(members), Conflicts: []models.ConflictCase{}, StartedAt: started.UTC()}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i := range members {
		if ctx.Err() != nil {
			break
		}
		member := members[i]
		g.Go(func() error {
			outcome := s.sweepMember(ctx, member)
			mu.Lock()
			result.Conflicts = append(result.Conflicts, outcome.conflicts...)
			result.Flagged += outcome.flagged
			if outcome.failed {
				result.Failures++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(started)
	s.metrics.ObserveConflictSweep(result.Duration, result.Flagged, result.Failures)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if result.Failures > 0 {
		return result, fmt.Errorf("%w: %d of %d members failed", ErrSweepIncomplete, result.Failures, result.Members)
	}
	return result, nil
}

type memberSweepOutcome struct {
	conflicts []models.ConflictCase
	flagged   int
	failed    bool
}

func (s *ConflictService) sweepMember(ctx context.Context, member models.Member) memberSweepOutcome {
	var outcome memberSweepOutcome
	facts, err := s.facts.ListForMember(ctx, member.ID)
	if err != nil {
		s.logger.Error("conflict sweep: list facts failed", zap.String("member_id", member.ID), zap.Error(err))
		outcome.failed = true
		return outcome
	}

	cases, duplicates := FindConflicts(member, facts)
	for _, day := range duplicates {
		s.logger.Warn("conflict sweep: several facts per entity on one day, comparing the first",
			zap.String("member_id", member.ID), zap.String("date", day))
	}

	for _, c := range cases {
		if ctx.Err() != nil {
			outcome.failed = true
			return outcome
		}
		day := models.DayKey(c.Date)
		if c.AlreadyFlagged() {
			outcome.conflicts = append(outcome.conflicts, c)
			if c.NotificationPending() {
				if err := s.completeNotification(ctx, member, c); err != nil {
					s.logger.Error("conflict sweep: pending notify failed",
						zap.String("member_id", member.ID), zap.String("date", day), zap.Error(err))
					outcome.failed = true
				}
			}
			continue
		}
		marked, err := s.markConflict(ctx, c)
		if err != nil {
			s.logger.Error("conflict sweep: mark failed",
				zap.String("member_id", member.ID), zap.String("date", day), zap.Error(err))
			outcome.failed = true
			continue
		}
		if !marked {
			s.logger.Debug("conflict sweep: facts changed before marking",
				zap.String("member_id", member.ID), zap.String("date", day))
			continue
		}
		c.TribeFact.HasConflict = true
		c.DepartmentFact.HasConflict = true
		outcome.conflicts = append(outcome.conflicts, c)
		outcome.flagged++

		if err := s.completeNotification(ctx, member, c); err != nil {
			s.logger.Error("conflict sweep: notify failed",
				zap.String("member_id", member.ID), zap.String("date", day), zap.Error(err))
			outcome.failed = true
		}
	}
	return outcome
}

func (s *ConflictService) markConflict(ctx context.Context, c models.ConflictCase) (bool, error) {
	unlock := s.locks.Lock(conflictLockKey(c.MemberID, models.DayKey(c.Date)))
	defer unlock()
	return s.facts.MarkConflict(ctx, c.TribeFact.ID, c.DepartmentFact.ID)
}

// completeNotification notifies the manager and then clears the pair's pending state. On failure the
// pair stays pending, so the next sweep of the member retries the notification.
func (s *ConflictService) completeNotification(ctx context.Context, member models.Member, c models.ConflictCase) error {
	unlock := s.locks.Lock(conflictLockKey(c.MemberID, models.DayKey(c.Date)))
	defer unlock()
	if err := s.notify(ctx, member, c); err != nil {
		return err
	}
	return s.facts.MarkNotified(ctx, c.TribeFact.ID, c.DepartmentFact.ID)
}

func (s *ConflictService) notify(ctx context.Context, member models.Member, c models.ConflictCase) error {
	if s.notifier == nil {
		return nil
	}
	manager, err := s.managerFor(ctx, member)
	if err != nil {
		return err
	}
	day := models.DayKey(c.Date)
	if manager == nil {
		s.logger.Warn("conflict sweep: no manager to notify", zap.String("member_id", member.ID), zap.String("date", day))
		return nil
	}
	title := "Attendance conflict"
	content := fmt.Sprintf("%s has different church attendance in the tribe and department reports for %s.", displayName(member), day)
	return s.notifier.Enqueue(ctx, title, content, manager.UserID, s.conflictURL(member.ID, day))
}

// managerFor prefers the tribe manager and falls back to the department manager.
func (s *ConflictService) managerFor(ctx context.Context, member models.Member) (*models.EntityManager, error) {
	for _, entity := range []models.Entity{models.EntityTribe, models.EntityDepartment} {
		manager, err := s.members.ManagerFor(ctx, entity, member.EntityID(entity))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("load %s manager: %w", strings.ToLower(string(entity)), err)
		}
		if manager != nil && manager.UserID != "" {
			return manager, nil
		}
	}
	return nil, nil
}

func (s *ConflictService) conflictURL(memberID, day string) string {
	query := url.Values{}
	query.Set("memberId", memberID)
	query.Set("date", day)
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/attendance/conflicts?" + query.Encode()
}

func displayName(member models.Member) string {
	if member.FullName != "" {
		return member.FullName
	}
	return "Member " + member.ID
}

// Sweep runs DetectConflicts over every member holding both a tribe and a department.
func (s *ConflictService) Sweep(ctx context.Context) (*models.SweepResult, error) {
	members, err := s.members.ListWithBothEntities(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCollaborator.Code, appErrors.ErrCollaborator.Status, "failed to load members for sweep")
	}
	return s.DetectConflicts(ctx, members)
}

// TriggerSweep enqueues an out-of-schedule sweep.
func (s *ConflictService) TriggerSweep(ctx context.Context) (*dto.SweepResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "conflict sweep is disabled")
	}
	job := jobs.Job{ID: fmt.Sprintf("sweep-%d", s.now().UnixNano()), Type: JobTypeConflictSweep}
	if err := s.queue.Enqueue(job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue conflict sweep")
	}
	return &dto.SweepResponse{JobID: job.ID, Status: "QUEUED"}, nil
}

// Resolve applies one agreed in-church value to both facts of a conflict and clears their flags.
func (s *ConflictService) Resolve(ctx context.Context, req dto.ResolveConflictRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if *req.TribeValue != *req.DepartmentValue {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tribe and department values must agree for %s", req.Date))
	}
	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "date must use YYYY-MM-DD")
	}

	unlock := s.locks.Lock(conflictLockKey(req.MemberID, req.Date))
	facts, err := s.facts.ResolveConflict(ctx, models.ResolveConflictParams{
		MemberID:         req.MemberID,
		TribeFactID:      req.TribeFactID,
		DepartmentFactID: req.DepartmentFactID,
		Date:             date,
		Value:            *req.TribeValue,
		Entity:           req.Entity,
		EntityID:         req.EntityID,
	})
	unlock()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("conflict for member %s on %s not found", req.MemberID, req.Date))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve conflict")
	}
	s.metrics.RecordConflictResolved()

	if s.stats != nil {
		for _, fact := range facts {
			if err := s.stats.Invalidate(ctx, fact.Entity, fact.EntityID); err != nil {
				s.logger.Warn("statistics invalidation failed", zap.String("entity", string(fact.Entity)), zap.String("entity_id", fact.EntityID), zap.Error(err))
			}
		}
	}
	return nil
}

// ListOpen returns flagged tribe/department pairs for review.
func (s *ConflictService) ListOpen(ctx context.Context, req dto.ConflictListRequest) ([]models.ConflictCase, *models.Pagination, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	cases, total, err := s.facts.ListConflicts(ctx, models.ConflictFilter{
		MemberID: req.MemberID,
		Entity:   req.Entity,
		EntityID: req.EntityID,
		From:     req.From,
		To:       req.To,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conflicts")
	}
	return cases, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

type conflictSweeper interface {
	Sweep(ctx context.Context) (*models.SweepResult, error)
}

// ConflictSweepWorker bridges queue jobs to ConflictService.Sweep.
type ConflictSweepWorker struct {
	sweeper conflictSweeper
	logger  *zap.Logger
}

// NewConflictSweepWorker constructs a worker.
func NewConflictSweepWorker(sweeper conflictSweeper, logger *zap.Logger) *ConflictSweepWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictSweepWorker{sweeper: sweeper, logger: logger}
}

// Handle processes a queue job. Incomplete sweeps are returned so the queue retries the batch.
func (w *ConflictSweepWorker) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeConflictSweep {
		return jobs.Permanent(fmt.Errorf("unexpected job type %q", job.Type))
	}
	result, err := w.sweeper.Sweep(ctx)
	if result != nil {
		w.logger.Info("conflict sweep finished",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Int("members", result.Members),
			zap.Int("conflicts", len(result.Conflicts)),
			zap.Int("flagged", result.Flagged),
			zap.Int("failures", result.Failures),
			zap.Duration("duration", result.Duration),
		)
	}
	return err
}
