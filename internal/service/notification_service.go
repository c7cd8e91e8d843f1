package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/church-attendance-api/internal/models"
	"github.com/noah-isme/church-attendance-api/pkg/jobs"
)

// JobTypeNotification identifies notification jobs.
const JobTypeNotification = "notification.deliver"

type notificationQueue interface {
	Enqueue(job jobs.Job) error
}

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// NotificationService hands notifications to the background queue.
type NotificationService struct {
	queue  notificationQueue
	logger *zap.Logger
	now    func() time.Time
}

// NewNotificationService constructs the service.
func NewNotificationService(queue notificationQueue, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger, now: time.Now}
}

// Enqueue schedules delivery; it returns once the job is queued.
func (s *NotificationService) Enqueue(ctx context.Context, title, content, targetUserID, url string) error {
	if strings.TrimSpace(targetUserID) == "" {
		return errors.New("notification target required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	notification := models.Notification{
		ID:           uuid.NewString(),
		Title:        title,
		Content:      content,
		TargetUserID: targetUserID,
		URL:          url,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.queue.Enqueue(jobs.Job{ID: notification.ID, Type: JobTypeNotification, Payload: notification}); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	s.logger.Debug("notification queued", zap.String("notification_id", notification.ID), zap.String("target_user_id", targetUserID))
	return nil
}

// NotificationWorker persists queued notifications.
type NotificationWorker struct {
	repo    notificationStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(repo notificationStore, metrics *MetricsService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{repo: repo, metrics: metrics, logger: logger}
}

// Handle processes a queue job; errors are retried by the queue.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		return jobs.Permanent(fmt.Errorf("notification job %s: unexpected payload %T", job.ID, job.Payload))
	}
	if err := w.repo.Create(ctx, &notification); err != nil {
		w.metrics.RecordNotification(false)
		w.logger.Warn("persist notification failed",
			zap.String("notification_id", notification.ID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err))
		return err
	}
	w.metrics.RecordNotification(true)
	return nil
}
