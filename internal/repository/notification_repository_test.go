package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-attendance-api/internal/models"
)

func TestNotificationRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	defer sqlxDB.Close()
	repo := NewNotificationRepository(sqlxDB)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notifications (id, title, content, target_user_id, url, read, created_at)`)).
		WithArgs(sqlmock.AnyArg(), "Attendance conflict", "Ada", "u1", "https://app/x", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	notification := &models.Notification{Title: "Attendance conflict", Content: "Ada", TargetUserID: "u1", URL: "https://app/x"}
	require.NoError(t, repo.Create(context.Background(), notification))
	assert.NotEmpty(t, notification.ID)
	assert.False(t, notification.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	defer sqlxDB.Close()
	repo := NewNotificationRepository(sqlxDB)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notifications`)).WillReturnError(errors.New("boom"))

	err = repo.Create(context.Background(), &models.Notification{ID: "n1", TargetUserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create notification")
}
