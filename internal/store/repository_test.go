// internal/store/repository_test.go
package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"subtrack-notifier/internal/common/errors"
	"subtrack-notifier/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscriptionColumns() []string {
	return []string{"id", "owner_id", "title", "amount", "recurrence", "start_date", "notifications_enabled", "expo_token"}
}

func TestListNotificationsEnabled_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(subscriptionColumns()).
		AddRow("sub-1", "user-1", "Netflix", 15.99, "monthly", start, true, "ExponentPushToken[abc]").
		AddRow("sub-2", "user-2", "Gym", 30.0, "weekly", start, true, "")

	mock.ExpectQuery("SELECT id, owner_id, title").
		WithArgs("", 100).
		WillReturnRows(rows)

	repo := NewPostgresSubscriptionRepository(db)
	subs, err := repo.ListNotificationsEnabled(context.Background(), "", 100)
	require.NoError(t, err)

	require.Len(t, subs, 2)
	assert.Equal(t, "sub-1", subs[0].ID)
	assert.Equal(t, models.RecurrenceMonthly, subs[0].Recurrence)
	assert.Equal(t, "ExponentPushToken[abc]", subs[0].ExpoToken)
	assert.Equal(t, models.RecurrenceWeekly, subs[1].Recurrence)
	assert.Empty(t, subs[1].ExpoToken, "NULL token coalesces to empty string")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotificationsEnabled_KeysetPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, owner_id, title").
		WithArgs("sub-7", 50).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns()))

	repo := NewPostgresSubscriptionRepository(db)
	subs, err := repo.ListNotificationsEnabled(context.Background(), "sub-7", 50)
	require.NoError(t, err)
	assert.Empty(t, subs)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotificationsEnabled_CorruptRecurrenceIsCarriedThrough(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(subscriptionColumns()).
		AddRow("sub-3", "user-3", "Mystery", 5.0, "fortnightly", start, true, "ExponentPushToken[xyz]")

	mock.ExpectQuery("SELECT id, owner_id, title").
		WithArgs("", 100).
		WillReturnRows(rows)

	repo := NewPostgresSubscriptionRepository(db)
	subs, err := repo.ListNotificationsEnabled(context.Background(), "", 100)
	require.NoError(t, err)

	require.Len(t, subs, 1)
	assert.False(t, subs[0].Recurrence.Valid(), "unknown value survives the read and fails downstream")
}

func TestListNotificationsEnabled_QueryErrorIsRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, owner_id, title").
		WithArgs("", 100).
		WillReturnError(fmt.Errorf("connection refused"))

	repo := NewPostgresSubscriptionRepository(db)
	_, err = repo.ListNotificationsEnabled(context.Background(), "", 100)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSubscriptionLoadFailed, errors.CodeOf(err))
	assert.True(t, errors.IsRetryable(err))
}
