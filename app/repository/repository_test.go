package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/database/dbtest"
)

var profileColumns = []string{"id", "user_id", "daily_usage_count", "last_usage_date", "created_at", "updated_at"}

func TestUsageProfileGetOrCreate(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewUsageProfileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `usage_profiles`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `usage_profiles` WHERE user_id = ?")).
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow(1, 7, 0, "", time.Now(), time.Now()))

	profile, err := repo.GetOrCreate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), profile.UserID)
	assert.Equal(t, 0, profile.DailyUsageCount)
	assert.Equal(t, "", profile.LastUsageDate)
}

func TestUsageProfileIncrementIsSingleStatement(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewUsageProfileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `usage_profiles`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE usage_profiles SET daily_usage_count = CASE WHEN last_usage_date = ? THEN daily_usage_count + 1 ELSE 1 END")).
		WithArgs("2026-03-01", "2026-03-01", sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `usage_profiles` WHERE user_id = ?")).
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow(1, 7, 3, "2026-03-01", time.Now(), time.Now()))

	profile, err := repo.Increment(context.Background(), 7, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 3, profile.DailyUsageCount)
	assert.Equal(t, "2026-03-01", profile.LastUsageDate)
}

func TestUsageProfileIncrementIfBelow(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "below limit", affected: 1, want: true},
		{name: "limit reached", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := dbtest.NewMock(t)
			repo := NewUsageProfileRepository(db)

			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `usage_profiles`")).
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec(regexp.QuoteMeta("AND (last_usage_date <> ? OR daily_usage_count < ?)")).
				WithArgs("2026-03-01", "2026-03-01", sqlmock.AnyArg(), 7, "2026-03-01", 10).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := repo.IncrementIfBelow(context.Background(), 7, "2026-03-01", 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestUsageProfileIncrementIfBelowZeroLimit(t *testing.T) {
	db, _ := dbtest.NewMock(t)
	repo := NewUsageProfileRepository(db)

	ok, err := repo.IncrementIfBelow(context.Background(), 7, "2026-03-01", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUsageProfileResetIfNewDay(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewUsageProfileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `usage_profiles`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE usage_profiles SET daily_usage_count = 0")).
		WithArgs("2026-03-02", sqlmock.AnyArg(), 7, "2026-03-02").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetIfNewDay(context.Background(), 7, "2026-03-02"))
}

func TestUsageProfileStorageError(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewUsageProfileRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `usage_profiles`")).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.Increment(context.Background(), 7, "2026-03-01")
	assert.Error(t, err)
}

func TestSubscriptionHasActive(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewSubscriptionRepository(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `subscriptions` WHERE user_id = ? AND active = ? AND end_date >= ?")).
		WithArgs(7, true, now).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(2))

	ok, err := repo.HasActive(context.Background(), 7, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubscriptionFindCurrentNone(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `subscriptions` WHERE user_id = ? AND active = ? AND end_date >= ? ORDER BY end_date DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	sub, err := repo.FindCurrent(context.Background(), 7, time.Now())
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestUserDelete(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `users` WHERE `users`.`id` = ?")).
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(7))
}

func TestUserCreateAndCount(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `users`")).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `users`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	user := &models.User{Name: "Listener", Email: "listener@example.com", Status: models.STATUS_ACTIVE}
	require.NoError(t, repo.Create(user))
	assert.Equal(t, uint(9), user.ID)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUserGetByEmailNotFound(t *testing.T) {
	db, mock := dbtest.NewMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `users` WHERE email = ?")).
		WithArgs("nobody@example.com", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByEmail("nobody@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
