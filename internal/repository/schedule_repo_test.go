package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bizdesk/internal/models"
	"bizdesk/internal/pkg/testdb"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedSchedule(t *testing.T, repo *ScheduleRepository, status string, next *time.Time) *models.RecurringSchedule {
	t.Helper()
	dow := 2
	s := &models.RecurringSchedule{
		BusinessID:  "biz-1",
		CustomerID:  "cust-1",
		Frequency:   "weekly",
		Interval:    1,
		DayOfWeek:   &dow,
		StartDate:   date(2026, 10, 20),
		NextRunDate: next,
		JobTitle:    "Window cleaning",
		Status:      status,
		Items: []models.RecurringScheduleItem{
			{Position: 1, Description: "second"},
			{Position: 0, Description: "first"},
		},
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func ptr(t time.Time) *time.Time { return &t }

func TestScheduleCreateAndFind(t *testing.T) {
	repo := NewScheduleRepository(testdb.New(t))
	s := seedSchedule(t, repo, models.ScheduleActive, ptr(date(2026, 10, 20)))
	require.NotEmpty(t, s.ID)

	got, err := repo.FindByID(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "first", got.Items[0].Description)
	assert.Equal(t, s.ID, got.Items[0].ScheduleID)
	assert.True(t, got.NextRunDate.Equal(date(2026, 10, 20)))

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListDue(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(testdb.New(t))

	late := seedSchedule(t, repo, models.ScheduleActive, ptr(date(2026, 10, 1)))
	today := seedSchedule(t, repo, models.ScheduleActive, ptr(date(2026, 10, 18)))
	seedSchedule(t, repo, models.ScheduleActive, ptr(date(2026, 10, 19)))
	seedSchedule(t, repo, models.SchedulePaused, ptr(date(2026, 10, 1)))
	seedSchedule(t, repo, models.ScheduleCompleted, nil)

	due, err := repo.ListDue(ctx, date(2026, 10, 18), 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, late.ID, due[0].ID)
	assert.Equal(t, today.ID, due[1].ID)

	due, err = repo.ListDue(ctx, date(2026, 10, 18), 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestCompareAndSwapNextRun(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(testdb.New(t))
	s := seedSchedule(t, repo, models.ScheduleActive, ptr(date(2026, 10, 20)))

	ok, err := repo.CompareAndSwapNextRun(ctx, s.ID, ptr(date(2026, 10, 27)), ptr(date(2026, 11, 3)))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.CompareAndSwapNextRun(ctx, s.ID, ptr(date(2026, 10, 20)), ptr(date(2026, 10, 27)))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRunDate.Equal(date(2026, 10, 27)))
	assert.Equal(t, s.Version+1, got.Version)
}

func TestUpdateStatusIsGuarded(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(testdb.New(t))
	s := seedSchedule(t, repo, models.ScheduleActive, ptr(date(2026, 10, 20)))

	ok, err := repo.UpdateStatus(ctx, s.ID, models.SchedulePaused, models.ScheduleActive, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.UpdateStatus(ctx, s.ID, models.ScheduleActive, models.ScheduleCancelled, map[string]interface{}{"next_run_date": nil})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleCancelled, got.Status)
	assert.Nil(t, got.NextRunDate)
}

func TestAcquireClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(testdb.New(t))
	occurrence := date(2026, 10, 20)
	s := seedSchedule(t, repo, models.ScheduleActive, &occurrence)
	paused := seedSchedule(t, repo, models.SchedulePaused, &occurrence)

	now := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

	ok, err := repo.AcquireClaim(ctx, paused.ID, occurrence, "t0", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "paused schedules are not claimable")

	ok, err = repo.AcquireClaim(ctx, s.ID, occurrence, "t1", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AcquireClaim(ctx, s.ID, occurrence, "t2", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.ReleaseClaim(ctx, s.ID, "t2"))
	got, err := repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ClaimToken)
	assert.Equal(t, "t1", *got.ClaimToken)
	assert.True(t, got.ClaimFor.Equal(occurrence))

	require.NoError(t, repo.ReleaseClaim(ctx, s.ID, "t1"))
	got, err = repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ClaimToken)
	assert.Nil(t, got.ClaimFor)
}

func TestInsertHistoryUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewScheduleRepository(testdb.New(t))
	s := seedSchedule(t, repo, models.ScheduleActive, ptr(date(2026, 10, 20)))

	const n = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	dupes, inserted := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InsertHistory(ctx, &models.RecurringJobHistory{
				ScheduleID:   s.ID,
				ScheduledFor: date(2026, 10, 20),
				JobID:        "job",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, ErrDuplicateOccurrence):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, n-1, dupes)

	count, err := repo.CountHistory(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	h, err := repo.FindHistory(ctx, s.ID, date(2026, 10, 20))
	require.NoError(t, err)
	assert.Equal(t, "job", h.JobID)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestAcquireClaimSQL(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)
	occurrence := date(2026, 10, 20)
	now := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE .recurring_schedules. SET .claim_expires_at.=\?,.claim_for.=\?,.claim_token.=\?,.updated_at.=\? ` +
		`WHERE .*id = \? AND status = \? AND next_run_date = \?.* AND .*claim_token IS NULL OR claim_expires_at < \?`).
		WithArgs(now.Add(time.Minute), occurrence, "tok", sqlmock.AnyArg(), "s1", models.ScheduleActive, occurrence, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.AcquireClaim(context.Background(), "s1", occurrence, "tok", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceCursorSQL(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE `recurring_schedules` SET `status`=?,`total_jobs_created`=total_jobs_created + 1,`version`=version + 1,`updated_at`=? WHERE id = ? AND version = ?")).
		WithArgs(models.ScheduleCompleted, sqlmock.AnyArg(), "s1", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.AdvanceCursor(context.Background(), "s1", 4, map[string]interface{}{"status": models.ScheduleCompleted})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertHistoryMapsDuplicateKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db)

	mock.ExpectExec("INSERT INTO `recurring_job_history`").
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry 's1-2026-10-20' for key 'ux_recurring_job_history_occurrence'"))

	err := repo.InsertHistory(context.Background(), &models.RecurringJobHistory{
		ScheduleID:   "s1",
		ScheduledFor: date(2026, 10, 20),
		JobID:        "j1",
	})
	assert.ErrorIs(t, err, ErrDuplicateOccurrence)
	assert.NoError(t, mock.ExpectationsWereMet())
}
