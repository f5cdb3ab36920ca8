package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

func ptr[T any](v T) *T { return &v }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	manager := &models.User{ID: "m1", Email: "m@example.com", Role: models.RoleManager, IsActive: true, CreatedAt: base}
	employee := &models.User{ID: "e1", Email: "e@example.com", Role: models.RoleEmployee, ManagerID: ptr("m1"), IsActive: true, CreatedAt: base.Add(time.Minute)}
	require.NoError(t, s.CreateUser(ctx, manager))
	require.NoError(t, s.CreateUser(ctx, employee))

	t.Run("duplicate email is rejected case-insensitively", func(t *testing.T) {
		err := s.CreateUser(ctx, &models.User{ID: "x", Email: "M@Example.com"})
		assert.ErrorIs(t, err, storage.ErrDuplicateEmail)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		u, err := s.GetUserByID(ctx, "e1")
		require.NoError(t, err)
		*u.ManagerID = "tampered"

		again, err := s.GetUserByEmail(ctx, "e@example.com")
		require.NoError(t, err)
		assert.Equal(t, "m1", *again.ManagerID)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := s.GetUserByID(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list applies scope", func(t *testing.T) {
		users, total, err := s.ListUsers(ctx, storage.UserQuery{
			Scope: access.UserScope{SelfID: "e1"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "e1", users[0].ID)

		users, total, err = s.ListUsers(ctx, storage.UserQuery{
			Scope: access.UserScope{SelfID: "m1", ManagerID: "m1"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, "e1", users[0].ID, "newest first")
	})

	t.Run("team size", func(t *testing.T) {
		n, err := s.CountTeamMembers(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestUserUpdatesWriteOnlyTheirColumns(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, &models.User{
		ID:        "e1",
		Name:      "Eli",
		Email:     "e@example.com",
		Password:  "old-hash",
		Role:      models.RoleEmployee,
		ManagerID: ptr("m1"),
		IsActive:  true,
	}))
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "x1", Email: "x@example.com"}))

	require.NoError(t, s.SetUserPassword(ctx, "e1", "new-hash", base))
	deactivated, err := s.DeactivateUser(ctx, "e1", base)
	require.NoError(t, err)
	assert.True(t, deactivated)

	u, err := s.UpdateUser(ctx, "e1", storage.UserUpdate{Phone: ptr("+1 555 0100"), UpdatedAt: base})
	require.NoError(t, err)
	assert.Equal(t, "+1 555 0100", u.Phone)
	assert.Equal(t, "new-hash", u.Password)
	assert.False(t, u.IsActive)
	assert.Equal(t, "m1", *u.ManagerID)

	deactivated, err = s.DeactivateUser(ctx, "e1", base)
	require.NoError(t, err)
	assert.False(t, deactivated)

	u, err = s.UpdateUser(ctx, "e1", storage.UserUpdate{ClearManagerID: true, Email: ptr("eli@example.com")})
	require.NoError(t, err)
	assert.Nil(t, u.ManagerID)
	_, err = s.GetUserByEmail(ctx, "e@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.UpdateUser(ctx, "e1", storage.UserUpdate{Email: ptr("X@example.com")})
	assert.ErrorIs(t, err, storage.ErrDuplicateEmail)

	_, err = s.UpdateUser(ctx, "nope", storage.UserUpdate{Name: ptr("x")})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.DeactivateUser(ctx, "nope", base)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateTaskWritesOnlyPatchedColumns(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateTask(ctx, &models.Task{ID: "t", Title: "Report", AssignedTo: "e", Status: models.StatusPending}))

	_, err := s.ReassignOpenTasks(ctx, "e", "m", base)
	require.NoError(t, err)

	task, err := s.UpdateTask(ctx, "t", storage.TaskUpdate{ActualHours: ptr(2.5), UpdatedAt: base})
	require.NoError(t, err)
	assert.Equal(t, "m", task.AssignedTo)
	assert.Equal(t, "Report", task.Title)
	assert.Equal(t, 2.5, *task.ActualHours)

	require.NoError(t, s.ArchiveTask(ctx, "t", base))
	_, err = s.UpdateTask(ctx, "t", storage.TaskUpdate{Title: ptr("x")})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegisterLoginFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, &models.User{ID: "u", Email: "u@example.com", IsActive: true}))

	const threshold = 3
	lockout := 30 * time.Minute

	for i := 1; i < threshold; i++ {
		res, err := s.RegisterLoginFailure(ctx, "u", base, threshold, lockout)
		require.NoError(t, err)
		assert.Equal(t, i, res.Attempts)
		assert.Nil(t, res.LockUntil)
	}

	res, err := s.RegisterLoginFailure(ctx, "u", base, threshold, lockout)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.LockUntil)
	assert.Equal(t, base.Add(lockout), *res.LockUntil)

	res, err = s.RegisterLoginFailure(ctx, "u", base.Add(time.Minute), threshold, lockout)
	require.NoError(t, err)
	assert.False(t, res.Applied, "locked accounts are not incremented")
	assert.Equal(t, threshold, res.Attempts)

	res, err = s.RegisterLoginFailure(ctx, "u", base.Add(lockout+time.Second), threshold, lockout)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, res.Attempts, "an expired lock starts a fresh window")
	assert.Nil(t, res.LockUntil)

	require.NoError(t, s.RegisterLoginSuccess(ctx, "u", base.Add(time.Hour)))
	u, err := s.GetUserByID(ctx, "u")
	require.NoError(t, err)
	assert.Zero(t, u.LoginAttempts)
	assert.Nil(t, u.LockUntil)
	assert.Equal(t, base.Add(time.Hour), *u.LastLogin)
}

func TestApplyTransitionSetsTimestampsOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateTask(ctx, &models.Task{ID: "t", Status: models.StatusInProgress}))

	first := base
	_, err := s.ApplyTransition(ctx, storage.Transition{TaskID: "t", Status: models.StatusCompleted, ChangedBy: "e", ChangedAt: first})
	require.NoError(t, err)
	_, err = s.ApplyTransition(ctx, storage.Transition{TaskID: "t", Status: models.StatusPending, ChangedBy: "m", ChangedAt: first.Add(time.Hour)})
	require.NoError(t, err)
	task, err := s.ApplyTransition(ctx, storage.Transition{TaskID: "t", Status: models.StatusCompleted, ChangedBy: "e", ChangedAt: first.Add(2 * time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, first, *task.CompletedAt)
	assert.Len(t, task.StatusHistory, 3)
}

func TestReassignOpenTasks(t *testing.T) {
	ctx := context.Background()
	s := New()
	for id, st := range map[string]models.TaskStatus{
		"a": models.StatusPending,
		"b": models.StatusInProgress,
		"c": models.StatusCompleted,
	} {
		require.NoError(t, s.CreateTask(ctx, &models.Task{ID: id, AssignedTo: "e", Status: st}))
	}

	ids, err := s.ReassignOpenTasks(ctx, "e", "m", base)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	c, err := s.GetTaskByID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "e", c.AssignedTo)
}

func TestAuditQueries(t *testing.T) {
	ctx := context.Background()
	s := New()

	entry := func(id string, at time.Time, action models.AuditAction, sev models.Severity, ip string, success bool) {
		require.NoError(t, s.InsertAuditEntry(ctx, &models.AuditEntry{
			ID:        id,
			ActorID:   ptr("u"),
			Action:    action,
			Severity:  sev,
			Category:  models.CategoryUserAction,
			IPAddress: ip,
			Success:   success,
			CreatedAt: at,
		}))
	}
	entry("1", base.Add(-100*24*time.Hour), models.AuditTaskCreated, models.SeverityLow, "", true)
	entry("2", base.Add(-100*24*time.Hour), models.AuditUserDeactivated, models.SeverityHigh, "", true)
	entry("3", base.Add(-time.Hour), models.AuditFailedLogin, models.SeverityMedium, "10.0.0.1", false)
	entry("4", base.Add(-30*time.Minute), models.AuditFailedLogin, models.SeverityMedium, "10.0.0.1", false)
	entry("5", base.Add(-20*time.Minute), models.AuditFailedLogin, models.SeverityMedium, "10.0.0.2", false)
	entry("6", base, models.AuditTaskUpdated, models.SeverityLow, "", true)

	t.Run("newest first", func(t *testing.T) {
		entries, total, err := s.ListAuditEntries(ctx, storage.AuditQuery{ActorID: ptr("u"), Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 6, total)
		assert.Equal(t, "6", entries[0].ID)
		assert.Equal(t, "5", entries[1].ID)
	})

	t.Run("security only", func(t *testing.T) {
		_, total, err := s.ListAuditEntries(ctx, storage.AuditQuery{SecurityOnly: true})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
	})

	t.Run("failed logins by ip", func(t *testing.T) {
		counts, err := s.FailedLoginsByIP(ctx, base.Add(-2*time.Hour), 2)
		require.NoError(t, err)
		require.Len(t, counts, 1)
		assert.Equal(t, "10.0.0.1", counts[0].IPAddress)
		assert.Equal(t, 2, counts[0].Attempts)
		assert.Equal(t, base.Add(-30*time.Minute), counts[0].LastAttempt)
	})

	t.Run("daily activity", func(t *testing.T) {
		days, err := s.DailyActivity(ctx, "u", base.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, days, 1)
		assert.Equal(t, 4, days[0].Count)
	})

	t.Run("summary", func(t *testing.T) {
		sum, err := s.ActivitySummary(ctx, base.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, sum, 2)
		assert.Equal(t, models.ActionSummary{Action: models.AuditFailedLogin, Total: 3, Failed: 3}, sum[0])
	})

	t.Run("retention spares high severity", func(t *testing.T) {
		n, err := s.DeleteAuditEntriesBefore(ctx, base.Add(-90*24*time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, total, err := s.ListAuditEntries(ctx, storage.AuditQuery{})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
	})
}
