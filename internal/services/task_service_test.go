package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

func TestTransitionTask_Grid(t *testing.T) {
	type actorKey int
	const (
		admin actorKey = iota
		assignor
		assignee
		teamOwner
		outsider
		outsiderManager
	)

	tests := []struct {
		name    string
		from    models.TaskStatus
		to      models.TaskStatus
		reason  string
		actor   actorKey
		wantErr error
	}{
		{"assignee starts", models.StatusPending, models.StatusInProgress, "", assignee, nil},
		{"assignor cannot start", models.StatusPending, models.StatusInProgress, "", assignor, ErrPermissionDenied},
		{"admin cannot start", models.StatusPending, models.StatusInProgress, "", admin, ErrPermissionDenied},
		{"team owner cannot start", models.StatusPending, models.StatusInProgress, "", teamOwner, ErrPermissionDenied},
		{"assignee completes", models.StatusInProgress, models.StatusCompleted, "", assignee, nil},
		{"assignor cannot complete", models.StatusInProgress, models.StatusCompleted, "", assignor, ErrPermissionDenied},
		{"assignee reopens in progress", models.StatusInProgress, models.StatusPending, "", assignee, nil},
		{"assignor approves", models.StatusCompleted, models.StatusApproved, "", assignor, nil},
		{"admin approves", models.StatusCompleted, models.StatusApproved, "", admin, nil},
		{"team owner approves", models.StatusCompleted, models.StatusApproved, "", teamOwner, nil},
		{"assignee cannot approve", models.StatusCompleted, models.StatusApproved, "", assignee, ErrPermissionDenied},
		{"assignor rejects with reason", models.StatusCompleted, models.StatusRejected, "missing tests", assignor, nil},
		{"assignee cannot reject", models.StatusCompleted, models.StatusRejected, "nope", assignee, ErrPermissionDenied},
		{"reject without reason", models.StatusCompleted, models.StatusRejected, "  ", assignor, ErrValidationFailed},
		{"assignor reopens completed", models.StatusCompleted, models.StatusPending, "", assignor, nil},
		{"assignee reopens rejected", models.StatusRejected, models.StatusPending, "", assignee, nil},
		{"team owner reopens rejected", models.StatusRejected, models.StatusPending, "", teamOwner, nil},
		{"skip to completed", models.StatusPending, models.StatusCompleted, "", assignee, ErrInvalidTransition},
		{"approved is terminal", models.StatusApproved, models.StatusPending, "", admin, ErrInvalidTransition},
		{"rejected cannot be approved", models.StatusRejected, models.StatusApproved, "", assignor, ErrInvalidTransition},
		{"same status", models.StatusInProgress, models.StatusInProgress, "", assignee, ErrInvalidTransition},
		{"reason checked before transition", models.StatusApproved, models.StatusRejected, "", assignor, ErrValidationFailed},
		{"unknown status", models.StatusPending, models.TaskStatus("done"), "", assignee, ErrValidationFailed},
		{"unrelated employee", models.StatusPending, models.StatusInProgress, "", outsider, ErrPermissionDenied},
		{"unrelated employee with unknown status", models.StatusPending, models.TaskStatus("done"), "", outsider, ErrPermissionDenied},
		{"unrelated manager", models.StatusCompleted, models.StatusApproved, "", outsiderManager, ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			// The admin assigns so that the manager relates to the task only
			// as team owner; the assignor case uses a manager-created task.
			creator := f.manager
			if tt.actor == teamOwner {
				creator = f.admin
			}
			task := f.seedTask(t, "t1", creator, f.employee, tt.from)

			actors := map[actorKey]*models.User{
				admin:           f.admin,
				assignor:        f.manager,
				assignee:        f.employee,
				teamOwner:       f.manager,
				outsider:        f.otherEmployee,
				outsiderManager: f.otherManager,
			}

			got, err := f.tasks.TransitionTask(f.ctx, actors[tt.actor], TransitionTaskParams{
				TaskID:          task.ID,
				Status:          tt.to,
				RejectionReason: tt.reason,
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				stored, err := f.store.GetTaskByID(f.ctx, task.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.from, stored.Status)
				assert.Len(t, stored.StatusHistory, 1)

				denials := f.auditEntries(t, models.AuditPermissionDenied)
				if tt.wantErr == ErrPermissionDenied {
					require.Len(t, denials, 1)
					assert.Equal(t, models.CategorySecurity, denials[0].Category)
					assert.Equal(t, models.SeverityMedium, denials[0].Severity)
					assert.False(t, denials[0].Success)
				} else {
					assert.Empty(t, denials)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, got.Status)
			require.Len(t, got.StatusHistory, 2)
			assert.Equal(t, tt.to, got.StatusHistory[1].Status)
			assert.Equal(t, actors[tt.actor].ID, got.StatusHistory[1].ChangedBy)
			assert.Len(t, f.auditEntries(t, models.AuditTaskStatusChanged), 1)
			assert.Len(t, f.events.Events(), 1)
		})
	}
}

func TestTransitionTask_MissingTask(t *testing.T) {
	f := newFixture(t)

	_, err := f.tasks.TransitionTask(f.ctx, f.admin, TransitionTaskParams{
		TaskID: "missing",
		Status: models.StatusInProgress,
	})
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionTask_Lifecycle(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(t, "t1", f.manager, f.employee, models.StatusPending)

	step := func(actor *models.User, to models.TaskStatus, reason string) *models.Task {
		t.Helper()
		f.clock.Advance(time.Hour)
		got, err := f.tasks.TransitionTask(f.ctx, actor, TransitionTaskParams{
			TaskID:          task.ID,
			Status:          to,
			Comment:         "step",
			RejectionReason: reason,
		})
		require.NoError(t, err)
		return got
	}

	step(f.employee, models.StatusInProgress, "")
	completed := step(f.employee, models.StatusCompleted, "")
	require.NotNil(t, completed.CompletedAt)
	firstCompletion := *completed.CompletedAt

	rejected := step(f.manager, models.StatusRejected, "needs docs")
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "needs docs", *rejected.RejectionReason)
	assert.Equal(t, f.manager.ID, *rejected.RejectedBy)
	assert.Equal(t, models.StatusCompleted, mustPrevious(t, rejected))

	step(f.employee, models.StatusPending, "")
	step(f.employee, models.StatusInProgress, "")
	recompleted := step(f.employee, models.StatusCompleted, "")
	assert.True(t, firstCompletion.Equal(*recompleted.CompletedAt), "completedAt is set once")

	approved := step(f.manager, models.StatusApproved, "")
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, f.manager.ID, *approved.ApprovedBy)
	assert.True(t, approved.ApprovedAt.Equal(f.clock.Now()))

	assert.Len(t, approved.StatusHistory, 8)
	assert.Len(t, f.auditEntries(t, models.AuditTaskStatusChanged), 7)

	events := f.events.Events()
	require.Len(t, events, 7)
	wantEvents := []struct {
		typ    models.EventType
		target string
	}{
		{models.EventTaskStarted, f.manager.ID},
		{models.EventTaskCompleted, f.manager.ID},
		{models.EventTaskRejected, f.employee.ID},
		{models.EventTaskReopened, f.manager.ID},
		{models.EventTaskStarted, f.manager.ID},
		{models.EventTaskCompleted, f.manager.ID},
		{models.EventTaskApproved, f.employee.ID},
	}
	for i, want := range wantEvents {
		assert.Equal(t, want.typ, events[i].Type, "event %d", i)
		assert.Equal(t, want.target, events[i].TargetUserID, "event %d", i)
		assert.Equal(t, task.ID, events[i].TaskID)
	}
}

func mustPrevious(t *testing.T, task *models.Task) models.TaskStatus {
	t.Helper()
	prev, ok := task.PreviousStatus()
	require.True(t, ok)
	return prev
}

// staleTaskStore serves a fixed snapshot to reads so that two transitions
// observe the same starting state, as two concurrent requests would.
type staleTaskStore struct {
	storage.TaskStore
	snapshot *models.Task
}

func (s *staleTaskStore) GetTaskByID(_ context.Context, _ string) (*models.Task, error) {
	return s.snapshot.Clone(), nil
}

func TestTransitionTask_ConcurrentDoubleTransition(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(t, "t1", f.manager, f.employee, models.StatusCompleted)
	f.tasks.tasks = &staleTaskStore{TaskStore: f.store, snapshot: task}

	_, err := f.tasks.TransitionTask(f.ctx, f.manager, TransitionTaskParams{
		TaskID: task.ID,
		Status: models.StatusApproved,
	})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.tasks.TransitionTask(f.ctx, f.admin, TransitionTaskParams{
		TaskID:          task.ID,
		Status:          models.StatusRejected,
		RejectionReason: "late review",
	})
	require.NoError(t, err)

	stored, err := f.store.GetTaskByID(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
	require.Len(t, stored.StatusHistory, 3)
	assert.Equal(t, models.StatusApproved, stored.StatusHistory[1].Status)
	assert.Equal(t, models.StatusRejected, stored.StatusHistory[2].Status)
	assert.Equal(t, f.manager.ID, *stored.ApprovedBy)
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	deadline := f.clock.Now().Add(48 * time.Hour)

	t.Run("manager assigns to team member", func(t *testing.T) {
		f.events.Reset()
		task, err := f.tasks.CreateTask(f.ctx, f.manager, CreateTaskParams{
			Title:      "  Write report  ",
			AssignedTo: f.employee.ID,
			Deadline:   deadline,
		})
		require.NoError(t, err)
		assert.Equal(t, "Write report", task.Title)
		assert.Equal(t, models.PriorityMedium, task.Priority)
		assert.Equal(t, models.StatusPending, task.Status)
		require.Len(t, task.StatusHistory, 1)
		assert.Equal(t, models.StatusPending, task.StatusHistory[0].Status)

		events := f.events.Events()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventTaskAssigned, events[0].Type)
		assert.Equal(t, f.employee.ID, events[0].TargetUserID)
		assert.NotEmpty(t, f.auditEntries(t, models.AuditTaskCreated))
	})

	t.Run("manager assigns to self", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.ctx, f.manager, CreateTaskParams{
			Title:      "Plan",
			AssignedTo: f.manager.ID,
			Deadline:   deadline,
		})
		require.NoError(t, err)
	})

	t.Run("admin assigns to anyone", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.ctx, f.admin, CreateTaskParams{
			Title:      "Audit",
			AssignedTo: f.otherEmployee.ID,
			Deadline:   deadline,
			Priority:   models.PriorityUrgent,
		})
		require.NoError(t, err)
	})

	t.Run("manager cannot assign outside team", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.ctx, f.manager, CreateTaskParams{
			Title:      "Poach",
			AssignedTo: f.otherEmployee.ID,
			Deadline:   deadline,
		})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("employee cannot create", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.ctx, f.employee, CreateTaskParams{
			Title:      "Self assigned",
			AssignedTo: f.employee.ID,
			Deadline:   deadline,
		})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("deadline must be in the future", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.ctx, f.manager, CreateTaskParams{
			Title:      "Late",
			AssignedTo: f.employee.ID,
			Deadline:   f.clock.Now(),
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "deadline")
	})

	t.Run("unknown assignee", func(t *testing.T) {
		_, err := f.tasks.CreateTask(f.ctx, f.manager, CreateTaskParams{
			Title:      "Ghost",
			AssignedTo: "missing",
			Deadline:   deadline,
		})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("inactive assignee", func(t *testing.T) {
		inactive := f.seedUser(t, "inactive", models.RoleEmployee, &f.manager.ID)
		_, err := f.store.DeactivateUser(f.ctx, inactive.ID, f.clock.Now())
		require.NoError(t, err)

		_, err = f.tasks.CreateTask(f.ctx, f.manager, CreateTaskParams{
			Title:      "Nobody",
			AssignedTo: inactive.ID,
			Deadline:   deadline,
		})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})
}

func TestGetAndListTasks(t *testing.T) {
	f := newFixture(t)
	own := f.seedTask(t, "own", f.manager, f.employee, models.StatusPending)
	foreign := f.seedTask(t, "foreign", f.otherManager, f.otherEmployee, models.StatusPending)
	byAdmin := f.seedTask(t, "by-admin", f.admin, f.employee, models.StatusPending)

	t.Run("out of scope reads look missing", func(t *testing.T) {
		_, err := f.tasks.GetTask(f.ctx, f.employee, foreign.ID)
		assert.ErrorIs(t, err, ErrTaskNotFound)

		_, err = f.tasks.GetTask(f.ctx, f.manager, foreign.ID)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("team owner reads tasks of reports", func(t *testing.T) {
		got, err := f.tasks.GetTask(f.ctx, f.manager, byAdmin.ID)
		require.NoError(t, err)
		assert.Equal(t, byAdmin.ID, got.ID)
	})

	t.Run("list is scoped", func(t *testing.T) {
		page, err := f.tasks.ListTasks(f.ctx, f.employee, ListTasksParams{})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		assert.Equal(t, storage.DefaultLimit, page.Limit)

		page, err = f.tasks.ListTasks(f.ctx, f.otherManager, ListTasksParams{})
		require.NoError(t, err)
		require.Equal(t, 1, page.Total)
		assert.Equal(t, foreign.ID, page.Items[0].ID)

		page, err = f.tasks.ListTasks(f.ctx, f.admin, ListTasksParams{})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
	})

	t.Run("archived tasks disappear", func(t *testing.T) {
		require.NoError(t, f.tasks.ArchiveTask(f.ctx, f.manager, own.ID))

		_, err := f.tasks.GetTask(f.ctx, f.manager, own.ID)
		assert.ErrorIs(t, err, ErrTaskNotFound)

		_, err = f.tasks.TransitionTask(f.ctx, f.employee, TransitionTaskParams{
			TaskID: own.ID,
			Status: models.StatusInProgress,
		})
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("unknown status filter", func(t *testing.T) {
		_, err := f.tasks.ListTasks(f.ctx, f.admin, ListTasksParams{Status: ptr(models.TaskStatus("done"))})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})
}

func TestUpdateTask(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(t, "t1", f.manager, f.employee, models.StatusInProgress)

	t.Run("assignee reports actual hours", func(t *testing.T) {
		got, err := f.tasks.UpdateTask(f.ctx, f.employee, task.ID, TaskPatch{ActualHours: ptr(3.5)})
		require.NoError(t, err)
		require.NotNil(t, got.ActualHours)
		assert.Equal(t, 3.5, *got.ActualHours)
	})

	t.Run("assignee cannot retitle", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(f.ctx, f.employee, task.ID, TaskPatch{
			Title:       ptr("mine now"),
			ActualHours: ptr(4.0),
		})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("unrelated manager is denied", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(f.ctx, f.otherManager, task.ID, TaskPatch{Title: ptr("x")})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("negative hours", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(f.ctx, f.manager, task.ID, TaskPatch{EstimatedHours: ptr(-1.0)})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("assignor reassigns within team", func(t *testing.T) {
		second := f.seedUser(t, "second", models.RoleEmployee, &f.manager.ID)
		f.events.Reset()

		got, err := f.tasks.UpdateTask(f.ctx, f.manager, task.ID, TaskPatch{
			Title:      ptr("Renamed"),
			AssignedTo: &second.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, second.ID, got.AssignedTo)

		events := f.events.Events()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventTaskAssigned, events[0].Type)
		assert.Equal(t, second.ID, events[0].TargetUserID)
	})

	t.Run("reassign outside team is denied", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(f.ctx, f.manager, task.ID, TaskPatch{AssignedTo: &f.otherEmployee.ID})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestArchiveTask(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(t, "t1", f.manager, f.employee, models.StatusPending)

	assert.ErrorIs(t, f.tasks.ArchiveTask(f.ctx, f.employee, task.ID), ErrPermissionDenied)
	assert.ErrorIs(t, f.tasks.ArchiveTask(f.ctx, f.admin, "missing"), ErrTaskNotFound)

	require.NoError(t, f.tasks.ArchiveTask(f.ctx, f.admin, task.ID))
	assert.Len(t, f.auditEntries(t, models.AuditTaskArchived), 1)
	assert.ErrorIs(t, f.tasks.ArchiveTask(f.ctx, f.admin, task.ID), ErrTaskNotFound)
}

func TestCommentsAndAttachments(t *testing.T) {
	f := newFixture(t)
	task := f.seedTask(t, "t1", f.manager, f.employee, models.StatusInProgress)

	comment, err := f.tasks.AddComment(f.ctx, f.employee, task.ID, "  halfway there ")
	require.NoError(t, err)
	assert.Equal(t, "halfway there", comment.Text)
	assert.Equal(t, f.employee.ID, comment.AuthorID)

	_, err = f.tasks.AddAttachment(f.ctx, f.manager, task.ID, AddAttachmentParams{
		FileName: "spec.pdf",
		URL:      "https://files.example.com/spec.pdf",
		Size:     2048,
	})
	require.NoError(t, err)

	_, err = f.tasks.AddAttachment(f.ctx, f.manager, task.ID, AddAttachmentParams{
		FileName: "bad",
		URL:      "not a url",
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.tasks.AddComment(f.ctx, f.otherEmployee, task.ID, "hi")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.tasks.AddComment(f.ctx, f.employee, task.ID, "   ")
	assert.ErrorIs(t, err, ErrValidationFailed)

	stored, err := f.store.GetTaskByID(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Comments, 1)
	assert.Len(t, stored.Attachments, 1)

	events := f.events.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventCommentAdded, events[0].Type)
	assert.Equal(t, f.manager.ID, events[0].TargetUserID)
	assert.Equal(t, models.EventAttachmentUploaded, events[1].Type)
	assert.Equal(t, f.employee.ID, events[1].TargetUserID)
}
