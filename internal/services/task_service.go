package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

type transitionKey struct {
	from, to models.TaskStatus
}

// transitions lists every legal status change and the action that guards it.
var transitions = map[transitionKey]access.Action{
	{models.StatusPending, models.StatusInProgress}:   access.TaskStart,
	{models.StatusInProgress, models.StatusCompleted}: access.TaskComplete,
	{models.StatusInProgress, models.StatusPending}:   access.TaskReopen,
	{models.StatusCompleted, models.StatusApproved}:   access.TaskReview,
	{models.StatusCompleted, models.StatusRejected}:   access.TaskReview,
	{models.StatusCompleted, models.StatusPending}:    access.TaskReopen,
	{models.StatusRejected, models.StatusPending}:     access.TaskReopen,
}

var transitionEvents = map[models.TaskStatus]models.EventType{
	models.StatusInProgress: models.EventTaskStarted,
	models.StatusCompleted:  models.EventTaskCompleted,
	models.StatusApproved:   models.EventTaskApproved,
	models.StatusRejected:   models.EventTaskRejected,
	models.StatusPending:    models.EventTaskReopened,
}

type taskServiceImpl struct {
	logger   zerolog.Logger
	tasks    storage.TaskStore
	users    storage.UserStore
	audit    AuditRecorder
	notifier NotificationGateway
	now      func() time.Time
}

func NewTaskService(
	logger zerolog.Logger,
	tasks storage.TaskStore,
	users storage.UserStore,
	audit AuditRecorder,
	notifier NotificationGateway,
) TaskService {
	return &taskServiceImpl{
		logger:   logger,
		tasks:    tasks,
		users:    users,
		audit:    audit,
		notifier: notifier,
		now:      time.Now,
	}
}

// loadTask returns the live task and its assignee. Archived tasks are
// reported as missing.
func (s *taskServiceImpl) loadTask(ctx context.Context, id string) (*models.Task, *models.User, error) {
	task, err := s.tasks.GetTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", id).
			Msg("failed to select task by id")
		return nil, nil, err
	}
	if task.IsArchived {
		return nil, nil, ErrTaskNotFound
	}

	assignee, err := s.users.GetUserByID(ctx, task.AssignedTo)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().
			Err(err).
			Str("user_id", task.AssignedTo).
			Msg("failed to select assignee")
		return nil, nil, err
	}
	return task, assignee, nil
}

// loadWritableTask loads the task for a mutation. A task the actor cannot
// see at all is denied rather than hidden.
func (s *taskServiceImpl) loadWritableTask(
	ctx context.Context,
	actor *models.User,
	id string,
	action access.Action,
) (*models.Task, *models.User, error) {
	task, assignee, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !access.CanAccessTask(actor, task, assignee, access.TaskRead) {
		return nil, nil, deny(ctx, s.audit, actor, action, models.ResourceTask, task.ID)
	}
	return task, assignee, nil
}

// resolveAssignee checks that the user exists, is active and may receive
// tasks from actor.
func (s *taskServiceImpl) resolveAssignee(ctx context.Context, actor *models.User, id string) (*models.User, error) {
	assignee, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", id).
			Msg("failed to select assignee")
		return nil, err
	}
	if !access.CanAccessUser(actor, assignee, access.TaskAssign) {
		return nil, deny(ctx, s.audit, actor, access.TaskAssign, models.ResourceUser, assignee.ID)
	}
	if !assignee.IsActive {
		return nil, invalid("assigned_to", "must be an active user")
	}
	return assignee, nil
}

func (s *taskServiceImpl) notify(ctx context.Context, actor *models.User, eventType models.EventType, task *models.Task, target, message string) {
	if target == "" || target == actor.ID {
		return
	}
	s.notifier.Notify(ctx, models.Event{
		Type:            eventType,
		TargetUserID:    target,
		TaskID:          task.ID,
		SourceActorID:   actor.ID,
		SourceActorName: actor.Name,
		Message:         message,
		CreatedAt:       s.now(),
	})
}

// counterpart is the other party of the task from actor's point of view.
func counterpart(actor *models.User, task *models.Task) string {
	if actor.ID == task.AssignedTo {
		return task.AssignedBy
	}
	return task.AssignedTo
}

func (s *taskServiceImpl) CreateTask(ctx context.Context, actor *models.User, params CreateTaskParams) (*models.Task, error) {
	if !access.Allowed(actor.Role, access.TaskCreate, access.RelNone) {
		return nil, deny(ctx, s.audit, actor, access.TaskCreate, models.ResourceTask, "")
	}

	now := s.now()
	v := new(ValidationError)
	title := validateName(v, "title", params.Title, maxTitleLength)
	if params.Priority == "" {
		params.Priority = models.PriorityMedium
	} else if !params.Priority.Valid() {
		v.Add("priority", "must be one of low, medium, high, urgent")
	}
	if !params.Deadline.After(now) {
		v.Add("deadline", "must be in the future")
	}
	validateHours(v, "estimated_hours", params.EstimatedHours)
	if strings.TrimSpace(params.AssignedTo) == "" {
		v.Add("assigned_to", "must not be empty")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	assignee, err := s.resolveAssignee(ctx, actor, params.AssignedTo)
	if err != nil {
		return nil, err
	}

	taskUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate task uuid")
		return nil, err
	}

	task := &models.Task{
		ID:             taskUUID.String(),
		Title:          title,
		Description:    strings.TrimSpace(params.Description),
		Priority:       params.Priority,
		AssignedBy:     actor.ID,
		AssignedTo:     assignee.ID,
		Status:         models.StatusPending,
		Deadline:       params.Deadline,
		EstimatedHours: params.EstimatedHours,
		StatusHistory: []models.StatusChange{{
			Status:    models.StatusPending,
			ChangedBy: actor.ID,
			ChangedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.tasks.CreateTask(ctx, task)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to insert task")
		return nil, err
	}

	entry := newAuditEntry(actor, models.AuditTaskCreated, models.ResourceTask, task.ID)
	entry.Details["assigned_to"] = task.AssignedTo
	entry.Details["priority"] = string(task.Priority)
	s.audit.Record(ctx, entry)

	s.notify(ctx, actor, models.EventTaskAssigned, task, task.AssignedTo,
		fmt.Sprintf("%s assigned you a task: %s", actor.Name, task.Title))

	s.logger.Info().
		Str("task_id", task.ID).
		Str("assigned_to", task.AssignedTo).
		Msg("created task")
	return task, nil
}

func (s *taskServiceImpl) GetTask(ctx context.Context, actor *models.User, id string) (*models.Task, error) {
	task, assignee, err := s.loadTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(actor, task, assignee, access.TaskRead) {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *taskServiceImpl) ListTasks(ctx context.Context, actor *models.User, params ListTasksParams) (*models.Page[*models.Task], error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, invalid("status", "unknown task status")
	}
	if params.Priority != nil && !params.Priority.Valid() {
		return nil, invalid("priority", "unknown priority")
	}
	if params.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}

	query := storage.TaskQuery{
		Scope:      access.TaskScopeFor(actor),
		Status:     params.Status,
		Priority:   params.Priority,
		AssignedTo: params.AssignedTo,
		AssignedBy: params.AssignedBy,
		DueBefore:  params.DueBefore,
		Limit:      storage.NormalizeLimit(params.Limit),
		Offset:     params.Offset,
	}
	tasks, total, err := s.tasks.ListTasks(ctx, query)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("actor_id", actor.ID).
			Msg("failed to list tasks")
		return nil, err
	}

	s.logger.Debug().
		Int("count", len(tasks)).
		Int("total", total).
		Str("actor_id", actor.ID).
		Msg("listed tasks")
	return &models.Page[*models.Task]{
		Items:  tasks,
		Total:  total,
		Limit:  query.Limit,
		Offset: query.Offset,
	}, nil
}

func (s *taskServiceImpl) UpdateTask(ctx context.Context, actor *models.User, id string, patch TaskPatch) (*models.Task, error) {
	action := access.TaskUpdate
	if patch.effortOnly() {
		action = access.TaskUpdateEffort
	}

	task, assignee, err := s.loadWritableTask(ctx, actor, id, action)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(actor, task, assignee, action) {
		return nil, deny(ctx, s.audit, actor, action, models.ResourceTask, task.ID)
	}
	if patch == (TaskPatch{}) {
		return task, nil
	}

	now := s.now()
	v := new(ValidationError)
	changed := make([]string, 0, 7)
	update := storage.TaskUpdate{UpdatedAt: now}
	if patch.Title != nil {
		update.Title = ptr(validateName(v, "title", *patch.Title, maxTitleLength))
		changed = append(changed, "title")
	}
	if patch.Description != nil {
		update.Description = ptr(strings.TrimSpace(*patch.Description))
		changed = append(changed, "description")
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			v.Add("priority", "must be one of low, medium, high, urgent")
		}
		update.Priority = patch.Priority
		changed = append(changed, "priority")
	}
	if patch.Deadline != nil {
		if !patch.Deadline.After(now) {
			v.Add("deadline", "must be in the future")
		}
		update.Deadline = patch.Deadline
		changed = append(changed, "deadline")
	}
	if patch.EstimatedHours != nil {
		validateHours(v, "estimated_hours", patch.EstimatedHours)
		update.EstimatedHours = patch.EstimatedHours
		changed = append(changed, "estimated_hours")
	}
	if patch.ActualHours != nil {
		validateHours(v, "actual_hours", patch.ActualHours)
		update.ActualHours = patch.ActualHours
		changed = append(changed, "actual_hours")
	}
	if err = v.Err(); err != nil {
		return nil, err
	}

	if patch.AssignedTo != nil && *patch.AssignedTo != task.AssignedTo {
		next, err := s.resolveAssignee(ctx, actor, *patch.AssignedTo)
		if err != nil {
			return nil, err
		}
		update.AssignedTo = &next.ID
		changed = append(changed, "assigned_to")
	}
	if len(changed) == 0 {
		return task, nil
	}

	task, err = s.tasks.UpdateTask(ctx, id, update)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", id).
			Msg("failed to update task")
		return nil, err
	}

	entry := newAuditEntry(actor, models.AuditTaskUpdated, models.ResourceTask, task.ID)
	entry.Details["fields"] = changed
	s.audit.Record(ctx, entry)

	if update.AssignedTo != nil {
		s.notify(ctx, actor, models.EventTaskAssigned, task, *update.AssignedTo,
			fmt.Sprintf("%s assigned you a task: %s", actor.Name, task.Title))
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Strs("fields", changed).
		Msg("updated task")
	return task, nil
}

func (s *taskServiceImpl) TransitionTask(ctx context.Context, actor *models.User, params TransitionTaskParams) (*models.Task, error) {
	task, assignee, err := s.loadTask(ctx, params.TaskID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(actor, task, assignee, access.TaskRead) {
		attempted, ok := transitions[transitionKey{task.Status, params.Status}]
		if !ok {
			attempted = access.TaskUpdate
		}
		return nil, deny(ctx, s.audit, actor, attempted, models.ResourceTask, task.ID)
	}

	if !params.Status.Valid() {
		return nil, invalid("status", "unknown task status")
	}
	reason := strings.TrimSpace(params.RejectionReason)
	if params.Status == models.StatusRejected && reason == "" {
		return nil, invalid("rejection_reason", "is required when rejecting a task")
	}

	from := task.Status
	action, ok := transitions[transitionKey{from, params.Status}]
	if !ok {
		s.logger.Debug().
			Str("task_id", task.ID).
			Str("from", string(from)).
			Str("to", string(params.Status)).
			Msg("rejected status transition")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, params.Status)
	}
	if !access.CanAccessTask(actor, task, assignee, action) {
		return nil, deny(ctx, s.audit, actor, action, models.ResourceTask, task.ID)
	}

	transition := storage.Transition{
		TaskID:    task.ID,
		Status:    params.Status,
		ChangedBy: actor.ID,
		ChangedAt: s.now(),
		Comment:   strings.TrimSpace(params.Comment),
	}
	if params.Status == models.StatusRejected {
		transition.RejectionReason = &reason
	}

	updated, err := s.tasks.ApplyTransition(ctx, transition)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("failed to apply status transition")
		return nil, err
	}

	entry := newAuditEntry(actor, models.AuditTaskStatusChanged, models.ResourceTask, task.ID)
	entry.Details["from"] = string(from)
	entry.Details["to"] = string(params.Status)
	if transition.Comment != "" {
		entry.Details["comment"] = transition.Comment
	}
	if transition.RejectionReason != nil {
		entry.Details["rejection_reason"] = reason
	}
	s.audit.Record(ctx, entry)

	var target string
	switch params.Status {
	case models.StatusInProgress, models.StatusCompleted:
		target = updated.AssignedBy
	case models.StatusApproved, models.StatusRejected:
		target = updated.AssignedTo
	default:
		target = counterpart(actor, updated)
	}
	s.notify(ctx, actor, transitionEvents[params.Status], updated, target,
		fmt.Sprintf("%s moved %q from %s to %s", actor.Name, updated.Title, from, params.Status))

	s.logger.Info().
		Str("task_id", task.ID).
		Str("from", string(from)).
		Str("to", string(params.Status)).
		Msg("changed task status")
	return updated, nil
}

func (s *taskServiceImpl) ArchiveTask(ctx context.Context, actor *models.User, id string) error {
	task, assignee, err := s.loadWritableTask(ctx, actor, id, access.TaskArchive)
	if err != nil {
		return err
	}
	if !access.CanAccessTask(actor, task, assignee, access.TaskArchive) {
		return deny(ctx, s.audit, actor, access.TaskArchive, models.ResourceTask, task.ID)
	}

	err = s.tasks.ArchiveTask(ctx, task.ID, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("failed to archive task")
		return err
	}

	entry := newAuditEntry(actor, models.AuditTaskArchived, models.ResourceTask, task.ID)
	entry.Details["status"] = string(task.Status)
	s.audit.Record(ctx, entry)

	s.logger.Info().
		Str("task_id", task.ID).
		Msg("archived task")
	return nil
}

func (s *taskServiceImpl) AddComment(ctx context.Context, actor *models.User, taskID string, text string) (*models.Comment, error) {
	task, assignee, err := s.loadWritableTask(ctx, actor, taskID, access.TaskComment)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(actor, task, assignee, access.TaskComment) {
		return nil, deny(ctx, s.audit, actor, access.TaskComment, models.ResourceTask, task.ID)
	}

	v := new(ValidationError)
	text = validateName(v, "text", text, maxCommentLength)
	if err = v.Err(); err != nil {
		return nil, err
	}

	commentUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate comment uuid")
		return nil, err
	}
	comment := models.Comment{
		ID:        commentUUID.String(),
		AuthorID:  actor.ID,
		Text:      text,
		CreatedAt: s.now(),
	}

	err = s.tasks.AddComment(ctx, task.ID, comment)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("failed to insert comment")
		return nil, err
	}

	entry := newAuditEntry(actor, models.AuditTaskCommentAdded, models.ResourceTask, task.ID)
	entry.Details["comment_id"] = comment.ID
	s.audit.Record(ctx, entry)

	s.notify(ctx, actor, models.EventCommentAdded, task, counterpart(actor, task),
		fmt.Sprintf("%s commented on %q", actor.Name, task.Title))

	s.logger.Info().
		Str("task_id", task.ID).
		Str("comment_id", comment.ID).
		Msg("added comment")
	return &comment, nil
}

func (s *taskServiceImpl) AddAttachment(ctx context.Context, actor *models.User, taskID string, params AddAttachmentParams) (*models.Attachment, error) {
	task, assignee, err := s.loadWritableTask(ctx, actor, taskID, access.TaskComment)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessTask(actor, task, assignee, access.TaskComment) {
		return nil, deny(ctx, s.audit, actor, access.TaskComment, models.ResourceTask, task.ID)
	}

	v := new(ValidationError)
	fileName := validateName(v, "file_name", params.FileName, maxNameLength)
	validateURL(v, params.URL)
	if params.Size < 0 {
		v.Add("size", "must not be negative")
	}
	if err = v.Err(); err != nil {
		return nil, err
	}

	attachmentUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate attachment uuid")
		return nil, err
	}
	attachment := models.Attachment{
		ID:         attachmentUUID.String(),
		FileName:   fileName,
		URL:        params.URL,
		Size:       params.Size,
		UploadedBy: actor.ID,
		UploadedAt: s.now(),
	}

	err = s.tasks.AddAttachment(ctx, task.ID, attachment)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("failed to insert attachment")
		return nil, err
	}

	entry := newAuditEntry(actor, models.AuditTaskAttachmentAdded, models.ResourceTask, task.ID)
	entry.Details["attachment_id"] = attachment.ID
	entry.Details["file_name"] = attachment.FileName
	s.audit.Record(ctx, entry)

	s.notify(ctx, actor, models.EventAttachmentUploaded, task, counterpart(actor, task),
		fmt.Sprintf("%s attached %s to %q", actor.Name, attachment.FileName, task.Title))

	s.logger.Info().
		Str("task_id", task.ID).
		Str("attachment_id", attachment.ID).
		Msg("added attachment")
	return &attachment, nil
}
