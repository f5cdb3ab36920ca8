package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

const taskColumns = `
id,
title,
description,
priority,
assigned_by,
assigned_to,
status,
deadline,
estimated_hours,
actual_hours,
completed_at,
approved_at,
approved_by,
rejection_reason,
rejected_by,
is_archived,
created_at,
updated_at
`

func scanTask(row pgx.Row) (*models.Task, error) {
	task := new(models.Task)
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description,
		&task.Priority,
		&task.AssignedBy,
		&task.AssignedTo,
		&task.Status,
		&task.Deadline,
		&task.EstimatedHours,
		&task.ActualHours,
		&task.CompletedAt,
		&task.ApprovedAt,
		&task.ApprovedBy,
		&task.RejectionReason,
		&task.RejectedBy,
		&task.IsArchived,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

const insertStatusChangeQuery = `
INSERT INTO task_status_history (task_id,
                                 status,
                                 changed_by,
                                 changed_at,
                                 comment)
VALUES ($1, $2, $3, $4, $5)
`

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		const insertTaskQuery = `
INSERT INTO tasks (id,
                   title,
                   description,
                   priority,
                   assigned_by,
                   assigned_to,
                   status,
                   deadline,
                   estimated_hours,
                   actual_hours,
                   is_archived,
                   created_at,
                   updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`
		_, err := tx.Exec(
			ctx,
			insertTaskQuery,
			task.ID,
			task.Title,
			task.Description,
			task.Priority,
			task.AssignedBy,
			task.AssignedTo,
			task.Status,
			task.Deadline,
			task.EstimatedHours,
			task.ActualHours,
			task.IsArchived,
			task.CreatedAt,
			task.UpdatedAt,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to insert task")
			return err
		}

		for _, change := range task.StatusHistory {
			_, err = tx.Exec(
				ctx,
				insertStatusChangeQuery,
				task.ID,
				change.Status,
				change.ChangedBy,
				change.ChangedAt,
				change.Comment,
			)
			if err != nil {
				s.logger.Error().
					Err(err).
					Str("task_id", task.ID).
					Msg("failed to insert status change")
				return err
			}
		}
		s.logger.Debug().
			Str("task_id", task.ID).
			Msg("inserted task")
		return nil
	})
}

func (s *Store) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	return s.getTaskByID(ctx, s.pool, id)
}

func (s *Store) getTaskByID(ctx context.Context, q querier, id string) (*models.Task, error) {
	const selectTaskByIDQuery = `SELECT` + taskColumns + `FROM tasks WHERE id = $1`

	task, err := scanTask(q.QueryRow(ctx, selectTaskByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", id).
			Msg("failed to select task by id")
		return nil, err
	}

	err = s.loadTaskChildren(ctx, q, []*models.Task{task})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// loadTaskChildren fills history, comments and attachments of the given
// tasks with one query per relation.
func (s *Store) loadTaskChildren(ctx context.Context, q querier, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]string, len(tasks))
	byID := make(map[string]*models.Task, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
		byID[t.ID] = t
	}

	const selectHistoryQuery = `
SELECT task_id, status, changed_by, changed_at, comment
FROM task_status_history
WHERE task_id = ANY($1::uuid[])
ORDER BY seq
`
	rows, err := q.Query(ctx, selectHistoryQuery, ids)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select status history")
		return err
	}
	for rows.Next() {
		var (
			taskID string
			change models.StatusChange
		)
		err = rows.Scan(&taskID, &change.Status, &change.ChangedBy, &change.ChangedAt, &change.Comment)
		if err != nil {
			rows.Close()
			return err
		}
		byID[taskID].StatusHistory = append(byID[taskID].StatusHistory, change)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	const selectCommentsQuery = `
SELECT task_id, id, author_id, text, created_at
FROM task_comments
WHERE task_id = ANY($1::uuid[])
ORDER BY created_at, id
`
	rows, err = q.Query(ctx, selectCommentsQuery, ids)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select comments")
		return err
	}
	for rows.Next() {
		var (
			taskID  string
			comment models.Comment
		)
		err = rows.Scan(&taskID, &comment.ID, &comment.AuthorID, &comment.Text, &comment.CreatedAt)
		if err != nil {
			rows.Close()
			return err
		}
		byID[taskID].Comments = append(byID[taskID].Comments, comment)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	const selectAttachmentsQuery = `
SELECT task_id, id, file_name, url, size, uploaded_by, uploaded_at
FROM task_attachments
WHERE task_id = ANY($1::uuid[])
ORDER BY uploaded_at, id
`
	rows, err = q.Query(ctx, selectAttachmentsQuery, ids)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select attachments")
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			taskID     string
			attachment models.Attachment
		)
		err = rows.Scan(
			&taskID,
			&attachment.ID,
			&attachment.FileName,
			&attachment.URL,
			&attachment.Size,
			&attachment.UploadedBy,
			&attachment.UploadedAt,
		)
		if err != nil {
			return err
		}
		byID[taskID].Attachments = append(byID[taskID].Attachments, attachment)
	}
	return rows.Err()
}

func (s *Store) UpdateTask(ctx context.Context, id string, update storage.TaskUpdate) (*models.Task, error) {
	var task *models.Task
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// COALESCE keeps every column the update leaves unset.
		const updateTaskQuery = `
UPDATE tasks
SET title = COALESCE($2::text, title),
    description = COALESCE($3::text, description),
    priority = COALESCE($4::text, priority),
    deadline = COALESCE($5::timestamptz, deadline),
    estimated_hours = COALESCE($6::double precision, estimated_hours),
    actual_hours = COALESCE($7::double precision, actual_hours),
    assigned_to = COALESCE($8::uuid, assigned_to),
    updated_at = $9
WHERE id = $1
  AND NOT is_archived
`
		tag, err := tx.Exec(
			ctx,
			updateTaskQuery,
			id,
			update.Title,
			update.Description,
			update.Priority,
			update.Deadline,
			update.EstimatedHours,
			update.ActualHours,
			update.AssignedTo,
			update.UpdatedAt,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("task_id", id).
				Msg("failed to update task")
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}

		task, err = s.getTaskByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("task_id", id).
		Msg("updated task")
	return task, nil
}

func (s *Store) ApplyTransition(ctx context.Context, tr storage.Transition) (*models.Task, error) {
	var task *models.Task
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// COALESCE keeps the first completion and approval stamps.
		const updateTaskStatusQuery = `
UPDATE tasks
SET status = $2::text,
    completed_at = CASE WHEN $2::text = 'completed' THEN COALESCE(completed_at, $4::timestamptz) ELSE completed_at END,
    approved_at = CASE WHEN $2::text = 'approved' THEN COALESCE(approved_at, $4::timestamptz) ELSE approved_at END,
    approved_by = CASE WHEN $2::text = 'approved' THEN COALESCE(approved_by, $3::uuid) ELSE approved_by END,
    rejection_reason = CASE WHEN $2::text = 'rejected' THEN $5::text ELSE rejection_reason END,
    rejected_by = CASE WHEN $2::text = 'rejected' THEN $3::uuid ELSE rejected_by END,
    updated_at = $4::timestamptz
WHERE id = $1
`
		tag, err := tx.Exec(
			ctx,
			updateTaskStatusQuery,
			tr.TaskID,
			tr.Status,
			tr.ChangedBy,
			tr.ChangedAt,
			tr.RejectionReason,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("task_id", tr.TaskID).
				Msg("failed to update task status")
			return err
		}
		if tag.RowsAffected() == 0 {
			return storage.ErrNotFound
		}

		_, err = tx.Exec(
			ctx,
			insertStatusChangeQuery,
			tr.TaskID,
			tr.Status,
			tr.ChangedBy,
			tr.ChangedAt,
			tr.Comment,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("task_id", tr.TaskID).
				Msg("failed to insert status change")
			return err
		}

		task, err = s.getTaskByID(ctx, tx, tr.TaskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("task_id", tr.TaskID).
		Str("status", string(tr.Status)).
		Msg("applied transition")
	return task, nil
}

func (s *Store) ArchiveTask(ctx context.Context, id string, now time.Time) error {
	const archiveTaskQuery = `
UPDATE tasks
SET is_archived = TRUE,
    updated_at = $2
WHERE id = $1
`
	tag, err := s.pool.Exec(ctx, archiveTaskQuery, id, now)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", id).
			Msg("failed to archive task")
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const taskFilter = `
FROM tasks t
WHERE NOT t.is_archived
  AND ($1::boolean
       OR t.assigned_by = NULLIF($2, '')::uuid
       OR t.assigned_to = NULLIF($3, '')::uuid
       OR t.assigned_to IN (SELECT u.id FROM users u WHERE u.manager_id = NULLIF($4, '')::uuid))
  AND ($5::text IS NULL OR t.status = $5)
  AND ($6::text IS NULL OR t.priority = $6)
  AND ($7::uuid IS NULL OR t.assigned_to = $7)
  AND ($8::uuid IS NULL OR t.assigned_by = $8)
  AND ($9::timestamptz IS NULL OR t.deadline < $9)
`

func (s *Store) ListTasks(ctx context.Context, q storage.TaskQuery) ([]*models.Task, int, error) {
	args := []any{
		q.Scope.All,
		q.Scope.AssignorID,
		q.Scope.AssigneeID,
		q.Scope.TeamOwnerID,
		q.Status,
		q.Priority,
		q.AssignedTo,
		q.AssignedBy,
		q.DueBefore,
	}

	const countTasksQuery = `SELECT COUNT(*)` + taskFilter
	var total int
	err := s.pool.QueryRow(ctx, countTasksQuery, args...).Scan(&total)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to count tasks")
		return nil, 0, err
	}

	const selectTasksQuery = `SELECT` + taskColumns + taskFilter + `
ORDER BY t.created_at DESC, t.id DESC
LIMIT $10 OFFSET $11
`
	rows, err := s.pool.Query(
		ctx,
		selectTasksQuery,
		append(args, storage.NormalizeLimit(q.Limit), max(q.Offset, 0))...,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select tasks")
		return nil, 0, err
	}

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			s.logger.Error().
				Err(err).
				Msg("failed to scan task")
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	rows.Close()

	err = rows.Err()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to iterate over rows")
		return nil, 0, err
	}

	err = s.loadTaskChildren(ctx, s.pool, tasks)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Debug().
		Int("count", len(tasks)).
		Int("total", total).
		Msg("selected tasks")
	return tasks, total, nil
}

func (s *Store) AddComment(ctx context.Context, taskID string, comment models.Comment) error {
	const insertCommentQuery = `
INSERT INTO task_comments (id,
                           task_id,
                           author_id,
                           text,
                           created_at)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := s.pool.Exec(
		ctx,
		insertCommentQuery,
		comment.ID,
		taskID,
		comment.AuthorID,
		comment.Text,
		comment.CreatedAt,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to insert comment")
		return err
	}
	return s.touchTask(ctx, taskID, comment.CreatedAt)
}

func (s *Store) AddAttachment(ctx context.Context, taskID string, attachment models.Attachment) error {
	const insertAttachmentQuery = `
INSERT INTO task_attachments (id,
                              task_id,
                              file_name,
                              url,
                              size,
                              uploaded_by,
                              uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := s.pool.Exec(
		ctx,
		insertAttachmentQuery,
		attachment.ID,
		taskID,
		attachment.FileName,
		attachment.URL,
		attachment.Size,
		attachment.UploadedBy,
		attachment.UploadedAt,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to insert attachment")
		return err
	}
	return s.touchTask(ctx, taskID, attachment.UploadedAt)
}

func (s *Store) touchTask(ctx context.Context, taskID string, now time.Time) error {
	const touchTaskQuery = `UPDATE tasks SET updated_at = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, touchTaskQuery, taskID, now)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to touch task")
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ReassignOpenTasks(ctx context.Context, fromUserID, toUserID string, now time.Time) ([]string, error) {
	const reassignOpenTasksQuery = `
UPDATE tasks
SET assigned_to = $2,
    updated_at = $3
WHERE assigned_to = $1
  AND NOT is_archived
  AND status IN ('pending', 'in_progress')
RETURNING id
`
	rows, err := s.pool.Query(ctx, reassignOpenTasksQuery, fromUserID, toUserID, now)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("from_user_id", fromUserID).
			Msg("failed to reassign open tasks")
		return nil, err
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to collect reassigned task ids")
		return nil, err
	}
	s.logger.Debug().
		Str("from_user_id", fromUserID).
		Str("to_user_id", toUserID).
		Int("count", len(ids)).
		Msg("reassigned open tasks")
	return ids, nil
}
