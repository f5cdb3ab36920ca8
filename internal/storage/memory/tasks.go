package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

func (s *Store) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *Store) GetTaskByID(_ context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Store) UpdateTask(_ context.Context, id string, update storage.TaskUpdate) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.IsArchived {
		return nil, storage.ErrNotFound
	}
	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Description != nil {
		t.Description = *update.Description
	}
	if update.Priority != nil {
		t.Priority = *update.Priority
	}
	if update.Deadline != nil {
		t.Deadline = *update.Deadline
	}
	if update.EstimatedHours != nil {
		t.EstimatedHours = clone(update.EstimatedHours)
	}
	if update.ActualHours != nil {
		t.ActualHours = clone(update.ActualHours)
	}
	if update.AssignedTo != nil {
		t.AssignedTo = *update.AssignedTo
	}
	t.UpdatedAt = update.UpdatedAt
	return t.Clone(), nil
}

func (s *Store) ApplyTransition(_ context.Context, tr storage.Transition) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[tr.TaskID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	t.Status = tr.Status
	t.StatusHistory = append(t.StatusHistory, models.StatusChange{
		Status:    tr.Status,
		ChangedBy: tr.ChangedBy,
		ChangedAt: tr.ChangedAt,
		Comment:   tr.Comment,
	})
	switch tr.Status {
	case models.StatusCompleted:
		if t.CompletedAt == nil {
			t.CompletedAt = clone(&tr.ChangedAt)
		}
	case models.StatusApproved:
		if t.ApprovedAt == nil {
			t.ApprovedAt = clone(&tr.ChangedAt)
			t.ApprovedBy = clone(&tr.ChangedBy)
		}
	case models.StatusRejected:
		t.RejectionReason = clone(tr.RejectionReason)
		t.RejectedBy = clone(&tr.ChangedBy)
	}
	t.UpdatedAt = tr.ChangedAt
	return t.Clone(), nil
}

func (s *Store) ArchiveTask(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.IsArchived = true
	t.UpdatedAt = now
	return nil
}

func (s *Store) ListTasks(_ context.Context, q storage.TaskQuery) ([]*models.Task, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Task
	for _, t := range s.tasks {
		if t.IsArchived {
			continue
		}
		if !q.Scope.Matches(t, s.users[t.AssignedTo]) {
			continue
		}
		if q.Status != nil && t.Status != *q.Status {
			continue
		}
		if q.Priority != nil && t.Priority != *q.Priority {
			continue
		}
		if q.AssignedTo != nil && t.AssignedTo != *q.AssignedTo {
			continue
		}
		if q.AssignedBy != nil && t.AssignedBy != *q.AssignedBy {
			continue
		}
		if q.DueBefore != nil && !t.Deadline.Before(*q.DueBefore) {
			continue
		}
		matched = append(matched, t)
	}
	slices.SortFunc(matched, func(a, b *models.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	page := paginate(matched, q.Limit, q.Offset)
	out := make([]*models.Task, len(page))
	for i, t := range page {
		out[i] = t.Clone()
	}
	return out, len(matched), nil
}

func (s *Store) AddComment(_ context.Context, taskID string, comment models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return storage.ErrNotFound
	}
	t.Comments = append(t.Comments, comment)
	t.UpdatedAt = comment.CreatedAt
	return nil
}

func (s *Store) AddAttachment(_ context.Context, taskID string, attachment models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return storage.ErrNotFound
	}
	t.Attachments = append(t.Attachments, attachment)
	t.UpdatedAt = attachment.UploadedAt
	return nil
}

func (s *Store) ReassignOpenTasks(_ context.Context, fromUserID, toUserID string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, t := range s.tasks {
		if t.AssignedTo != fromUserID || t.IsArchived || !t.Status.Open() {
			continue
		}
		t.AssignedTo = toUserID
		t.UpdatedAt = now
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)
	return ids, nil
}
