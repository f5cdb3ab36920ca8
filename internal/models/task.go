package models

import (
	"fmt"
	"slices"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusApproved   TaskStatus = "approved"
	StatusRejected   TaskStatus = "rejected"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Open reports whether work on the task is still outstanding.
func (s TaskStatus) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown task status: %q", s)
	}
	return st, nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority: %q", s)
	}
	return p, nil
}

type StatusChange struct {
	Status    TaskStatus
	ChangedBy string
	ChangedAt time.Time
	Comment   string
}

type Comment struct {
	ID        string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

type Attachment struct {
	ID         string
	FileName   string
	URL        string
	Size       int64
	UploadedBy string
	UploadedAt time.Time
}

type Task struct {
	ID             string
	Title          string
	Description    string
	Priority       Priority
	AssignedBy     string
	AssignedTo     string
	Status         TaskStatus
	StatusHistory  []StatusChange
	Deadline       time.Time
	EstimatedHours *float64
	ActualHours    *float64

	CompletedAt     *time.Time
	ApprovedAt      *time.Time
	ApprovedBy      *string
	RejectionReason *string
	RejectedBy      *string

	Comments    []Comment
	Attachments []Attachment
	IsArchived  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PreviousStatus returns the status recorded before the latest history entry.
func (t *Task) PreviousStatus() (TaskStatus, bool) {
	if len(t.StatusHistory) < 2 {
		return "", false
	}
	return t.StatusHistory[len(t.StatusHistory)-2].Status, true
}

func (t *Task) Clone() *Task {
	c := *t
	c.StatusHistory = slices.Clone(t.StatusHistory)
	c.Comments = slices.Clone(t.Comments)
	c.Attachments = slices.Clone(t.Attachments)
	c.EstimatedHours = clonePtr(t.EstimatedHours)
	c.ActualHours = clonePtr(t.ActualHours)
	c.CompletedAt = clonePtr(t.CompletedAt)
	c.ApprovedAt = clonePtr(t.ApprovedAt)
	c.ApprovedBy = clonePtr(t.ApprovedBy)
	c.RejectionReason = clonePtr(t.RejectionReason)
	c.RejectedBy = clonePtr(t.RejectedBy)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
