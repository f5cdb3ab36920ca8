package models

import "time"

type EventType string

const (
	EventTaskAssigned       EventType = "task_assigned"
	EventTaskStarted        EventType = "task_started"
	EventTaskCompleted      EventType = "task_completed"
	EventTaskApproved       EventType = "task_approved"
	EventTaskRejected       EventType = "task_rejected"
	EventTaskReopened       EventType = "task_reopened"
	EventCommentAdded       EventType = "comment_added"
	EventAttachmentUploaded EventType = "attachment_uploaded"
)

// Event is a notification addressed to a single user.
type Event struct {
	Type            EventType
	TargetUserID    string
	TaskID          string
	SourceActorID   string
	SourceActorName string
	Message         string
	CreatedAt       time.Time
}

type Page[T any] struct {
	Items  []T
	Total  int
	Limit  int
	Offset int
}
