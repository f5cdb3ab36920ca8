// Package storage declares the persistence contracts shared by the
// services. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("duplicate email")
)

const DefaultLimit = 32

type Store interface {
	UserStore
	TaskStore
	AuditStore
	SessionStore
}

type UserStore interface {
	// CreateUser inserts the user. It returns ErrDuplicateEmail if the
	// email is taken.
	CreateUser(ctx context.Context, user *models.User) error

	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateUser writes only the columns set in update and returns the
	// stored user. Login counters are owned by RegisterLoginFailure and
	// RegisterLoginSuccess.
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*models.User, error)

	SetUserPassword(ctx context.Context, id, passwordHash string, now time.Time) error

	// DeactivateUser clears is_active. It reports false when the user was
	// already inactive.
	DeactivateUser(ctx context.Context, id string, now time.Time) (bool, error)

	ListUsers(ctx context.Context, query UserQuery) ([]*models.User, int, error)
	CountTeamMembers(ctx context.Context, managerID string) (int, error)

	// RegisterLoginFailure atomically increments the failed attempt counter
	// unless the account is locked. A lock that has already expired starts a
	// fresh window. Reaching threshold sets the lock to now+lockout.
	RegisterLoginFailure(ctx context.Context, userID string, now time.Time, threshold int, lockout time.Duration) (*LoginFailure, error)

	// RegisterLoginSuccess resets the counter, clears the lock and stamps
	// the last login time.
	RegisterLoginSuccess(ctx context.Context, userID string, now time.Time) error
}

// UserUpdate lists the columns to change. Nil fields keep the stored
// value, so concurrent updates of different columns do not undo each other.
type UserUpdate struct {
	Name                    *string
	Email                   *string
	Phone                   *string
	Role                    *models.Role
	IsActive                *bool
	ManagerID               *string
	ClearManagerID          bool
	NotificationPreferences *models.NotificationPreferences
	UpdatedAt               time.Time
}

type LoginFailure struct {
	Attempts  int
	LockUntil *time.Time
	// Applied is false when the account was already locked and nothing
	// changed.
	Applied bool
}

type UserQuery struct {
	Scope     access.UserScope
	Role      *models.Role
	IsActive  *bool
	ManagerID *string
	Search    string
	Limit     int
	Offset    int
}

type TaskStore interface {
	// CreateTask inserts the task with its initial history entry.
	CreateTask(ctx context.Context, task *models.Task) error

	GetTaskByID(ctx context.Context, id string) (*models.Task, error)

	// UpdateTask writes only the columns set in update and returns the
	// stored task. Archived tasks are reported as ErrNotFound. Status fields
	// are only written by ApplyTransition.
	UpdateTask(ctx context.Context, id string, update TaskUpdate) (*models.Task, error)

	// ApplyTransition sets the new status and appends a history entry in a
	// single unit of work. CompletedAt and ApprovedAt are only written when
	// still unset.
	ApplyTransition(ctx context.Context, t Transition) (*models.Task, error)

	ArchiveTask(ctx context.Context, id string, now time.Time) error
	ListTasks(ctx context.Context, query TaskQuery) ([]*models.Task, int, error)
	AddComment(ctx context.Context, taskID string, comment models.Comment) error
	AddAttachment(ctx context.Context, taskID string, attachment models.Attachment) error

	// ReassignOpenTasks moves the pending and in-progress tasks of one user
	// to another and returns the ids of the moved tasks.
	ReassignOpenTasks(ctx context.Context, fromUserID, toUserID string, now time.Time) ([]string, error)
}

// TaskUpdate lists the columns to change. Nil fields keep the stored value.
type TaskUpdate struct {
	Title          *string
	Description    *string
	Priority       *models.Priority
	Deadline       *time.Time
	EstimatedHours *float64
	ActualHours    *float64
	AssignedTo     *string
	UpdatedAt      time.Time
}

type Transition struct {
	TaskID          string
	Status          models.TaskStatus
	ChangedBy       string
	ChangedAt       time.Time
	Comment         string
	RejectionReason *string
}

type TaskQuery struct {
	Scope      access.TaskScope
	Status     *models.TaskStatus
	Priority   *models.Priority
	AssignedTo *string
	AssignedBy *string
	DueBefore  *time.Time
	Limit      int
	Offset     int
}

type AuditStore interface {
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	ListAuditEntries(ctx context.Context, query AuditQuery) ([]*models.AuditEntry, int, error)

	// FailedLoginsByIP groups failed logins since the given time by client
	// address, keeping only addresses with at least minAttempts.
	FailedLoginsByIP(ctx context.Context, since time.Time, minAttempts int) ([]models.IPFailureCount, error)

	// DailyActivity counts the entries of one actor per UTC day.
	DailyActivity(ctx context.Context, actorID string, since time.Time) ([]models.DailyActivity, error)

	// ActivitySummary counts entries per action with success breakdown.
	ActivitySummary(ctx context.Context, since time.Time) ([]models.ActionSummary, error)

	// DeleteAuditEntriesBefore removes entries older than cutoff whose
	// severity is below high.
	DeleteAuditEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditQuery filters audit entries. Results are ordered newest first.
type AuditQuery struct {
	ActorID      *string
	Action       *models.AuditAction
	ResourceType *models.ResourceType
	ResourceID   *string
	Category     *models.Category
	Severity     *models.Severity
	Success      *bool
	Since        *time.Time
	Until        *time.Time
	// SecurityOnly keeps entries matching AuditEntry.IsSecurityRelevant.
	SecurityOnly bool
	Limit        int
	Offset       int
}

type SessionStore interface {
	// ReplaceSession deletes every session of the user and stores the new one.
	ReplaceSession(ctx context.Context, session *models.Session) error
	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	DeleteSessionsByUserID(ctx context.Context, userID string) (int64, error)
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}
