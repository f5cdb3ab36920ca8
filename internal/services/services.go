package services

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

type AuthService interface {
	// Authenticate verifies the email and password pair.
	//
	// A locked account is rejected with ErrAccountLocked before the password
	// is compared. A wrong password counts towards the lockout threshold.
	// On success all previous sessions of the user are replaced by a new
	// one and a signed access token whose subject is the session id is
	// returned.
	//
	// It returns ErrInvalidCredentials for an unknown email or a wrong
	// password and ErrAccountInactive for a deactivated account.
	Authenticate(ctx context.Context, params AuthenticateParams) (*AuthenticateResult, error)

	// Authorize resolves the access token to its user and session.
	//
	// It returns ErrUnauthorized if the token or session is invalid,
	// ErrAccountInactive if the user was deactivated, and ErrSessionExpired
	// once the absolute session timeout since the last login has passed.
	Authorize(ctx context.Context, params AuthorizeParams) (*models.User, *models.Session, error)

	// Logout invalidates all sessions of the actor.
	Logout(ctx context.Context, actor *models.User) error

	// ChangePassword replaces the actor's password after verifying the
	// current one. Attempts are rate limited per client address and actor.
	//
	// It returns ErrRateLimited, ErrInvalidCredentials or a validation error.
	ChangePassword(ctx context.Context, actor *models.User, params ChangePasswordParams) error

	// ParseJWTToken parses the given JWT token and returns the registered
	// claims or jwt.ErrTokenExpired if the token is expired.
	ParseJWTToken(token string) (*jwt.RegisteredClaims, error)
}

type UserService interface {
	// CreateUser creates an account on behalf of actor.
	//
	// Managers may only create employees, who are placed in the manager's
	// own team. A super admin may attach an employee to any manager.
	//
	// It returns ErrPermissionDenied, ErrDuplicateEmail or a validation error.
	CreateUser(ctx context.Context, actor *models.User, params CreateUserParams) (*models.User, error)

	// CreateSuperAdmin bootstraps an administrator without an acting user.
	CreateSuperAdmin(ctx context.Context, params CreateUserParams) (*models.User, error)

	// GetUser returns ErrUserNotFound for users outside the actor's scope.
	GetUser(ctx context.Context, actor *models.User, id string) (*models.User, error)

	ListUsers(ctx context.Context, actor *models.User, params ListUsersParams) (*models.Page[*models.User], error)

	// UpdateUser applies the patch after silently dropping the fields the
	// actor's role may not write.
	UpdateUser(ctx context.Context, actor *models.User, id string, patch access.UserPatch) (*models.User, error)

	// DeactivateUser disables the account, drops its sessions and hands its
	// open tasks to the user's manager, or to actor if there is no active
	// manager.
	//
	// It returns ErrSelfDeactivation when actor targets themselves.
	DeactivateUser(ctx context.Context, actor *models.User, id string) (*DeactivateUserResult, error)
}

type TaskService interface {
	// CreateTask assigns a new pending task. The deadline must lie in the
	// future and the assignee must be active and inside the actor's team.
	CreateTask(ctx context.Context, actor *models.User, params CreateTaskParams) (*models.Task, error)

	// GetTask returns ErrTaskNotFound for archived tasks and for tasks
	// outside the actor's scope.
	GetTask(ctx context.Context, actor *models.User, id string) (*models.Task, error)

	ListTasks(ctx context.Context, actor *models.User, params ListTasksParams) (*models.Page[*models.Task], error)

	// UpdateTask edits task fields. An assignee without management rights
	// over the task may only report actual hours.
	UpdateTask(ctx context.Context, actor *models.User, id string, patch TaskPatch) (*models.Task, error)

	// TransitionTask moves the task to a new status.
	//
	// Errors are checked in this order: ErrTaskNotFound, ErrPermissionDenied
	// when the actor is unrelated to the task, a validation error for an
	// unknown status or a rejection without reason, ErrInvalidTransition,
	// and ErrPermissionDenied when the actor may not perform the change.
	TransitionTask(ctx context.Context, actor *models.User, params TransitionTaskParams) (*models.Task, error)

	ArchiveTask(ctx context.Context, actor *models.User, id string) error
	AddComment(ctx context.Context, actor *models.User, taskID string, text string) (*models.Comment, error)
	AddAttachment(ctx context.Context, actor *models.User, taskID string, params AddAttachmentParams) (*models.Attachment, error)
}

// AuditRecorder writes audit entries. Recording never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

type AuditService interface {
	AuditRecorder

	// QueryAuditLog is restricted to super admins.
	QueryAuditLog(ctx context.Context, actor *models.User, query storage.AuditQuery) (*models.Page[*models.AuditEntry], error)

	// SecurityReport aggregates failed logins by client address and action
	// counts over the window, plus the most recent security entries.
	SecurityReport(ctx context.Context, actor *models.User, params SecurityReportParams) (*SecurityReport, error)

	// UserActivity returns per-day entry counts of one user.
	UserActivity(ctx context.Context, actor *models.User, userID string, days int) ([]models.DailyActivity, error)

	// Cleanup deletes entries older than retention, keeping high and
	// critical ones. A nil actor denotes a system job. Retention below
	// MinAuditRetention is a validation error.
	Cleanup(ctx context.Context, actor *models.User, retention time.Duration) (int64, error)
}

type SecurityGuard interface {
	// CheckLocked returns ErrAccountLocked while a lockout is active.
	CheckLocked(user *models.User) error

	// RegisterFailure counts a failed password and reports whether this
	// failure locked the account.
	RegisterFailure(ctx context.Context, user *models.User) (bool, error)

	RegisterSuccess(ctx context.Context, user *models.User) error

	// CheckSession returns ErrSessionExpired when the time since the last
	// login exceeds the session timeout.
	CheckSession(user *models.User) error
}

// NotificationGateway delivers events on a best-effort basis.
type NotificationGateway interface {
	Notify(ctx context.Context, event models.Event)
}

// RateLimiter reports whether another attempt identified by key is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type AuthenticateParams struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

type AuthenticateResult struct {
	User                 *models.User
	SessionID            string
	AccessToken          string
	AccessTokenExpiresAt time.Time
}

type AuthorizeParams struct {
	AccessToken string
	IPAddress   string
	UserAgent   string
}

type ChangePasswordParams struct {
	CurrentPassword string
	NewPassword     string
	IPAddress       string
}

type CreateUserParams struct {
	Name      string
	Email     string
	Password  string
	Phone     string
	Role      models.Role
	ManagerID *string
}

type ListUsersParams struct {
	Role      *models.Role
	IsActive  *bool
	ManagerID *string
	Search    string
	Limit     int
	Offset    int
}

type DeactivateUserResult struct {
	User                *models.User
	ReassignedTo        string
	ReassignedTaskCount int
}

type CreateTaskParams struct {
	Title          string
	Description    string
	Priority       models.Priority
	AssignedTo     string
	Deadline       time.Time
	EstimatedHours *float64
}

type ListTasksParams struct {
	Status     *models.TaskStatus
	Priority   *models.Priority
	AssignedTo *string
	AssignedBy *string
	DueBefore  *time.Time
	Limit      int
	Offset     int
}

// TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title          *string
	Description    *string
	Priority       *models.Priority
	Deadline       *time.Time
	EstimatedHours *float64
	ActualHours    *float64
	AssignedTo     *string
}

func (p TaskPatch) effortOnly() bool {
	return p.ActualHours != nil && p == TaskPatch{ActualHours: p.ActualHours}
}

type TransitionTaskParams struct {
	TaskID          string
	Status          models.TaskStatus
	Comment         string
	RejectionReason string
}

type AddAttachmentParams struct {
	FileName string
	URL      string
	Size     int64
}

type SecurityReportParams struct {
	Window      time.Duration
	MinAttempts int
}

type SecurityReport struct {
	Since            time.Time
	FailedLoginsByIP []models.IPFailureCount
	Summary          []models.ActionSummary
	Recent           []*models.AuditEntry
}
