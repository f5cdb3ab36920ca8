package models

import "time"

type AuditAction string

const (
	AuditLogin               AuditAction = "login"
	AuditLogout              AuditAction = "logout"
	AuditFailedLogin         AuditAction = "failed_login"
	AuditPasswordChange      AuditAction = "password_change"
	AuditAccountLocked       AuditAction = "account_locked"
	AuditSessionExpired      AuditAction = "session_expired"
	AuditRateLimited         AuditAction = "rate_limited"
	AuditPermissionDenied    AuditAction = "permission_denied"
	AuditUserCreated         AuditAction = "user_created"
	AuditUserUpdated         AuditAction = "user_updated"
	AuditUserDeactivated     AuditAction = "user_deactivated"
	AuditTaskCreated         AuditAction = "task_created"
	AuditTaskUpdated         AuditAction = "task_updated"
	AuditTaskStatusChanged   AuditAction = "task_status_changed"
	AuditTaskArchived        AuditAction = "task_archived"
	AuditTaskCommentAdded    AuditAction = "task_comment_added"
	AuditTaskAttachmentAdded AuditAction = "task_attachment_added"
	AuditCleanup             AuditAction = "audit_cleanup"
)

var auditActions = map[AuditAction]struct{}{
	AuditLogin: {}, AuditLogout: {}, AuditFailedLogin: {}, AuditPasswordChange: {},
	AuditAccountLocked: {}, AuditSessionExpired: {}, AuditRateLimited: {},
	AuditPermissionDenied: {}, AuditUserCreated: {}, AuditUserUpdated: {},
	AuditUserDeactivated: {}, AuditTaskCreated: {}, AuditTaskUpdated: {},
	AuditTaskStatusChanged: {}, AuditTaskArchived: {}, AuditTaskCommentAdded: {},
	AuditTaskAttachmentAdded: {}, AuditCleanup: {},
}

func (a AuditAction) Valid() bool {
	_, ok := auditActions[a]
	return ok
}

// SecurityActions are always part of a security report regardless of category.
var SecurityActions = []AuditAction{
	AuditLogin,
	AuditLogout,
	AuditFailedLogin,
	AuditPasswordChange,
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Retained reports whether entries of this severity survive retention cleanup.
func (s Severity) Retained() bool {
	return s == SeverityHigh || s == SeverityCritical
}

type Category string

const (
	CategorySecurity   Category = "security"
	CategoryData       Category = "data"
	CategorySystem     Category = "system"
	CategoryUserAction Category = "user_action"
)

func (c Category) Valid() bool {
	switch c {
	case CategorySecurity, CategoryData, CategorySystem, CategoryUserAction:
		return true
	default:
		return false
	}
}

type ResourceType string

const (
	ResourceUser   ResourceType = "user"
	ResourceTask   ResourceType = "task"
	ResourceAuth   ResourceType = "auth"
	ResourceAudit  ResourceType = "audit"
	ResourceSystem ResourceType = "system"
)

type AuditEntry struct {
	ID           string
	ActorID      *string
	ActorRole    *Role
	Action       AuditAction
	ResourceType ResourceType
	ResourceID   *string
	Details      map[string]any
	Success      bool
	Severity     Severity
	Category     Category
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// IsSecurityRelevant matches the predicate used by security reports.
func (e *AuditEntry) IsSecurityRelevant() bool {
	if e.Category == CategorySecurity || !e.Success || e.Severity.Retained() {
		return true
	}
	for _, a := range SecurityActions {
		if e.Action == a {
			return true
		}
	}
	return false
}

type IPFailureCount struct {
	IPAddress   string
	Attempts    int
	LastAttempt time.Time
}

type DailyActivity struct {
	Day   time.Time
	Count int
}

type ActionSummary struct {
	Action    AuditAction
	Total     int
	Succeeded int
	Failed    int
}
