package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleManager    Role = "manager"
	RoleEmployee   Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleManager, RoleEmployee:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return r, nil
}

// NotificationPreferences toggles delivery per event kind.
type NotificationPreferences struct {
	TaskAssigned  bool `json:"task_assigned"`
	StatusChanges bool `json:"status_changes"`
	Reviews       bool `json:"reviews"`
	Comments      bool `json:"comments"`
	Attachments   bool `json:"attachments"`
}

func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		TaskAssigned:  true,
		StatusChanges: true,
		Reviews:       true,
		Comments:      true,
		Attachments:   true,
	}
}

func (p NotificationPreferences) Allows(t EventType) bool {
	switch t {
	case EventTaskAssigned:
		return p.TaskAssigned
	case EventTaskStarted, EventTaskCompleted, EventTaskReopened:
		return p.StatusChanges
	case EventTaskApproved, EventTaskRejected:
		return p.Reviews
	case EventCommentAdded:
		return p.Comments
	case EventAttachmentUploaded:
		return p.Attachments
	default:
		return false
	}
}

type User struct {
	ID            string
	Name          string
	Email         string
	Password      string
	Phone         string
	Role          Role
	ManagerID     *string
	IsActive      bool
	LoginAttempts int
	LockUntil     *time.Time
	LastLogin     *time.Time

	NotificationPreferences NotificationPreferences

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsLocked reports whether the account is inside an active lockout window.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

func (u *User) ManagedBy(managerID string) bool {
	return u.ManagerID != nil && *u.ManagerID == managerID
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	if u.ManagerID != nil {
		v := *u.ManagerID
		c.ManagerID = &v
	}
	if u.LockUntil != nil {
		v := *u.LockUntil
		c.LockUntil = &v
	}
	if u.LastLogin != nil {
		v := *u.LastLogin
		c.LastLogin = &v
	}
	return &c
}
