package access

import "github.com/adanyl0v/go-task-tracker/internal/models"

// UserScope is the set of users an actor may list. Empty ids disable the
// corresponding branch.
type UserScope struct {
	All       bool
	SelfID    string
	ManagerID string
}

func UserScopeFor(actor *models.User) UserScope {
	granted := Grants(actor.Role, UserRead)
	if granted.Has(RelAny) {
		return UserScope{All: true}
	}

	var scope UserScope
	if granted.Has(RelSelf) {
		scope.SelfID = actor.ID
	}
	if granted.Has(RelTeamMember) {
		scope.ManagerID = actor.ID
	}
	return scope
}

func (s UserScope) Matches(u *models.User) bool {
	switch {
	case s.All:
		return true
	case s.SelfID != "" && u.ID == s.SelfID:
		return true
	case s.ManagerID != "" && u.ManagedBy(s.ManagerID):
		return true
	default:
		return false
	}
}

// TaskScope is the set of tasks an actor may list.
type TaskScope struct {
	All         bool
	AssignorID  string
	AssigneeID  string
	TeamOwnerID string
}

func TaskScopeFor(actor *models.User) TaskScope {
	granted := Grants(actor.Role, TaskRead)
	if granted.Has(RelAny) {
		return TaskScope{All: true}
	}

	var scope TaskScope
	if granted.Has(RelAssignor) {
		scope.AssignorID = actor.ID
	}
	if granted.Has(RelAssignee) {
		scope.AssigneeID = actor.ID
	}
	if granted.Has(RelTeamOwner) {
		scope.TeamOwnerID = actor.ID
	}
	return scope
}

// Matches reports whether the task is visible. assignee is needed for the
// team owner branch and may be nil.
func (s TaskScope) Matches(t *models.Task, assignee *models.User) bool {
	switch {
	case s.All:
		return true
	case s.AssignorID != "" && t.AssignedBy == s.AssignorID:
		return true
	case s.AssigneeID != "" && t.AssignedTo == s.AssigneeID:
		return true
	case s.TeamOwnerID != "" && assignee != nil && assignee.ManagedBy(s.TeamOwnerID):
		return true
	default:
		return false
	}
}
