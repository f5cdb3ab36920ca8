// Package access resolves what a user may see and do.
//
// Every decision is read from a single role × action table whose cells
// list the relationships between the actor and the target that grant
// the action. Relationships are computed one level deep: a Manager
// reaches their direct reports and the tasks assigned to them, nothing
// further.
package access

import (
	"slices"

	"github.com/adanyl0v/go-task-tracker/internal/models"
)

type Action string

const (
	UserRead       Action = "user:read"
	UserCreate     Action = "user:create"
	UserUpdate     Action = "user:update"
	UserDeactivate Action = "user:deactivate"

	TaskRead         Action = "task:read"
	TaskCreate       Action = "task:create"
	TaskAssign       Action = "task:assign"
	TaskUpdate       Action = "task:update"
	TaskUpdateEffort Action = "task:update_effort"
	TaskArchive      Action = "task:archive"
	TaskComment      Action = "task:comment"
	TaskStart        Action = "task:start"
	TaskComplete     Action = "task:complete"
	TaskReview       Action = "task:review"
	TaskReopen       Action = "task:reopen"

	AuditRead    Action = "audit:read"
	AuditCleanup Action = "audit:cleanup"
)

// Relation is a set of relationships between an actor and a target.
type Relation uint8

const (
	RelSelf Relation = 1 << iota
	RelTeamMember
	RelAssignor
	RelAssignee
	RelTeamOwner
	// RelAny grants the action regardless of relationship.
	RelAny

	RelNone Relation = 0
)

func (r Relation) Has(rel Relation) bool {
	return r&rel != 0
}

var policy = map[models.Role]map[Action]Relation{
	models.RoleSuperAdmin: {
		UserRead:       RelAny,
		UserCreate:     RelAny,
		UserUpdate:     RelAny,
		UserDeactivate: RelAny,

		TaskRead:         RelAny,
		TaskCreate:       RelAny,
		TaskAssign:       RelAny,
		TaskUpdate:       RelAny,
		TaskUpdateEffort: RelAny,
		TaskArchive:      RelAny,
		TaskComment:      RelAny,
		TaskStart:        RelAssignee,
		TaskComplete:     RelAssignee,
		TaskReview:       RelAny,
		TaskReopen:       RelAny,

		AuditRead:    RelAny,
		AuditCleanup: RelAny,
	},
	models.RoleManager: {
		UserRead:   RelSelf | RelTeamMember,
		UserCreate: RelAny,
		UserUpdate: RelSelf | RelTeamMember,

		TaskRead:         RelAssignor | RelAssignee | RelTeamOwner,
		TaskCreate:       RelAny,
		TaskAssign:       RelSelf | RelTeamMember,
		TaskUpdate:       RelAssignor | RelTeamOwner,
		TaskUpdateEffort: RelAssignor | RelAssignee | RelTeamOwner,
		TaskArchive:      RelAssignor,
		TaskComment:      RelAssignor | RelAssignee | RelTeamOwner,
		TaskStart:        RelAssignee,
		TaskComplete:     RelAssignee,
		TaskReview:       RelAssignor | RelTeamOwner,
		TaskReopen:       RelAssignor | RelAssignee | RelTeamOwner,
	},
	models.RoleEmployee: {
		UserRead:   RelSelf,
		UserUpdate: RelSelf,

		TaskRead:         RelAssignee,
		TaskUpdateEffort: RelAssignee,
		TaskComment:      RelAssignee,
		TaskStart:        RelAssignee,
		TaskComplete:     RelAssignee,
		TaskReopen:       RelAssignee,
	},
}

// Grants returns the relationships that allow role to perform action.
func Grants(role models.Role, action Action) Relation {
	return policy[role][action]
}

// Allowed reports whether an actor of the given role holding rel towards
// the target may perform action.
func Allowed(role models.Role, action Action, rel Relation) bool {
	granted := Grants(role, action)
	if granted.Has(RelAny) {
		return true
	}
	return granted.Has(rel)
}

// UserRelation computes how actor relates to target.
func UserRelation(actor, target *models.User) Relation {
	rel := RelNone
	if actor.ID == target.ID {
		rel |= RelSelf
	}
	if target.ManagedBy(actor.ID) {
		rel |= RelTeamMember
	}
	return rel
}

// TaskRelation computes how actor relates to task. The assignee may be nil
// when it could not be loaded, in which case team ownership is not granted.
func TaskRelation(actor *models.User, task *models.Task, assignee *models.User) Relation {
	rel := RelNone
	if task.AssignedBy == actor.ID {
		rel |= RelAssignor
	}
	if task.AssignedTo == actor.ID {
		rel |= RelAssignee
	}
	if assignee != nil && assignee.ID == task.AssignedTo && assignee.ManagedBy(actor.ID) {
		rel |= RelTeamOwner
	}
	return rel
}

func CanAccessUser(actor, target *models.User, action Action) bool {
	return Allowed(actor.Role, action, UserRelation(actor, target))
}

func CanAccessTask(actor *models.User, task *models.Task, assignee *models.User, action Action) bool {
	return Allowed(actor.Role, action, TaskRelation(actor, task, assignee))
}

// creatable lists the roles each role may give to accounts it creates.
var creatable = map[models.Role][]models.Role{
	models.RoleSuperAdmin: {models.RoleSuperAdmin, models.RoleManager, models.RoleEmployee},
	models.RoleManager:    {models.RoleEmployee},
}

// adoptsCreated marks roles whose created accounts join the creator's team.
var adoptsCreated = map[models.Role]bool{
	models.RoleManager: true,
}

func CanCreateRole(actor models.Role, role models.Role) bool {
	return slices.Contains(creatable[actor], role)
}

// AdoptsCreatedUsers reports whether users created by role are managed by
// their creator.
func AdoptsCreatedUsers(role models.Role) bool {
	return adoptsCreated[role]
}
