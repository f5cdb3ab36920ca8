package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adanyl0v/go-task-tracker/internal/models"
)

func ptr[T any](v T) *T { return &v }

func fixture() (admin, manager, other, employee, stranger *models.User) {
	admin = &models.User{ID: "admin", Role: models.RoleSuperAdmin}
	manager = &models.User{ID: "m1", Role: models.RoleManager}
	other = &models.User{ID: "m2", Role: models.RoleManager}
	employee = &models.User{ID: "e1", Role: models.RoleEmployee, ManagerID: ptr("m1")}
	stranger = &models.User{ID: "e2", Role: models.RoleEmployee, ManagerID: ptr("m2")}
	return
}

func TestUserRelation(t *testing.T) {
	_, manager, other, employee, _ := fixture()

	assert.Equal(t, RelSelf, UserRelation(manager, manager))
	assert.Equal(t, RelTeamMember, UserRelation(manager, employee))
	assert.Equal(t, RelNone, UserRelation(other, employee))
	assert.Equal(t, RelNone, UserRelation(employee, manager))
}

func TestCanAccessUser(t *testing.T) {
	admin, manager, other, employee, stranger := fixture()

	tests := []struct {
		name   string
		actor  *models.User
		target *models.User
		action Action
		want   bool
	}{
		{"admin reads anyone", admin, stranger, UserRead, true},
		{"admin deactivates anyone", admin, manager, UserDeactivate, true},
		{"manager reads self", manager, manager, UserRead, true},
		{"manager reads team member", manager, employee, UserRead, true},
		{"manager cannot read other team", manager, stranger, UserRead, false},
		{"manager cannot read peer manager", manager, other, UserRead, false},
		{"manager updates team member", manager, employee, UserUpdate, true},
		{"manager cannot deactivate", manager, employee, UserDeactivate, false},
		{"employee reads self", employee, employee, UserRead, true},
		{"employee cannot read manager", employee, manager, UserRead, false},
		{"employee cannot read peer", employee, stranger, UserRead, false},
		{"employee updates self", employee, employee, UserUpdate, true},
		{"employee cannot deactivate self", employee, employee, UserDeactivate, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccessUser(tt.actor, tt.target, tt.action))
		})
	}
}

func TestCanAccessTask(t *testing.T) {
	admin, manager, other, employee, stranger := fixture()

	// m1 assigned a task to their report e1.
	own := &models.Task{ID: "t1", AssignedBy: "m1", AssignedTo: "e1"}
	// admin assigned a task to e1, so m1 owns it only through the team.
	viaTeam := &models.Task{ID: "t2", AssignedBy: "admin", AssignedTo: "e1"}

	tests := []struct {
		name     string
		actor    *models.User
		task     *models.Task
		assignee *models.User
		action   Action
		want     bool
	}{
		{"admin reads any task", admin, own, employee, TaskRead, true},
		{"admin cannot start a task it is not assigned", admin, own, employee, TaskStart, false},
		{"admin reviews any task", admin, own, employee, TaskReview, true},
		{"assignor reads", manager, own, employee, TaskRead, true},
		{"team owner reads", manager, viaTeam, employee, TaskRead, true},
		{"team owner reviews", manager, viaTeam, employee, TaskReview, true},
		{"team owner cannot archive", manager, viaTeam, employee, TaskArchive, false},
		{"assignor archives", manager, own, employee, TaskArchive, true},
		{"unrelated manager cannot read", other, own, employee, TaskRead, false},
		{"assignee reads", employee, own, employee, TaskRead, true},
		{"assignee starts", employee, own, employee, TaskStart, true},
		{"assignee cannot review", employee, own, employee, TaskReview, false},
		{"assignee edits effort", employee, own, employee, TaskUpdateEffort, true},
		{"assignee cannot edit task", employee, own, employee, TaskUpdate, false},
		{"stranger cannot read", stranger, own, employee, TaskRead, false},
		{"missing assignee grants no team ownership", manager, viaTeam, nil, TaskRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccessTask(tt.actor, tt.task, tt.assignee, tt.action))
		})
	}
}

func TestEmployeeCannotCreate(t *testing.T) {
	_, _, _, employee, _ := fixture()

	assert.False(t, Allowed(employee.Role, UserCreate, RelAny))
	assert.False(t, Allowed(employee.Role, TaskCreate, RelAny))
	assert.False(t, Allowed(employee.Role, AuditRead, RelAny))
}

func TestScopes(t *testing.T) {
	admin, manager, _, employee, stranger := fixture()
	own := &models.Task{AssignedBy: "m1", AssignedTo: "e1"}
	foreign := &models.Task{AssignedBy: "m2", AssignedTo: "e2"}

	t.Run("admin sees everything", func(t *testing.T) {
		assert.Equal(t, UserScope{All: true}, UserScopeFor(admin))
		assert.Equal(t, TaskScope{All: true}, TaskScopeFor(admin))
	})

	t.Run("manager sees self and team", func(t *testing.T) {
		scope := UserScopeFor(manager)
		assert.True(t, scope.Matches(manager))
		assert.True(t, scope.Matches(employee))
		assert.False(t, scope.Matches(stranger))

		tasks := TaskScopeFor(manager)
		assert.True(t, tasks.Matches(own, employee))
		assert.False(t, tasks.Matches(foreign, stranger))
	})

	t.Run("employee sees self and own tasks", func(t *testing.T) {
		scope := UserScopeFor(employee)
		assert.Equal(t, UserScope{SelfID: "e1"}, scope)
		assert.True(t, scope.Matches(employee))
		assert.False(t, scope.Matches(manager))

		tasks := TaskScopeFor(employee)
		assert.Equal(t, TaskScope{AssigneeID: "e1"}, tasks)
		assert.True(t, tasks.Matches(own, employee))
		assert.False(t, tasks.Matches(foreign, stranger))
	})
}

func TestSanitizeUserPatch(t *testing.T) {
	role := models.RoleSuperAdmin
	full := UserPatch{
		Name:      ptr("n"),
		Email:     ptr("e@example.com"),
		Phone:     ptr("1"),
		Role:      &role,
		IsActive:  ptr(false),
		ManagerID: ptr("m1"),
		NotificationPreferences: &models.NotificationPreferences{
			Comments: true,
		},
	}

	t.Run("super admin keeps everything", func(t *testing.T) {
		assert.Equal(t, full, SanitizeUserPatch(models.RoleSuperAdmin, full))
	})

	t.Run("manager loses privileged fields", func(t *testing.T) {
		got := SanitizeUserPatch(models.RoleManager, full)
		assert.Nil(t, got.Role)
		assert.Nil(t, got.IsActive)
		assert.Nil(t, got.ManagerID)
		assert.Nil(t, got.Email)
		assert.Equal(t, full.Name, got.Name)
		assert.Equal(t, full.Phone, got.Phone)
	})

	t.Run("employee keeps profile fields only", func(t *testing.T) {
		got := SanitizeUserPatch(models.RoleEmployee, full)
		assert.Equal(t, UserPatch{
			Name:                    full.Name,
			Phone:                   full.Phone,
			NotificationPreferences: full.NotificationPreferences,
		}, got)
	})

	t.Run("stripped patch may become empty", func(t *testing.T) {
		got := SanitizeUserPatch(models.RoleEmployee, UserPatch{Role: &role})
		assert.True(t, got.Empty())
	})
}
