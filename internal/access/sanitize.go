package access

import "github.com/adanyl0v/go-task-tracker/internal/models"

// UserPatch is a partial user update. Nil fields are left untouched. An
// empty ManagerID clears the manager.
type UserPatch struct {
	Name                    *string
	Email                   *string
	Phone                   *string
	Role                    *models.Role
	IsActive                *bool
	ManagerID               *string
	NotificationPreferences *models.NotificationPreferences
}

func (p UserPatch) Empty() bool {
	return p == UserPatch{}
}

type patchField uint8

const (
	fieldName patchField = 1 << iota
	fieldEmail
	fieldPhone
	fieldRole
	fieldIsActive
	fieldManagerID
	fieldPreferences

	fieldAll = fieldName | fieldEmail | fieldPhone | fieldRole |
		fieldIsActive | fieldManagerID | fieldPreferences
)

var patchable = map[models.Role]patchField{
	models.RoleSuperAdmin: fieldAll,
	models.RoleManager:    fieldName | fieldPhone | fieldPreferences,
	models.RoleEmployee:   fieldName | fieldPhone | fieldPreferences,
}

// SanitizeUserPatch drops every field the role may not write. Dropped
// fields are ignored rather than reported.
func SanitizeUserPatch(role models.Role, p UserPatch) UserPatch {
	allowed := patchable[role]
	var out UserPatch
	if allowed&fieldName != 0 {
		out.Name = p.Name
	}
	if allowed&fieldEmail != 0 {
		out.Email = p.Email
	}
	if allowed&fieldPhone != 0 {
		out.Phone = p.Phone
	}
	if allowed&fieldRole != 0 {
		out.Role = p.Role
	}
	if allowed&fieldIsActive != 0 {
		out.IsActive = p.IsActive
	}
	if allowed&fieldManagerID != 0 {
		out.ManagerID = p.ManagerID
	}
	if allowed&fieldPreferences != 0 {
		out.NotificationPreferences = p.NotificationPreferences
	}
	return out
}
