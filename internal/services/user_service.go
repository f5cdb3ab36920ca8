package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

type userServiceImpl struct {
	logger   zerolog.Logger
	users    storage.UserStore
	tasks    storage.TaskStore
	sessions storage.SessionStore
	audit    AuditRecorder
	notifier NotificationGateway
	now      func() time.Time
}

func NewUserService(
	logger zerolog.Logger,
	users storage.UserStore,
	tasks storage.TaskStore,
	sessions storage.SessionStore,
	audit AuditRecorder,
	notifier NotificationGateway,
) UserService {
	return &userServiceImpl{
		logger:   logger,
		users:    users,
		tasks:    tasks,
		sessions: sessions,
		audit:    audit,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *userServiceImpl) getUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", id).
			Msg("failed to select user by id")
		return nil, err
	}
	return user, nil
}

// activeManager returns the user if it is an active manager.
func (s *userServiceImpl) activeManager(ctx context.Context, id string) (*models.User, error) {
	manager, err := s.getUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, invalid("manager_id", "must reference an existing manager")
		}
		return nil, err
	}
	if manager.Role != models.RoleManager || !manager.IsActive {
		return nil, invalid("manager_id", "must reference an active manager")
	}
	return manager, nil
}

func (s *userServiceImpl) CreateUser(ctx context.Context, actor *models.User, params CreateUserParams) (*models.User, error) {
	if !access.Allowed(actor.Role, access.UserCreate, access.RelNone) {
		return nil, deny(ctx, s.audit, actor, access.UserCreate, models.ResourceUser, "")
	}
	if params.Role == "" {
		params.Role = models.RoleEmployee
	}
	if !params.Role.Valid() {
		return nil, invalid("role", "unknown role")
	}
	if !access.CanCreateRole(actor.Role, params.Role) {
		return nil, deny(ctx, s.audit, actor, access.UserCreate, models.ResourceUser, "")
	}
	if access.AdoptsCreatedUsers(actor.Role) {
		managerID := actor.ID
		params.ManagerID = &managerID
	}
	return s.createUser(ctx, actor, params)
}

func (s *userServiceImpl) CreateSuperAdmin(ctx context.Context, params CreateUserParams) (*models.User, error) {
	params.Role = models.RoleSuperAdmin
	params.ManagerID = nil
	return s.createUser(ctx, nil, params)
}

func (s *userServiceImpl) createUser(ctx context.Context, actor *models.User, params CreateUserParams) (*models.User, error) {
	v := new(ValidationError)
	name := validateName(v, "name", params.Name, maxNameLength)
	email := validateEmail(v, params.Email)
	validatePassword(v, "password", params.Password)
	if err := v.Err(); err != nil {
		return nil, err
	}

	var managerID *string
	if params.Role == models.RoleEmployee && params.ManagerID != nil && *params.ManagerID != "" {
		manager, err := s.activeManager(ctx, *params.ManagerID)
		if err != nil {
			return nil, err
		}
		managerID = &manager.ID
	}

	passwordHash, err := argon2id.CreateHash(params.Password, argon2id.DefaultParams)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to hash password")
		return nil, err
	}

	userUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate user uuid")
		return nil, err
	}

	now := s.now()
	user := &models.User{
		ID:                      userUUID.String(),
		Name:                    name,
		Email:                   email,
		Password:                passwordHash,
		Phone:                   strings.TrimSpace(params.Phone),
		Role:                    params.Role,
		ManagerID:               managerID,
		IsActive:                true,
		NotificationPreferences: models.DefaultNotificationPreferences(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	err = s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			s.logger.Error().
				Str("email", email).
				Msg("email already in use")
			return nil, ErrDuplicateEmail
		}

		s.logger.Error().
			Err(err).
			Msg("failed to insert user")
		return nil, err
	}

	entry := newAuditEntry(actor, models.AuditUserCreated, models.ResourceUser, user.ID)
	entry.Details["role"] = string(user.Role)
	entry.Details["email"] = user.Email
	if managerID != nil {
		entry.Details["manager_id"] = *managerID
	}
	s.audit.Record(ctx, entry)

	s.logger.Info().
		Str("user_id", user.ID).
		Str("role", string(user.Role)).
		Msg("created user")
	return user, nil
}

func (s *userServiceImpl) GetUser(ctx context.Context, actor *models.User, id string) (*models.User, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessUser(actor, user, access.UserRead) {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *userServiceImpl) ListUsers(ctx context.Context, actor *models.User, params ListUsersParams) (*models.Page[*models.User], error) {
	if params.Role != nil && !params.Role.Valid() {
		return nil, invalid("role", "unknown role")
	}
	if params.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}

	query := storage.UserQuery{
		Scope:     access.UserScopeFor(actor),
		Role:      params.Role,
		IsActive:  params.IsActive,
		ManagerID: params.ManagerID,
		Search:    strings.TrimSpace(params.Search),
		Limit:     storage.NormalizeLimit(params.Limit),
		Offset:    params.Offset,
	}
	users, total, err := s.users.ListUsers(ctx, query)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("actor_id", actor.ID).
			Msg("failed to list users")
		return nil, err
	}
	return &models.Page[*models.User]{
		Items:  users,
		Total:  total,
		Limit:  query.Limit,
		Offset: query.Offset,
	}, nil
}

func (s *userServiceImpl) UpdateUser(ctx context.Context, actor *models.User, id string, patch access.UserPatch) (*models.User, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessUser(actor, user, access.UserUpdate) {
		return nil, deny(ctx, s.audit, actor, access.UserUpdate, models.ResourceUser, user.ID)
	}

	patch = access.SanitizeUserPatch(actor.Role, patch)
	if patch.Empty() {
		return user, nil
	}

	v := new(ValidationError)
	changed := make([]string, 0, 7)
	update := storage.UserUpdate{UpdatedAt: s.now()}
	if patch.Name != nil {
		update.Name = ptr(validateName(v, "name", *patch.Name, maxNameLength))
		changed = append(changed, "name")
	}
	if patch.Email != nil {
		update.Email = ptr(validateEmail(v, *patch.Email))
		changed = append(changed, "email")
	}
	if patch.Phone != nil {
		update.Phone = ptr(strings.TrimSpace(*patch.Phone))
		changed = append(changed, "phone")
	}
	if patch.NotificationPreferences != nil {
		update.NotificationPreferences = patch.NotificationPreferences
		changed = append(changed, "notification_preferences")
	}
	if patch.IsActive != nil {
		if !*patch.IsActive {
			v.Add("is_active", "use deactivation to disable an account")
		}
		update.IsActive = patch.IsActive
		changed = append(changed, "is_active")
	}
	role := user.Role
	if patch.Role != nil && *patch.Role != user.Role {
		switch {
		case !patch.Role.Valid():
			v.Add("role", "unknown role")
		case user.Role == models.RoleManager:
			members, err := s.users.CountTeamMembers(ctx, user.ID)
			if err != nil {
				s.logger.Error().
					Err(err).
					Str("user_id", user.ID).
					Msg("failed to count team members")
				return nil, err
			}
			if members > 0 {
				v.Add("role", "manager still has team members")
			}
		}
		role = *patch.Role
		update.Role = &role
		changed = append(changed, "role")
	}
	if err = v.Err(); err != nil {
		return nil, err
	}

	if patch.ManagerID != nil {
		switch {
		case *patch.ManagerID == "":
			update.ClearManagerID = true
		case *patch.ManagerID == user.ID:
			return nil, invalid("manager_id", "must not reference the user itself")
		default:
			manager, err := s.activeManager(ctx, *patch.ManagerID)
			if err != nil {
				return nil, err
			}
			update.ManagerID = &manager.ID
		}
		changed = append(changed, "manager_id")
	}
	// Only employees belong to a team.
	if role != models.RoleEmployee && (update.Role != nil || update.ManagerID != nil) {
		update.ManagerID = nil
		update.ClearManagerID = true
	}
	if len(changed) == 0 {
		return user, nil
	}

	user, err = s.users.UpdateUser(ctx, user.ID, update)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", id).
			Msg("failed to update user")
		return nil, err
	}

	entry := newAuditEntry(actor, models.AuditUserUpdated, models.ResourceUser, user.ID)
	entry.Details["fields"] = changed
	s.audit.Record(ctx, entry)

	s.logger.Info().
		Str("user_id", user.ID).
		Strs("fields", changed).
		Msg("updated user")
	return user, nil
}

func (s *userServiceImpl) DeactivateUser(ctx context.Context, actor *models.User, id string) (*DeactivateUserResult, error) {
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccessUser(actor, user, access.UserDeactivate) {
		return nil, deny(ctx, s.audit, actor, access.UserDeactivate, models.ResourceUser, user.ID)
	}
	if user.ID == actor.ID {
		return nil, ErrSelfDeactivation
	}
	if !user.IsActive {
		return &DeactivateUserResult{User: user}, nil
	}

	now := s.now()
	deactivated, err := s.users.DeactivateUser(ctx, user.ID, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to deactivate user")
		return nil, err
	}
	user.IsActive = false
	user.UpdatedAt = now
	if !deactivated {
		// A concurrent deactivation already did the rest.
		return &DeactivateUserResult{User: user}, nil
	}

	_, err = s.sessions.DeleteSessionsByUserID(ctx, user.ID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to delete sessions by user id")
		return nil, err
	}

	heir := actor
	if user.ManagerID != nil {
		manager, err := s.activeManager(ctx, *user.ManagerID)
		if err == nil {
			heir = manager
		} else if !errors.Is(err, ErrValidationFailed) {
			return nil, err
		}
	}

	moved, err := s.tasks.ReassignOpenTasks(ctx, user.ID, heir.ID, now)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("from", user.ID).
			Str("to", heir.ID).
			Msg("failed to reassign open tasks")
		return nil, err
	}

	for _, taskID := range moved {
		if heir.ID == actor.ID {
			break
		}
		s.notifier.Notify(ctx, models.Event{
			Type:            models.EventTaskAssigned,
			TargetUserID:    heir.ID,
			TaskID:          taskID,
			SourceActorID:   actor.ID,
			SourceActorName: actor.Name,
			Message:         fmt.Sprintf("%s reassigned you a task of %s", actor.Name, user.Name),
			CreatedAt:       now,
		})
	}

	entry := newAuditEntry(actor, models.AuditUserDeactivated, models.ResourceUser, user.ID)
	entry.Details["reassigned_to"] = heir.ID
	entry.Details["reassigned_tasks"] = len(moved)
	s.audit.Record(ctx, entry)

	s.logger.Info().
		Str("user_id", user.ID).
		Str("reassigned_to", heir.ID).
		Int("reassigned_tasks", len(moved)).
		Msg("deactivated user")
	return &DeactivateUserResult{
		User:                user,
		ReassignedTo:        heir.ID,
		ReassignedTaskCount: len(moved),
	}, nil
}
