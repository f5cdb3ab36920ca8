package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

const userColumns = `
id,
name,
email,
password,
phone,
role,
manager_id,
is_active,
login_attempts,
lock_until,
last_login,
notification_preferences,
created_at,
updated_at
`

func scanUser(row pgx.Row) (*models.User, error) {
	user := new(models.User)
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Password,
		&user.Phone,
		&user.Role,
		&user.ManagerID,
		&user.IsActive,
		&user.LoginAttempts,
		&user.LockUntil,
		&user.LastLogin,
		&user.NotificationPreferences,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	const insertUserQuery = `
INSERT INTO users (id,
                   name,
                   email,
                   password,
                   phone,
                   role,
                   manager_id,
                   is_active,
                   notification_preferences,
                   created_at,
                   updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := s.pool.Exec(
		ctx,
		insertUserQuery,
		user.ID,
		user.Name,
		user.Email,
		user.Password,
		user.Phone,
		user.Role,
		user.ManagerID,
		user.IsActive,
		user.NotificationPreferences,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			s.logger.Error().
				Str("email", user.Email).
				Msg("user with this email already exists")
			return storage.ErrDuplicateEmail
		}

		s.logger.Error().
			Err(err).
			Msg("failed to insert user")
		return err
	}
	s.logger.Debug().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Msg("inserted user")
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const selectUserByIDQuery = `SELECT` + userColumns + `FROM users WHERE id = $1`

	user, err := scanUser(s.pool.QueryRow(ctx, selectUserByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", id).
			Msg("failed to select user by id")
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const selectUserByEmailQuery = `SELECT` + userColumns + `FROM users WHERE lower(email) = lower($1)`

	user, err := scanUser(s.pool.QueryRow(ctx, selectUserByEmailQuery, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		s.logger.Error().
			Err(err).
			Str("email", email).
			Msg("failed to select user by email")
		return nil, err
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, update storage.UserUpdate) (*models.User, error) {
	// COALESCE keeps every column the update leaves unset.
	const updateUserQuery = `
UPDATE users
SET name = COALESCE($2::text, name),
    email = COALESCE($3::text, email),
    phone = COALESCE($4::text, phone),
    role = COALESCE($5::text, role),
    is_active = COALESCE($6::boolean, is_active),
    manager_id = CASE WHEN $8::boolean THEN NULL ELSE COALESCE($7::uuid, manager_id) END,
    notification_preferences = COALESCE($9::jsonb, notification_preferences),
    updated_at = $10
WHERE id = $1
RETURNING` + userColumns

	user, err := scanUser(s.pool.QueryRow(
		ctx,
		updateUserQuery,
		id,
		update.Name,
		update.Email,
		update.Phone,
		update.Role,
		update.IsActive,
		update.ManagerID,
		update.ClearManagerID,
		update.NotificationPreferences,
		update.UpdatedAt,
	))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, storage.ErrNotFound
		case isUniqueViolation(err):
			return nil, storage.ErrDuplicateEmail
		}

		s.logger.Error().
			Err(err).
			Str("user_id", id).
			Msg("failed to update user")
		return nil, err
	}
	s.logger.Debug().
		Str("user_id", id).
		Msg("updated user")
	return user, nil
}

func (s *Store) SetUserPassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	const updateUserPasswordQuery = `UPDATE users SET password = $2, updated_at = $3 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, updateUserPasswordQuery, id, passwordHash, now)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", id).
			Msg("failed to update user password")
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateUser(ctx context.Context, id string, now time.Time) (bool, error) {
	const deactivateUserQuery = `
UPDATE users
SET is_active = FALSE,
    updated_at = $2
WHERE id = $1
  AND is_active
`
	tag, err := s.pool.Exec(ctx, deactivateUserQuery, id, now)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", id).
			Msg("failed to deactivate user")
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Either the user is missing or it was already inactive.
	_, err = s.GetUserByID(ctx, id)
	if err != nil {
		return false, err
	}
	return false, nil
}

const userFilter = `
FROM users
WHERE ($1::boolean
       OR id = NULLIF($2, '')::uuid
       OR manager_id = NULLIF($3, '')::uuid)
  AND ($4::text IS NULL OR role = $4)
  AND ($5::boolean IS NULL OR is_active = $5)
  AND ($6::uuid IS NULL OR manager_id = $6)
  AND ($7::text = '' OR position(lower($7) in lower(name)) > 0 OR position(lower($7) in lower(email)) > 0)
`

func (s *Store) ListUsers(ctx context.Context, q storage.UserQuery) ([]*models.User, int, error) {
	args := []any{
		q.Scope.All,
		q.Scope.SelfID,
		q.Scope.ManagerID,
		q.Role,
		q.IsActive,
		q.ManagerID,
		q.Search,
	}

	const countUsersQuery = `SELECT COUNT(*)` + userFilter
	var total int
	err := s.pool.QueryRow(ctx, countUsersQuery, args...).Scan(&total)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to count users")
		return nil, 0, err
	}

	const selectUsersQuery = `SELECT` + userColumns + userFilter + `
ORDER BY created_at DESC, id DESC
LIMIT $8 OFFSET $9
`
	rows, err := s.pool.Query(
		ctx,
		selectUsersQuery,
		append(args, storage.NormalizeLimit(q.Limit), max(q.Offset, 0))...,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select users")
		return nil, 0, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to scan user")
			return nil, 0, err
		}
		users = append(users, user)
	}

	err = rows.Err()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to iterate over rows")
		return nil, 0, err
	}
	s.logger.Debug().
		Int("count", len(users)).
		Int("total", total).
		Msg("selected users")
	return users, total, nil
}

func (s *Store) CountTeamMembers(ctx context.Context, managerID string) (int, error) {
	const countTeamMembersQuery = `SELECT COUNT(*) FROM users WHERE manager_id = $1`

	var n int
	err := s.pool.QueryRow(ctx, countTeamMembersQuery, managerID).Scan(&n)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("manager_id", managerID).
			Msg("failed to count team members")
		return 0, err
	}
	return n, nil
}

func (s *Store) RegisterLoginFailure(
	ctx context.Context,
	userID string,
	now time.Time,
	threshold int,
	lockout time.Duration,
) (*storage.LoginFailure, error) {
	// SET expressions see the row as it was before the update, so an
	// expired lock and the increment are decided against the same snapshot.
	const registerLoginFailureQuery = `
UPDATE users
SET login_attempts = CASE
        WHEN lock_until IS NOT NULL THEN 1
        ELSE login_attempts + 1
    END,
    lock_until = CASE
        WHEN (CASE WHEN lock_until IS NOT NULL THEN 1 ELSE login_attempts + 1 END) >= $3
            THEN $4::timestamptz
        ELSE NULL
    END,
    updated_at = $2
WHERE id = $1
  AND (lock_until IS NULL OR lock_until <= $2)
RETURNING login_attempts, lock_until
`
	res := &storage.LoginFailure{Applied: true}
	err := s.pool.QueryRow(
		ctx,
		registerLoginFailureQuery,
		userID,
		now,
		threshold,
		now.Add(lockout),
	).Scan(
		&res.Attempts,
		&res.LockUntil,
	)
	if err == nil {
		s.logger.Debug().
			Str("user_id", userID).
			Int("attempts", res.Attempts).
			Msg("registered login failure")
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to register login failure")
		return nil, err
	}

	// Either the user is missing or it is still locked.
	const selectLoginStateQuery = `SELECT login_attempts, lock_until FROM users WHERE id = $1`
	res = &storage.LoginFailure{}
	err = s.pool.QueryRow(ctx, selectLoginStateQuery, userID).Scan(&res.Attempts, &res.LockUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to select login state")
		return nil, err
	}
	return res, nil
}

func (s *Store) RegisterLoginSuccess(ctx context.Context, userID string, now time.Time) error {
	const registerLoginSuccessQuery = `
UPDATE users
SET login_attempts = 0,
    lock_until = NULL,
    last_login = $2,
    updated_at = $2
WHERE id = $1
`
	tag, err := s.pool.Exec(ctx, registerLoginSuccessQuery, userID, now)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to register login success")
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
