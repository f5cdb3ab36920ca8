package services

import (
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-task-tracker/internal/models"
)

func login(f *fixture, email, password string) (*AuthenticateResult, error) {
	return f.auth.Authenticate(f.ctx, AuthenticateParams{
		Email:     email,
		Password:  password,
		IPAddress: "10.0.0.7",
		UserAgent: "test-agent",
	})
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)

	t.Run("success opens a session", func(t *testing.T) {
		res, err := login(f, f.employee.Email, testPassword)
		require.NoError(t, err)
		assert.NotEmpty(t, res.AccessToken)
		assert.Equal(t, f.employee.ID, res.User.ID)

		claims, err := f.auth.ParseJWTToken(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, res.SessionID, claims.Subject)

		stored, err := f.store.GetUserByID(f.ctx, f.employee.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastLogin)
		assert.True(t, stored.LastLogin.Equal(f.clock.Now()))

		logins := f.auditEntries(t, models.AuditLogin)
		require.Len(t, logins, 1)
		assert.Equal(t, "10.0.0.7", logins[0].IPAddress)
	})

	t.Run("a new login replaces the previous session", func(t *testing.T) {
		first, err := login(f, f.manager.Email, testPassword)
		require.NoError(t, err)
		second, err := login(f, f.manager.Email, testPassword)
		require.NoError(t, err)

		_, _, err = f.auth.Authorize(f.ctx, AuthorizeParams{
			AccessToken: first.AccessToken,
			IPAddress:   "10.0.0.7",
			UserAgent:   "test-agent",
		})
		assert.ErrorIs(t, err, ErrUnauthorized)

		_, _, err = f.auth.Authorize(f.ctx, AuthorizeParams{
			AccessToken: second.AccessToken,
			IPAddress:   "10.0.0.7",
			UserAgent:   "test-agent",
		})
		assert.NoError(t, err)
	})

	t.Run("unknown email still checks a password hash", func(t *testing.T) {
		impl := f.auth
		var compared []string
		compare := impl.comparePassword
		impl.comparePassword = func(password, hash string) (bool, error) {
			compared = append(compared, hash)
			return compare(password, hash)
		}
		t.Cleanup(func() { impl.comparePassword = compare })

		_, err := login(f, "ghost@example.com", testPassword)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, []string{dummyPasswordHash()}, compared)

		match, err := argon2id.ComparePasswordAndHash(testPassword, dummyPasswordHash())
		require.NoError(t, err)
		assert.False(t, match)

		var found bool
		for _, entry := range f.auditEntries(t, models.AuditFailedLogin) {
			if entry.Details["reason"] == "unknown_email" {
				found = true
				assert.Nil(t, entry.ActorID)
				assert.Equal(t, "ghost@example.com", entry.Details["email"])
			}
		}
		assert.True(t, found)
	})

	t.Run("inactive account", func(t *testing.T) {
		inactive := f.seedUser(t, "gone", models.RoleEmployee, nil)
		_, err := f.store.DeactivateUser(f.ctx, inactive.ID, f.clock.Now())
		require.NoError(t, err)

		_, err = login(f, inactive.Email, testPassword)
		assert.ErrorIs(t, err, ErrAccountInactive)
	})
}

func TestAuthenticate_Lockout(t *testing.T) {
	f := newFixture(t)

	for i := range 5 {
		_, err := login(f, f.employee.Email, "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}

	stored, err := f.store.GetUserByID(f.ctx, f.employee.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.LoginAttempts)
	require.NotNil(t, stored.LockUntil)
	assert.True(t, stored.LockUntil.Equal(f.clock.Now().Add(30*time.Minute)))

	locked := f.auditEntries(t, models.AuditAccountLocked)
	require.Len(t, locked, 1)
	assert.Equal(t, models.SeverityHigh, locked[0].Severity)

	_, err = login(f, f.employee.Email, testPassword)
	assert.ErrorIs(t, err, ErrAccountLocked)

	_, err = login(f, f.employee.Email, "wrong-password")
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Len(t, f.auditEntries(t, models.AuditAccountLocked), 1)

	f.clock.Advance(31 * time.Minute)
	_, err = login(f, f.employee.Email, testPassword)
	require.NoError(t, err)

	stored, err = f.store.GetUserByID(f.ctx, f.employee.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.LoginAttempts)
	assert.Nil(t, stored.LockUntil)

	assert.Len(t, f.auditEntries(t, models.AuditFailedLogin), 7)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	res, err := login(f, f.employee.Email, testPassword)
	require.NoError(t, err)

	params := AuthorizeParams{
		AccessToken: res.AccessToken,
		IPAddress:   "10.0.0.7",
		UserAgent:   "test-agent",
	}

	t.Run("valid token", func(t *testing.T) {
		user, session, err := f.auth.Authorize(f.ctx, params)
		require.NoError(t, err)
		assert.Equal(t, f.employee.ID, user.ID)
		assert.Equal(t, res.SessionID, session.ID)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, _, err := f.auth.Authorize(f.ctx, AuthorizeParams{AccessToken: "garbage"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("different client", func(t *testing.T) {
		other := params
		other.UserAgent = "curl/8.0"
		_, _, err := f.auth.Authorize(f.ctx, other)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("session timeout", func(t *testing.T) {
		f.clock.Advance(8*time.Hour + time.Minute)

		_, _, err := f.auth.Authorize(f.ctx, params)
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.Len(t, f.auditEntries(t, models.AuditSessionExpired), 1)

		_, _, err = f.auth.Authorize(f.ctx, params)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	res, err := login(f, f.employee.Email, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(f.ctx, f.employee))
	assert.Len(t, f.auditEntries(t, models.AuditLogout), 1)

	_, _, err = f.auth.Authorize(f.ctx, AuthorizeParams{
		AccessToken: res.AccessToken,
		IPAddress:   "10.0.0.7",
		UserAgent:   "test-agent",
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)

	t.Run("wrong current password", func(t *testing.T) {
		err := f.auth.ChangePassword(f.ctx, f.employee, ChangePasswordParams{
			CurrentPassword: "not-it-at-all",
			NewPassword:     "brand-new-pass",
			IPAddress:       "10.0.0.7",
		})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("weak new password", func(t *testing.T) {
		err := f.auth.ChangePassword(f.ctx, f.employee, ChangePasswordParams{
			CurrentPassword: testPassword,
			NewPassword:     "short",
		})
		assert.ErrorIs(t, err, ErrValidationFailed)
	})

	t.Run("success", func(t *testing.T) {
		err := f.auth.ChangePassword(f.ctx, f.employee, ChangePasswordParams{
			CurrentPassword: testPassword,
			NewPassword:     "brand-new-pass",
			IPAddress:       "10.0.0.7",
		})
		require.NoError(t, err)

		_, err = login(f, f.employee.Email, testPassword)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = login(f, f.employee.Email, "brand-new-pass")
		assert.NoError(t, err)

		changes := f.auditEntries(t, models.AuditPasswordChange)
		require.Len(t, changes, 2)
		assert.True(t, changes[0].Success)
		assert.False(t, changes[1].Success)
	})

	t.Run("rate limited", func(t *testing.T) {
		f.limiter.allow = false
		defer func() { f.limiter.allow = true }()

		err := f.auth.ChangePassword(f.ctx, f.employee, ChangePasswordParams{
			CurrentPassword: "brand-new-pass",
			NewPassword:     "another-new-pass",
			IPAddress:       "10.0.0.7",
		})
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Len(t, f.auditEntries(t, models.AuditRateLimited), 1)
		assert.Contains(t, f.limiter.keys, RateLimitKey("password_change", "10.0.0.7", f.employee.ID))
	})
}
