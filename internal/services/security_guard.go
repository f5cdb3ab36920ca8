package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

type securityGuardImpl struct {
	logger         zerolog.Logger
	users          storage.UserStore
	audit          AuditRecorder
	threshold      int
	lockout        time.Duration
	sessionTimeout time.Duration
	now            func() time.Time
}

func NewSecurityGuard(
	logger zerolog.Logger,
	users storage.UserStore,
	audit AuditRecorder,
	threshold int,
	lockout time.Duration,
	sessionTimeout time.Duration,
) SecurityGuard {
	return &securityGuardImpl{
		logger:         logger,
		users:          users,
		audit:          audit,
		threshold:      threshold,
		lockout:        lockout,
		sessionTimeout: sessionTimeout,
		now:            time.Now,
	}
}

func (g *securityGuardImpl) CheckLocked(user *models.User) error {
	if user.IsLocked(g.now()) {
		return ErrAccountLocked
	}
	return nil
}

func (g *securityGuardImpl) RegisterFailure(ctx context.Context, user *models.User) (bool, error) {
	now := g.now()
	res, err := g.users.RegisterLoginFailure(ctx, user.ID, now, g.threshold, g.lockout)
	if err != nil {
		g.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to register login failure")
		return false, err
	}

	locked := res.Applied && res.LockUntil != nil && res.LockUntil.After(now)
	if !locked {
		g.logger.Debug().
			Str("user_id", user.ID).
			Int("attempts", res.Attempts).
			Msg("registered login failure")
		return false, nil
	}

	entry := newAuditEntry(user, models.AuditAccountLocked, models.ResourceUser, user.ID)
	entry.Details["attempts"] = res.Attempts
	entry.Details["lock_until"] = res.LockUntil.UTC().Format(time.RFC3339)
	g.audit.Record(ctx, entry)

	g.logger.Warn().
		Str("user_id", user.ID).
		Time("lock_until", *res.LockUntil).
		Msg("locked account")
	return true, nil
}

func (g *securityGuardImpl) RegisterSuccess(ctx context.Context, user *models.User) error {
	now := g.now()
	err := g.users.RegisterLoginSuccess(ctx, user.ID, now)
	if err != nil {
		g.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to register login success")
		return err
	}
	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLogin = &now
	return nil
}

func (g *securityGuardImpl) CheckSession(user *models.User) error {
	if user.LastLogin == nil || g.now().Sub(*user.LastLogin) > g.sessionTimeout {
		return ErrSessionExpired
	}
	return nil
}
