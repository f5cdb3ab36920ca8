package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

type authServiceImpl struct {
	logger            zerolog.Logger
	users             storage.UserStore
	sessions          storage.SessionStore
	guard             SecurityGuard
	audit             AuditRecorder
	limiter           RateLimiter
	jwtIssuer         string
	jwtSigningKey     []byte
	jwtAccessTokenTTL time.Duration
	sessionTimeout    time.Duration
	now               func() time.Time
	comparePassword   func(password, hash string) (bool, error)
}

// dummyPasswordHash is compared against on unknown emails so they cost as much as a wrong password.
var dummyPasswordHash = sync.OnceValue(func() string {
	hash, err := argon2id.CreateHash("not-a-real-password", argon2id.DefaultParams)
	if err != nil {
		panic(fmt.Sprintf("failed to create dummy password hash: %v", err))
	}
	return hash
})

func NewAuthService(
	logger zerolog.Logger,
	users storage.UserStore,
	sessions storage.SessionStore,
	guard SecurityGuard,
	audit AuditRecorder,
	limiter RateLimiter,
	jwtIssuer string,
	jwtSigningKey []byte,
	jwtAccessTokenTTL time.Duration,
	sessionTimeout time.Duration,
) AuthService {
	return &authServiceImpl{
		logger:            logger,
		users:             users,
		sessions:          sessions,
		guard:             guard,
		audit:             audit,
		limiter:           limiter,
		jwtIssuer:         jwtIssuer,
		jwtSigningKey:     jwtSigningKey,
		jwtAccessTokenTTL: jwtAccessTokenTTL,
		sessionTimeout:    sessionTimeout,
		now:               time.Now,
		comparePassword:   argon2id.ComparePasswordAndHash,
	}
}

func (s *authServiceImpl) failedLogin(ctx context.Context, user *models.User, params AuthenticateParams, reason string) {
	entry := newAuditEntry(user, models.AuditFailedLogin, models.ResourceAuth, "")
	entry.Success = false
	entry.IPAddress = params.IPAddress
	entry.UserAgent = params.UserAgent
	entry.Details["email"] = params.Email
	entry.Details["reason"] = reason
	s.audit.Record(ctx, entry)
}

func (s *authServiceImpl) Authenticate(ctx context.Context, params AuthenticateParams) (*AuthenticateResult, error) {
	user, err := s.users.GetUserByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Error().
				Str("email", params.Email).
				Msg("user not found")
			_, _ = s.comparePassword(params.Password, dummyPasswordHash())
			s.failedLogin(ctx, nil, params, "unknown_email")
			return nil, ErrInvalidCredentials
		}

		s.logger.Error().
			Err(err).
			Str("email", params.Email).
			Msg("failed to select user by email")
		return nil, err
	}

	err = s.guard.CheckLocked(user)
	if err != nil {
		s.logger.Error().
			Str("user_id", user.ID).
			Msg("account locked")
		s.failedLogin(ctx, user, params, "account_locked")
		return nil, err
	}

	if !user.IsActive {
		s.logger.Error().
			Str("user_id", user.ID).
			Msg("account inactive")
		s.failedLogin(ctx, user, params, "account_inactive")
		return nil, ErrAccountInactive
	}

	match, err := s.comparePassword(params.Password, user.Password)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to compare password")
		return nil, err
	} else if !match {
		s.logger.Error().
			Str("user_id", user.ID).
			Msg("passwords do not match")
		s.failedLogin(ctx, user, params, "password_mismatch")
		_, err = s.guard.RegisterFailure(ctx, user)
		if err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	err = s.guard.RegisterSuccess(ctx, user)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := models.Session{
		UserID:      user.ID,
		Fingerprint: Fingerprint(params.IPAddress, params.UserAgent),
		ExpiresAt:   now.Add(s.sessionTimeout),
		CreatedAt:   now,
	}

	sessionUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate session uuid")
		return nil, err
	}
	session.ID = sessionUUID.String()

	err = s.sessions.ReplaceSession(ctx, &session)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to replace session")
		return nil, err
	}

	accessToken, accessTokenExpiresAt, err := s.generateAccessToken(session.ID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate access token")
		return nil, err
	}

	entry := newAuditEntry(user, models.AuditLogin, models.ResourceAuth, "")
	entry.IPAddress = params.IPAddress
	entry.UserAgent = params.UserAgent
	entry.Details["session_id"] = session.ID
	s.audit.Record(ctx, entry)

	s.logger.Info().
		Str("user_id", user.ID).
		Str("session_id", session.ID).
		Msg("logged in")
	return &AuthenticateResult{
		User:                 user,
		SessionID:            session.ID,
		AccessToken:          accessToken,
		AccessTokenExpiresAt: accessTokenExpiresAt,
	}, nil
}

func (s *authServiceImpl) Authorize(ctx context.Context, params AuthorizeParams) (*models.User, *models.Session, error) {
	claims, err := s.ParseJWTToken(params.AccessToken)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to parse token")
		return nil, nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	session, err := s.sessions.GetSessionByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().
				Str("session_id", claims.Subject).
				Msg("session not found")
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}

	if session.Fingerprint != Fingerprint(params.IPAddress, params.UserAgent) {
		s.logger.Error().
			Str("session_id", session.ID).
			Msg("fingerprint mismatch")
		return nil, nil, ErrUnauthorized
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}

	if !user.IsActive {
		s.dropSessions(ctx, user.ID)
		return nil, nil, ErrAccountInactive
	}

	err = s.guard.CheckSession(user)
	if err != nil {
		s.dropSessions(ctx, user.ID)

		entry := newAuditEntry(user, models.AuditSessionExpired, models.ResourceAuth, "")
		entry.IPAddress = params.IPAddress
		entry.UserAgent = params.UserAgent
		entry.Details["session_id"] = session.ID
		s.audit.Record(ctx, entry)

		s.logger.Info().
			Str("user_id", user.ID).
			Msg("session expired")
		return nil, nil, err
	}
	return user, session, nil
}

func (s *authServiceImpl) dropSessions(ctx context.Context, userID string) {
	_, err := s.sessions.DeleteSessionsByUserID(ctx, userID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to delete sessions by user id")
	}
}

func (s *authServiceImpl) Logout(ctx context.Context, actor *models.User) error {
	affected, err := s.sessions.DeleteSessionsByUserID(ctx, actor.ID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", actor.ID).
			Msg("failed to delete sessions by user id")
		return err
	}

	entry := newAuditEntry(actor, models.AuditLogout, models.ResourceAuth, "")
	entry.Details["sessions"] = affected
	s.audit.Record(ctx, entry)

	s.logger.Info().
		Str("user_id", actor.ID).
		Msg("logged out")
	return nil
}

func (s *authServiceImpl) ChangePassword(ctx context.Context, actor *models.User, params ChangePasswordParams) error {
	if !s.limiter.Allow(ctx, RateLimitKey("password_change", params.IPAddress, actor.ID)) {
		entry := newAuditEntry(actor, models.AuditRateLimited, models.ResourceAuth, "")
		entry.Success = false
		entry.IPAddress = params.IPAddress
		entry.Details["operation"] = "password_change"
		s.audit.Record(ctx, entry)

		s.logger.Warn().
			Str("user_id", actor.ID).
			Str("ip", params.IPAddress).
			Msg("password change rate limited")
		return ErrRateLimited
	}

	v := new(ValidationError)
	validatePassword(v, "new_password", params.NewPassword)
	if params.NewPassword == params.CurrentPassword {
		v.Add("new_password", "must differ from the current password")
	}
	if err := v.Err(); err != nil {
		return err
	}

	user, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", actor.ID).
			Msg("failed to select user by id")
		return err
	}

	match, err := s.comparePassword(params.CurrentPassword, user.Password)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to compare password")
		return err
	}

	entry := newAuditEntry(actor, models.AuditPasswordChange, models.ResourceUser, actor.ID)
	entry.IPAddress = params.IPAddress
	if !match {
		entry.Success = false
		entry.Details["reason"] = "password_mismatch"
		s.audit.Record(ctx, entry)
		return ErrInvalidCredentials
	}

	passwordHash, err := argon2id.CreateHash(params.NewPassword, argon2id.DefaultParams)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to hash password")
		return err
	}
	err = s.users.SetUserPassword(ctx, user.ID, passwordHash, s.now())
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", user.ID).
			Msg("failed to update password")
		return err
	}
	s.audit.Record(ctx, entry)

	s.logger.Info().
		Str("user_id", user.ID).
		Msg("changed password")
	return nil
}

func (s *authServiceImpl) ParseJWTToken(token string) (*jwt.RegisteredClaims, error) {
	t, err := jwt.ParseWithClaims(
		token,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.jwtSigningKey, nil
		},
		jwt.WithIssuer(s.jwtIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token is expired: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := t.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, errors.New("failed to parse token claims")
	}
	return claims, nil
}

func (s *authServiceImpl) generateAccessToken(sessionID string) (string, time.Time, error) {
	tokenUUID, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate id: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.jwtAccessTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        tokenUUID.String(),
		Issuer:    s.jwtIssuer,
		Subject:   sessionID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	})

	signed, err := token.SignedString(s.jwtSigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Fingerprint binds a session to the client that opened it.
func Fingerprint(ip, userAgent string) string {
	b, _ := json.Marshal(map[string]string{
		"client_ip":  ip,
		"user_agent": userAgent,
	})
	return string(b)
}

// RateLimitKey scopes a limiter bucket to an operation, client and actor.
func RateLimitKey(operation, ip, actorID string) string {
	return operation + ":" + ip + ":" + actorID
}
