// Package memory is a process-local storage.Store used by tests and by
// single-instance deployments without Postgres.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	emails   map[string]string
	tasks    map[string]*models.Task
	audit    []*models.AuditEntry
	sessions map[string]*models.Session
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		emails:   make(map[string]string),
		tasks:    make(map[string]*models.Task),
		sessions: make(map[string]*models.Session),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(user.Email)
	if _, ok := s.emails[key]; ok {
		return storage.ErrDuplicateEmail
	}
	s.users[user.ID] = user.Clone()
	s.emails[key] = user.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) UpdateUser(_ context.Context, id string, update storage.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	if update.Email != nil {
		oldKey, newKey := normalizeEmail(u.Email), normalizeEmail(*update.Email)
		if oldKey != newKey {
			if _, taken := s.emails[newKey]; taken {
				return nil, storage.ErrDuplicateEmail
			}
			delete(s.emails, oldKey)
			s.emails[newKey] = id
		}
		u.Email = *update.Email
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Phone != nil {
		u.Phone = *update.Phone
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	if update.IsActive != nil {
		u.IsActive = *update.IsActive
	}
	switch {
	case update.ClearManagerID:
		u.ManagerID = nil
	case update.ManagerID != nil:
		u.ManagerID = clone(update.ManagerID)
	}
	if update.NotificationPreferences != nil {
		u.NotificationPreferences = *update.NotificationPreferences
	}
	u.UpdatedAt = update.UpdatedAt
	return u.Clone(), nil
}

func (s *Store) SetUserPassword(_ context.Context, id, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.Password = passwordHash
	u.UpdatedAt = now
	return nil
}

func (s *Store) DeactivateUser(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !u.IsActive {
		return false, nil
	}
	u.IsActive = false
	u.UpdatedAt = now
	return true, nil
}

func (s *Store) ListUsers(_ context.Context, q storage.UserQuery) ([]*models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	var matched []*models.User
	for _, u := range s.users {
		if !q.Scope.Matches(u) {
			continue
		}
		if q.Role != nil && u.Role != *q.Role {
			continue
		}
		if q.IsActive != nil && u.IsActive != *q.IsActive {
			continue
		}
		if q.ManagerID != nil && !u.ManagedBy(*q.ManagerID) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		matched = append(matched, u)
	}
	slices.SortFunc(matched, func(a, b *models.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	page := paginate(matched, q.Limit, q.Offset)
	out := make([]*models.User, len(page))
	for i, u := range page {
		out[i] = u.Clone()
	}
	return out, len(matched), nil
}

func (s *Store) CountTeamMembers(_ context.Context, managerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.ManagedBy(managerID) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RegisterLoginFailure(
	_ context.Context,
	userID string,
	now time.Time,
	threshold int,
	lockout time.Duration,
) (*storage.LoginFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if u.IsLocked(now) {
		return &storage.LoginFailure{Attempts: u.LoginAttempts, LockUntil: clone(u.LockUntil)}, nil
	}

	if u.LockUntil != nil {
		u.LoginAttempts = 1
		u.LockUntil = nil
	} else {
		u.LoginAttempts++
	}
	if u.LoginAttempts >= threshold {
		until := now.Add(lockout)
		u.LockUntil = &until
	}
	u.UpdatedAt = now
	return &storage.LoginFailure{
		Attempts:  u.LoginAttempts,
		LockUntil: clone(u.LockUntil),
		Applied:   true,
	}, nil
}

func (s *Store) RegisterLoginSuccess(_ context.Context, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.LoginAttempts = 0
	u.LockUntil = nil
	u.LastLogin = &now
	u.UpdatedAt = now
	return nil
}

func (s *Store) ReplaceSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.sessions {
		if existing.UserID == session.UserID {
			delete(s.sessions, id)
		}
	}
	c := *session
	s.sessions[session.ID] = &c
	return nil
}

func (s *Store) GetSessionByID(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *session
	return &c, nil
}

func (s *Store) DeleteSessionsByUserID(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, existing := range s.sessions {
		if existing.UserID == userID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	limit = storage.NormalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
