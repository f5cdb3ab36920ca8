package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
	"github.com/adanyl0v/go-task-tracker/internal/storage/memory"
)

const testPassword = "correct-horse-battery"

var testPasswordHash = func() string {
	hash, err := argon2id.CreateHash(testPassword, &argon2id.Params{
		Memory:      16 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		panic(err)
	}
	return hash
}()

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Event(nil), n.events...)
}

func (n *recordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type stubLimiter struct {
	allow bool
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) bool {
	l.keys = append(l.keys, key)
	return l.allow
}

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	clock   *clock
	events  *recordingNotifier
	limiter *stubLimiter

	audit *auditServiceImpl
	guard *securityGuardImpl
	auth  *authServiceImpl
	users *userServiceImpl
	tasks *taskServiceImpl

	// admin, manager with employee in their team, and an unrelated
	// manager with otherEmployee.
	admin         *models.User
	manager       *models.User
	employee      *models.User
	otherManager  *models.User
	otherEmployee *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	store := memory.New()
	clk := &clock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	events := &recordingNotifier{}
	limiter := &stubLimiter{allow: true}

	audit := NewAuditService(logger, store).(*auditServiceImpl)
	audit.now = clk.Now

	guard := NewSecurityGuard(logger, store, audit, 5, 30*time.Minute, 8*time.Hour).(*securityGuardImpl)
	guard.now = clk.Now

	auth := NewAuthService(logger, store, store, guard, audit, limiter,
		"go-task-tracker", []byte("test-signing-key"), 15*time.Minute, 8*time.Hour).(*authServiceImpl)
	auth.now = clk.Now

	users := NewUserService(logger, store, store, store, audit, events).(*userServiceImpl)
	users.now = clk.Now

	tasks := NewTaskService(logger, store, store, audit, events).(*taskServiceImpl)
	tasks.now = clk.Now

	f := &fixture{
		ctx:     context.Background(),
		store:   store,
		clock:   clk,
		events:  events,
		limiter: limiter,
		audit:   audit,
		guard:   guard,
		auth:    auth,
		users:   users,
		tasks:   tasks,
	}
	f.admin = f.seedUser(t, "admin", models.RoleSuperAdmin, nil)
	f.manager = f.seedUser(t, "manager", models.RoleManager, nil)
	f.employee = f.seedUser(t, "employee", models.RoleEmployee, &f.manager.ID)
	f.otherManager = f.seedUser(t, "other-manager", models.RoleManager, nil)
	f.otherEmployee = f.seedUser(t, "other-employee", models.RoleEmployee, &f.otherManager.ID)
	return f
}

func (f *fixture) seedUser(t *testing.T, name string, role models.Role, managerID *string) *models.User {
	t.Helper()

	now := f.clock.Now()
	user := &models.User{
		ID:                      "user-" + name,
		Name:                    name,
		Email:                   name + "@example.com",
		Password:                testPasswordHash,
		Role:                    role,
		ManagerID:               managerID,
		IsActive:                true,
		NotificationPreferences: models.DefaultNotificationPreferences(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	require.NoError(t, f.store.CreateUser(f.ctx, user))
	return user.Clone()
}

// seedTask stores a task in the given status without going through the
// workflow.
func (f *fixture) seedTask(t *testing.T, id string, assignor, assignee *models.User, status models.TaskStatus) *models.Task {
	t.Helper()

	now := f.clock.Now()
	task := &models.Task{
		ID:         id,
		Title:      "task " + id,
		Priority:   models.PriorityMedium,
		AssignedBy: assignor.ID,
		AssignedTo: assignee.ID,
		Status:     status,
		StatusHistory: []models.StatusChange{{
			Status:    status,
			ChangedBy: assignor.ID,
			ChangedAt: now,
		}},
		Deadline:  now.Add(72 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateTask(f.ctx, task))
	return task.Clone()
}

func (f *fixture) auditEntries(t *testing.T, action models.AuditAction) []*models.AuditEntry {
	t.Helper()

	entries, _, err := f.store.ListAuditEntries(f.ctx, storage.AuditQuery{
		Action: &action,
		Limit:  100,
	})
	require.NoError(t, err)
	return entries
}

