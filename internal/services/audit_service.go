package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

// MinAuditRetention is the shortest retention Cleanup accepts.
const MinAuditRetention = 30 * 24 * time.Hour

type auditServiceImpl struct {
	logger zerolog.Logger
	store  storage.AuditStore
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewAuditService(
	logger zerolog.Logger,
	store storage.AuditStore,
) AuditService {
	return &auditServiceImpl{
		logger: logger,
		store:  store,
		now:    time.Now,
	}
}

// stamp returns a strictly increasing timestamp at storage precision.
func (s *auditServiceImpl) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *auditServiceImpl) Record(ctx context.Context, entry models.AuditEntry) {
	// The entry must survive a cancelled request.
	ctx = context.WithoutCancel(ctx)

	if !entry.Action.Valid() {
		s.logger.Error().
			Str("action", string(entry.Action)).
			Msg("refusing to record unknown audit action")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate audit entry uuid")
		return
	}
	entry.ID = id.String()
	entry.CreatedAt = s.stamp()
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}
	if entry.IPAddress == "" && entry.UserAgent == "" {
		info := RequestInfoFrom(ctx)
		entry.IPAddress = info.IPAddress
		entry.UserAgent = info.UserAgent
	}

	err = s.store.InsertAuditEntry(ctx, &entry)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("action", string(entry.Action)).
			Msg("failed to record audit entry")
		return
	}
	s.logger.Debug().
		Str("audit_id", entry.ID).
		Str("action", string(entry.Action)).
		Bool("success", entry.Success).
		Msg("recorded audit entry")
}

func (s *auditServiceImpl) authorize(ctx context.Context, actor *models.User, action access.Action) error {
	if !access.Allowed(actor.Role, action, access.RelNone) {
		return deny(ctx, s, actor, action, models.ResourceAudit, "")
	}
	return nil
}

func (s *auditServiceImpl) QueryAuditLog(
	ctx context.Context,
	actor *models.User,
	query storage.AuditQuery,
) (*models.Page[*models.AuditEntry], error) {
	err := s.authorize(ctx, actor, access.AuditRead)
	if err != nil {
		return nil, err
	}

	query.Limit = storage.NormalizeLimit(query.Limit)
	entries, total, err := s.store.ListAuditEntries(ctx, query)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to list audit entries")
		return nil, err
	}
	return &models.Page[*models.AuditEntry]{
		Items:  entries,
		Total:  total,
		Limit:  query.Limit,
		Offset: query.Offset,
	}, nil
}

func (s *auditServiceImpl) SecurityReport(
	ctx context.Context,
	actor *models.User,
	params SecurityReportParams,
) (*SecurityReport, error) {
	err := s.authorize(ctx, actor, access.AuditRead)
	if err != nil {
		return nil, err
	}
	if params.Window <= 0 {
		params.Window = 24 * time.Hour
	}
	if params.MinAttempts <= 0 {
		params.MinAttempts = 5
	}
	since := s.now().Add(-params.Window)

	byIP, err := s.store.FailedLoginsByIP(ctx, since, params.MinAttempts)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to aggregate failed logins")
		return nil, err
	}

	summary, err := s.store.ActivitySummary(ctx, since)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to aggregate activity")
		return nil, err
	}

	recent, _, err := s.store.ListAuditEntries(ctx, storage.AuditQuery{
		SecurityOnly: true,
		Since:        &since,
		Limit:        storage.DefaultLimit,
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to list security entries")
		return nil, err
	}

	s.logger.Info().
		Str("actor_id", actor.ID).
		Int("suspicious_ips", len(byIP)).
		Msg("built security report")
	return &SecurityReport{
		Since:            since,
		FailedLoginsByIP: byIP,
		Summary:          summary,
		Recent:           recent,
	}, nil
}

func (s *auditServiceImpl) UserActivity(
	ctx context.Context,
	actor *models.User,
	userID string,
	days int,
) ([]models.DailyActivity, error) {
	err := s.authorize(ctx, actor, access.AuditRead)
	if err != nil {
		return nil, err
	}
	if days <= 0 || days > 365 {
		return nil, invalid("days", "must be between 1 and 365")
	}

	since := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	activity, err := s.store.DailyActivity(ctx, userID, since)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to aggregate daily activity")
		return nil, err
	}
	return activity, nil
}

func (s *auditServiceImpl) Cleanup(ctx context.Context, actor *models.User, retention time.Duration) (int64, error) {
	if actor != nil {
		err := s.authorize(ctx, actor, access.AuditCleanup)
		if err != nil {
			return 0, err
		}
	}
	if retention < MinAuditRetention {
		return 0, invalid("retention", "must be at least 30 days")
	}

	cutoff := s.now().Add(-retention)
	deleted, err := s.store.DeleteAuditEntriesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().
			Err(err).
			Time("cutoff", cutoff).
			Msg("failed to clean up audit entries")
		return 0, err
	}

	entry := newAuditEntry(actor, models.AuditCleanup, models.ResourceAudit, "")
	entry.Details["deleted"] = deleted
	entry.Details["cutoff"] = cutoff.UTC().Format(time.RFC3339)
	entry.Details["retention_days"] = int(retention.Hours() / 24)
	s.Record(ctx, entry)

	s.logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("cleaned up audit entries")
	return deleted, nil
}
