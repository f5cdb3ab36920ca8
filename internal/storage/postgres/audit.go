package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

func (s *Store) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	const insertAuditEntryQuery = `
INSERT INTO audit_entries (id,
                           actor_id,
                           actor_role,
                           action,
                           resource_type,
                           resource_id,
                           details,
                           success,
                           severity,
                           category,
                           ip_address,
                           user_agent,
                           created_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '{}'::jsonb), $8, $9, $10, $11, $12, $13)
`
	_, err := s.pool.Exec(
		ctx,
		insertAuditEntryQuery,
		entry.ID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.Details,
		entry.Success,
		entry.Severity,
		entry.Category,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("action", string(entry.Action)).
			Msg("failed to insert audit entry")
		return err
	}
	return nil
}

const auditFilter = `
FROM audit_entries
WHERE ($1::uuid IS NULL OR actor_id = $1)
  AND ($2::text IS NULL OR action = $2)
  AND ($3::text IS NULL OR resource_type = $3)
  AND ($4::text IS NULL OR resource_id = $4)
  AND ($5::text IS NULL OR category = $5)
  AND ($6::text IS NULL OR severity = $6)
  AND ($7::boolean IS NULL OR success = $7)
  AND ($8::timestamptz IS NULL OR created_at >= $8)
  AND ($9::timestamptz IS NULL OR created_at < $9)
  AND (NOT $10::boolean
       OR category = 'security'
       OR action = ANY($11::text[])
       OR NOT success
       OR severity IN ('high', 'critical'))
`

func (s *Store) ListAuditEntries(ctx context.Context, q storage.AuditQuery) ([]*models.AuditEntry, int, error) {
	securityActions := make([]string, len(models.SecurityActions))
	for i, a := range models.SecurityActions {
		securityActions[i] = string(a)
	}
	args := []any{
		q.ActorID,
		q.Action,
		q.ResourceType,
		q.ResourceID,
		q.Category,
		q.Severity,
		q.Success,
		q.Since,
		q.Until,
		q.SecurityOnly,
		securityActions,
	}

	const countAuditEntriesQuery = `SELECT COUNT(*)` + auditFilter
	var total int
	err := s.pool.QueryRow(ctx, countAuditEntriesQuery, args...).Scan(&total)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to count audit entries")
		return nil, 0, err
	}

	const selectAuditEntriesQuery = `
SELECT id,
       actor_id,
       actor_role,
       action,
       resource_type,
       resource_id,
       details,
       success,
       severity,
       category,
       ip_address,
       user_agent,
       created_at` + auditFilter + `
ORDER BY created_at DESC, id DESC
LIMIT $12 OFFSET $13
`
	rows, err := s.pool.Query(
		ctx,
		selectAuditEntriesQuery,
		append(args, storage.NormalizeLimit(q.Limit), max(q.Offset, 0))...,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select audit entries")
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := new(models.AuditEntry)
		err = rows.Scan(
			&e.ID,
			&e.ActorID,
			&e.ActorRole,
			&e.Action,
			&e.ResourceType,
			&e.ResourceID,
			&e.Details,
			&e.Success,
			&e.Severity,
			&e.Category,
			&e.IPAddress,
			&e.UserAgent,
			&e.CreatedAt,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to scan audit entry")
			return nil, 0, err
		}
		entries = append(entries, e)
	}

	err = rows.Err()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to iterate over rows")
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *Store) FailedLoginsByIP(ctx context.Context, since time.Time, minAttempts int) ([]models.IPFailureCount, error) {
	const failedLoginsByIPQuery = `
SELECT ip_address,
       COUNT(*) AS attempts,
       MAX(created_at) AS last_attempt
FROM audit_entries
WHERE action = 'failed_login'
  AND created_at >= $1
GROUP BY ip_address
HAVING COUNT(*) >= $2
ORDER BY attempts DESC, ip_address
`
	rows, err := s.pool.Query(ctx, failedLoginsByIPQuery, since, minAttempts)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select failed logins by ip")
		return nil, err
	}

	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.IPFailureCount, error) {
		var c models.IPFailureCount
		err := row.Scan(&c.IPAddress, &c.Attempts, &c.LastAttempt)
		return c, err
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to collect failed logins by ip")
		return nil, err
	}
	return counts, nil
}

func (s *Store) DailyActivity(ctx context.Context, actorID string, since time.Time) ([]models.DailyActivity, error) {
	const dailyActivityQuery = `
SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
       COUNT(*)
FROM audit_entries
WHERE actor_id = $1
  AND created_at >= $2
GROUP BY day
ORDER BY day
`
	rows, err := s.pool.Query(ctx, dailyActivityQuery, actorID, since)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("actor_id", actorID).
			Msg("failed to select daily activity")
		return nil, err
	}

	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.DailyActivity, error) {
		var d models.DailyActivity
		err := row.Scan(&d.Day, &d.Count)
		d.Day = time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, time.UTC)
		return d, err
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to collect daily activity")
		return nil, err
	}
	return days, nil
}

func (s *Store) ActivitySummary(ctx context.Context, since time.Time) ([]models.ActionSummary, error) {
	const activitySummaryQuery = `
SELECT action,
       COUNT(*) AS total,
       COUNT(*) FILTER (WHERE success) AS succeeded,
       COUNT(*) FILTER (WHERE NOT success) AS failed
FROM audit_entries
WHERE created_at >= $1
GROUP BY action
ORDER BY total DESC, action
`
	rows, err := s.pool.Query(ctx, activitySummaryQuery, since)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select activity summary")
		return nil, err
	}

	summary, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ActionSummary, error) {
		var sum models.ActionSummary
		err := row.Scan(&sum.Action, &sum.Total, &sum.Succeeded, &sum.Failed)
		return sum, err
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to collect activity summary")
		return nil, err
	}
	return summary, nil
}

func (s *Store) DeleteAuditEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const deleteAuditEntriesQuery = `
DELETE FROM audit_entries
WHERE created_at < $1
  AND severity NOT IN ('high', 'critical')
`
	tag, err := s.pool.Exec(ctx, deleteAuditEntriesQuery, cutoff)
	if err != nil {
		s.logger.Error().
			Err(err).
			Time("cutoff", cutoff).
			Msg("failed to delete audit entries")
		return 0, err
	}
	s.logger.Debug().
		Int64("affected", tag.RowsAffected()).
		Msg("deleted audit entries")
	return tag.RowsAffected(), nil
}
