package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

func (s *Store) InsertAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *entry
	c.Details = maps.Clone(entry.Details)
	s.audit = append(s.audit, &c)
	return nil
}

func (s *Store) ListAuditEntries(_ context.Context, q storage.AuditQuery) ([]*models.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.AuditEntry
	for _, e := range s.audit {
		if matchesAuditQuery(e, q) {
			matched = append(matched, e)
		}
	}
	slices.SortFunc(matched, func(a, b *models.AuditEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	page := paginate(matched, q.Limit, q.Offset)
	out := make([]*models.AuditEntry, len(page))
	for i, e := range page {
		c := *e
		c.Details = maps.Clone(e.Details)
		out[i] = &c
	}
	return out, len(matched), nil
}

func matchesAuditQuery(e *models.AuditEntry, q storage.AuditQuery) bool {
	switch {
	case q.ActorID != nil && (e.ActorID == nil || *e.ActorID != *q.ActorID):
		return false
	case q.Action != nil && e.Action != *q.Action:
		return false
	case q.ResourceType != nil && e.ResourceType != *q.ResourceType:
		return false
	case q.ResourceID != nil && (e.ResourceID == nil || *e.ResourceID != *q.ResourceID):
		return false
	case q.Category != nil && e.Category != *q.Category:
		return false
	case q.Severity != nil && e.Severity != *q.Severity:
		return false
	case q.Success != nil && e.Success != *q.Success:
		return false
	case q.Since != nil && e.CreatedAt.Before(*q.Since):
		return false
	case q.Until != nil && !e.CreatedAt.Before(*q.Until):
		return false
	case q.SecurityOnly && !e.IsSecurityRelevant():
		return false
	default:
		return true
	}
}

func (s *Store) FailedLoginsByIP(_ context.Context, since time.Time, minAttempts int) ([]models.IPFailureCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byIP := make(map[string]*models.IPFailureCount)
	for _, e := range s.audit {
		if e.Action != models.AuditFailedLogin || e.CreatedAt.Before(since) {
			continue
		}
		c, ok := byIP[e.IPAddress]
		if !ok {
			c = &models.IPFailureCount{IPAddress: e.IPAddress}
			byIP[e.IPAddress] = c
		}
		c.Attempts++
		if e.CreatedAt.After(c.LastAttempt) {
			c.LastAttempt = e.CreatedAt
		}
	}

	var out []models.IPFailureCount
	for _, c := range byIP {
		if c.Attempts >= minAttempts {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, func(a, b models.IPFailureCount) int {
		if c := cmp.Compare(b.Attempts, a.Attempts); c != 0 {
			return c
		}
		return cmp.Compare(a.IPAddress, b.IPAddress)
	})
	return out, nil
}

func (s *Store) DailyActivity(_ context.Context, actorID string, since time.Time) ([]models.DailyActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[time.Time]int)
	for _, e := range s.audit {
		if e.ActorID == nil || *e.ActorID != actorID || e.CreatedAt.Before(since) {
			continue
		}
		day := e.CreatedAt.UTC().Truncate(24 * time.Hour)
		byDay[day]++
	}

	out := make([]models.DailyActivity, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, models.DailyActivity{Day: day, Count: n})
	}
	slices.SortFunc(out, func(a, b models.DailyActivity) int {
		return a.Day.Compare(b.Day)
	})
	return out, nil
}

func (s *Store) ActivitySummary(_ context.Context, since time.Time) ([]models.ActionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAction := make(map[models.AuditAction]*models.ActionSummary)
	for _, e := range s.audit {
		if e.CreatedAt.Before(since) {
			continue
		}
		sum, ok := byAction[e.Action]
		if !ok {
			sum = &models.ActionSummary{Action: e.Action}
			byAction[e.Action] = sum
		}
		sum.Total++
		if e.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}

	out := make([]models.ActionSummary, 0, len(byAction))
	for _, sum := range byAction {
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b models.ActionSummary) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Action, b.Action)
	})
	return out, nil
}

func (s *Store) DeleteAuditEntriesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.audit[:0]
	var deleted int64
	for _, e := range s.audit {
		if e.CreatedAt.Before(cutoff) && !e.Severity.Retained() {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.audit[len(kept):])
	s.audit = kept
	return deleted, nil
}
