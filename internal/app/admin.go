package app

import (
	"context"
	"time"

	"github.com/adanyl0v/go-task-tracker/internal/config"
	"github.com/adanyl0v/go-task-tracker/internal/services"
)

// MustCreateSuperAdmin bootstraps the first account of a fresh deployment.
func MustCreateSuperAdmin(name, email, password string) {
	user, err := globalUserService.CreateSuperAdmin(context.Background(), services.CreateUserParams{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		globalLogger.Error().
			Err(err).
			Str("email", email).
			Msg("failed to create super admin")
		panic(err)
	}
	globalLogger.Info().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Msg("created super admin")
}

// MustCleanupAudit runs one audit cleanup as a system job.
func MustCleanupAudit(retentionDays int) {
	retention := config.Global().Audit.Retention
	if retentionDays > 0 {
		retention = time.Duration(retentionDays) * 24 * time.Hour
	}

	deleted, err := globalAuditService.Cleanup(context.Background(), nil, retention)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Dur("retention", retention).
			Msg("failed to clean up audit log")
		panic(err)
	}
	globalLogger.Info().
		Int64("deleted", deleted).
		Msg("cleaned up audit log")
}
