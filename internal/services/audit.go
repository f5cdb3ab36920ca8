package services

import (
	"context"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
)

type requestInfoKey struct{}

// RequestInfo identifies the client behind a call.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

type auditClass struct {
	severity models.Severity
	category models.Category
}

var auditClasses = map[models.AuditAction]auditClass{
	models.AuditLogin:               {models.SeverityLow, models.CategorySecurity},
	models.AuditLogout:              {models.SeverityLow, models.CategorySecurity},
	models.AuditFailedLogin:         {models.SeverityMedium, models.CategorySecurity},
	models.AuditPasswordChange:      {models.SeverityMedium, models.CategorySecurity},
	models.AuditAccountLocked:       {models.SeverityHigh, models.CategorySecurity},
	models.AuditSessionExpired:      {models.SeverityLow, models.CategorySecurity},
	models.AuditRateLimited:         {models.SeverityMedium, models.CategorySecurity},
	models.AuditPermissionDenied:    {models.SeverityMedium, models.CategorySecurity},
	models.AuditUserCreated:         {models.SeverityMedium, models.CategoryUserAction},
	models.AuditUserUpdated:         {models.SeverityLow, models.CategoryUserAction},
	models.AuditUserDeactivated:     {models.SeverityHigh, models.CategoryUserAction},
	models.AuditTaskCreated:         {models.SeverityLow, models.CategoryData},
	models.AuditTaskUpdated:         {models.SeverityLow, models.CategoryData},
	models.AuditTaskStatusChanged:   {models.SeverityLow, models.CategoryData},
	models.AuditTaskArchived:        {models.SeverityLow, models.CategoryData},
	models.AuditTaskCommentAdded:    {models.SeverityLow, models.CategoryData},
	models.AuditTaskAttachmentAdded: {models.SeverityLow, models.CategoryData},
	models.AuditCleanup:             {models.SeverityHigh, models.CategorySystem},
}

func newAuditEntry(
	actor *models.User,
	action models.AuditAction,
	resource models.ResourceType,
	resourceID string,
) models.AuditEntry {
	class := auditClasses[action]
	entry := models.AuditEntry{
		Action:       action,
		ResourceType: resource,
		Details:      make(map[string]any),
		Success:      true,
		Severity:     class.severity,
		Category:     class.category,
	}
	if actor != nil {
		actorID, role := actor.ID, actor.Role
		entry.ActorID = &actorID
		entry.ActorRole = &role
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	return entry
}

// deny records the refused attempt and returns ErrPermissionDenied.
func deny(
	ctx context.Context,
	audit AuditRecorder,
	actor *models.User,
	action access.Action,
	resource models.ResourceType,
	resourceID string,
) error {
	entry := newAuditEntry(actor, models.AuditPermissionDenied, resource, resourceID)
	entry.Success = false
	entry.Details["attempted_action"] = string(action)
	if actor != nil {
		entry.Details["role"] = string(actor.Role)
	}
	audit.Record(ctx, entry)
	return ErrPermissionDenied
}
