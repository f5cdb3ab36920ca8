package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/services"
	"github.com/adanyl0v/go-task-tracker/internal/storage"
)

type auditEntryResponse struct {
	ID           string              `json:"id"`
	ActorID      *string             `json:"actor_id"`
	ActorRole    *models.Role        `json:"actor_role"`
	Action       models.AuditAction  `json:"action"`
	ResourceType models.ResourceType `json:"resource_type"`
	ResourceID   *string             `json:"resource_id"`
	Details      map[string]any      `json:"details"`
	Success      bool                `json:"success"`
	Severity     models.Severity     `json:"severity"`
	Category     models.Category     `json:"category"`
	IPAddress    string              `json:"ip_address,omitempty"`
	UserAgent    string              `json:"user_agent,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

func newAuditEntryResponse(e *models.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		ActorID:      e.ActorID,
		ActorRole:    e.ActorRole,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		Success:      e.Success,
		Severity:     e.Severity,
		Category:     e.Category,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		CreatedAt:    e.CreatedAt,
	}
}

type getAuditLogQuery struct {
	ActorID      string    `form:"actor_id"`
	Action       string    `form:"action"`
	ResourceType string    `form:"resource_type"`
	ResourceID   string    `form:"resource_id"`
	Category     string    `form:"category"`
	Severity     string    `form:"severity"`
	Success      *bool     `form:"success"`
	Since        time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until        time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	SecurityOnly bool      `form:"security_only"`
	Limit        int       `form:"limit" binding:"omitempty,min=0,max=100"`
	Offset       int       `form:"offset" binding:"omitempty,min=0"`
}

func optional[T ~string](v string) *T {
	if v == "" {
		return nil
	}
	t := T(v)
	return &t
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *handlerImpl) HandleGetAuditLog(c *gin.Context) {
	var q getAuditLogQuery
	err := c.ShouldBindQuery(&q)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind query")
		abort(c, newBadRequestError(err.Error()))
		return
	}

	page, err := h.audit.QueryAuditLog(c.Request.Context(), actorFrom(c), storage.AuditQuery{
		ActorID:      optional[string](q.ActorID),
		Action:       optional[models.AuditAction](q.Action),
		ResourceType: optional[models.ResourceType](q.ResourceType),
		ResourceID:   optional[string](q.ResourceID),
		Category:     optional[models.Category](q.Category),
		Severity:     optional[models.Severity](q.Severity),
		Success:      q.Success,
		Since:        optionalTime(q.Since),
		Until:        optionalTime(q.Until),
		SecurityOnly: q.SecurityOnly,
		Limit:        q.Limit,
		Offset:       q.Offset,
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to query audit log")
		return
	}
	c.JSON(http.StatusOK, newPageResponse(page, newAuditEntryResponse))
}

type securityReportQuery struct {
	Window      time.Duration `form:"window"`
	MinAttempts int           `form:"min_attempts" binding:"omitempty,min=1"`
}

type ipFailureResponse struct {
	IPAddress   string    `json:"ip_address"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}

type actionSummaryResponse struct {
	Action    models.AuditAction `json:"action"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

type securityReportResponse struct {
	Since            time.Time               `json:"since"`
	FailedLoginsByIP []ipFailureResponse     `json:"failed_logins_by_ip"`
	Summary          []actionSummaryResponse `json:"summary"`
	Recent           []auditEntryResponse    `json:"recent"`
}

func (h *handlerImpl) HandleGetSecurityReport(c *gin.Context) {
	var q securityReportQuery
	err := c.ShouldBindQuery(&q)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind query")
		abort(c, newBadRequestError(err.Error()))
		return
	}

	report, err := h.audit.SecurityReport(c.Request.Context(), actorFrom(c), services.SecurityReportParams{
		Window:      q.Window,
		MinAttempts: q.MinAttempts,
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to build security report")
		return
	}

	resp := securityReportResponse{
		Since:            report.Since,
		FailedLoginsByIP: make([]ipFailureResponse, 0, len(report.FailedLoginsByIP)),
		Summary:          make([]actionSummaryResponse, 0, len(report.Summary)),
		Recent:           make([]auditEntryResponse, 0, len(report.Recent)),
	}
	for _, f := range report.FailedLoginsByIP {
		resp.FailedLoginsByIP = append(resp.FailedLoginsByIP, ipFailureResponse(f))
	}
	for _, s := range report.Summary {
		resp.Summary = append(resp.Summary, actionSummaryResponse(s))
	}
	for _, e := range report.Recent {
		resp.Recent = append(resp.Recent, newAuditEntryResponse(e))
	}
	c.JSON(http.StatusOK, resp)
}

type dailyActivityResponse struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

func (h *handlerImpl) HandleGetUserActivity(c *gin.Context) {
	days := 30
	if raw, ok := c.GetQuery("days"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			abort(c, newBadRequestError("days must be an integer"))
			return
		}
		days = n
	}

	activity, err := h.audit.UserActivity(c.Request.Context(), actorFrom(c), c.Param("id"), days)
	if err != nil {
		h.abortWithServiceError(c, err, "failed to get user activity")
		return
	}

	resp := make([]dailyActivityResponse, 0, len(activity))
	for _, a := range activity {
		resp = append(resp, dailyActivityResponse(a))
	}
	c.JSON(http.StatusOK, resp)
}

type auditCleanupRequest struct {
	RetentionDays int `json:"retention_days" binding:"required"`
}

func (h *handlerImpl) HandleAuditCleanup(c *gin.Context) {
	var req auditCleanupRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	retention := time.Duration(req.RetentionDays) * 24 * time.Hour
	deleted, err := h.audit.Cleanup(c.Request.Context(), actorFrom(c), retention)
	if err != nil {
		h.abortWithServiceError(c, err, "failed to clean up audit log")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
