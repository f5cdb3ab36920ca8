package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/services"
)

const (
	actorCtxKey     = "actor"
	sessionIDCtxKey = "session_id"
)

// HandleRequestInfo exposes the client address and user agent to the
// services for auditing.
func (h *handlerImpl) HandleRequestInfo(c *gin.Context) {
	ctx := services.WithRequestInfo(c.Request.Context(), services.RequestInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

func (h *handlerImpl) HandleAuthMiddleware(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		h.logger.Error().Msg("access token required")
		abort(c, newStatusTextError(http.StatusUnauthorized))
		return
	}

	user, session, err := h.auth.Authorize(c.Request.Context(), services.AuthorizeParams{
		AccessToken: accessToken,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to authorize")
		return
	}

	c.Set(actorCtxKey, user)
	c.Set(sessionIDCtxKey, session.ID)
	c.Next()
}

// bearerToken reads the token from the Authorization header and falls back
// to the access token cookie.
func bearerToken(c *gin.Context) (string, bool) {
	const bearerPrefix = "Bearer"
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != bearerPrefix || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	token, err := c.Cookie(accessTokenCookie)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

func actorFrom(c *gin.Context) *models.User {
	value, exists := c.Get(actorCtxKey)
	if !exists {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}
