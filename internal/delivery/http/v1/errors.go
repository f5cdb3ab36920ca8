package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-task-tracker/internal/services"
)

var errInvalidRequestBody = errors.New("invalid request body")

type apiError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func newAPIError(code int, message string) apiError {
	return apiError{
		Code:    code,
		Message: message,
	}
}

func (e apiError) Error() string {
	return e.Message
}

func abort(c *gin.Context, err apiError) {
	body := gin.H{"error": err.Message}
	if len(err.Fields) > 0 {
		body["fields"] = err.Fields
	}
	c.AbortWithStatusJSON(err.Code, body)
}

func newStatusTextError(status int) apiError {
	return newAPIError(status, http.StatusText(status))
}

func newBadRequestError(message string) apiError {
	return newAPIError(http.StatusBadRequest, message)
}

// statusCodes maps service errors to responses. Order matters for errors
// that wrap others.
var statusCodes = []struct {
	err  error
	code int
}{
	{services.ErrValidationFailed, http.StatusBadRequest},
	{services.ErrSelfDeactivation, http.StatusBadRequest},
	{services.ErrInvalidCredentials, http.StatusUnauthorized},
	{services.ErrUnauthorized, http.StatusUnauthorized},
	{services.ErrSessionExpired, http.StatusUnauthorized},
	{services.ErrPermissionDenied, http.StatusForbidden},
	{services.ErrAccountInactive, http.StatusForbidden},
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrInvalidTransition, http.StatusConflict},
	{services.ErrDuplicateEmail, http.StatusConflict},
	{services.ErrAccountLocked, http.StatusLocked},
	{services.ErrRateLimited, http.StatusTooManyRequests},
}

func newServiceError(err error) apiError {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		e := newBadRequestError(services.ErrValidationFailed.Error())
		e.Fields = verr.Fields
		return e
	}

	for _, sc := range statusCodes {
		if !errors.Is(err, sc.err) {
			continue
		}
		// Token parsing details stay in the logs.
		if sc.err == services.ErrUnauthorized {
			return newAPIError(sc.code, sc.err.Error())
		}
		return newAPIError(sc.code, err.Error())
	}
	return newStatusTextError(http.StatusInternalServerError)
}

func (h *handlerImpl) abortWithServiceError(c *gin.Context, err error, msg string) {
	apiErr := newServiceError(err)
	event := h.logger.Warn()
	if apiErr.Code >= http.StatusInternalServerError {
		event = h.logger.Error()
	}
	event.
		Err(err).
		Str("path", c.FullPath()).
		Msg(msg)
	abort(c, apiErr)
}
