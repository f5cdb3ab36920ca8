package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-task-tracker/internal/access"
	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/services"
)

type userResponse struct {
	ID                      string                         `json:"id"`
	Name                    string                         `json:"name"`
	Email                   string                         `json:"email"`
	Phone                   string                         `json:"phone,omitempty"`
	Role                    models.Role                    `json:"role"`
	ManagerID               *string                        `json:"manager_id"`
	IsActive                bool                           `json:"is_active"`
	LastLogin               *time.Time                     `json:"last_login"`
	NotificationPreferences models.NotificationPreferences `json:"notification_preferences"`
	CreatedAt               time.Time                      `json:"created_at"`
	UpdatedAt               time.Time                      `json:"updated_at"`
}

func newUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:                      user.ID,
		Name:                    user.Name,
		Email:                   user.Email,
		Phone:                   user.Phone,
		Role:                    user.Role,
		ManagerID:               user.ManagerID,
		IsActive:                user.IsActive,
		LastLogin:               user.LastLogin,
		NotificationPreferences: user.NotificationPreferences,
		CreatedAt:               user.CreatedAt,
		UpdatedAt:               user.UpdatedAt,
	}
}

type pageResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newPageResponse[M, T any](page *models.Page[M], convert func(M) T) pageResponse[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, convert(item))
	}
	return pageResponse[T]{
		Items:  items,
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
}

type createUserRequest struct {
	Name      string      `json:"name" binding:"required,max=255"`
	Email     string      `json:"email" binding:"required,max=255"`
	Password  string      `json:"password" binding:"required"`
	Phone     string      `json:"phone"`
	Role      models.Role `json:"role"`
	ManagerID *string     `json:"manager_id"`
}

func (h *handlerImpl) HandleCreateUser(c *gin.Context) {
	var req createUserRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), actorFrom(c), services.CreateUserParams{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
		Role:      req.Role,
		ManagerID: req.ManagerID,
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to create user")
		return
	}
	c.JSON(http.StatusCreated, newUserResponse(user))
}

type getUsersQuery struct {
	Role      string `form:"role"`
	IsActive  *bool  `form:"is_active"`
	ManagerID string `form:"manager_id"`
	Search    string `form:"search"`
	Limit     int    `form:"limit" binding:"omitempty,min=0,max=100"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

func (h *handlerImpl) HandleGetUsers(c *gin.Context) {
	var q getUsersQuery
	err := c.ShouldBindQuery(&q)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind query")
		abort(c, newBadRequestError(err.Error()))
		return
	}

	params := services.ListUsersParams{
		IsActive: q.IsActive,
		Search:   q.Search,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if q.Role != "" {
		role, err := models.ParseRole(q.Role)
		if err != nil {
			abort(c, newBadRequestError(err.Error()))
			return
		}
		params.Role = &role
	}
	if q.ManagerID != "" {
		params.ManagerID = &q.ManagerID
	}

	page, err := h.users.ListUsers(c.Request.Context(), actorFrom(c), params)
	if err != nil {
		h.abortWithServiceError(c, err, "failed to list users")
		return
	}
	c.JSON(http.StatusOK, newPageResponse(page, newUserResponse))
}

func (h *handlerImpl) HandleGetMe(c *gin.Context) {
	c.JSON(http.StatusOK, newUserResponse(actorFrom(c)))
}

func (h *handlerImpl) HandleGetUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.abortWithServiceError(c, err, "failed to get user")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type updateUserRequest struct {
	Name                    *string                         `json:"name"`
	Email                   *string                         `json:"email"`
	Phone                   *string                         `json:"phone"`
	Role                    *models.Role                    `json:"role"`
	IsActive                *bool                           `json:"is_active"`
	ManagerID               *string                         `json:"manager_id"`
	NotificationPreferences *models.NotificationPreferences `json:"notification_preferences"`
}

func (h *handlerImpl) HandleUpdateUser(c *gin.Context) {
	var req updateUserRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), actorFrom(c), c.Param("id"), access.UserPatch{
		Name:                    req.Name,
		Email:                   req.Email,
		Phone:                   req.Phone,
		Role:                    req.Role,
		IsActive:                req.IsActive,
		ManagerID:               req.ManagerID,
		NotificationPreferences: req.NotificationPreferences,
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to update user")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type deactivateUserResponse struct {
	User                userResponse `json:"user"`
	ReassignedTo        string       `json:"reassigned_to,omitempty"`
	ReassignedTaskCount int          `json:"reassigned_task_count"`
}

func (h *handlerImpl) HandleDeactivateUser(c *gin.Context) {
	result, err := h.users.DeactivateUser(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.abortWithServiceError(c, err, "failed to deactivate user")
		return
	}
	c.JSON(http.StatusOK, deactivateUserResponse{
		User:                newUserResponse(result.User),
		ReassignedTo:        result.ReassignedTo,
		ReassignedTaskCount: result.ReassignedTaskCount,
	})
}
