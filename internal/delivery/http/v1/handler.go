package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-tracker/internal/services"
)

type Handler interface {
	HandleRequestInfo(c *gin.Context)
	HandleAuthMiddleware(c *gin.Context)

	HandleLogin(c *gin.Context)
	HandleLogout(c *gin.Context)
	HandleChangePassword(c *gin.Context)

	HandleCreateUser(c *gin.Context)
	HandleGetUsers(c *gin.Context)
	HandleGetMe(c *gin.Context)
	HandleGetUser(c *gin.Context)
	HandleUpdateUser(c *gin.Context)
	HandleDeactivateUser(c *gin.Context)

	HandleCreateTask(c *gin.Context)
	HandleGetTasks(c *gin.Context)
	HandleGetTask(c *gin.Context)
	HandleUpdateTask(c *gin.Context)
	HandleSetTaskStatus(c *gin.Context)
	HandleArchiveTask(c *gin.Context)
	HandleAddComment(c *gin.Context)
	HandleAddAttachment(c *gin.Context)

	HandleGetAuditLog(c *gin.Context)
	HandleGetSecurityReport(c *gin.Context)
	HandleGetUserActivity(c *gin.Context)
	HandleAuditCleanup(c *gin.Context)
}

type handlerImpl struct {
	logger zerolog.Logger
	auth   services.AuthService
	users  services.UserService
	tasks  services.TaskService
	audit  services.AuditService
}

func New(
	logger zerolog.Logger,
	authService services.AuthService,
	userService services.UserService,
	taskService services.TaskService,
	auditService services.AuditService,
) Handler {
	return &handlerImpl{
		logger: logger,
		auth:   authService,
		users:  userService,
		tasks:  taskService,
		audit:  auditService,
	}
}

// Register mounts every v1 route on router.
func Register(router gin.IRouter, h Handler) {
	api := router.Group("/api/v1", h.HandleRequestInfo)

	authRouter := api.Group("/auth")
	authRouter.POST("/login", h.HandleLogin)
	authRouter.POST("/logout", h.HandleAuthMiddleware, h.HandleLogout)
	authRouter.POST("/password", h.HandleAuthMiddleware, h.HandleChangePassword)

	usersRouter := api.Group("/users", h.HandleAuthMiddleware)
	usersRouter.GET("", h.HandleGetUsers)
	usersRouter.POST("", h.HandleCreateUser)
	usersRouter.GET("/me", h.HandleGetMe)
	usersRouter.GET("/:id", h.HandleGetUser)
	usersRouter.PATCH("/:id", h.HandleUpdateUser)
	usersRouter.POST("/:id/deactivate", h.HandleDeactivateUser)

	tasksRouter := api.Group("/tasks", h.HandleAuthMiddleware)
	tasksRouter.GET("", h.HandleGetTasks)
	tasksRouter.POST("", h.HandleCreateTask)
	tasksRouter.GET("/:id", h.HandleGetTask)
	tasksRouter.PATCH("/:id", h.HandleUpdateTask)
	tasksRouter.POST("/:id/status", h.HandleSetTaskStatus)
	tasksRouter.POST("/:id/archive", h.HandleArchiveTask)
	tasksRouter.POST("/:id/comments", h.HandleAddComment)
	tasksRouter.POST("/:id/attachments", h.HandleAddAttachment)

	auditRouter := api.Group("/audit", h.HandleAuthMiddleware)
	auditRouter.GET("", h.HandleGetAuditLog)
	auditRouter.GET("/security", h.HandleGetSecurityReport)
	auditRouter.GET("/users/:id/activity", h.HandleGetUserActivity)
	auditRouter.POST("/cleanup", h.HandleAuditCleanup)
}
