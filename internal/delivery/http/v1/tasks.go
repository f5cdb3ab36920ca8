package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-task-tracker/internal/models"
	"github.com/adanyl0v/go-task-tracker/internal/services"
)

type statusChangeResponse struct {
	Status    models.TaskStatus `json:"status"`
	ChangedBy string            `json:"changed_by"`
	ChangedAt time.Time         `json:"changed_at"`
	Comment   string            `json:"comment,omitempty"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func newCommentResponse(c *models.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		AuthorID:  c.AuthorID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}
}

type attachmentResponse struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func newAttachmentResponse(a *models.Attachment) attachmentResponse {
	return attachmentResponse{
		ID:         a.ID,
		FileName:   a.FileName,
		URL:        a.URL,
		Size:       a.Size,
		UploadedBy: a.UploadedBy,
		UploadedAt: a.UploadedAt,
	}
}

type getTaskResponse struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Priority        models.Priority        `json:"priority"`
	AssignedBy      string                 `json:"assigned_by"`
	AssignedTo      string                 `json:"assigned_to"`
	Status          models.TaskStatus      `json:"status"`
	StatusHistory   []statusChangeResponse `json:"status_history"`
	Deadline        time.Time              `json:"deadline"`
	EstimatedHours  *float64               `json:"estimated_hours"`
	ActualHours     *float64               `json:"actual_hours"`
	CompletedAt     *time.Time             `json:"completed_at"`
	ApprovedAt      *time.Time             `json:"approved_at"`
	ApprovedBy      *string                `json:"approved_by"`
	RejectionReason *string                `json:"rejection_reason"`
	RejectedBy      *string                `json:"rejected_by"`
	Comments        []commentResponse      `json:"comments"`
	Attachments     []attachmentResponse   `json:"attachments"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func newGetTaskResponse(task *models.Task) getTaskResponse {
	resp := getTaskResponse{
		ID:              task.ID,
		Title:           task.Title,
		Description:     task.Description,
		Priority:        task.Priority,
		AssignedBy:      task.AssignedBy,
		AssignedTo:      task.AssignedTo,
		Status:          task.Status,
		StatusHistory:   make([]statusChangeResponse, 0, len(task.StatusHistory)),
		Deadline:        task.Deadline,
		EstimatedHours:  task.EstimatedHours,
		ActualHours:     task.ActualHours,
		CompletedAt:     task.CompletedAt,
		ApprovedAt:      task.ApprovedAt,
		ApprovedBy:      task.ApprovedBy,
		RejectionReason: task.RejectionReason,
		RejectedBy:      task.RejectedBy,
		Comments:        make([]commentResponse, 0, len(task.Comments)),
		Attachments:     make([]attachmentResponse, 0, len(task.Attachments)),
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
	}
	for _, sc := range task.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, statusChangeResponse(sc))
	}
	for i := range task.Comments {
		resp.Comments = append(resp.Comments, newCommentResponse(&task.Comments[i]))
	}
	for i := range task.Attachments {
		resp.Attachments = append(resp.Attachments, newAttachmentResponse(&task.Attachments[i]))
	}
	return resp
}

type createTaskRequest struct {
	Title          string          `json:"title" binding:"required,max=255"`
	Description    string          `json:"description"`
	Priority       models.Priority `json:"priority"`
	AssignedTo     string          `json:"assigned_to" binding:"required"`
	Deadline       time.Time       `json:"deadline"`
	EstimatedHours *float64        `json:"estimated_hours"`
}

func (h *handlerImpl) HandleCreateTask(c *gin.Context) {
	var req createTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), actorFrom(c), services.CreateTaskParams{
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		AssignedTo:     req.AssignedTo,
		Deadline:       req.Deadline,
		EstimatedHours: req.EstimatedHours,
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to create task")
		return
	}
	c.JSON(http.StatusCreated, newGetTaskResponse(task))
}

type getTasksQuery struct {
	Status     string    `form:"status"`
	Priority   string    `form:"priority"`
	AssignedTo string    `form:"assigned_to"`
	AssignedBy string    `form:"assigned_by"`
	DueBefore  time.Time `form:"due_before" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit      int       `form:"limit" binding:"omitempty,min=0,max=100"`
	Offset     int       `form:"offset" binding:"omitempty,min=0"`
}

func (h *handlerImpl) HandleGetTasks(c *gin.Context) {
	var q getTasksQuery
	err := c.ShouldBindQuery(&q)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind query")
		abort(c, newBadRequestError(err.Error()))
		return
	}

	params := services.ListTasksParams{
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.Status != "" {
		status, err := models.ParseTaskStatus(q.Status)
		if err != nil {
			abort(c, newBadRequestError(err.Error()))
			return
		}
		params.Status = &status
	}
	if q.Priority != "" {
		priority, err := models.ParsePriority(q.Priority)
		if err != nil {
			abort(c, newBadRequestError(err.Error()))
			return
		}
		params.Priority = &priority
	}
	if q.AssignedTo != "" {
		params.AssignedTo = &q.AssignedTo
	}
	if q.AssignedBy != "" {
		params.AssignedBy = &q.AssignedBy
	}
	if !q.DueBefore.IsZero() {
		params.DueBefore = &q.DueBefore
	}

	page, err := h.tasks.ListTasks(c.Request.Context(), actorFrom(c), params)
	if err != nil {
		h.abortWithServiceError(c, err, "failed to list tasks")
		return
	}
	c.JSON(http.StatusOK, newPageResponse(page, newGetTaskResponse))
}

func (h *handlerImpl) HandleGetTask(c *gin.Context) {
	task, err := h.tasks.GetTask(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.abortWithServiceError(c, err, "failed to get task")
		return
	}
	c.JSON(http.StatusOK, newGetTaskResponse(task))
}

type updateTaskRequest struct {
	Title          *string          `json:"title" binding:"omitempty,max=255"`
	Description    *string          `json:"description"`
	Priority       *models.Priority `json:"priority"`
	Deadline       *time.Time       `json:"deadline"`
	EstimatedHours *float64         `json:"estimated_hours"`
	ActualHours    *float64         `json:"actual_hours"`
	AssignedTo     *string          `json:"assigned_to"`
}

func (h *handlerImpl) HandleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.UpdateTask(c.Request.Context(), actorFrom(c), c.Param("id"), services.TaskPatch(req))
	if err != nil {
		h.abortWithServiceError(c, err, "failed to update task")
		return
	}
	c.JSON(http.StatusOK, newGetTaskResponse(task))
}

type setTaskStatusRequest struct {
	Status          models.TaskStatus `json:"status" binding:"required"`
	Comment         string            `json:"comment"`
	RejectionReason string            `json:"rejection_reason"`
}

func (h *handlerImpl) HandleSetTaskStatus(c *gin.Context) {
	var req setTaskStatusRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.TransitionTask(c.Request.Context(), actorFrom(c), services.TransitionTaskParams{
		TaskID:          c.Param("id"),
		Status:          req.Status,
		Comment:         req.Comment,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to set task status")
		return
	}
	c.JSON(http.StatusOK, newGetTaskResponse(task))
}

func (h *handlerImpl) HandleArchiveTask(c *gin.Context) {
	err := h.tasks.ArchiveTask(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.abortWithServiceError(c, err, "failed to archive task")
		return
	}
	c.Status(http.StatusNoContent)
}

type addCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *handlerImpl) HandleAddComment(c *gin.Context) {
	var req addCommentRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	comment, err := h.tasks.AddComment(c.Request.Context(), actorFrom(c), c.Param("id"), req.Text)
	if err != nil {
		h.abortWithServiceError(c, err, "failed to add comment")
		return
	}
	c.JSON(http.StatusCreated, newCommentResponse(comment))
}

type addAttachmentRequest struct {
	FileName string `json:"file_name" binding:"required"`
	URL      string `json:"url" binding:"required"`
	Size     int64  `json:"size" binding:"min=0"`
}

func (h *handlerImpl) HandleAddAttachment(c *gin.Context) {
	var req addAttachmentRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	attachment, err := h.tasks.AddAttachment(c.Request.Context(), actorFrom(c), c.Param("id"), services.AddAttachmentParams{
		FileName: req.FileName,
		URL:      req.URL,
		Size:     req.Size,
	})
	if err != nil {
		h.abortWithServiceError(c, err, "failed to add attachment")
		return
	}
	c.JSON(http.StatusCreated, newAttachmentResponse(attachment))
}
