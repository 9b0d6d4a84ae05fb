package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-tasks/internal/analytics"
	"github.com/celerix-dev/celerix-tasks/internal/store"
	"github.com/celerix-dev/celerix-tasks/internal/tasks"
	"github.com/celerix-dev/celerix-tasks/pkg/schema"
)

type createTaskRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Priority    schema.Priority `json:"priority" binding:"omitempty,priority"`
	WorkflowID  string          `json:"workflowId" binding:"required"`
	AssignedTo  []string        `json:"assignedTo"`
	DueDate     *time.Time      `json:"dueDate"`
	Tags        []string        `json:"tags"`
	ProjectID   string          `json:"projectId"`
}

type updateTaskRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Priority    *schema.Priority   `json:"priority" binding:"omitempty,priority"`
	AssignedTo  *[]string          `json:"assignedTo"`
	DueDate     tasks.NullableTime `json:"dueDate"`
	Tags        *[]string          `json:"tags"`
	ProjectID   *string            `json:"projectId"`
}

type stageRequest struct {
	StageID string `json:"stageId" binding:"required"`
}

type listTasksQuery struct {
	WorkflowID string          `form:"workflowId"`
	ProjectID  string          `form:"projectId"`
	Stage      string          `form:"stage"`
	Priority   schema.Priority `form:"priority" binding:"omitempty,priority"`
	AssignedTo string          `form:"assignedTo"`
	Search     string          `form:"search"`
	Page       int             `form:"page" binding:"omitempty,min=1"`
	Limit      int             `form:"limit" binding:"omitempty,min=1"`
}

type overviewQuery struct {
	ProjectID string `form:"projectId"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	d, err := h.Tasks.Create(c.Request.Context(), actor(c), tasks.CreateInput(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, d)
}

func (h *Handler) ListTasks(c *gin.Context) {
	var q listTasksQuery
	if err := bindQuery(c, &q); err != nil {
		h.fail(c, err)
		return
	}
	filter := store.TaskFilter{
		WorkflowID: q.WorkflowID,
		ProjectID:  q.ProjectID,
		Stage:      q.Stage,
		Priority:   q.Priority,
		AssignedTo: q.AssignedTo,
		Search:     q.Search,
	}
	res, err := h.Tasks.List(c.Request.Context(), actor(c), filter, store.NewPage(q.Page, q.Limit))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"count":       len(res.Tasks),
		"total":       res.Total,
		"pages":       res.Pages(),
		"currentPage": res.Page.Number,
		"data":        res.Tasks,
	})
}

func (h *Handler) GetTask(c *gin.Context) {
	d, err := h.Tasks.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	d, err := h.Tasks.Update(c.Request.Context(), actor(c), c.Param("id"), tasks.Patch(req))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

func (h *Handler) AdvanceStage(c *gin.Context) {
	var req stageRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	d, stage, err := h.Tasks.AdvanceStage(c.Request.Context(), actor(c), c.Param("id"), req.StageID)
	if err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, d, "Task moved to "+stage.Name)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.Tasks.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, gin.H{}, "Task deleted successfully")
}

func (h *Handler) AnalyticsOverview(c *gin.Context) {
	var q overviewQuery
	if err := bindQuery(c, &q); err != nil {
		h.fail(c, err)
		return
	}
	start, err := parseDate("startDate", q.StartDate)
	if err != nil {
		h.fail(c, err)
		return
	}
	end, err := parseDate("endDate", q.EndDate)
	if err != nil {
		h.fail(c, err)
		return
	}
	o, err := h.Analytics.Overview(c.Request.Context(), actor(c), analytics.Filter{
		ProjectID: q.ProjectID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}
