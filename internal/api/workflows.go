package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/celerix-tasks/internal/workflow"
)

func (h *Handler) CreateWorkflow(c *gin.Context) {
	var in workflow.CreateInput
	if err := bindJSON(c, &in); err != nil {
		h.fail(c, err)
		return
	}
	w, err := h.Workflows.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, w)
}

func (h *Handler) ListWorkflows(c *gin.Context) {
	list, err := h.Workflows.List(c.Request.Context(), actor(c), c.Query("projectId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "data": list})
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	w, err := h.Workflows.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (h *Handler) UpdateWorkflow(c *gin.Context) {
	var patch workflow.Patch
	if err := bindJSON(c, &patch); err != nil {
		h.fail(c, err)
		return
	}
	w, err := h.Workflows.Update(c.Request.Context(), actor(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (h *Handler) DeleteWorkflow(c *gin.Context) {
	if err := h.Workflows.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	okMessage(c, gin.H{}, "Workflow removed")
}
