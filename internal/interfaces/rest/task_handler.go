package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Liyue-Cheng/cutie-sub002/internal/application/services"
	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/ports"
)

// TaskHandler exposes the task aggregate's endpoints.
type TaskHandler struct {
	sm *services.ServiceManager
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(sm *services.ServiceManager) *TaskHandler {
	return &TaskHandler{sm: sm}
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(c *gin.Context) {
	var req services.CreateTaskInput
	RunCommand(c, h.sm.Harness, http.StatusCreated, &req, func() ports.BusinessFunc {
		return h.sm.Tasks.Create(req)
	})
}

// Update handles PUT /api/tasks/:id.
func (h *TaskHandler) Update(c *gin.Context) {
	var req services.UpdateTaskInput
	req.ID = c.Param("id")
	RunCommand(c, h.sm.Harness, http.StatusOK, &req, func() ports.BusinessFunc {
		return h.sm.Tasks.Update(req)
	})
}

// Complete handles POST /api/tasks/:id/complete — spec.md §8 scenario 1.
func (h *TaskHandler) Complete(c *gin.Context) {
	var req services.CompleteTaskInput
	req.ID = c.Param("id")
	RunCommand(c, h.sm.Harness, http.StatusOK, &req, func() ports.BusinessFunc {
		return h.sm.Tasks.Complete(req)
	})
}

// Reopen handles POST /api/tasks/:id/reopen.
func (h *TaskHandler) Reopen(c *gin.Context) {
	var req services.ReopenTaskInput
	req.ID = c.Param("id")
	RunCommand(c, h.sm.Harness, http.StatusOK, &req, func() ports.BusinessFunc {
		return h.sm.Tasks.Reopen(req)
	})
}

// Delete handles DELETE /api/tasks/:id — spec.md §8 scenario 2.
func (h *TaskHandler) Delete(c *gin.Context) {
	req := services.DeleteTaskInput{ID: c.Param("id")}
	RunCommand(c, h.sm.Harness, http.StatusOK, nil, func() ports.BusinessFunc {
		return h.sm.Tasks.Delete(req)
	})
}

// List handles GET /api/tasks — one of the bulk resync endpoints a client
// calls after a forced resync or on cold start (spec.md §4.4, §6).
func (h *TaskHandler) List(c *gin.Context) {
	HandleGetEnvelope(c, "tasks", func() (interface{}, error) {
		return h.sm.TaskRepo.List(c.Request.Context())
	})
}

// Get handles GET /api/tasks/:id.
func (h *TaskHandler) Get(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "task", func() (interface{}, error) {
		return h.sm.TaskRepo.Get(c.Request.Context(), nil, id)
	})
}
