package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Liyue-Cheng/cutie-sub002/internal/application/services"
	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/ports"
)

// TimeBlockHandler exposes the time block aggregate's endpoints.
type TimeBlockHandler struct {
	sm *services.ServiceManager
}

// NewTimeBlockHandler creates a new TimeBlockHandler.
func NewTimeBlockHandler(sm *services.ServiceManager) *TimeBlockHandler {
	return &TimeBlockHandler{sm: sm}
}

// Create handles POST /api/time-blocks.
func (h *TimeBlockHandler) Create(c *gin.Context) {
	var req services.CreateTimeBlockInput
	RunCommand(c, h.sm.Harness, http.StatusCreated, &req, func() ports.BusinessFunc {
		return h.sm.TimeBlocks.Create(req)
	})
}

// Update handles PUT /api/time-blocks/:id.
func (h *TimeBlockHandler) Update(c *gin.Context) {
	var req services.UpdateTimeBlockInput
	req.ID = c.Param("id")
	RunCommand(c, h.sm.Harness, http.StatusOK, &req, func() ports.BusinessFunc {
		return h.sm.TimeBlocks.Update(req)
	})
}

// Delete handles DELETE /api/time-blocks/:id.
func (h *TimeBlockHandler) Delete(c *gin.Context) {
	req := services.DeleteTimeBlockInput{ID: c.Param("id")}
	RunCommand(c, h.sm.Harness, http.StatusOK, nil, func() ports.BusinessFunc {
		return h.sm.TimeBlocks.Delete(req)
	})
}

// List handles GET /api/time-blocks.
func (h *TimeBlockHandler) List(c *gin.Context) {
	HandleGetEnvelope(c, "time_blocks", func() (interface{}, error) {
		return h.sm.TimeBlockRepo.List(c.Request.Context())
	})
}

// Get handles GET /api/time-blocks/:id.
func (h *TimeBlockHandler) Get(c *gin.Context) {
	id := c.Param("id")
	HandleGetEnvelope(c, "time_block", func() (interface{}, error) {
		return h.sm.TimeBlockRepo.Get(c.Request.Context(), nil, id)
	})
}
