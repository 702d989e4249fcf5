package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Liyue-Cheng/cutie-sub002/internal/application/services"
	"github.com/Liyue-Cheng/cutie-sub002/internal/domain/ports"
)

// AreaHandler exposes the area aggregate's endpoints.
type AreaHandler struct {
	sm *services.ServiceManager
}

// NewAreaHandler creates a new AreaHandler.
func NewAreaHandler(sm *services.ServiceManager) *AreaHandler {
	return &AreaHandler{sm: sm}
}

// Create handles POST /api/areas.
func (h *AreaHandler) Create(c *gin.Context) {
	var req services.CreateAreaInput
	RunCommand(c, h.sm.Harness, http.StatusCreated, &req, func() ports.BusinessFunc {
		return h.sm.Areas.Create(req)
	})
}

// Update handles PUT /api/areas/:id.
func (h *AreaHandler) Update(c *gin.Context) {
	var req services.UpdateAreaInput
	req.ID = c.Param("id")
	RunCommand(c, h.sm.Harness, http.StatusOK, &req, func() ports.BusinessFunc {
		return h.sm.Areas.Update(req)
	})
}

// Delete handles DELETE /api/areas/:id.
func (h *AreaHandler) Delete(c *gin.Context) {
	req := services.DeleteAreaInput{ID: c.Param("id")}
	RunCommand(c, h.sm.Harness, http.StatusOK, nil, func() ports.BusinessFunc {
		return h.sm.Areas.Delete(req)
	})
}

// List handles GET /api/areas.
func (h *AreaHandler) List(c *gin.Context) {
	HandleGetEnvelope(c, "areas", func() (interface{}, error) {
		return h.sm.AreaRepo.List(c.Request.Context())
	})
}
