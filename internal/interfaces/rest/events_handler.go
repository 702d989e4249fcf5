package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Liyue-Cheng/cutie-sub002/internal/application/services"
)

// EventsHandler exposes the SSE stream and the combined bulk-resync
// snapshot a client fetches after a forced resync (spec.md §4.4, §6).
type EventsHandler struct {
	sm *services.ServiceManager
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(sm *services.ServiceManager) *EventsHandler {
	return &EventsHandler{sm: sm}
}

// Stream handles GET /api/events — the long-lived SSE connection. Each
// connecting client gets a fresh subscriber id; a reconnecting client
// presents Last-Event-ID via the standard SSE header, which the hub uses to
// decide between replay and forced resync.
func (h *EventsHandler) Stream(c *gin.Context) {
	h.sm.Hub.ServeHTTP(c.Writer, c.Request, h.sm.OutboxRepo, uuid.NewString())
}

// Snapshot handles GET /api/resync — the bulk-fetch endpoint a client calls
// once, after a forced resync or on cold start, to rebuild its local state
// from scratch instead of replaying an unbounded event history.
func (h *EventsHandler) Snapshot(c *gin.Context) {
	ctx := c.Request.Context()

	tasks, err := h.sm.TaskRepo.List(ctx)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	timeBlocks, err := h.sm.TimeBlockRepo.List(ctx)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	areas, err := h.sm.AreaRepo.List(ctx)
	if err != nil {
		RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks":       tasks,
		"time_blocks": timeBlocks,
		"areas":       areas,
	})
}
