package handlers

import (
	"github.com/gin-gonic/gin"

	"opsdesk/internal/domain/legalentity"
	"opsdesk/internal/domain/sequence"
	"opsdesk/internal/infrastructure/http/v1/dto"
)

// CounterHandler serves /legal-entities/:id/counters.
type CounterHandler struct {
	*BaseHandler
	entities  *legalentity.Service
	allocator *sequence.Allocator
}

// NewCounterHandler creates a counter handler.
func NewCounterHandler(base *BaseHandler, entities *legalentity.Service, allocator *sequence.Allocator) *CounterHandler {
	return &CounterHandler{BaseHandler: base, entities: entities, allocator: allocator}
}

// List handles GET /legal-entities/:id/counters
func (h *CounterHandler) List(c *gin.Context) {
	legalEntityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	counters, err := h.entities.Counters(c.Request.Context(), h.CompanyID(c), legalEntityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.CounterResponse]{Items: dto.FromCounters(counters)})
}

// Update handles PUT /legal-entities/:id/counters/:kind. Prefix and next
// number are applied atomically.
func (h *CounterHandler) Update(c *gin.Context) {
	legalEntityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	kind, ok := h.ParamKind(c)
	if !ok {
		return
	}
	var req dto.UpdateCounterRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.entities.Get(ctx, h.CompanyID(c), legalEntityID); err != nil {
		h.Error(c, err)
		return
	}

	counter, err := h.allocator.UpdateSettings(ctx, legalEntityID, kind, req.Prefix, req.NextNumber)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCounter(counter))
}
