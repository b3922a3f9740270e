package handlers

import (
	"sort"

	"github.com/gin-gonic/gin"

	"opsdesk/internal/domain/audit"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/internal/infrastructure/http/v1/dto"
)

// auditHistoryLimit caps entries returned per entity type.
const auditHistoryLimit = 100

// LegalEntityHandler serves /legal-entities.
type LegalEntityHandler struct {
	*BaseHandler
	service *legalentity.Service
	audit   audit.Recorder
}

// NewLegalEntityHandler creates a legal entity handler.
func NewLegalEntityHandler(base *BaseHandler, service *legalentity.Service, recorder audit.Recorder) *LegalEntityHandler {
	return &LegalEntityHandler{BaseHandler: base, service: service, audit: recorder}
}

// List handles GET /legal-entities
func (h *LegalEntityHandler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), h.CompanyID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.LegalEntityResponse]{Items: dto.FromLegalEntities(list)})
}

// Create handles POST /legal-entities
func (h *LegalEntityHandler) Create(c *gin.Context) {
	var req dto.CreateLegalEntityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	e, err := h.service.Create(c.Request.Context(), req.ToInput(h.CompanyID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromLegalEntity(e))
}

// Get handles GET /legal-entities/:id
func (h *LegalEntityHandler) Get(c *gin.Context) {
	legalEntityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	e, err := h.service.Get(c.Request.Context(), h.CompanyID(c), legalEntityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLegalEntity(e))
}

// Update handles PATCH /legal-entities/:id
func (h *LegalEntityHandler) Update(c *gin.Context) {
	legalEntityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateLegalEntityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	e, err := h.service.Rename(c.Request.Context(), h.CompanyID(c), legalEntityID, req.DisplayName, req.Version)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLegalEntity(e))
}

// Archive handles POST /legal-entities/:id/archive
func (h *LegalEntityHandler) Archive(c *gin.Context) {
	legalEntityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	e, err := h.service.Archive(c.Request.Context(), h.CompanyID(c), legalEntityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLegalEntity(e))
}

// SetDefault handles POST /legal-entities/:id/default
func (h *LegalEntityHandler) SetDefault(c *gin.Context) {
	legalEntityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	e, err := h.service.SetDefault(c.Request.Context(), h.CompanyID(c), legalEntityID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLegalEntity(e))
}

// History handles GET /legal-entities/:id/audit: entity and counter changes,
// newest first.
func (h *LegalEntityHandler) History(c *gin.Context) {
	legalEntityID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.service.Get(ctx, h.CompanyID(c), legalEntityID); err != nil {
		h.Error(c, err)
		return
	}

	var entries []audit.Entry
	for _, entityType := range []string{audit.EntityLegalEntity, audit.EntityCounter} {
		list, err := h.audit.History(ctx, entityType, legalEntityID, auditHistoryLimit)
		if err != nil {
			h.Error(c, err)
			return
		}
		entries = append(entries, list...)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	h.OK(c, dto.ListResponse[dto.AuditEntryResponse]{Items: dto.FromAuditEntries(entries)})
}
