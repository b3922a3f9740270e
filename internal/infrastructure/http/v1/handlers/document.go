package handlers

import (
	"github.com/gin-gonic/gin"

	"opsdesk/internal/domain/document"
	"opsdesk/internal/infrastructure/http/v1/dto"
)

// DocumentHandler serves /documents/:kind for quotes, invoices and
// certificates.
type DocumentHandler struct {
	*BaseHandler
	service *document.Service
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(base *BaseHandler, service *document.Service) *DocumentHandler {
	return &DocumentHandler{BaseHandler: base, service: service}
}

// Create handles POST /documents/:kind
func (h *DocumentHandler) Create(c *gin.Context) {
	kind, ok := h.ParamKind(c)
	if !ok {
		return
	}
	var req dto.CreateDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.service.Create(c.Request.Context(), kind, req.ToInput(h.CompanyID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromDocument(doc))
}

// Get handles GET /documents/:kind/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	kind, ok := h.ParamKind(c)
	if !ok {
		return
	}
	docID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), h.CompanyID(c), kind, docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromDocument(doc))
}

// List handles GET /documents/:kind
func (h *DocumentHandler) List(c *gin.Context) {
	kind, ok := h.ParamKind(c)
	if !ok {
		return
	}
	var q dto.ListDocumentsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	f := q.ToFilter(h.CompanyID(c), kind)
	docs, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse[dto.DocumentResponse]{
		Items:  dto.FromDocuments(docs),
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}
