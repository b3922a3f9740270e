package dto

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"opsdesk/internal/core/numbering"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator:
//
//	doc_kind  value parses as a document kind (quote, invoices, ...)
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("doc_kind", validateDocKind)
		}
	})
}

func validateDocKind(fl validator.FieldLevel) bool {
	_, err := numbering.ParseKind(fl.Field().String())
	return err == nil
}
