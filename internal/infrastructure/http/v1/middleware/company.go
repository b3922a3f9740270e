package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"opsdesk/internal/core/apperror"
	appctx "opsdesk/internal/core/context"
	"opsdesk/internal/core/id"
)

const (
	HeaderCompanyID = "X-Company-ID"
	HeaderActor     = "X-Actor"
)

// Company resolves the calling company from X-Company-ID and the operator
// label from X-Actor. Authentication happens upstream of this service.
func Company() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderCompanyID))
		if raw == "" {
			_ = c.Error(apperror.NewValidation("missing " + HeaderCompanyID + " header"))
			c.Abort()
			return
		}
		companyID, err := id.Parse(raw)
		if err != nil || id.IsNil(companyID) {
			_ = c.Error(apperror.NewValidation("invalid "+HeaderCompanyID+" header").
				WithDetail("value", raw))
			c.Abort()
			return
		}

		ctx := appctx.WithCompany(c.Request.Context(), &appctx.CompanyContext{
			CompanyID: companyID,
			Actor:     strings.TrimSpace(c.GetHeader(HeaderActor)),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("company_id", companyID.String())

		c.Next()
	}
}
