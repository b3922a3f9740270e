// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"opsdesk/internal/core/id"
)

// CompanyContext identifies the tenant company a request acts for.
type CompanyContext struct {
	CompanyID id.ID
	// Actor is a free-form operator label (header or CLI flag) used for audit.
	Actor string
}

type companyContextKey struct{}

// WithCompany adds CompanyContext to context.
func WithCompany(ctx context.Context, company *CompanyContext) context.Context {
	return context.WithValue(ctx, companyContextKey{}, company)
}

// GetCompany returns CompanyContext from context.
func GetCompany(ctx context.Context) *CompanyContext {
	if v, ok := ctx.Value(companyContextKey{}).(*CompanyContext); ok {
		return v
	}
	return nil
}

// GetCompanyID returns company ID from context or the nil UUID.
func GetCompanyID(ctx context.Context) id.ID {
	if c := GetCompany(ctx); c != nil {
		return c.CompanyID
	}
	return id.Nil()
}

// GetActor returns the acting operator label or "system".
func GetActor(ctx context.Context) string {
	if c := GetCompany(ctx); c != nil && c.Actor != "" {
		return c.Actor
	}
	return "system"
}
