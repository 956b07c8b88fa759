package middleware

import (
	"context"
	"net/http"

	"github.com/heraldhq/herald/pkg/httputil"
	"github.com/heraldhq/herald/pkg/logger"
)

type tenantKey struct{}

// DefaultTenant is used when no X-Tenant-ID header is supplied, so
// single-tenant deployments work without extra configuration.
const DefaultTenant = "default"

// Tenant extracts the tenant id from the X-Tenant-ID header and stores it in
// the request context. Every engine operation downstream is parameterized by
// this id; there is no cross-tenant shared state.
func Tenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get("X-Tenant-ID")
			if tenant == "" {
				tenant = DefaultTenant
			}

			ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
			ctx = logger.WithTenantID(ctx, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext returns the tenant id stored by the Tenant middleware.
func TenantFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tenantKey{}).(string); ok {
		return t
	}
	return DefaultTenant
}

// RequireTenant is a helper for handlers that writes a 400 when the tenant id
// is missing or blank. With the middleware mounted this cannot normally happen,
// so it mostly guards direct handler tests.
func RequireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := TenantFromContext(r.Context())
	if tenant == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "MISSING_TENANT", Message: "X-Tenant-ID header is required"},
		})
		return "", false
	}
	return tenant, true
}
