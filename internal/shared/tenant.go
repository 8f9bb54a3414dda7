package shared

import (
	"log/slog"
	"net/http"
	"strconv"
)

// Header names populated by the authentication gateway in front of this
// service. Authentication itself happens upstream; we only consume the
// resolved identity.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
)

// TenantMiddleware resolves the tenant and acting user from request headers
// and stores them in the request context. Requests without a tenant are
// rejected before reaching any handler.
func TenantMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := strconv.ParseInt(r.Header.Get(HeaderTenantID), 10, 64)
			if err != nil || tenantID <= 0 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			userID, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
			if err != nil || userID <= 0 {
				if logger != nil {
					logger.Warn("request without actor id", slog.Int64("tenant_id", tenantID), slog.String("path", r.URL.Path))
				}
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			ctx := ContextWithActor(r.Context(), Actor{TenantID: tenantID, UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
