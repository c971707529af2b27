package middleware

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shepherdhq/shepherd/modules/iam/services"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/httpapi"
)

// PrincipalResolver extracts the verified principal from a request.
// Credential verification (JWT validation, session cookies) happens in
// front of this service; the resolver only reads its outcome.
type PrincipalResolver interface {
	Resolve(r *http.Request) (services.Principal, error)
}

// HeaderPrincipalResolver trusts X-User-Id / X-Tenant-Id headers set by an
// authenticating reverse proxy.
type HeaderPrincipalResolver struct{}

func (HeaderPrincipalResolver) Resolve(r *http.Request) (services.Principal, error) {
	userID, err := uuid.Parse(r.Header.Get("X-User-Id"))
	if err != nil {
		return services.Principal{}, services.ErrUnauthenticated
	}
	tenantID, err := uuid.Parse(r.Header.Get("X-Tenant-Id"))
	if err != nil {
		return services.Principal{}, services.ErrUnauthenticated
	}
	return services.Principal{TenantID: tenantID, UserID: userID}, nil
}

// Authorize resolves the principal, binds the session (tenant, user, coarse
// permission set) into the context, and rejects unauthenticated requests.
func Authorize(resolver PrincipalResolver, sessions *services.SessionService) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolver.Resolve(r)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "IAM_UNAUTHENTICATED", "no authenticated principal", nil)
				return
			}

			requestedTenant := uuid.Nil
			if raw := r.Header.Get("X-Requested-Tenant"); raw != "" {
				requestedTenant, err = uuid.Parse(raw)
				if err != nil {
					_ = httpapi.WriteError(w, http.StatusForbidden, "IAM_TENANT_MISMATCH", "invalid tenant", nil)
					return
				}
			}

			session, err := sessions.Bind(r.Context(), principal, requestedTenant)
			if err != nil {
				status := http.StatusUnauthorized
				code := "IAM_UNAUTHENTICATED"
				if errors.Is(err, services.ErrTenantMismatch) {
					status = http.StatusForbidden
					code = "IAM_TENANT_MISMATCH"
				}
				_ = httpapi.WriteError(w, status, code, "authentication failed", nil)
				return
			}

			ctx := composables.WithSession(r.Context(), session)
			if params, ok := composables.UseParams(ctx); ok {
				params.Authenticated = true
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
