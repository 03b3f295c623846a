package controllers

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/groveops/grove/pkg/composables"
)

// ProvideRequestParams captures the caller's IP, user agent, and request id
// into the context so change snapshots can record provenance.
func ProvideRequestParams() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.Header.Get("X-Forwarded-For")
			if idx := strings.Index(ip, ","); idx >= 0 {
				ip = ip[:idx]
			}
			if ip = strings.TrimSpace(ip); ip == "" {
				ip, _, _ = net.SplitHostPort(r.RemoteAddr)
			}
			ctx := composables.WithParams(r.Context(), &composables.Params{
				IP:        ip,
				UserAgent: r.UserAgent(),
				RequestID: requestID(r),
				Request:   r,
				Writer:    w,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTenant rejects requests without a valid X-Tenant-ID header.
// Authentication and the authorization decision happen upstream; by the time a
// request reaches these handlers it is already a yes.
func RequireTenant() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Tenant-ID")))
			if err != nil || tenantID == uuid.Nil {
				writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "a valid X-Tenant-ID header is required")
				return
			}
			ctx := composables.WithTenantID(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func useTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "tenant is missing from the request context")
		return uuid.Nil, false
	}
	return tenantID, true
}

// actorID reads the authenticated subject forwarded by the gateway.
func actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Actor-ID")))
	if err != nil || id == uuid.Nil {
		writeAPIError(w, r, http.StatusBadRequest, "TENURE_INVALID_BODY", "a valid X-Actor-ID header is required")
		return uuid.Nil, false
	}
	return id, true
}
