package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/trobanga/enzflow/internal/services"
)

// OwnerHeader names the user a request acts for
const OwnerHeader = "X-Enzflow-User"

type contextKey string

const ownerKey contextKey = "owner_id"

// Owner stores the requesting user on the context. Requests without the
// header act as the anonymous user.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			owner = services.DefaultOwner
		}
		next.ServeHTTP(w, r.WithContext(SetOwner(r.Context(), owner)))
	})
}

func SetOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// GetOwner returns the requesting user, or the anonymous user when unset
func GetOwner(r *http.Request) string {
	if owner, ok := r.Context().Value(ownerKey).(string); ok && owner != "" {
		return owner
	}
	return services.DefaultOwner
}
