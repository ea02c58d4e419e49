package auth

import (
	"net/http"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/grantayeye/gamma-budget-planner/internal/common"
)

// AdminKeyHeader carries the shared admin key on management requests.
const AdminKeyHeader = "X-Admin-Key"

// AdminGate guards the admin route group. The key itself is never stored;
// only its argon2id hash lives in configuration, produced by the adminkey
// tool.
type AdminGate struct {
	KeyHash string
}

// Require rejects requests whose admin key does not match the configured
// hash. An empty configured hash disables the whole admin surface.
func (g AdminGate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(g.KeyHash) == "" {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access is not configured", nil)
			return
		}
		key := strings.TrimSpace(r.Header.Get(AdminKeyHeader))
		if key == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing admin key", nil)
			return
		}
		match, err := argon2id.ComparePasswordAndHash(key, g.KeyHash)
		if err != nil || !match {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
