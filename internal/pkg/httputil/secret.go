package httputil

import (
	"net/http"

	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
	"golang.org/x/crypto/bcrypt"
)

// CronSecretHeader carries the shared secret of periodic callers that cannot set Authorization.
const CronSecretHeader = "X-Cron-Secret"

// SharedSecretMiddleware authenticates machine callers (schedulers, cron jobs)
// against a bcrypt hash of a shared secret. The secret is read from
// the Authorization bearer token or the X-Cron-Secret header.
// An empty hash rejects every request.
func SharedSecretMiddleware(secretHash string) func(http.Handler) http.Handler {
	hash := []byte(secretHash)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(hash) == 0 {
				respondError(w, http.StatusServiceUnavailable, "cron trigger is not configured")
				return
			}

			secret := r.Header.Get(CronSecretHeader)
			if secret == "" {
				secret, _ = BearerToken(r)
			}
			if secret == "" {
				respondError(w, http.StatusUnauthorized, "missing cron secret")
				return
			}

			if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
				ctxlog.FromContext(r.Context()).Warn("cron secret rejected", "remote_addr", r.RemoteAddr)
				respondError(w, http.StatusUnauthorized, "invalid cron secret")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
