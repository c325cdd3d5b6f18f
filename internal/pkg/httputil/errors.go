package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to an HTTP status. An empty Message
// exposes err.Error() to the client.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// HandleError writes the response of the first mapping err matches.
// Unmapped errors are logged and answered with 500; mapped server-side
// statuses are logged too since their detail is hidden from the client.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}

		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		if m.Status >= http.StatusInternalServerError {
			ctxlog.FromContext(ctx).Error("request failed", "status", m.Status, "error", err)
		}
		Error(w, m.Status, msg)
		return
	}

	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
