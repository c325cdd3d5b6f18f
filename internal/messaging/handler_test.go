package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/internal/pkg/httputil"
)

func newTestRouter(env *testEnv) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), httputil.UserIDKey, r.Header.Get("X-Test-User"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	NewHandler(env.service).RegisterRoutes(r)
	return r
}

func doRequest(router http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", userID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SendAndInbox(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	body := `{"vehicle_id":"` + vehicleID + `","recipient_id":"` + sellerID + `","body":"Still for sale?"}`
	rec := doRequest(router, http.MethodPost, "/messages", buyerID, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, env.notifier.sent, 1)

	rec = doRequest(router, http.MethodGet, "/messages?limit=10", sellerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Still for sale?")
}

func TestHandler_SendErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "invalid json", body: `{"body":`, wantStatus: http.StatusBadRequest},
		{name: "missing body", body: `{"vehicle_id":"` + vehicleID + `","recipient_id":"` + sellerID + `"}`, wantStatus: http.StatusBadRequest},
		{name: "not participant", body: `{"vehicle_id":"` + vehicleID + `","recipient_id":"` + otherID + `","body":"hi"}`, wantStatus: http.StatusForbidden},
		{name: "unknown vehicle", body: `{"vehicle_id":"d0000000-0000-4000-8000-0000000000ff","recipient_id":"` + sellerID + `","body":"hi"}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			rec := doRequest(newTestRouter(env), http.MethodPost, "/messages", buyerID, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Empty(t, env.notifier.sent)
		})
	}
}

func TestHandler_MarkRead(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	msg, err := env.service.Send(context.Background(), buyerID, SendInput{VehicleID: vehicleID, RecipientID: sellerID, Body: "hi"})
	require.NoError(t, err)

	rec := doRequest(router, http.MethodPost, "/messages/"+msg.ID+"/read", sellerID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"read_at"`)

	rec = doRequest(router, http.MethodPost, "/messages/"+msg.ID+"/read", buyerID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
