package moderation

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
	h := NewHandler(env.service)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), httputil.UserIDKey, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/admin", h.RegisterAdminRoutes)
	h.RegisterRoutes(r)
	return r
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Decisions(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "approve verification",
			path:       "/admin/verifications/" + verificationID + "/decision",
			body:       `{"approved":true}`,
			wantStatus: http.StatusOK,
			wantBody:   `"status":"approved"`,
		},
		{
			name:       "reject listing",
			path:       "/admin/listings/" + vehicleID + "/decision",
			body:       `{"approved":false,"reason":"Wrong mileage"}`,
			wantStatus: http.StatusOK,
			wantBody:   `"rejection_reason":"Wrong mileage"`,
		},
		{
			name:       "reject without reason",
			path:       "/admin/listings/" + vehicleID + "/decision",
			body:       `{"approved":false}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			path:       "/admin/listings/" + vehicleID + "/decision",
			body:       `{"approved":true,"notify":false}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid json",
		},
		{
			name:       "unknown listing",
			path:       "/admin/listings/missing/decision",
			body:       `{"approved":true}`,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(defaultProfiles())
			router := newTestRouter(env)

			rec := doRequest(router, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_Verifications(t *testing.T) {
	env := newTestEnv(defaultProfiles())
	router := newTestRouter(env)

	rec := doRequest(router, http.MethodPost, "/verifications", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.notifier.admins, 1)

	rec = doRequest(router, http.MethodPost, "/verifications", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(router, http.MethodGet, "/admin/verifications?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), verificationID)

	rec = doRequest(router, http.MethodGet, "/admin/verifications?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
