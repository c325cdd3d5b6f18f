package moderation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrVerificationNotFound, Status: http.StatusNotFound},
	{Error: ErrListingNotFound, Status: http.StatusNotFound},
	{Error: ErrVerificationPending, Status: http.StatusConflict},
	{Error: ErrValidation, Status: http.StatusBadRequest},
}

// Handler handles moderation HTTP requests.
type Handler struct {
	service *Service
}

// NewHandler creates a new moderation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers routes for authenticated users.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/verifications", h.SubmitVerification)
}

// RegisterAdminRoutes registers review routes (require admin role).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/verifications", h.ListVerifications)
	r.Post("/verifications/{id}/decision", h.DecideVerification)
	r.Post("/listings/{id}/decision", h.DecideListing)
}

// SubmitVerification handles POST /verifications.
func (h *Handler) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.SubmitVerification(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, v)
}

// ListVerifications handles GET /verifications.
func (h *Handler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	status := domain.ReviewStatus(r.URL.Query().Get("status"))

	list, err := h.service.ListVerifications(r.Context(), status)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, list)
}

// DecideVerification handles POST /verifications/{id}/decision.
func (h *Handler) DecideVerification(w http.ResponseWriter, r *http.Request) {
	var req Decision
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	v, err := h.service.DecideVerification(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, v)
}

// DecideListing handles POST /listings/{id}/decision.
func (h *Handler) DecideListing(w http.ResponseWriter, r *http.Request) {
	var req Decision
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	vehicle, err := h.service.DecideListing(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, vehicle)
}
