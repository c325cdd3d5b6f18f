package messaging

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motorlot/marketplace/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrVehicleNotFound, Status: http.StatusNotFound},
	{Error: ErrMessageNotFound, Status: http.StatusNotFound},
	{Error: ErrRecipientNotFound, Status: http.StatusUnprocessableEntity, Message: "recipient not found"},
	{Error: ErrNotParticipant, Status: http.StatusForbidden},
	{Error: ErrValidation, Status: http.StatusBadRequest},
}

// Handler handles messaging HTTP requests.
type Handler struct {
	service *Service
}

// NewHandler creates a new messaging handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers message routes (require authentication).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", h.Inbox)
		r.Post("/", h.Send)
		r.Post("/{id}/read", h.MarkRead)
	})
}

// Send handles POST /messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	msg, err := h.service.Send(r.Context(), httputil.GetUserID(r.Context()), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, msg)
}

// Inbox handles GET /messages.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := h.service.Inbox(r.Context(), httputil.GetUserID(r.Context()), limit, offset)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, messages)
}

// MarkRead handles POST /messages/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.MarkRead(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, msg)
}
