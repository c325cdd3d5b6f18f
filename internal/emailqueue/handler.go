package emailqueue

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/motorlot/marketplace/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrEntryNotFound, Status: http.StatusNotFound, Message: "queue entry not found"},
	{Error: ErrNotRetryable, Status: http.StatusConflict},
	{Error: ErrValidation, Status: http.StatusBadRequest},
}

// Handler exposes the queue to administrators and periodic triggers.
type Handler struct {
	manager       *Manager
	validator     *validator.Validate
	retentionDays int
}

// NewHandler creates a new email queue handler. retentionDays is used by
// cleanup requests that do not specify an age.
func NewHandler(manager *Manager, retentionDays int) *Handler {
	return &Handler{
		manager:       manager,
		validator:     validator.New(),
		retentionDays: retentionDays,
	}
}

// RegisterAdminRoutes registers queue administration routes (require admin role).
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/email-queue", func(r chi.Router) {
		r.Get("/", h.ListEntries)
		r.Post("/", h.Enqueue)
		r.Get("/stats", h.GetStats)
		r.Post("/process", h.ProcessQueue)
		r.Post("/cleanup", h.Cleanup)
		r.Get("/{id}", h.GetEntry)
		r.Post("/{id}/retry", h.RetryEntry)
	})
}

// RegisterCronRoutes registers routes for the periodic trigger (require shared secret).
func (h *Handler) RegisterCronRoutes(r chi.Router) {
	r.Post("/email-queue/process", h.ProcessQueue)
	r.Post("/email-queue/cleanup", h.Cleanup)
}

// ProcessRequest represents request body for a queue sweep.
type ProcessRequest struct {
	Limit int `json:"limit" validate:"min=0,max=1000"`
}

// CleanupRequest represents request body for a queue cleanup.
type CleanupRequest struct {
	OlderThanDays int `json:"older_than_days" validate:"min=0,max=3650"`
}

// CleanupResponse represents the result of a cleanup.
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// GetStats handles GET /email-queue/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// ListEntries handles GET /email-queue.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ListFilter{Status: Status(query.Get("status"))}

	var err error
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid offset")
		return
	}

	entries, err := h.manager.List(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// GetEntry handles GET /email-queue/{id}.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entry)
}

// Enqueue handles POST /email-queue.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	entry, err := h.manager.Enqueue(r.Context(), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, entry)
}

// ProcessQueue handles POST /email-queue/process.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	// A dropped client connection must not abandon claimed entries mid-sweep.
	ctx := context.WithoutCancel(r.Context())

	result, err := h.manager.ProcessQueue(ctx, req.Limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Cleanup handles POST /email-queue/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	days := req.OlderThanDays
	if days == 0 {
		days = h.retentionDays
	}

	deleted, err := h.manager.Cleanup(r.Context(), days)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, CleanupResponse{Deleted: deleted})
}

// RetryEntry handles POST /email-queue/{id}/retry.
func (h *Handler) RetryEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.manager.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, entry)
}

func intParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
