package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
	"github.com/motorlot/marketplace/internal/pkg/httputil"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body, optionally
// prefixed with "sha256=".
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrProfileNotFound, Status: http.StatusNotFound},
	{Error: ErrUnsupportedEvent, Status: http.StatusUnprocessableEntity},
	{Error: ErrValidation, Status: http.StatusBadRequest},
	{Error: ErrDeliveryFailed, Status: http.StatusBadGateway, Message: "email delivery failed"},
}

// Handler handles identity HTTP requests.
type Handler struct {
	service       *Service
	webhookSecret []byte
}

// NewHandler creates a new identity handler. An empty webhookSecret disables
// the webhook endpoint.
func NewHandler(service *Service, webhookSecret string) *Handler {
	return &Handler{
		service:       service,
		webhookSecret: []byte(webhookSecret),
	}
}

// RegisterWebhookRoutes registers routes called by the identity provider.
func (h *Handler) RegisterWebhookRoutes(r chi.Router) {
	r.Post("/webhooks/identity", h.Webhook)
}

// RegisterRoutes registers routes for authenticated users.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// Webhook handles POST /webhooks/identity.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	if len(h.webhookSecret) == 0 {
		httputil.Error(w, http.StatusServiceUnavailable, "identity webhook is not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := h.verifySignature(body, r.Header.Get(SignatureHeader)); err != nil {
		ctxlog.FromContext(r.Context()).Warn("webhook rejected", "error", err)
		httputil.Error(w, http.StatusUnauthorized, err.Error())
		return
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	profile, err := h.service.HandleEvent(r.Context(), event)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, profile)
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, profile)
}

func (h *Handler) verifySignature(body []byte, header string) error {
	signature, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil || len(signature) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature header value for body. It is used by tests and
// local tooling that replay provider events.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
