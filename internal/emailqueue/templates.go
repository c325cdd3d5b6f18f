package emailqueue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Template is the name of an email layout.
type Template string

// Supported templates.
const (
	TemplateWelcome                  Template = "welcome"
	TemplateVerificationApproved     Template = "verification-approved"
	TemplateVerificationRejected     Template = "verification-rejected"
	TemplateListingApproved          Template = "listing-approved"
	TemplateListingRejected          Template = "listing-rejected"
	TemplateNewMessage               Template = "new-message"
	TemplatePasswordReset            Template = "password-reset"
	TemplateSubscriptionConfirmation Template = "subscription-confirmation"
	TemplateListingExpiring          Template = "listing-expiring"
	TemplateAdminNotification        Template = "admin-notification"
)

// TemplateData is the typed substitution data of one template.
// Each template has exactly one implementation.
type TemplateData interface {
	Template() Template
}

// WelcomeData is sent after sign-up.
type WelcomeData struct {
	Name         string `json:"name" validate:"required"`
	DashboardURL string `json:"dashboard_url,omitempty" validate:"omitempty,url"`
}

// VerificationApprovedData is sent when a seller verification is approved.
type VerificationApprovedData struct {
	Name  string `json:"name" validate:"required"`
	Notes string `json:"notes,omitempty"`
}

// VerificationRejectedData is sent when a seller verification is rejected.
type VerificationRejectedData struct {
	Name   string `json:"name" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// ListingApprovedData is sent when a vehicle listing goes live.
type ListingApprovedData struct {
	Name         string `json:"name" validate:"required"`
	ListingTitle string `json:"listing_title" validate:"required"`
	ListingURL   string `json:"listing_url,omitempty" validate:"omitempty,url"`
}

// ListingRejectedData is sent when a vehicle listing is rejected.
type ListingRejectedData struct {
	Name         string `json:"name" validate:"required"`
	ListingTitle string `json:"listing_title" validate:"required"`
	Reason       string `json:"reason" validate:"required"`
}

// NewMessageData is sent when a user receives a message about a listing.
type NewMessageData struct {
	Name            string `json:"name" validate:"required"`
	SenderName      string `json:"sender_name" validate:"required"`
	ListingTitle    string `json:"listing_title,omitempty"`
	MessagePreview  string `json:"message_preview" validate:"required"`
	ConversationURL string `json:"conversation_url,omitempty" validate:"omitempty,url"`
}

// PasswordResetData carries a one-time reset link.
type PasswordResetData struct {
	Name             string `json:"name" validate:"required"`
	ResetURL         string `json:"reset_url" validate:"required,url"`
	ExpiresInMinutes int    `json:"expires_in_minutes,omitempty" validate:"omitempty,min=1"`
}

// SubscriptionConfirmationData confirms a paid plan.
type SubscriptionConfirmationData struct {
	Name            string `json:"name" validate:"required"`
	PlanName        string `json:"plan_name" validate:"required"`
	Amount          string `json:"amount" validate:"required"`
	Currency        string `json:"currency,omitempty" validate:"omitempty,len=3"`
	NextBillingDate string `json:"next_billing_date,omitempty"`
}

// ListingExpiringData warns a seller that a listing is about to expire.
type ListingExpiringData struct {
	Name         string `json:"name" validate:"required"`
	ListingTitle string `json:"listing_title" validate:"required"`
	ExpiresAt    string `json:"expires_at" validate:"required"`
	RenewURL     string `json:"renew_url,omitempty" validate:"omitempty,url"`
	// ListingID identifies the reminder so a later approval can replace it.
	ListingID string `json:"listing_id,omitempty"`
}

// AdminNotificationData is a free-form message to administrators.
type AdminNotificationData struct {
	Subject   string `json:"subject" validate:"required,max=200"`
	Message   string `json:"message" validate:"required"`
	ActionURL string `json:"action_url,omitempty" validate:"omitempty,url"`
}

func (WelcomeData) Template() Template                  { return TemplateWelcome }
func (VerificationApprovedData) Template() Template     { return TemplateVerificationApproved }
func (VerificationRejectedData) Template() Template     { return TemplateVerificationRejected }
func (ListingApprovedData) Template() Template          { return TemplateListingApproved }
func (ListingRejectedData) Template() Template          { return TemplateListingRejected }
func (NewMessageData) Template() Template               { return TemplateNewMessage }
func (PasswordResetData) Template() Template            { return TemplatePasswordReset }
func (SubscriptionConfirmationData) Template() Template { return TemplateSubscriptionConfirmation }
func (ListingExpiringData) Template() Template          { return TemplateListingExpiring }
func (AdminNotificationData) Template() Template        { return TemplateAdminNotification }

var templateFactories = map[Template]func() TemplateData{
	TemplateWelcome:                  func() TemplateData { return &WelcomeData{} },
	TemplateVerificationApproved:     func() TemplateData { return &VerificationApprovedData{} },
	TemplateVerificationRejected:     func() TemplateData { return &VerificationRejectedData{} },
	TemplateListingApproved:          func() TemplateData { return &ListingApprovedData{} },
	TemplateListingRejected:          func() TemplateData { return &ListingRejectedData{} },
	TemplateNewMessage:               func() TemplateData { return &NewMessageData{} },
	TemplatePasswordReset:            func() TemplateData { return &PasswordResetData{} },
	TemplateSubscriptionConfirmation: func() TemplateData { return &SubscriptionConfirmationData{} },
	TemplateListingExpiring:          func() TemplateData { return &ListingExpiringData{} },
	TemplateAdminNotification:        func() TemplateData { return &AdminNotificationData{} },
}

// Templates returns all supported template names.
func Templates() []Template {
	return []Template{
		TemplateWelcome,
		TemplateVerificationApproved,
		TemplateVerificationRejected,
		TemplateListingApproved,
		TemplateListingRejected,
		TemplateNewMessage,
		TemplatePasswordReset,
		TemplateSubscriptionConfirmation,
		TemplateListingExpiring,
		TemplateAdminNotification,
	}
}

// IsValid checks if the template is one of the supported names.
func (t Template) IsValid() bool {
	_, ok := templateFactories[t]
	return ok
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeTemplateData decodes raw JSON into the data type of tmpl.
// Unknown keys and missing required keys are rejected.
func DecodeTemplateData(tmpl Template, raw []byte) (TemplateData, error) {
	factory, ok := templateFactories[tmpl]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrValidation, ErrUnknownTemplate, tmpl)
	}

	data := factory()
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(data); err != nil {
		return nil, fmt.Errorf("%w: template data for %s: %s", ErrValidation, tmpl, err)
	}

	if err := validateTemplateData(data); err != nil {
		return nil, err
	}

	// Stored and rendered by value.
	return reflect.ValueOf(data).Elem().Interface().(TemplateData), nil
}

// NewTemplateData builds typed data for tmpl from a loosely-typed map.
func NewTemplateData(tmpl Template, values map[string]any) (TemplateData, error) {
	if values == nil {
		values = map[string]any{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("%w: template data: %s", ErrValidation, err)
	}
	return DecodeTemplateData(tmpl, raw)
}

func validateTemplateData(data TemplateData) error {
	if data == nil {
		return fmt.Errorf("%w: template data is required", ErrValidation)
	}
	if err := validate.Struct(data); err != nil {
		return fmt.Errorf("%w: template data for %s: %s", ErrValidation, data.Template(), describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	parts := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
