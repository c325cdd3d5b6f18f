package emailqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
)

// Enqueuer stores typed emails for later delivery.
type Enqueuer interface {
	EnqueueData(ctx context.Context, recipient string, data TemplateData, scheduledFor *time.Time) (*Entry, error)
	CancelPending(ctx context.Context, template Template, key, value string) (int64, error)
}

// ProfileLookup resolves recipients.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	ListProfilesByRole(ctx context.Context, role domain.Role) ([]*domain.Profile, error)
}

// NotifierConfig contains notifier configuration.
type NotifierConfig struct {
	BaseURL         string
	DispatchTimeout time.Duration
}

// Notifier builds template data from domain entities and queues emails.
// Except for PasswordReset, every method is a best-effort side effect: it
// returns immediately and failures are only logged.
type Notifier struct {
	queue    Enqueuer
	renderer *Renderer
	sender   Sender
	profiles ProfileLookup
	baseURL  string
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewNotifier creates a new Notifier.
func NewNotifier(queue Enqueuer, renderer *Renderer, sender Sender, profiles ProfileLookup, config NotifierConfig) *Notifier {
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = 10 * time.Second
	}
	return &Notifier{
		queue:    queue,
		renderer: renderer,
		sender:   sender,
		profiles: profiles,
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		timeout:  config.DispatchTimeout,
	}
}

// Welcome greets a newly registered user.
func (n *Notifier) Welcome(ctx context.Context, profile *domain.Profile) {
	n.enqueue(ctx, profile.Email, WelcomeData{
		Name:         profile.DisplayName(),
		DashboardURL: n.url("/dashboard"),
	})
}

// VerificationDecision informs a seller about the outcome of a verification review.
// note is shown as reviewer notes on approval and as the reason on rejection.
func (n *Notifier) VerificationDecision(ctx context.Context, profile *domain.Profile, approved bool, note string) {
	if approved {
		n.enqueue(ctx, profile.Email, VerificationApprovedData{
			Name:  profile.DisplayName(),
			Notes: note,
		})
		return
	}
	n.enqueue(ctx, profile.Email, VerificationRejectedData{
		Name:   profile.DisplayName(),
		Reason: note,
	})
}

// ListingDecision informs a seller about the outcome of a listing review.
func (n *Notifier) ListingDecision(ctx context.Context, owner *domain.Profile, vehicle *domain.Vehicle, approved bool, reason string) {
	if approved {
		n.enqueue(ctx, owner.Email, ListingApprovedData{
			Name:         owner.DisplayName(),
			ListingTitle: vehicle.Title,
			ListingURL:   n.url("/vehicles/" + vehicle.ID),
		})
		return
	}
	n.enqueue(ctx, owner.Email, ListingRejectedData{
		Name:         owner.DisplayName(),
		ListingTitle: vehicle.Title,
		Reason:       reason,
	})
}

// NewMessage alerts the recipient of msg. The recipient is looked up by id.
func (n *Notifier) NewMessage(ctx context.Context, msg *domain.Message, sender *domain.Profile, listingTitle string) {
	n.dispatch(ctx, TemplateNewMessage, func(ctx context.Context) error {
		recipient, err := n.profiles.GetProfile(ctx, msg.RecipientID)
		if err != nil {
			return fmt.Errorf("lookup recipient %s: %w", msg.RecipientID, err)
		}

		data := NewMessageData{
			Name:            recipient.DisplayName(),
			SenderName:      sender.DisplayName(),
			ListingTitle:    listingTitle,
			MessagePreview:  preview(msg.Body, 200),
			ConversationURL: n.url("/messages?vehicle=" + msg.VehicleID),
		}
		_, err = n.queue.EnqueueData(ctx, recipient.Email, data, nil)
		return err
	})
}

// SubscriptionConfirmed confirms a paid plan. nextBilling may be nil.
func (n *Notifier) SubscriptionConfirmed(ctx context.Context, profile *domain.Profile, plan, amount, currency string, nextBilling *time.Time) {
	data := SubscriptionConfirmationData{
		Name:     profile.DisplayName(),
		PlanName: plan,
		Amount:   amount,
		Currency: strings.ToUpper(currency),
	}
	if nextBilling != nil {
		data.NextBillingDate = nextBilling.Format("January 2, 2006")
	}
	n.enqueue(ctx, profile.Email, data)
}

// ListingExpiring warns a seller ahead of a listing's expiry. The email is
// scheduled for sendAt; a zero sendAt sends it on the next sweep.
func (n *Notifier) ListingExpiring(ctx context.Context, owner *domain.Profile, vehicle *domain.Vehicle, expiresAt, sendAt time.Time) {
	data := ListingExpiringData{
		Name:         owner.DisplayName(),
		ListingTitle: vehicle.Title,
		ExpiresAt:    expiresAt.Format("January 2, 2006"),
		RenewURL:     n.url("/vehicles/" + vehicle.ID + "/renew"),
		ListingID:    vehicle.ID,
	}
	n.dispatch(ctx, data.Template(), func(ctx context.Context) error {
		// A re-approval moves the expiry, so the earlier reminder is stale.
		if _, err := n.queue.CancelPending(ctx, data.Template(), "listing_id", vehicle.ID); err != nil {
			return err
		}
		var scheduledFor *time.Time
		if !sendAt.IsZero() {
			scheduledFor = &sendAt
		}
		_, err := n.queue.EnqueueData(ctx, owner.Email, data, scheduledFor)
		return err
	})
}

// NotifyAdmins queues an admin-notification email for every administrator.
func (n *Notifier) NotifyAdmins(ctx context.Context, subject, message, actionPath string) {
	data := AdminNotificationData{
		Subject: subject,
		Message: message,
	}
	if actionPath != "" {
		data.ActionURL = n.url(actionPath)
	}

	n.dispatch(ctx, data.Template(), func(ctx context.Context) error {
		admins, err := n.profiles.ListProfilesByRole(ctx, domain.RoleAdmin)
		if err != nil {
			return fmt.Errorf("list admins: %w", err)
		}

		var errs []error
		for _, admin := range admins {
			if _, err := n.queue.EnqueueData(ctx, admin.Email, data, nil); err != nil {
				errs = append(errs, fmt.Errorf("admin %s: %w", admin.ID, err))
			}
		}
		return errors.Join(errs...)
	})
}

// PasswordReset renders and sends a reset link synchronously. Unlike the
// other notifications the caller needs to know whether the link went out.
func (n *Notifier) PasswordReset(ctx context.Context, email, name, resetURL string, validFor time.Duration) error {
	data := PasswordResetData{
		Name:             name,
		ResetURL:         resetURL,
		ExpiresInMinutes: int(validFor / time.Minute),
	}
	if err := validateTemplateData(data); err != nil {
		return err
	}

	content, err := n.renderer.Render(data)
	if err != nil {
		return fmt.Errorf("render password reset: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if _, err := n.sender.Send(sendCtx, Message{
		To:      email,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	}); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

// Wait blocks until all in-flight dispatches have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) enqueue(ctx context.Context, recipient string, data TemplateData) {
	n.dispatch(ctx, data.Template(), func(ctx context.Context) error {
		_, err := n.queue.EnqueueData(ctx, recipient, data, nil)
		return err
	})
}

// dispatch runs fn in a detached goroutine. The caller's cancellation does not
// abort it, but the caller's logger is kept.
func (n *Notifier) dispatch(ctx context.Context, tmpl Template, fn func(ctx context.Context) error) {
	detached := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(detached, n.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			recordDropped(tmpl)
			ctxlog.FromContext(ctx).Error("notification not queued",
				"template", tmpl,
				"error", err,
			)
		}
	}()
}

func (n *Notifier) url(path string) string {
	if n.baseURL == "" {
		return ""
	}
	return n.baseURL + path
}

func preview(body string, limit int) string {
	body = strings.Join(strings.Fields(body), " ")
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit-1]) + "…"
}
