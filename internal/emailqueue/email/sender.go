// Package email delivers rendered queue entries over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/motorlot/marketplace/internal/emailqueue"
)

// Config holds email sender configuration.
type Config struct {
	Enabled            bool
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPassword       string
	FromAddress        string
	FromName           string
	RateLimit          float64 // messages per second
	InsecureSkipVerify bool
}

// Sender implements emailqueue.Sender over SMTP.
type Sender struct {
	config  Config
	dialer  *gomail.Dialer
	limiter *rate.Limiter
	domain  string
}

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	// Set defaults
	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}

	dialer := gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.SMTPUser, config.SMTPPassword)
	dialer.TLSConfig = &tls.Config{
		ServerName:         config.SMTPHost,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.InsecureSkipVerify, //nolint:gosec // opt-in for local relays
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:  config,
		dialer:  dialer,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		domain:  addressDomain(extractEmail(config.FromAddress)),
	}, nil
}

// Send delivers one message and returns its Message-ID.
// The SMTP exchange is abandoned when ctx is done.
func (s *Sender) Send(ctx context.Context, msg emailqueue.Message) (string, error) {
	messageID := s.newMessageID()

	if !s.config.Enabled {
		slog.Warn("email sender disabled, skipping send", "message_id", messageID)
		return messageID, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	m := s.buildMessage(msg, messageID)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", classify(fmt.Errorf("smtp send: %w", err))
		}
		return messageID, nil
	case <-ctx.Done():
		return "", classify(fmt.Errorf("smtp send: %w", ctx.Err()))
	}
}

// classify marks temporary failures so the queue can label them.
func classify(err error) error {
	if IsRetryable(err) {
		return fmt.Errorf("%w: %w", emailqueue.ErrTemporaryFailure, err)
	}
	return err
}

// buildMessage constructs a multipart/alternative message with text and HTML parts.
func (s *Sender) buildMessage(msg emailqueue.Message, messageID string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", extractEmail(s.config.FromAddress), s.fromName())
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetDateHeader("Date", time.Now())

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}

	return m
}

func (s *Sender) fromName() string {
	if s.config.FromName != "" {
		return s.config.FromName
	}
	if idx := strings.Index(s.config.FromAddress, "<"); idx > 0 {
		return strings.TrimSpace(s.config.FromAddress[:idx])
	}
	return ""
}

func (s *Sender) newMessageID() string {
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain)
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

func addressDomain(address string) string {
	if idx := strings.LastIndex(address, "@"); idx != -1 && idx < len(address)-1 {
		return address[idx+1:]
	}
	return "localhost"
}

// IsRetryable determines if an error is a temporary delivery failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Network timeout errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection refused is retryable
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	errStr := err.Error()

	// SMTP 4xx codes are temporary failures (retryable)
	if strings.Contains(errStr, "421") || // Service not available
		strings.Contains(errStr, "450") || // Mailbox unavailable
		strings.Contains(errStr, "451") || // Local error
		strings.Contains(errStr, "452") { // Insufficient storage
		return true
	}

	// 552 - Mailbox full is sometimes retryable
	return strings.Contains(errStr, "552")
}
