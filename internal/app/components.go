package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/marketplace/internal/config"
	"github.com/motorlot/marketplace/internal/emailqueue"
	"github.com/motorlot/marketplace/internal/emailqueue/email"
	emailqueuepostgres "github.com/motorlot/marketplace/internal/emailqueue/postgres"
	"github.com/motorlot/marketplace/internal/pkg/postgres"
)

// Queue bundles the email queue components shared by the server and the
// one-shot commands.
type Queue struct {
	Manager  *emailqueue.Manager
	Renderer *emailqueue.Renderer
	Sender   emailqueue.Sender
}

// NewQueue builds the email queue on top of db.
func NewQueue(cfg *config.Config, db *pgxpool.Pool) (*Queue, error) {
	renderer, err := emailqueue.NewRenderer(emailqueue.AppInfo{
		Name:         cfg.App.Name,
		BaseURL:      cfg.App.BaseURL,
		SupportEmail: cfg.App.SupportEmail,
	})
	if err != nil {
		return nil, fmt.Errorf("create email renderer: %w", err)
	}

	sender, err := email.NewSender(email.Config{
		Enabled:            cfg.Email.Enabled,
		SMTPHost:           cfg.Email.SMTPHost,
		SMTPPort:           cfg.Email.SMTPPort,
		SMTPUser:           cfg.Email.SMTPUser,
		SMTPPassword:       cfg.Email.SMTPPassword,
		FromAddress:        cfg.Email.FromAddress,
		FromName:           cfg.Email.FromName,
		RateLimit:          cfg.Email.RateLimit,
		InsecureSkipVerify: cfg.Email.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	if !cfg.Email.Enabled {
		slog.Warn("email sender is disabled: queued emails will be marked sent without delivery")
	}

	manager := emailqueue.NewManager(
		emailqueuepostgres.NewRepository(db),
		renderer,
		sender,
		emailqueue.ManagerConfig{
			BatchSize:   cfg.Queue.BatchSize,
			SendTimeout: cfg.Queue.SendTimeout,
		},
	)

	return &Queue{Manager: manager, Renderer: renderer, Sender: sender}, nil
}

// Connect opens the database pool described by cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// NewLogger creates the process logger.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
