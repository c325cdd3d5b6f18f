package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/internal/domain"
)

const testUserID = "5b0e7c55-8f0a-4d59-9b9c-3c8e1f2a7d10"

func createdEvent() Event {
	return Event{
		Type: EventUserCreated,
		User: EventUser{ID: testUserID, Email: "jane@example.com", FullName: "Jane Doe"},
	}
}

func TestHandleEvent_CreatedSendsWelcome(t *testing.T) {
	// Arrange
	repo := newMockRepository()
	notifier := &mockNotifier{}
	service := NewService(repo, notifier)

	// Act
	profile, err := service.HandleEvent(context.Background(), createdEvent())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, testUserID, profile.ID)
	assert.Equal(t, domain.RoleUser, profile.Role)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "jane@example.com", notifier.welcomed[0].Email)
}

func TestHandleEvent_RedeliveryDoesNotWelcomeTwice(t *testing.T) {
	repo := newMockRepository()
	notifier := &mockNotifier{}
	service := NewService(repo, notifier)

	_, err := service.HandleEvent(context.Background(), createdEvent())
	require.NoError(t, err)
	_, err = service.HandleEvent(context.Background(), createdEvent())
	require.NoError(t, err)

	assert.Equal(t, 1, notifier.count())
}

func TestHandleEvent_UpdateKeepsRole(t *testing.T) {
	repo := newMockRepository()
	repo.profiles[testUserID] = &domain.Profile{ID: testUserID, Email: "old@example.com", Role: domain.RoleAdmin}
	notifier := &mockNotifier{}
	service := NewService(repo, notifier)

	event := createdEvent()
	event.Type = EventUserUpdated
	profile, err := service.HandleEvent(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, profile.Role)
	assert.Equal(t, "jane@example.com", repo.profiles[testUserID].Email)
	assert.Zero(t, notifier.count())
}

func TestHandleEvent_UpdateOfUnknownUserDoesNotWelcome(t *testing.T) {
	notifier := &mockNotifier{}
	service := NewService(newMockRepository(), notifier)

	event := createdEvent()
	event.Type = EventUserUpdated
	_, err := service.HandleEvent(context.Background(), event)

	require.NoError(t, err)
	assert.Zero(t, notifier.count())
}

func TestHandleEvent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr error
	}{
		{
			name:    "unsupported type",
			mutate:  func(e *Event) { e.Type = "user.deleted" },
			wantErr: ErrUnsupportedEvent,
		},
		{
			name:    "missing type",
			mutate:  func(e *Event) { e.Type = "" },
			wantErr: ErrValidation,
		},
		{
			name:    "invalid email",
			mutate:  func(e *Event) { e.User.Email = "not-an-email" },
			wantErr: ErrValidation,
		},
		{
			name:    "blank email",
			mutate:  func(e *Event) { e.User.Email = "   " },
			wantErr: ErrValidation,
		},
		{
			name:    "invalid id",
			mutate:  func(e *Event) { e.User.ID = "42" },
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			notifier := &mockNotifier{}
			service := NewService(repo, notifier)

			event := createdEvent()
			tt.mutate(&event)
			_, err := service.HandleEvent(context.Background(), event)

			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.profiles)
			assert.Zero(t, notifier.count())
		})
	}
}

func TestHandleEvent_StoreFailure(t *testing.T) {
	repo := newMockRepository()
	repo.upsertErr = errDatabase
	notifier := &mockNotifier{}
	service := NewService(repo, notifier)

	_, err := service.HandleEvent(context.Background(), createdEvent())

	require.ErrorIs(t, err, errDatabase)
	assert.Zero(t, notifier.count())
}

func TestHandleEvent_PasswordReset(t *testing.T) {
	repo := newMockRepository()
	repo.profiles[testUserID] = &domain.Profile{ID: testUserID, Email: "jane@example.com", FullName: "Jane Doe", Role: domain.RoleUser}
	notifier := &mockNotifier{}
	service := NewService(repo, notifier)

	event := createdEvent()
	event.Type = EventPasswordReset
	event.Reset = &ResetRequest{URL: "https://auth.example.com/reset?token=abc", ExpiresInMinutes: 30}

	profile, err := service.HandleEvent(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, testUserID, profile.ID)
	require.Len(t, notifier.resets, 1)
	assert.Equal(t, "jane@example.com", notifier.resets[0].email)
	assert.Equal(t, "Jane Doe", notifier.resets[0].name)
	assert.Equal(t, 30*time.Minute, notifier.resets[0].validFor)
	assert.Zero(t, notifier.count())
}

func TestHandleEvent_PasswordResetDefaultsValidity(t *testing.T) {
	repo := newMockRepository()
	repo.profiles[testUserID] = &domain.Profile{ID: testUserID, Email: "jane@example.com", Role: domain.RoleUser}
	notifier := &mockNotifier{}
	service := NewService(repo, notifier)

	event := createdEvent()
	event.Type = EventPasswordReset
	event.Reset = &ResetRequest{URL: "https://auth.example.com/reset"}

	_, err := service.HandleEvent(context.Background(), event)

	require.NoError(t, err)
	require.Len(t, notifier.resets, 1)
	assert.Equal(t, time.Hour, notifier.resets[0].validFor)
}

func TestHandleEvent_PasswordResetErrors(t *testing.T) {
	tests := []struct {
		name    string
		reset   *ResetRequest
		known   bool
		sendErr error
		wantErr error
	}{
		{name: "missing reset", known: true, wantErr: ErrValidation},
		{name: "invalid url", reset: &ResetRequest{URL: "not a url"}, known: true, wantErr: ErrValidation},
		{name: "unknown user", reset: &ResetRequest{URL: "https://auth.example.com/reset"}, wantErr: ErrProfileNotFound},
		{
			name:    "delivery failure",
			reset:   &ResetRequest{URL: "https://auth.example.com/reset"},
			known:   true,
			sendErr: errors.New("smtp: connection refused"),
			wantErr: ErrDeliveryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			if tt.known {
				repo.profiles[testUserID] = &domain.Profile{ID: testUserID, Email: "jane@example.com", Role: domain.RoleUser}
			}
			notifier := &mockNotifier{resetErr: tt.sendErr}
			service := NewService(repo, notifier)

			event := createdEvent()
			event.Type = EventPasswordReset
			event.Reset = tt.reset

			_, err := service.HandleEvent(context.Background(), event)

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
