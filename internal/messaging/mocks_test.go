package messaging

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/motorlot/marketplace/internal/domain"
)

var errDatabase = errors.New("database unavailable")

type mockRepository struct {
	mu        sync.Mutex
	vehicles  map[string]*domain.Vehicle
	messages  map[string]*domain.Message
	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		vehicles: make(map[string]*domain.Vehicle),
		messages: make(map[string]*domain.Message),
	}
}

func (m *mockRepository) GetVehicle(_ context.Context, id string) (*domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	clone := *v
	return &clone, nil
}

func (m *mockRepository) CreateMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	clone := *msg
	m.messages[msg.ID] = &clone
	return nil
}

func (m *mockRepository) ListInbox(_ context.Context, userID string, limit, offset int) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*domain.Message, 0)
	for _, msg := range m.messages {
		if msg.RecipientID == userID {
			clone := *msg
			list = append(list, &clone)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if offset >= len(list) {
		return []*domain.Message{}, nil
	}
	list = list[offset:]
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *mockRepository) MarkRead(_ context.Context, id, userID string, at time.Time) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok || msg.RecipientID != userID {
		return nil, ErrMessageNotFound
	}
	if msg.ReadAt == nil {
		msg.ReadAt = &at
	}
	clone := *msg
	return &clone, nil
}

type stubProfiles map[string]*domain.Profile

func (s stubProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	p, ok := s[id]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return p, nil
}

type notification struct {
	msg          *domain.Message
	senderName   string
	listingTitle string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NewMessage(_ context.Context, msg *domain.Message, sender *domain.Profile, listingTitle string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{msg: msg, senderName: sender.DisplayName(), listingTitle: listingTitle})
}
