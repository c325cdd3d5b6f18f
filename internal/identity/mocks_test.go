package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/motorlot/marketplace/internal/domain"
)

type mockRepository struct {
	mu        sync.Mutex
	profiles  map[string]*domain.Profile
	upsertErr error
	getErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{profiles: make(map[string]*domain.Profile)}
}

func (m *mockRepository) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *mockRepository) ListProfilesByRole(_ context.Context, role domain.Role) ([]*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Profile
	for _, p := range m.profiles {
		if p.Role == role {
			clone := *p
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *mockRepository) UpsertProfile(_ context.Context, profile *domain.Profile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	if existing, ok := m.profiles[profile.ID]; ok {
		existing.Email = profile.Email
		existing.FullName = profile.FullName
		profile.Role = existing.Role
		return false, nil
	}
	clone := *profile
	m.profiles[profile.ID] = &clone
	return true, nil
}

type sentReset struct {
	email    string
	name     string
	url      string
	validFor time.Duration
}

type mockNotifier struct {
	mu       sync.Mutex
	welcomed []*domain.Profile
	resets   []sentReset
	resetErr error
}

func (m *mockNotifier) PasswordReset(_ context.Context, email, name, resetURL string, validFor time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resets = append(m.resets, sentReset{email: email, name: name, url: resetURL, validFor: validFor})
	return nil
}

func (m *mockNotifier) Welcome(_ context.Context, profile *domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomed = append(m.welcomed, profile)
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.welcomed)
}

var errDatabase = errors.New("database unavailable")
