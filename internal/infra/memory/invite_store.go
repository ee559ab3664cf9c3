package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizbattle-service/internal/domain"
)

// InviteStore is an in-memory InviteStore used in unit tests.
type InviteStore struct {
	mu      sync.Mutex
	invites map[uuid.UUID]*domain.PendingInvite
}

func NewInviteStore() *InviteStore {
	return &InviteStore{invites: make(map[uuid.UUID]*domain.PendingInvite)}
}

func (s *InviteStore) Create(_ context.Context, inv *domain.PendingInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.invites[inv.ID] = &cp
	return nil
}

func (s *InviteStore) HasUnread(_ context.Context, userID, battleID uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invites {
		if inv.UserID == userID && inv.BattleID == battleID && !inv.IsRead && !inv.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InviteStore) ListUnread(_ context.Context, userID uuid.UUID, now time.Time) ([]domain.PendingInvite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PendingInvite
	for _, inv := range s.invites {
		if inv.UserID == userID && !inv.IsRead && !inv.Expired(now) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s *InviteStore) MarkRead(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if inv, ok := s.invites[id]; ok {
			inv.IsRead = true
		}
	}
	return nil
}

func (s *InviteStore) Delete(_ context.Context, id, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok || inv.UserID != userID {
		return domain.ErrInviteNotFound
	}
	delete(s.invites, id)
	return nil
}

func (s *InviteStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, inv := range s.invites {
		if inv.Expired(now) {
			delete(s.invites, id)
			deleted++
		}
	}
	return deleted, nil
}
