package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"quizbattle-service/internal/domain"
)

// InviteStore persists invitations that could not be delivered live.
type InviteStore interface {
	Create(ctx context.Context, inv *domain.PendingInvite) error
	HasUnread(ctx context.Context, userID, battleID uuid.UUID, now time.Time) (bool, error)
	ListUnread(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.PendingInvite, error)
	MarkRead(ctx context.Context, ids []uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// InviteService queues invitations for offline users and flushes them when
// the user reconnects. Delivery is at-most-once effort: a flush failure after
// marking read drops the invite, which is acceptable.
type InviteService struct {
	invites  InviteStore
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time
}

func NewInviteService(invites InviteStore, notifier Notifier, ttl time.Duration) *InviteService {
	return &InviteService{invites: invites, notifier: notifier, ttl: ttl, now: time.Now}
}

// NewInviteServiceWithClock is test-only for deterministic expiries.
func NewInviteServiceWithClock(invites InviteStore, notifier Notifier, ttl time.Duration, now func() time.Time) *InviteService {
	s := NewInviteService(invites, notifier, ttl)
	s.now = now
	return s
}

// Queue stores an invitation for later delivery. Skipped when a valid unread
// invite for the same user and battle already exists.
func (s *InviteService) Queue(ctx context.Context, userID, battleID uuid.UUID, payload any) error {
	now := s.now()
	exists, err := s.invites.HasUnread(ctx, userID, battleID, now)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.invites.Create(ctx, &domain.PendingInvite{
		ID:        uuid.New(),
		UserID:    userID,
		BattleID:  battleID,
		Payload:   raw,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
}

// FlushOnConnect pushes every unread non-expired invite for the user through
// the notifier, marks the delivered ones read, and silently drops failures.
func (s *InviteService) FlushOnConnect(ctx context.Context, userID uuid.UUID) int {
	pending, err := s.invites.ListUnread(ctx, userID, s.now())
	if err != nil {
		log.Printf("list pending invites for %s: %v", userID, err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	var delivered []uuid.UUID
	for _, inv := range pending {
		if s.notifier.SendTo(userID, json.RawMessage(inv.Payload)) {
			delivered = append(delivered, inv.ID)
		}
	}
	if len(delivered) > 0 {
		if err := s.invites.MarkRead(ctx, delivered); err != nil {
			log.Printf("mark invites read for %s: %v", userID, err)
		}
	}
	return len(delivered)
}

// Pending lists the user's undelivered, unexpired invites.
func (s *InviteService) Pending(ctx context.Context, userID uuid.UUID) ([]domain.PendingInvite, error) {
	return s.invites.ListUnread(ctx, userID, s.now())
}

// Dismiss removes one of the user's invites.
func (s *InviteService) Dismiss(ctx context.Context, inviteID, userID uuid.UUID) error {
	return s.invites.Delete(ctx, inviteID, userID)
}

// SweepExpired deletes invites past their expiry.
func (s *InviteService) SweepExpired(ctx context.Context) (int, error) {
	return s.invites.DeleteExpired(ctx, s.now())
}
