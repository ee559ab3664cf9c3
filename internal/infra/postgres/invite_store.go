package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"quizbattle-service/internal/domain"
)

// InviteStore persists queued invitations with bun.
type InviteStore struct {
	db *bun.DB
}

func NewInviteStore(db *bun.DB) *InviteStore {
	return &InviteStore{db: db}
}

func (s *InviteStore) Create(ctx context.Context, inv *domain.PendingInvite) error {
	if _, err := s.db.NewInsert().Model(inv).Exec(ctx); err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *InviteStore) HasUnread(ctx context.Context, userID, battleID uuid.UUID, now time.Time) (bool, error) {
	exists, err := s.db.NewSelect().Model((*domain.PendingInvite)(nil)).
		Where("user_id = ?", userID).
		Where("battle_id = ?", battleID).
		Where("is_read = FALSE").
		Where("expires_at > ?", now).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check invite: %w", err)
	}
	return exists, nil
}

func (s *InviteStore) ListUnread(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.PendingInvite, error) {
	var invites []domain.PendingInvite
	err := s.db.NewSelect().Model(&invites).
		Where("user_id = ?", userID).
		Where("is_read = FALSE").
		Where("expires_at > ?", now).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}

func (s *InviteStore) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewUpdate().Model((*domain.PendingInvite)(nil)).
		Set("is_read = TRUE").
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark invites read: %w", err)
	}
	return nil
}

func (s *InviteStore) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res, err := s.db.NewDelete().Model((*domain.PendingInvite)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInviteNotFound
	}
	return nil
}

func (s *InviteStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().Model((*domain.PendingInvite)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired invites: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
