package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"quizbattle-service/internal/domain"
)

// BattleStore persists battles and answer responses with bun.
type BattleStore struct {
	db *bun.DB
}

func NewBattleStore(db *bun.DB) *BattleStore {
	return &BattleStore{db: db}
}

func (s *BattleStore) Create(ctx context.Context, b *domain.Battle) error {
	if _, err := s.db.NewInsert().Model(b).Exec(ctx); err != nil {
		return fmt.Errorf("insert battle: %w", err)
	}
	return nil
}

func (s *BattleStore) Get(ctx context.Context, id uuid.UUID) (*domain.Battle, error) {
	battle := new(domain.Battle)
	err := s.db.NewSelect().Model(battle).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select battle: %w", err)
	}
	return battle, nil
}

func (s *BattleStore) PendingByRoomCode(ctx context.Context, code string) (*domain.Battle, error) {
	battle := new(domain.Battle)
	err := s.db.NewSelect().Model(battle).
		Where("room_code = ?", code).
		Where("status = ?", domain.BattlePending).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select battle by code: %w", err)
	}
	return battle, nil
}

func (s *BattleStore) RoomCodeInUse(ctx context.Context, code string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*domain.Battle)(nil)).
		Where("room_code = ?", code).
		Where("status IN (?)", bun.In([]domain.BattleStatus{domain.BattlePending, domain.BattleActive})).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check room code: %w", err)
	}
	return exists, nil
}

func (s *BattleStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Battle, error) {
	var battles []domain.Battle
	err := s.db.NewSelect().Model(&battles).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("challenger_id = ?", userID).WhereOr("opponent_id = ?", userID)
		}).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list battles: %w", err)
	}
	return battles, nil
}

// UpdateFromPending writes the pending -> active/declined/cancelled
// transition with a status guard, so two users racing to join the same
// battle cannot both land as opponent: the second update matches zero rows.
func (s *BattleStore) UpdateFromPending(ctx context.Context, b *domain.Battle) error {
	res, err := s.db.NewUpdate().Model(b).
		Column("status", "opponent_id", "started_at").
		WherePK().
		Where("status = ?", domain.BattlePending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update pending battle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// InsertAnswer writes the response row and bumps the submitter's running
// score in a single transaction. The unique (battle, question, user) index
// serializes racing duplicates: exactly one insert wins.
func (s *BattleStore) InsertAnswer(ctx context.Context, resp *domain.AnswerResponse, challenger bool) error {
	scoreColumn := "opponent_score"
	if challenger {
		scoreColumn = "challenger_score"
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(resp).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyAnswered
			}
			return fmt.Errorf("insert answer: %w", err)
		}
		res, err := tx.NewUpdate().Model((*domain.Battle)(nil)).
			Set(scoreColumn+" = "+scoreColumn+" + ?", resp.PointsEarned).
			Where("id = ?", resp.BattleID).
			Where("status = ?", domain.BattleActive).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("bump score: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrInvalidState
		}
		return nil
	})
	return err
}

func (s *BattleStore) CountAnswers(ctx context.Context, battleID, userID uuid.UUID) (int, error) {
	count, err := s.db.NewSelect().Model((*domain.AnswerResponse)(nil)).
		Where("battle_id = ?", battleID).
		Where("user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count answers: %w", err)
	}
	return count, nil
}

func (s *BattleStore) ListAnswers(ctx context.Context, battleID, userID uuid.UUID) ([]domain.AnswerResponse, error) {
	var answers []domain.AnswerResponse
	err := s.db.NewSelect().Model(&answers).
		Where("battle_id = ?", battleID).
		Where("user_id = ?", userID).
		Order("answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

// Complete performs the active -> completed transition and updates win/loss
// tallies in one transaction. The status guard makes it idempotent: a battle
// already completed (or swept concurrently) reports false with no changes.
func (s *BattleStore) Complete(ctx context.Context, b *domain.Battle) (bool, error) {
	transitioned := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*domain.Battle)(nil)).
			Set("status = ?", domain.BattleCompleted).
			Set("completed_at = ?", b.CompletedAt).
			Set("winner_id = ?", b.WinnerID).
			Set("is_draw = ?", b.IsDraw).
			Where("id = ?", b.ID).
			Where("status = ?", domain.BattleActive).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete battle: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		transitioned = true

		if b.WinnerID != nil && b.OpponentID != nil {
			loserID := b.ChallengerID
			if *b.WinnerID == b.ChallengerID {
				loserID = *b.OpponentID
			}
			if _, err := tx.NewUpdate().Model((*domain.User)(nil)).
				Set("battles_won = battles_won + 1").
				Where("id = ?", b.WinnerID).
				Exec(ctx); err != nil {
				return fmt.Errorf("bump winner tally: %w", err)
			}
			if _, err := tx.NewUpdate().Model((*domain.User)(nil)).
				Set("battles_lost = battles_lost + 1").
				Where("id = ?", loserID).
				Exec(ctx); err != nil {
				return fmt.Errorf("bump loser tally: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

func (s *BattleStore) ListOverdueActive(ctx context.Context, now time.Time, grace time.Duration) ([]domain.Battle, error) {
	var battles []domain.Battle
	err := s.db.NewSelect().Model(&battles).
		Where("status = ?", domain.BattleActive).
		Where("started_at IS NOT NULL").
		Where("started_at + make_interval(secs => time_limit_seconds * total_questions) < ?", now.Add(-grace)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list overdue battles: %w", err)
	}
	return battles, nil
}
