package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizbattle-service/internal/domain"
)

// BattleStore is an in-memory BattleStore used in unit tests. It reproduces
// the storage-layer guarantees the service relies on: the unique answer
// triple and the status guards on the pending and completion transitions.
type BattleStore struct {
	mu      sync.Mutex
	battles map[uuid.UUID]*domain.Battle
	answers []domain.AnswerResponse
	users   *UserStore
}

// NewBattleStore builds an empty store. users may be nil when win/loss
// tallies are not under test.
func NewBattleStore(users *UserStore) *BattleStore {
	return &BattleStore{
		battles: make(map[uuid.UUID]*domain.Battle),
		users:   users,
	}
}

func (s *BattleStore) Create(_ context.Context, b *domain.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.battles[b.ID] = &cp
	return nil
}

func (s *BattleStore) Get(_ context.Context, id uuid.UUID) (*domain.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[id]
	if !ok {
		return nil, domain.ErrBattleNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *BattleStore) PendingByRoomCode(_ context.Context, code string) (*domain.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.battles {
		if b.RoomCode != nil && *b.RoomCode == code && b.Status == domain.BattlePending {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrBattleNotFound
}

func (s *BattleStore) RoomCodeInUse(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.battles {
		if b.RoomCode != nil && *b.RoomCode == code && !b.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *BattleStore) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Battle
	for _, b := range s.battles {
		if b.IsParticipant(userID) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateFromPending mirrors the SQL store's status-guarded transition: the
// write only lands while the stored battle is still pending.
func (s *BattleStore) UpdateFromPending(_ context.Context, b *domain.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.battles[b.ID]
	if !ok {
		return domain.ErrBattleNotFound
	}
	if stored.Status != domain.BattlePending {
		return domain.ErrInvalidState
	}
	stored.Status = b.Status
	stored.OpponentID = b.OpponentID
	stored.StartedAt = b.StartedAt
	return nil
}

func (s *BattleStore) InsertAnswer(_ context.Context, resp *domain.AnswerResponse, challenger bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.answers {
		if a.BattleID == resp.BattleID && a.QuestionID == resp.QuestionID && a.UserID == resp.UserID {
			return domain.ErrAlreadyAnswered
		}
	}
	b, ok := s.battles[resp.BattleID]
	if !ok || b.Status != domain.BattleActive {
		return domain.ErrInvalidState
	}
	s.answers = append(s.answers, *resp)
	if challenger {
		b.ChallengerScore += resp.PointsEarned
	} else {
		b.OpponentScore += resp.PointsEarned
	}
	return nil
}

func (s *BattleStore) CountAnswers(_ context.Context, battleID, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.answers {
		if a.BattleID == battleID && a.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *BattleStore) ListAnswers(_ context.Context, battleID, userID uuid.UUID) ([]domain.AnswerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AnswerResponse
	for _, a := range s.answers {
		if a.BattleID == battleID && a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, nil
}

func (s *BattleStore) Complete(_ context.Context, b *domain.Battle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.battles[b.ID]
	if !ok {
		return false, domain.ErrBattleNotFound
	}
	if stored.Status != domain.BattleActive {
		return false, nil
	}
	stored.Status = domain.BattleCompleted
	stored.CompletedAt = b.CompletedAt
	stored.WinnerID = b.WinnerID
	stored.IsDraw = b.IsDraw
	if s.users != nil && b.WinnerID != nil && stored.OpponentID != nil {
		loserID := stored.ChallengerID
		if *b.WinnerID == stored.ChallengerID {
			loserID = *stored.OpponentID
		}
		s.users.recordResult(*b.WinnerID, loserID)
	}
	return true, nil
}

func (s *BattleStore) ListOverdueActive(_ context.Context, now time.Time, grace time.Duration) ([]domain.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Battle
	for _, b := range s.battles {
		if b.Status != domain.BattleActive {
			continue
		}
		if deadline := b.Deadline(grace); !deadline.IsZero() && now.After(deadline) {
			out = append(out, *b)
		}
	}
	return out, nil
}
