package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizbattle-service/internal/domain"
)

// BattleStore abstracts battle and answer persistence. Mutating methods are
// atomic units: on error nothing is persisted.
type BattleStore interface {
	Create(ctx context.Context, b *domain.Battle) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Battle, error)
	PendingByRoomCode(ctx context.Context, code string) (*domain.Battle, error)
	RoomCodeInUse(ctx context.Context, code string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Battle, error)
	// UpdateFromPending applies b's status, opponent and start time only while
	// the stored battle is still pending; otherwise it fails with
	// domain.ErrInvalidState. Concurrent accept/decline attempts therefore
	// resolve to exactly one winner.
	UpdateFromPending(ctx context.Context, b *domain.Battle) error
	// InsertAnswer persists the response and increments the submitter's
	// running score in one transaction. A duplicate (battle, question, user)
	// triple fails with domain.ErrAlreadyAnswered and changes nothing.
	InsertAnswer(ctx context.Context, resp *domain.AnswerResponse, challenger bool) error
	CountAnswers(ctx context.Context, battleID, userID uuid.UUID) (int, error)
	ListAnswers(ctx context.Context, battleID, userID uuid.UUID) ([]domain.AnswerResponse, error)
	// Complete transitions an active battle to completed, stamping the
	// completion time, winner and draw flag, and updating the participants'
	// win/loss tallies. Returns false without changes when the battle is no
	// longer active, which makes re-running completion detection a no-op.
	Complete(ctx context.Context, b *domain.Battle) (bool, error)
	ListOverdueActive(ctx context.Context, now time.Time, grace time.Duration) ([]domain.Battle, error)
}

// UserStore resolves user identities.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// FolderStore reads externally managed question-bank metadata.
type FolderStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Folder, error)
	List(ctx context.Context) ([]domain.Folder, error)
}

// QuestionBank loads a folder's questions (from cache/backing store).
type QuestionBank interface {
	GetBank(ctx context.Context, folderID uuid.UUID) ([]domain.Question, error)
}

// Notifier is the live push channel to connected users. All sends are
// best-effort; the notifier never queues for offline users.
type Notifier interface {
	IsConnected(userID uuid.UUID) bool
	SendTo(userID uuid.UUID, msg any) bool
	Broadcast(msg any, exclude uuid.UUID) int
	SendToSet(userIDs []uuid.UUID, msg any) int
}

// BattleService owns the battle lifecycle state machine. The persistent store
// is the single source of truth; the notifier is a volatile view of who is
// reachable right now.
type BattleService struct {
	battles  BattleStore
	users    UserStore
	folders  FolderStore
	bank     QuestionBank
	notifier Notifier
	invites  *InviteService

	deadlineGrace time.Duration
	now           func() time.Time
}

func NewBattleService(battles BattleStore, users UserStore, folders FolderStore, bank QuestionBank, notifier Notifier, invites *InviteService, deadlineGrace time.Duration) *BattleService {
	return &BattleService{
		battles:       battles,
		users:         users,
		folders:       folders,
		bank:          bank,
		notifier:      notifier,
		invites:       invites,
		deadlineGrace: deadlineGrace,
		now:           time.Now,
	}
}

// NewBattleServiceWithClock is test-only for deterministic timestamps.
func NewBattleServiceWithClock(battles BattleStore, users UserStore, folders FolderStore, bank QuestionBank, notifier Notifier, invites *InviteService, deadlineGrace time.Duration, now func() time.Time) *BattleService {
	s := NewBattleService(battles, users, folders, bank, notifier, invites, deadlineGrace)
	s.now = now
	return s
}

// CreateBattleRequest carries the create-battle parameters. An empty
// OpponentUsername means a public battle addressed by room code.
type CreateBattleRequest struct {
	OpponentUsername string
	FolderID         uuid.UUID
	TotalQuestions   int
	TimeLimitSeconds int
}

// CreateBattle persists a new pending battle and pushes either a direct
// invitation (private) or a public-battle broadcast. An offline private
// opponent gets a queued invite with an expiry instead of a rejection.
func (s *BattleService) CreateBattle(ctx context.Context, challengerID uuid.UUID, req CreateBattleRequest) (*domain.Battle, error) {
	if req.TotalQuestions <= 0 || req.TimeLimitSeconds <= 0 {
		return nil, domain.ErrInvalidState
	}

	challenger, err := s.users.GetByID(ctx, challengerID)
	if err != nil {
		return nil, err
	}

	var opponent *domain.User
	if req.OpponentUsername != "" {
		opponent, err = s.users.GetByUsername(ctx, req.OpponentUsername)
		if err != nil {
			return nil, domain.ErrOpponentNotFound
		}
		if opponent.ID == challengerID {
			return nil, domain.ErrSelfBattle
		}
	}

	folder, err := s.folders.Get(ctx, req.FolderID)
	if err != nil {
		return nil, err
	}
	if folder.QuestionCount < req.TotalQuestions {
		return nil, domain.ErrBankTooSmall
	}

	battle := &domain.Battle{
		ID:               uuid.New(),
		ChallengerID:     challengerID,
		FolderID:         folder.ID,
		Status:           domain.BattlePending,
		TotalQuestions:   req.TotalQuestions,
		TimeLimitSeconds: req.TimeLimitSeconds,
		CreatedAt:        s.now(),
	}
	if opponent != nil {
		id := opponent.ID
		battle.OpponentID = &id
	} else {
		code, err := s.allocateRoomCode(ctx)
		if err != nil {
			return nil, err
		}
		battle.RoomCode = &code
		battle.IsPublic = true
	}

	if err := s.battles.Create(ctx, battle); err != nil {
		return nil, err
	}

	summary := BattleSummary{
		ID:                 battle.ID,
		ChallengerUsername: challenger.Username,
		FolderName:         folder.Name,
		TotalQuestions:     battle.TotalQuestions,
		TimeLimitSeconds:   battle.TimeLimitSeconds,
		IsPublic:           battle.IsPublic,
	}

	// Push failures never fail the create; they degrade to queuing (private)
	// or a silent drop (public broadcast).
	if opponent != nil {
		event := InvitationEvent{Type: EventBattleInvitation, Battle: summary}
		if !s.notifier.SendTo(opponent.ID, event) {
			if err := s.invites.Queue(ctx, opponent.ID, battle.ID, event); err != nil {
				log.Printf("queue invite for %s: %v", opponent.Username, err)
			}
		}
	} else {
		sent := s.notifier.Broadcast(PublicBattleEvent{
			Type:     EventPublicBattleCreated,
			RoomCode: *battle.RoomCode,
			Battle:   summary,
		}, challengerID)
		log.Printf("public battle %s announced to %d users", battle.ID, sent)
	}

	return battle, nil
}

// Accept transitions a pending battle to active. For private battles only the
// invited opponent may accept; for public battles any non-creator reaches this
// through the room-code path.
func (s *BattleService) Accept(ctx context.Context, battleID, userID uuid.UUID) (*domain.Battle, error) {
	battle, err := s.battles.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle.Status != domain.BattlePending {
		return nil, domain.ErrInvalidState
	}
	if battle.ChallengerID == userID {
		return nil, domain.ErrSelfBattle
	}
	if battle.OpponentID != nil && *battle.OpponentID != userID {
		return nil, domain.ErrNotParticipant
	}

	now := s.now()
	battle.Status = domain.BattleActive
	battle.StartedAt = &now
	if battle.OpponentID == nil {
		id := userID
		battle.OpponentID = &id
	}
	// The guarded update loses the race when another joiner got here first.
	if err := s.battles.UpdateFromPending(ctx, battle); err != nil {
		return nil, err
	}

	s.notifier.SendTo(battle.ChallengerID, BattleStateEvent{Type: EventBattleAccepted, Battle: battle})
	s.notifier.SendTo(userID, BattleStateEvent{Type: EventBattleStarted, Battle: battle})
	return battle, nil
}

// JoinByCode resolves a public pending battle by room code and accepts it.
func (s *BattleService) JoinByCode(ctx context.Context, code string, userID uuid.UUID) (*domain.Battle, error) {
	battle, err := s.battles.PendingByRoomCode(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, err
	}
	return s.Accept(ctx, battle.ID, userID)
}

// Decline ends a pending battle. The invited opponent declining notifies the
// challenger; the challenger withdrawing their own pending battle cancels it.
func (s *BattleService) Decline(ctx context.Context, battleID, userID uuid.UUID) (*domain.Battle, error) {
	battle, err := s.battles.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle.Status != domain.BattlePending {
		return nil, domain.ErrInvalidState
	}

	if battle.ChallengerID == userID {
		battle.Status = domain.BattleCancelled
		if err := s.battles.UpdateFromPending(ctx, battle); err != nil {
			return nil, err
		}
		return battle, nil
	}

	if battle.OpponentID == nil || *battle.OpponentID != userID {
		return nil, domain.ErrNotParticipant
	}
	battle.Status = domain.BattleDeclined
	if err := s.battles.UpdateFromPending(ctx, battle); err != nil {
		return nil, err
	}

	declinedBy := battleUsername(ctx, s.users, userID)
	s.notifier.SendTo(battle.ChallengerID, DeclinedEvent{
		Type:       EventBattleDeclined,
		BattleID:   battle.ID,
		DeclinedBy: declinedBy,
	})
	return battle, nil
}

// SubmitAnswerRequest carries one answer submission.
type SubmitAnswerRequest struct {
	BattleID         uuid.UUID
	QuestionID       uuid.UUID
	UserAnswer       string
	TimeTakenSeconds int
}

// SubmitAnswerResult is what the submitter gets back.
type SubmitAnswerResult struct {
	IsCorrect    bool   `json:"is_correct"`
	PointsEarned int    `json:"points_earned"`
	Explanation  string `json:"explanation,omitempty"`
}

// SubmitAnswer scores and persists one answer, bumps the submitter's running
// score, notifies the opponent, and re-checks completion. Duplicate
// submissions for the same question are rejected by the storage layer.
func (s *BattleService) SubmitAnswer(ctx context.Context, userID uuid.UUID, req SubmitAnswerRequest) (SubmitAnswerResult, error) {
	var zero SubmitAnswerResult

	battle, err := s.battles.Get(ctx, req.BattleID)
	if err != nil {
		return zero, err
	}
	if !battle.IsParticipant(userID) {
		return zero, domain.ErrNotParticipant
	}
	if battle.Status != domain.BattleActive {
		return zero, domain.ErrInvalidState
	}

	now := s.now()
	if deadline := battle.Deadline(s.deadlineGrace); !deadline.IsZero() && now.After(deadline) {
		return zero, domain.ErrBattleExpired
	}

	question, err := s.battleQuestion(ctx, battle, req.QuestionID)
	if err != nil {
		return zero, err
	}

	answer := strings.TrimSpace(req.UserAnswer)
	correct := strings.EqualFold(answer, strings.TrimSpace(question.Answer))
	timeTaken := req.TimeTakenSeconds
	if timeTaken < 0 {
		timeTaken = 0
	}
	points := Score(question.Points, battle.TimeLimitSeconds, timeTaken, correct)

	resp := &domain.AnswerResponse{
		ID:               uuid.New(),
		BattleID:         battle.ID,
		QuestionID:       question.ID,
		UserID:           userID,
		UserAnswer:       req.UserAnswer,
		IsCorrect:        correct,
		PointsEarned:     points,
		TimeTakenSeconds: timeTaken,
		AnsweredAt:       now,
	}
	isChallenger := battle.ChallengerID == userID
	if err := s.battles.InsertAnswer(ctx, resp, isChallenger); err != nil {
		return zero, err
	}

	if other, ok := battle.OtherParticipant(userID); ok {
		s.notifier.SendTo(other, OpponentAnsweredEvent{
			Type:         EventOpponentAnswered,
			BattleID:     battle.ID,
			QuestionID:   question.ID,
			IsCorrect:    correct,
			PointsEarned: points,
		})
	}

	if err := s.checkCompletion(ctx, battle); err != nil {
		log.Printf("completion check for battle %s: %v", battle.ID, err)
	}

	result := SubmitAnswerResult{IsCorrect: correct, PointsEarned: points}
	if correct {
		result.Explanation = question.Explanation
	}
	return result, nil
}

// checkCompletion transitions the battle to completed once both participants
// have answered the full question count. Safe to re-run: the store refuses
// the transition unless the battle is still active.
func (s *BattleService) checkCompletion(ctx context.Context, battle *domain.Battle) error {
	if battle.Status != domain.BattleActive || battle.OpponentID == nil {
		return nil
	}

	challengerCount, err := s.battles.CountAnswers(ctx, battle.ID, battle.ChallengerID)
	if err != nil {
		return err
	}
	opponentCount, err := s.battles.CountAnswers(ctx, battle.ID, *battle.OpponentID)
	if err != nil {
		return err
	}
	if challengerCount < battle.TotalQuestions || opponentCount < battle.TotalQuestions {
		return nil
	}

	// The caller's copy predates any answers the opponent landed while this
	// submission was in flight; the winner comes from the stored scores.
	battle, err = s.battles.Get(ctx, battle.ID)
	if err != nil {
		return err
	}
	if battle.Status != domain.BattleActive || battle.OpponentID == nil {
		return nil
	}

	now := s.now()
	battle.Status = domain.BattleCompleted
	battle.CompletedAt = &now
	switch {
	case battle.ChallengerScore > battle.OpponentScore:
		id := battle.ChallengerID
		battle.WinnerID = &id
	case battle.OpponentScore > battle.ChallengerScore:
		id := *battle.OpponentID
		battle.WinnerID = &id
	default:
		battle.IsDraw = true
	}

	transitioned, err := s.battles.Complete(ctx, battle)
	if err != nil || !transitioned {
		return err
	}

	s.notifier.SendToSet([]uuid.UUID{battle.ChallengerID, *battle.OpponentID}, CompletedEvent{
		Type:            EventBattleCompleted,
		BattleID:        battle.ID,
		ChallengerScore: battle.ChallengerScore,
		OpponentScore:   battle.OpponentScore,
		WinnerID:        battle.WinnerID,
		IsDraw:          battle.IsDraw,
	})
	return nil
}

// SweepOverdue force-completes active battles whose deadline has passed, so
// an abandoned battle cannot stay active forever. Winner is decided by the
// scores standing at sweep time.
func (s *BattleService) SweepOverdue(ctx context.Context) (int, error) {
	overdue, err := s.battles.ListOverdueActive(ctx, s.now(), s.deadlineGrace)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range overdue {
		battle := &overdue[i]
		if battle.OpponentID == nil {
			continue
		}
		now := s.now()
		battle.Status = domain.BattleCompleted
		battle.CompletedAt = &now
		switch {
		case battle.ChallengerScore > battle.OpponentScore:
			id := battle.ChallengerID
			battle.WinnerID = &id
		case battle.OpponentScore > battle.ChallengerScore:
			id := *battle.OpponentID
			battle.WinnerID = &id
		default:
			battle.IsDraw = true
		}
		transitioned, err := s.battles.Complete(ctx, battle)
		if err != nil {
			log.Printf("sweep battle %s: %v", battle.ID, err)
			continue
		}
		if !transitioned {
			continue
		}
		swept++
		s.notifier.SendToSet([]uuid.UUID{battle.ChallengerID, *battle.OpponentID}, CompletedEvent{
			Type:            EventBattleCompleted,
			BattleID:        battle.ID,
			ChallengerScore: battle.ChallengerScore,
			OpponentScore:   battle.OpponentScore,
			WinnerID:        battle.WinnerID,
			IsDraw:          battle.IsDraw,
		})
	}
	return swept, nil
}

// MyBattles lists every battle the user participates in, newest first.
func (s *BattleService) MyBattles(ctx context.Context, userID uuid.UUID) ([]domain.Battle, error) {
	return s.battles.ListByUser(ctx, userID)
}

// GetBattle returns one battle, restricted to its participants. Pending
// public battles stay readable so a prospective joiner can inspect them.
func (s *BattleService) GetBattle(ctx context.Context, battleID, userID uuid.UUID) (*domain.Battle, error) {
	battle, err := s.battles.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !battle.IsParticipant(userID) {
		if !(battle.IsPublic && battle.Status == domain.BattlePending) {
			return nil, domain.ErrNotParticipant
		}
	}
	return battle, nil
}

// BattleQuestion is the participant-facing question view; the canonical
// answer never leaves the server.
type BattleQuestion struct {
	ID               uuid.UUID `json:"id"`
	Question         string    `json:"question"`
	Points           int       `json:"points"`
	TimeLimitSeconds int       `json:"time_limit_seconds"`
}

// BattleQuestions returns the deterministic per-battle question subset.
func (s *BattleService) BattleQuestions(ctx context.Context, battleID, userID uuid.UUID) ([]BattleQuestion, error) {
	battle, err := s.battles.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !battle.IsParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}

	sampled, err := s.sampledSet(ctx, battle)
	if err != nil {
		return nil, err
	}
	out := make([]BattleQuestion, 0, len(sampled))
	for _, q := range sampled {
		out = append(out, BattleQuestion{
			ID:               q.ID,
			Question:         q.Text,
			Points:           q.Points,
			TimeLimitSeconds: battle.TimeLimitSeconds,
		})
	}
	return out, nil
}

// ParticipantResult summarizes one side of a finished battle.
type ParticipantResult struct {
	Username       string `json:"username"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correct_answers"`
	TotalAnswers   int    `json:"total_answers"`
}

// BattleResults is the detailed results view.
type BattleResults struct {
	BattleID    uuid.UUID           `json:"battle_id"`
	Status      domain.BattleStatus `json:"battle_status"`
	Challenger  ParticipantResult   `json:"challenger"`
	Opponent    *ParticipantResult  `json:"opponent,omitempty"`
	WinnerID    *uuid.UUID          `json:"winner_id"`
	IsDraw      bool                `json:"is_draw"`
	CompletedAt *time.Time          `json:"completed_at"`
}

// Results returns per-participant tallies for a battle.
func (s *BattleService) Results(ctx context.Context, battleID, userID uuid.UUID) (BattleResults, error) {
	battle, err := s.battles.Get(ctx, battleID)
	if err != nil {
		return BattleResults{}, err
	}
	if !battle.IsParticipant(userID) {
		return BattleResults{}, domain.ErrNotParticipant
	}

	results := BattleResults{
		BattleID:    battle.ID,
		Status:      battle.Status,
		WinnerID:    battle.WinnerID,
		IsDraw:      battle.IsDraw,
		CompletedAt: battle.CompletedAt,
	}

	challengerAnswers, err := s.battles.ListAnswers(ctx, battle.ID, battle.ChallengerID)
	if err != nil {
		return BattleResults{}, err
	}
	results.Challenger = ParticipantResult{
		Username:       battleUsername(ctx, s.users, battle.ChallengerID),
		Score:          battle.ChallengerScore,
		CorrectAnswers: countCorrect(challengerAnswers),
		TotalAnswers:   len(challengerAnswers),
	}

	if battle.OpponentID != nil {
		opponentAnswers, err := s.battles.ListAnswers(ctx, battle.ID, *battle.OpponentID)
		if err != nil {
			return BattleResults{}, err
		}
		results.Opponent = &ParticipantResult{
			Username:       battleUsername(ctx, s.users, *battle.OpponentID),
			Score:          battle.OpponentScore,
			CorrectAnswers: countCorrect(opponentAnswers),
			TotalAnswers:   len(opponentAnswers),
		}
	}
	return results, nil
}

// battleQuestion resolves a question ID against the battle's sampled set.
func (s *BattleService) battleQuestion(ctx context.Context, battle *domain.Battle, questionID uuid.UUID) (*domain.Question, error) {
	sampled, err := s.sampledSet(ctx, battle)
	if err != nil {
		return nil, err
	}
	for i := range sampled {
		if sampled[i].ID == questionID {
			return &sampled[i], nil
		}
	}
	return nil, domain.ErrQuestionNotFound
}

func (s *BattleService) sampledSet(ctx context.Context, battle *domain.Battle) ([]domain.Question, error) {
	bank, err := s.bank.GetBank(ctx, battle.FolderID)
	if err != nil {
		return nil, err
	}
	return sampleQuestions(battle.ID, bank, battle.TotalQuestions), nil
}

func countCorrect(answers []domain.AnswerResponse) int {
	n := 0
	for _, a := range answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

func battleUsername(ctx context.Context, users UserStore, id uuid.UUID) string {
	u, err := users.GetByID(ctx, id)
	if err != nil {
		return ""
	}
	return u.Username
}
