package app

import (
	"github.com/google/uuid"

	"quizbattle-service/internal/domain"
)

// Server -> client event type names. The mixed casing is part of the wire
// contract with existing clients.
const (
	EventBattleInvitation    = "BATTLE_INVITATION"
	EventBattleAccepted      = "BATTLE_ACCEPTED"
	EventBattleStarted       = "BATTLE_STARTED"
	EventBattleDeclined      = "BATTLE_DECLINED"
	EventOpponentAnswered    = "opponent_answered"
	EventBattleCompleted     = "battle_completed"
	EventPublicBattleCreated = "PUBLIC_BATTLE_CREATED"
	EventPong                = "pong"
)

// BattleSummary is the compact battle view carried inside invitation and
// public-battle events.
type BattleSummary struct {
	ID                 uuid.UUID `json:"id"`
	ChallengerUsername string    `json:"challenger_username"`
	FolderName         string    `json:"class_folder_name"`
	TotalQuestions     int       `json:"total_questions"`
	TimeLimitSeconds   int       `json:"time_limit_seconds"`
	IsPublic           bool      `json:"is_public"`
}

type InvitationEvent struct {
	Type   string        `json:"type"`
	Battle BattleSummary `json:"battle"`
}

type PublicBattleEvent struct {
	Type     string        `json:"type"`
	RoomCode string        `json:"room_code"`
	Battle   BattleSummary `json:"battle"`
}

type BattleStateEvent struct {
	Type   string         `json:"type"`
	Battle *domain.Battle `json:"battle"`
}

type DeclinedEvent struct {
	Type       string    `json:"type"`
	BattleID   uuid.UUID `json:"battle_id"`
	DeclinedBy string    `json:"declined_by"`
}

type OpponentAnsweredEvent struct {
	Type         string    `json:"type"`
	BattleID     uuid.UUID `json:"battle_id"`
	QuestionID   uuid.UUID `json:"question_id"`
	IsCorrect    bool      `json:"is_correct"`
	PointsEarned int       `json:"points_earned"`
}

type CompletedEvent struct {
	Type            string     `json:"type"`
	BattleID        uuid.UUID  `json:"battle_id"`
	ChallengerScore int        `json:"challenger_score"`
	OpponentScore   int        `json:"opponent_score"`
	WinnerID        *uuid.UUID `json:"winner_id"`
	IsDraw          bool       `json:"is_draw"`
}
