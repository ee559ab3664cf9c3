package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BattleStatus is the lifecycle state of a battle.
// pending -> active -> completed, with side exits pending -> declined|cancelled.
type BattleStatus string

const (
	BattlePending   BattleStatus = "pending"
	BattleActive    BattleStatus = "active"
	BattleCompleted BattleStatus = "completed"
	BattleDeclined  BattleStatus = "declined"
	BattleCancelled BattleStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s BattleStatus) Terminal() bool {
	return s == BattleCompleted || s == BattleDeclined || s == BattleCancelled
}

// User is an account participating in battles.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Email        string    `bun:"email,notnull,unique" json:"email"`
	Username     string    `bun:"username,notnull,unique" json:"username"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	BattlesWon   int       `bun:"battles_won,notnull,default:0" json:"battlesWon"`
	BattlesLost  int       `bun:"battles_lost,notnull,default:0" json:"battlesLost"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Folder is an externally managed question bank scoped to a subject area.
type Folder struct {
	bun.BaseModel `bun:"table:folders"`

	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	OwnerID       uuid.UUID `bun:"owner_id,notnull,type:uuid" json:"ownerId"`
	Name          string    `bun:"name,notnull" json:"name"`
	QuestionCount int       `bun:"question_count,notnull,default:0" json:"questionCount"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}

// Question is one entry of a folder's question bank. The canonical answer is
// compared case-insensitively against submissions.
type Question struct {
	bun.BaseModel `bun:"table:questions"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	FolderID    uuid.UUID `bun:"folder_id,notnull,type:uuid" json:"folderId"`
	Text        string    `bun:"question_text,notnull" json:"question"`
	Answer      string    `bun:"correct_answer,notnull" json:"-"`
	Explanation string    `bun:"explanation" json:"-"`
	Points      int       `bun:"points_value,notnull,default:10" json:"points"`
}

// Battle is a timed, scored, head-to-head session between two users.
// Opponent is nil until a second participant joins; RoomCode is set only for
// publicly joinable battles, so exactly one addressing mode is active.
type Battle struct {
	bun.BaseModel `bun:"table:battles"`

	ID               uuid.UUID    `bun:"id,pk,type:uuid" json:"id"`
	ChallengerID     uuid.UUID    `bun:"challenger_id,notnull,type:uuid" json:"challengerId"`
	OpponentID       *uuid.UUID   `bun:"opponent_id,type:uuid" json:"opponentId,omitempty"`
	FolderID         uuid.UUID    `bun:"folder_id,notnull,type:uuid" json:"folderId"`
	Status           BattleStatus `bun:"status,notnull,default:'pending'" json:"status"`
	TotalQuestions   int          `bun:"total_questions,notnull,default:10" json:"totalQuestions"`
	TimeLimitSeconds int          `bun:"time_limit_seconds,notnull,default:300" json:"timeLimitSeconds"`
	ChallengerScore  int          `bun:"challenger_score,notnull,default:0" json:"challengerScore"`
	OpponentScore    int          `bun:"opponent_score,notnull,default:0" json:"opponentScore"`
	WinnerID         *uuid.UUID   `bun:"winner_id,type:uuid" json:"winnerId,omitempty"`
	IsDraw           bool         `bun:"is_draw,notnull,default:false" json:"isDraw"`
	RoomCode         *string      `bun:"room_code" json:"roomCode,omitempty"`
	IsPublic         bool         `bun:"is_public,notnull,default:false" json:"isPublic"`
	CreatedAt        time.Time    `bun:"created_at,notnull,default:now()" json:"createdAt"`
	StartedAt        *time.Time   `bun:"started_at" json:"startedAt,omitempty"`
	CompletedAt      *time.Time   `bun:"completed_at" json:"completedAt,omitempty"`

	Challenger *User   `bun:"rel:belongs-to,join:challenger_id=id" json:"-"`
	Opponent   *User   `bun:"rel:belongs-to,join:opponent_id=id" json:"-"`
	Folder     *Folder `bun:"rel:belongs-to,join:folder_id=id" json:"-"`
}

// IsParticipant reports whether userID is the challenger or the joined opponent.
func (b *Battle) IsParticipant(userID uuid.UUID) bool {
	if b.ChallengerID == userID {
		return true
	}
	return b.OpponentID != nil && *b.OpponentID == userID
}

// OtherParticipant returns the counterparty of userID, if one has joined.
func (b *Battle) OtherParticipant(userID uuid.UUID) (uuid.UUID, bool) {
	if b.ChallengerID == userID {
		if b.OpponentID == nil {
			return uuid.Nil, false
		}
		return *b.OpponentID, true
	}
	return b.ChallengerID, true
}

// Deadline is the instant past which answers are no longer accepted.
// Zero time when the battle has not started.
func (b *Battle) Deadline(grace time.Duration) time.Time {
	if b.StartedAt == nil {
		return time.Time{}
	}
	limit := time.Duration(b.TimeLimitSeconds*b.TotalQuestions) * time.Second
	return b.StartedAt.Add(limit).Add(grace)
}

// AnswerResponse is one user's scored answer to one battle question.
// Rows are immutable; the (battle, question, user) triple is unique.
type AnswerResponse struct {
	bun.BaseModel `bun:"table:answer_responses"`

	ID               uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	BattleID         uuid.UUID `bun:"battle_id,notnull,type:uuid" json:"battleId"`
	QuestionID       uuid.UUID `bun:"question_id,notnull,type:uuid" json:"questionId"`
	UserID           uuid.UUID `bun:"user_id,notnull,type:uuid" json:"userId"`
	UserAnswer       string    `bun:"user_answer,notnull" json:"userAnswer"`
	IsCorrect        bool      `bun:"is_correct,notnull" json:"isCorrect"`
	PointsEarned     int       `bun:"points_earned,notnull,default:0" json:"pointsEarned"`
	TimeTakenSeconds int       `bun:"time_taken_seconds,notnull" json:"timeTakenSeconds"`
	AnsweredAt       time.Time `bun:"answered_at,notnull,default:now()" json:"answeredAt"`
}

// PendingInvite is a durably queued battle invitation for a user who was
// unreachable at send time. Delivered (and marked read) on next connect.
type PendingInvite struct {
	bun.BaseModel `bun:"table:pending_invites"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid" json:"userId"`
	BattleID  uuid.UUID `bun:"battle_id,notnull,type:uuid" json:"battleId"`
	Payload   []byte    `bun:"payload,notnull,type:jsonb" json:"payload"`
	IsRead    bool      `bun:"is_read,notnull,default:false" json:"isRead"`
	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
	ExpiresAt time.Time `bun:"expires_at,notnull" json:"expiresAt"`
}

// Expired reports whether the invite is past its delivery window.
func (i *PendingInvite) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
