package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

const createBattleTablesSQL = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    username VARCHAR(50) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    battles_won INTEGER NOT NULL DEFAULT 0,
    battles_lost INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS folders (
    id UUID PRIMARY KEY,
    owner_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    name VARCHAR(255) NOT NULL,
    question_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS questions (
    id UUID PRIMARY KEY,
    folder_id UUID NOT NULL REFERENCES folders (id) ON DELETE CASCADE,
    question_text TEXT NOT NULL,
    correct_answer TEXT NOT NULL,
    explanation TEXT,
    points_value INTEGER NOT NULL DEFAULT 10
);

CREATE TABLE IF NOT EXISTS battles (
    id UUID PRIMARY KEY,
    challenger_id UUID NOT NULL REFERENCES users (id),
    opponent_id UUID REFERENCES users (id),
    folder_id UUID NOT NULL REFERENCES folders (id),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    total_questions INTEGER NOT NULL DEFAULT 10,
    time_limit_seconds INTEGER NOT NULL DEFAULT 300,
    challenger_score INTEGER NOT NULL DEFAULT 0,
    opponent_score INTEGER NOT NULL DEFAULT 0,
    winner_id UUID REFERENCES users (id),
    is_draw BOOLEAN NOT NULL DEFAULT FALSE,
    room_code VARCHAR(6),
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    CONSTRAINT different_participants
        CHECK (opponent_id IS NULL OR challenger_id <> opponent_id)
);

-- Room codes are unique only among battles that can still be joined.
CREATE UNIQUE INDEX IF NOT EXISTS battles_live_room_code_idx
    ON battles (room_code)
    WHERE room_code IS NOT NULL AND status IN ('pending', 'active');

CREATE TABLE IF NOT EXISTS answer_responses (
    id UUID PRIMARY KEY,
    battle_id UUID NOT NULL REFERENCES battles (id) ON DELETE CASCADE,
    question_id UUID NOT NULL REFERENCES questions (id),
    user_id UUID NOT NULL REFERENCES users (id),
    user_answer TEXT NOT NULL,
    is_correct BOOLEAN NOT NULL,
    points_earned INTEGER NOT NULL DEFAULT 0,
    time_taken_seconds INTEGER NOT NULL,
    answered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT unique_battle_question_response
        UNIQUE (battle_id, question_id, user_id)
);

CREATE TABLE IF NOT EXISTS pending_invites (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    battle_id UUID NOT NULL REFERENCES battles (id) ON DELETE CASCADE,
    payload JSONB NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS pending_invites_user_unread_idx
    ON pending_invites (user_id) WHERE is_read = FALSE;
`

const dropBattleTablesSQL = `
DROP TABLE IF EXISTS pending_invites;
DROP TABLE IF EXISTS answer_responses;
DROP TABLE IF EXISTS battles;
DROP TABLE IF EXISTS questions;
DROP TABLE IF EXISTS folders;
DROP TABLE IF EXISTS users;
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createBattleTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(dropBattleTablesSQL)
			return err
		},
	)
}
