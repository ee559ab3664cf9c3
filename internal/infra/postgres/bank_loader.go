package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizbattle-service/internal/domain"
)

// BankLoader reads a folder's full question bank from Postgres. Callers
// normally sit behind a caching layer; this loader is the cache-miss path.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context, folderID uuid.UUID) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, folder_id, question_text, correct_answer, COALESCE(explanation, ''), points_value
		 FROM questions WHERE folder_id = $1`, folderID)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.FolderID, &q.Text, &q.Answer, &q.Explanation, &q.Points); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrFolderNotFound
	}
	return questions, nil
}
