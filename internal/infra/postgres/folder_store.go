package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"quizbattle-service/internal/domain"
)

// FolderStore reads question-bank metadata. Folders are managed by an
// external pipeline; the battle core only reads them.
type FolderStore struct {
	db *bun.DB
}

func NewFolderStore(db *bun.DB) *FolderStore {
	return &FolderStore{db: db}
}

func (s *FolderStore) Get(ctx context.Context, id uuid.UUID) (*domain.Folder, error) {
	folder := new(domain.Folder)
	err := s.db.NewSelect().Model(folder).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFolderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select folder: %w", err)
	}
	return folder, nil
}

func (s *FolderStore) List(ctx context.Context) ([]domain.Folder, error) {
	var folders []domain.Folder
	if err := s.db.NewSelect().Model(&folders).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}
