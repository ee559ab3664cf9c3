package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"quizbattle-service/internal/domain"
)

// UserStore is an in-memory UserStore used in unit tests.
type UserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func NewUserStore(seed ...domain.User) *UserStore {
	s := &UserStore{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range seed {
		cp := u
		s.users[u.ID] = &cp
	}
	return s
}

func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return domain.ErrUserExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *UserStore) recordResult(winnerID, loserID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[winnerID]; ok {
		u.BattlesWon++
	}
	if u, ok := s.users[loserID]; ok {
		u.BattlesLost++
	}
}

// FolderStore is an in-memory FolderStore used in unit tests.
type FolderStore struct {
	mu      sync.Mutex
	folders map[uuid.UUID]*domain.Folder
}

func NewFolderStore(seed ...domain.Folder) *FolderStore {
	s := &FolderStore{folders: make(map[uuid.UUID]*domain.Folder)}
	for _, f := range seed {
		cp := f
		s.folders[f.ID] = &cp
	}
	return s
}

func (s *FolderStore) Get(_ context.Context, id uuid.UUID) (*domain.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[id]
	if !ok {
		return nil, domain.ErrFolderNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *FolderStore) List(_ context.Context) ([]domain.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Folder, 0, len(s.folders))
	for _, f := range s.folders {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
