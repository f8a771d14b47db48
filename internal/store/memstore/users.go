package memstore

import (
	"context"
	"sync"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

type Users struct {
	mu      sync.Mutex
	byID    map[string]models.User
	byPhone map[string]string
}

func NewUsers(users ...models.User) *Users {
	s := &Users{byID: make(map[string]models.User), byPhone: make(map[string]string)}
	for _, u := range users {
		s.byID[u.ID] = u
		s.byPhone[u.Phone] = u.ID
	}
	return s
}

func (s *Users) GetByID(_ context.Context, userID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return models.User{}, apperr.ErrUserNotFound
	}
	return u, nil
}

func (s *Users) GetByPhone(_ context.Context, phone string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return models.User{}, apperr.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *Users) Create(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPhone[u.Phone]; ok {
		return apperr.New(apperr.ErrDuplicateID, "phone already registered", nil)
	}
	s.byID[u.ID] = u
	s.byPhone[u.Phone] = u.ID
	return nil
}

func (s *Users) Update(_ context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[u.ID]; !ok {
		return apperr.ErrUserNotFound
	}
	s.byID[u.ID] = u
	return nil
}
