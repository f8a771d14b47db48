package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/models"
)

// UserRepository stores accounts. Create fails with apperr.ErrDuplicateID
// when the phone is already registered.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetByPhone(ctx context.Context, phone string) (models.User, error)
	Create(ctx context.Context, u models.User) error
	Update(ctx context.Context, u models.User) error
}

// ScyllaUsers keeps accounts in the users keyspace, with users_by_phone
// guaranteeing one account per phone.
type ScyllaUsers struct {
	session *gocql.Session
}

func NewScyllaUsers(session *gocql.Session) *ScyllaUsers {
	return &ScyllaUsers{session: session}
}

func (s *ScyllaUsers) GetByID(ctx context.Context, userID string) (models.User, error) {
	var (
		u    models.User
		role string
	)
	err := s.session.Query(`
		SELECT user_id, phone, name, email, role, vendor_id, created_at
		FROM users WHERE user_id = ?`, userID,
	).WithContext(ctx).Scan(&u.ID, &u.Phone, &u.Name, &u.Email, &role, &u.VendorID, &u.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return models.User{}, apperr.New(apperr.ErrUserNotFound, "user "+userID+" not found", nil)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("select user %s: %w", userID, err)
	}
	u.Role = models.Role(role)
	return u, nil
}

func (s *ScyllaUsers) GetByPhone(ctx context.Context, phone string) (models.User, error) {
	var userID string
	err := s.session.Query(`SELECT user_id FROM users_by_phone WHERE phone = ?`, phone).
		WithContext(ctx).Scan(&userID)
	if errors.Is(err, gocql.ErrNotFound) {
		return models.User{}, apperr.New(apperr.ErrUserNotFound, "no account for this phone", nil)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("select user by phone: %w", err)
	}
	return s.GetByID(ctx, userID)
}

func (s *ScyllaUsers) Create(ctx context.Context, u models.User) error {
	applied, err := s.session.Query(`INSERT INTO users_by_phone (phone, user_id) VALUES (?, ?) IF NOT EXISTS`,
		u.Phone, u.ID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("claim phone: %w", err)
	}
	if !applied {
		return apperr.New(apperr.ErrDuplicateID, "phone already registered", nil)
	}
	return s.Update(ctx, u)
}

func (s *ScyllaUsers) Update(ctx context.Context, u models.User) error {
	if err := s.session.Query(`
		INSERT INTO users (user_id, phone, name, email, role, vendor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Phone, u.Name, u.Email, string(u.Role), u.VendorID, u.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("write user %s: %w", u.ID, err)
	}
	return nil
}
