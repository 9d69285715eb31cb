package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

// CreateUser inserts u and returns its id; collisions map to models.ErrDuplicateCredential.
func (s *Store) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO users (username, email, password_hash, phone, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		u.Username, u.Email, u.PasswordHash, u.Phone, u.Role, createdAt.UTC(),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.ErrDuplicateCredential
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, username, email, password_hash, phone, role, created_at
		 FROM users WHERE username = ?`), username))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var (
		u         models.User
		phone     sql.NullString
		createdAt nullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &phone, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Phone = nullString(phone)
	u.CreatedAt = createdAt.Time
	return &u, nil
}
