package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type Service struct {
	users  UserStore
	hasher *Hasher
	tokens *TokenIssuer
	logger *slog.Logger
}

func NewService(users UserStore, hasher *Hasher, tokens *TokenIssuer) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: slog.Default().With("component", "credentials"),
	}
}

// Register creates a driver account. Any other requested role is refused.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (int64, error) {
	if req.Role != "" && req.Role != models.RoleDriver {
		return 0, models.ErrRegistrationRole
	}
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return 0, fmt.Errorf("%w: username, email and password are required", models.ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.users.CreateUser(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Phone:        req.Phone,
		Role:         models.RoleDriver,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", id, "username", username)
	return id, nil
}

// Verify checks a username/password pair and, when role is non-empty, the account role.
func (s *Service) Verify(ctx context.Context, username, password, role string) (*models.User, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrAuthFailure
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, models.ErrAuthFailure
	}
	if role != "" && u.Role != role {
		return nil, models.ErrRoleMismatch
	}
	return u, nil
}

// Login verifies the credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.User, string, error) {
	u, err := s.Verify(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}

// EnsureAdmin creates the default admin account unless the username is already taken.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) error {
	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	id, err := s.users.CreateUser(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, models.ErrDuplicateCredential) {
		// another replica won the race
		return nil
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.WarnContext(ctx, "default admin created, change its password", "user_id", id, "username", username)
	return nil
}

func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}
