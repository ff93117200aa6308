package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/Alvaro1251/Learnify/internal/models"
	"github.com/Alvaro1251/Learnify/pkg/auth"
	"github.com/Alvaro1251/Learnify/pkg/utils"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// AuthService handles registration, login and access-token checks.
type AuthService struct {
	users   *UserService
	jwt     *auth.JWTManager
	revoker *TokenRevoker
	log     *zap.Logger
}

func NewAuthService(users *UserService, jwt *auth.JWTManager, revoker *TokenRevoker, log *zap.Logger) *AuthService {
	return &AuthService{users: users, jwt: jwt, revoker: revoker, log: log}
}

// Register creates an account and returns it with a fresh access token.
func (s *AuthService) Register(ctx context.Context, email, password string) (models.User, string, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, "", ErrInvalidEmail
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return models.User{}, "", err
	}

	u, err := s.users.Create(ctx, email, hash)
	if err != nil {
		return models.User{}, "", err
	}

	token, err := s.jwt.Generate(u.ID.Hex())
	if err != nil {
		return models.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	s.log.Info("user registered", zap.String("user_id", u.ID.Hex()))
	return u, token, nil
}

// Login checks credentials and returns a fresh access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (models.User, string, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return models.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, "", err
	}

	ok, err := utils.VerifyPassword(password, u.HashedPassword)
	if err != nil {
		s.log.Warn("stored password hash is malformed", zap.String("user_id", u.ID.Hex()), zap.Error(err))
		return models.User{}, "", ErrInvalidCredentials
	}
	if !ok {
		return models.User{}, "", ErrInvalidCredentials
	}
	if !u.IsActive {
		return models.User{}, "", ErrInactiveUser
	}

	token, err := s.jwt.Generate(u.ID.Hex())
	if err != nil {
		return models.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}

// Authenticate verifies token and returns the user ID it was issued for.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return "", err
	}
	revoked, err := s.revoker.IsRevoked(ctx, token)
	if err != nil {
		// Redis outage should not lock everyone out.
		s.log.Warn("token revocation check failed", zap.Error(err))
	}
	if revoked {
		return "", ErrTokenRevoked
	}
	return claims.Subject, nil
}

// Logout revokes token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return err
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(ctx, token, claims.ExpiresAt.Time)
}
