package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoopsml/shotpredict/internal/auth"
	"github.com/hoopsml/shotpredict/internal/models"
)

type authService struct {
	users  UserStore
	tokens *auth.TokenManager
}

func NewAuthService(users UserStore, tokens *auth.TokenManager) AuthService {
	return &authService{users: users, tokens: tokens}
}

func (s *authService) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	return s.users.CreateUser(ctx, req.Username, hash, req.Disabled)
}

// Login exchanges credentials for an access token. Disabled accounts may log
// in; they are refused when the token is used.
func (s *authService) Login(ctx context.Context, username, password string) (*models.TokenResponse, error) {
	u, err := s.users.GetUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.HashedPassword, password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u.Username)
	if err != nil {
		return nil, err
	}
	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
	}, nil
}

// Authenticate resolves a bearer token to an active user. A valid token for
// a disabled user yields the user together with ErrInactiveUser.
func (s *authService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	username, err := s.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	u, err := s.users.GetUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return u, ErrInactiveUser
	}
	return u, nil
}

// EnsureUser creates the account unless the username is already taken.
func EnsureUser(ctx context.Context, svc AuthService, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	_, err := svc.Signup(ctx, models.SignupRequest{Username: username, Password: password})
	if errors.Is(err, ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
