package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/imaad666/W-Chhatt/internal/audit"
	"github.com/imaad666/W-Chhatt/internal/domain"
	"github.com/imaad666/W-Chhatt/internal/repository"
	"github.com/imaad666/W-Chhatt/pkg/jwt"
	"github.com/imaad666/W-Chhatt/pkg/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
)

const tokenTypeBearer = "Bearer"

// accountServiceImpl implements AccountService interface.
type accountServiceImpl struct {
	repo       repository.UserRepository
	tokens     *jwt.Manager
	bcryptCost int
}

// NewAccountService creates a new account service.
func NewAccountService(repo repository.UserRepository, tokens *jwt.Manager) AccountService {
	return &accountServiceImpl{
		repo:       repo,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register registers a new user.
func (s *accountServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := checkLength("username", username, minUsernameLen, maxUsernameLen); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUsernameExists
	}
	exists, err = s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Roles:        []string{"user"},
	}
	if err := s.repo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameExists
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailExists
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	audit.Record(ctx, audit.Event{Action: audit.ActionRegister, UserID: user.ID}, "user registered")
	return s.issue(user)
}

// Login authenticates a user by username and password.
func (s *accountServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.Record(ctx, audit.Event{Action: audit.ActionLoginFailed, Detail: req.Username}, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by username")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.Record(ctx, audit.Event{Action: audit.ActionLoginFailed, UserID: user.ID, Detail: req.Username}, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		audit.Record(ctx, audit.Event{Action: audit.ActionLoginFailed, UserID: user.ID, Detail: req.Username}, "login failed: account inactive")
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to record last login")
	} else {
		user.LastLogin = &now
	}

	audit.Record(ctx, audit.Event{Action: audit.ActionLogin, UserID: user.ID}, "user logged in")
	return s.issue(user)
}

// RefreshToken exchanges a refresh token for a new pair.
func (s *accountServiceImpl) RefreshToken(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	claims, pair, err := s.tokens.RefreshTokens(req.RefreshToken)
	if err != nil {
		l.Warn().Err(err).Msg("failed to refresh token")
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to get user after token refresh")
		return nil, err
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	return toAuthResponse(user, pair), nil
}

// Logout revokes every token issued to the user so far.
func (s *accountServiceImpl) Logout(ctx context.Context, userID string) error {
	s.tokens.RevokeUserTokens(userID)
	audit.Record(ctx, audit.Event{Action: audit.ActionLogout, UserID: userID}, "user logged out")
	return nil
}

// Me returns the profile of the authenticated user.
func (s *accountServiceImpl) Me(ctx context.Context, userID string) (*domain.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to get user")
		return nil, err
	}

	resp := user.ToResponse()
	return &resp, nil
}

// SearchUsers finds users by a fragment of their username.
func (s *accountServiceImpl) SearchUsers(ctx context.Context, keyword string) ([]domain.PublicUser, error) {
	users, err := s.repo.Search(ctx, strings.TrimSpace(keyword), 20)
	if err != nil {
		return nil, err
	}

	out := make([]domain.PublicUser, len(users))
	for i, u := range users {
		out[i] = domain.PublicUser{ID: u.ID, Username: u.Username}
	}
	return out, nil
}

func (s *accountServiceImpl) issue(user *domain.User) (*domain.AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Username, user.Roles)
	if err != nil {
		return nil, err
	}
	return toAuthResponse(user, pair), nil
}

func toAuthResponse(user *domain.User, pair *jwt.TokenPair) *domain.AuthResponse {
	return &domain.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresAt:    pair.AccessExpiresAt.Unix(),
		User:         user.ToResponse(),
	}
}
