package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles,omitempty"`
	Type     string   `json:"type"`
}

// TokenPair is the result of issuing or refreshing tokens.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Config configures a Manager. When PrivateKeyPath is empty a fresh RSA key
// is generated, so tokens do not survive a restart.
type Config struct {
	PrivateKeyPath  string        `mapstructure:"private_key_path"`
	AccessDuration  time.Duration `mapstructure:"access_duration"`
	RefreshDuration time.Duration `mapstructure:"refresh_duration"`
	Issuer          string        `mapstructure:"issuer"`
}

// Manager signs and validates RS256 tokens and keeps an in-memory
// revocation list keyed by user.
type Manager struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	accessDuration  time.Duration
	refreshDuration time.Duration
	issuer          string
	now             func() time.Time

	mu      sync.RWMutex
	revoked map[string]time.Time // userID -> tokens issued before this are rejected
}

// NewManager creates a Manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	key, err := loadOrGenerateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}
	if cfg.AccessDuration <= 0 {
		cfg.AccessDuration = 24 * time.Hour
	}
	if cfg.RefreshDuration <= 0 {
		cfg.RefreshDuration = 7 * 24 * time.Hour
	}

	return &Manager{
		privateKey:      key,
		publicKey:       &key.PublicKey,
		accessDuration:  cfg.AccessDuration,
		refreshDuration: cfg.RefreshDuration,
		issuer:          cfg.Issuer,
		now:             time.Now,
		revoked:         make(map[string]time.Time),
	}, nil
}

func loadOrGenerateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return rsa.GenerateKey(rand.Reader, 2048)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s does not hold an RSA key", path)
	}
	return key, nil
}

// GenerateTokenPair issues a new access and refresh token for the user.
func (m *Manager) GenerateTokenPair(userID, username string, roles []string) (*TokenPair, error) {
	now := m.now()
	pair := &TokenPair{
		AccessExpiresAt:  now.Add(m.accessDuration),
		RefreshExpiresAt: now.Add(m.refreshDuration),
	}

	var err error
	pair.AccessToken, err = m.sign(&Claims{
		RegisteredClaims: m.registered(userID, now, pair.AccessExpiresAt),
		UserID:           userID,
		Username:         username,
		Roles:            roles,
		Type:             TokenTypeAccess,
	})
	if err != nil {
		return nil, err
	}

	pair.RefreshToken, err = m.sign(&Claims{
		RegisteredClaims: m.registered(userID, now, pair.RefreshExpiresAt),
		UserID:           userID,
		Username:         username,
		Roles:            roles,
		Type:             TokenTypeRefresh,
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

// ValidateToken parses and verifies a token of any type.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if m.isRevoked(claims) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// ValidateAccessToken validates a token and requires it to be an access token.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshTokens issues a new pair from a valid refresh token.
func (m *Manager) RefreshTokens(refreshToken string) (*Claims, *TokenPair, error) {
	claims, err := m.ValidateToken(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, nil, ErrInvalidToken
	}

	pair, err := m.GenerateTokenPair(claims.UserID, claims.Username, claims.Roles)
	if err != nil {
		return nil, nil, err
	}
	return claims, pair, nil
}

// RevokeUserTokens rejects every token issued to the user up to now.
// Tokens issued afterwards (a new login) are accepted.
func (m *Manager) RevokeUserTokens(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[userID] = m.now()
}

// CleanupExpiredRevocations drops entries older than the refresh lifetime;
// every token they could reject has expired by then.
func (m *Manager) CleanupExpiredRevocations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.refreshDuration)
	for userID, at := range m.revoked {
		if at.Before(cutoff) {
			delete(m.revoked, userID)
		}
	}
}

func (m *Manager) isRevoked(claims *Claims) bool {
	m.mu.RLock()
	at, ok := m.revoked[claims.UserID]
	m.mu.RUnlock()
	if !ok || claims.IssuedAt == nil {
		return ok
	}
	// iat has second precision; compare at the same resolution.
	return !claims.IssuedAt.Time.After(at.Truncate(time.Second))
}

func (m *Manager) registered(userID string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    m.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (m *Manager) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(m.privateKey)
}
