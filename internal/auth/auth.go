// Package auth issues and verifies the server's JWT token pairs and hashes
// user passwords. Access tokens are short-lived; refresh tokens carry a
// distinct type claim so they can never be used to authorize API calls
// directly (and vice versa).
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 30 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Token type claim values.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalidToken is returned when a token fails signature or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenPair is an access/refresh token pair as returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Manager signs and verifies tokens with a single HS256 secret.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTTLs overrides the default token lifetimes.
func WithTTLs(access, refresh time.Duration) Option {
	return func(m *Manager) {
		m.accessTTL = access
		m.refreshTTL = refresh
	}
}

// NewManager creates a [Manager]. The secret must be non-empty.
func NewManager(secret string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("auth: secret must not be empty")
	}
	m := &Manager{
		secret:     []byte(secret),
		accessTTL:  AccessTokenTTL,
		refreshTTL: RefreshTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// IssuePair creates a fresh access/refresh pair for the given user.
func (m *Manager) IssuePair(userID int64) (TokenPair, error) {
	access, err := m.sign(userID, TypeAccess, m.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.sign(userID, TypeRefresh, m.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (m *Manager) sign(userID int64, tokenType string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"type": tokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// Verify parses tokenString, checks the signature and expiry, and requires
// the type claim to equal expectedType. It returns the user ID from the
// subject claim.
func (m *Manager) Verify(tokenString, expectedType string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	if typ, _ := claims["type"].(string); typ != expectedType {
		return 0, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return userID, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
