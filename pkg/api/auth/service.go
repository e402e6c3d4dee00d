package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrMissingIdentity     = errors.New("token has no issuer or subject")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("user token secret must be at least 32 characters")
)

// DefaultTokenDuration is the lifetime of tokens issued without an explicit TTL.
const DefaultTokenDuration = 24 * time.Hour

// TokenService validates user tokens signed with a shared HMAC secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a token service. The secret must be at least 32
// characters.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// WithClock replaces the clock used for issuing and validating tokens.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// UserSpec describes the caller a token is issued for.
type UserSpec struct {
	Issuer       string
	Subject      string
	Attributes   map[string][]string
	Capabilities []string
}

// Issue signs a token for user valid for ttl. A zero ttl uses
// DefaultTokenDuration.
func (s *TokenService) Issue(user UserSpec, ttl time.Duration) (string, error) {
	if user.Issuer == "" || user.Subject == "" {
		return "", ErrMissingIdentity
	}
	if ttl <= 0 {
		ttl = DefaultTokenDuration
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    user.Issuer,
			Subject:   user.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Capabilities: user.Capabilities,
		Attributes:   user.Attributes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Validate parses a token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
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
	if claims.Issuer == "" || claims.Subject == "" {
		return nil, ErrMissingIdentity
	}
	return claims, nil
}
