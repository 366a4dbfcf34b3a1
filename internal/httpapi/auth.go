package httpapi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"finlogs/backend/internal/domain"
)

var errInvalidToken = errors.New("invalid token")

type claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwtlib.RegisteredClaims
}

// AuthManager issues and verifies the HS256 bearer tokens the API uses.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), tokenTTL: tokenTTL}
}

func (a *AuthManager) IssueToken(username, role string) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (a *AuthManager) VerifyToken(raw string) (*domain.Actor, error) {
	parsed, err := jwtlib.ParseWithClaims(raw, &claims{}, func(t *jwtlib.Token) (any, error) {
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, errInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.Username == "" {
		return nil, errInvalidToken
	}
	return &domain.Actor{Username: c.Username, Role: c.Role}, nil
}

// attemptLimiter throttles repeated failed logins per username. Counters
// reset after the lockout window or on a successful login.
type attemptLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	maxTries int
	failures map[string]attemptRecord
}

type attemptRecord struct {
	count int
	first time.Time
}

func newAttemptLimiter(maxTries int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		window:   window,
		maxTries: maxTries,
		failures: make(map[string]attemptRecord),
	}
}

func (l *attemptLimiter) allowed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.failures[key]
	if !ok {
		return true
	}
	if time.Since(rec.first) > l.window {
		delete(l.failures, key)
		return true
	}
	return rec.count < l.maxTries
}

func (l *attemptLimiter) fail(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.failures[key]
	if !ok || time.Since(rec.first) > l.window {
		l.failures[key] = attemptRecord{count: 1, first: time.Now()}
		return
	}
	rec.count++
	l.failures[key] = rec
}

func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
}
