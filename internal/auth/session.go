package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pocketbook/internal/log"
	"pocketbook/internal/models"
	"pocketbook/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a cookie does not resolve to a live
// session.
var ErrUnauthenticated = errors.New("not authenticated")

const (
	// DefaultSessionDuration is how long sessions last (30 days).
	DefaultSessionDuration = 30 * 24 * time.Hour
	// MinSecretBytes is the shortest accepted signing secret.
	MinSecretBytes = 32

	sessionIssuer = "pocketbook"
)

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	ValidateSessionWithInfo(ctx context.Context, token string) (*storage.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// Resolved is the outcome of a successful Resolve.
type Resolved struct {
	User *models.User
	// Renewed is set when the session expiry was pushed out and the cookie
	// should be re-issued.
	Renewed bool
}

// SessionManager issues, resolves and destroys login sessions. The cookie
// value is a signed token naming a row in the session store.
type SessionManager struct {
	store    SessionStore
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

// NewSessionManager creates a SessionManager. The secret must be at least
// MinSecretBytes long.
func NewSessionManager(store SessionStore, secret []byte, duration time.Duration) (*SessionManager, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretBytes)
	}
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionManager{
		store:    store,
		secret:   secret,
		duration: duration,
		now:      time.Now,
	}, nil
}

// SetClock replaces the time source.
func (m *SessionManager) SetClock(now func() time.Time) {
	m.now = now
}

// Duration returns the session lifetime.
func (m *SessionManager) Duration() time.Duration {
	return m.duration
}

// Create starts a session for userID and returns the cookie value.
func (m *SessionManager) Create(ctx context.Context, userID int64) (string, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}

	now := m.now()
	if err := m.store.CreateSession(ctx, token, userID, now.Add(m.duration)); err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		ID:       token,
		Subject:  strconv.FormatInt(userID, 10),
		Issuer:   sessionIssuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Resolve returns the user owning the session named by cookieValue. A
// session in the second half of its lifetime is renewed; renewal failures
// are logged and otherwise ignored.
func (m *SessionManager) Resolve(ctx context.Context, cookieValue string) (*Resolved, error) {
	claims, err := m.parse(cookieValue)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	info, err := m.store.ValidateSessionWithInfo(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if claims.Subject != strconv.FormatInt(info.User.ID, 10) {
		return nil, ErrUnauthenticated
	}

	res := &Resolved{User: info.User}

	now := m.now()
	if info.ExpiresAt.Sub(now) < m.duration/2 {
		if err := m.store.RenewSession(ctx, claims.ID, now.Add(m.duration)); err != nil {
			log.FromContext(ctx).WithComponent(log.ComponentAuth).WarnContext(ctx, "session renewal failed",
				log.FieldUserID, info.User.ID,
				log.FieldError, err,
			)
		} else {
			res.Renewed = true
		}
	}

	return res, nil
}

// Destroy ends the session named by cookieValue. Unparseable values are
// ignored; storage failures are returned.
func (m *SessionManager) Destroy(ctx context.Context, cookieValue string) error {
	claims, err := m.parse(cookieValue)
	if err != nil {
		return nil
	}
	if err := m.store.DeleteSession(ctx, claims.ID); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// Sweep deletes expired sessions and reports how many were removed.
func (m *SessionManager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.CleanExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return n, nil
}

func (m *SessionManager) parse(cookieValue string) (*jwt.RegisteredClaims, error) {
	if cookieValue == "" {
		return nil, errors.New("empty session cookie")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(cookieValue, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
	)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, errors.New("session cookie without id")
	}
	return claims, nil
}
