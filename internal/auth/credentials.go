package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pocketbook/internal/models"
	"pocketbook/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown user and for a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Credentials registers users and verifies their passwords.
type Credentials struct {
	users UserStore
	cost  int

	// dummyHash is compared against when the user is unknown, so both
	// failure paths pay for one bcrypt evaluation at the same cost.
	dummyHash []byte
}

// NewCredentials returns a Credentials hashing at the given bcrypt cost.
// It fails when no hash can be produced at that cost.
func NewCredentials(users UserStore, cost int) (*Credentials, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("pocketbook-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Credentials{users: users, cost: cost, dummyHash: dummy}, nil
}

// Register creates a user and returns its id. The username is trimmed;
// storage.ErrDuplicateUsername is returned when it is taken.
func (c *Credentials) Register(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, &models.ValidationError{Field: "username", Message: "username is required"}
	}
	if password == "" {
		return 0, &models.ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) > maxPasswordBytes {
		return 0, &models.ValidationError{Field: "password", Message: fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes)}
	}

	hash, err := HashPasswordWithCost(password, c.cost)
	if err != nil {
		return 0, err
	}

	user, err := c.users.CreateUser(ctx, username, hash)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Verify returns the user whose password matches. Unknown users still cost
// one bcrypt comparison.
func (c *Credentials) Verify(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)

	user, err := c.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(c.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
