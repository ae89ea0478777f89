package hasher

import (
	"context"
	"errors"
	"fmt"

	"github.com/layer-3/portero/internal/logging"
	"github.com/layer-3/portero/ports"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured
const DefaultCost = 12

// BcryptHasher implements the PasswordHasher interface using bcrypt
type BcryptHasher struct {
	cost   int
	logger logging.Logger
}

// NewBcryptHasher creates a bcrypt hasher. Out-of-range costs are clamped.
func NewBcryptHasher(cost int, logger logging.Logger) ports.PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &BcryptHasher{cost: cost, logger: logger}
}

// Hash salts and hashes password. bcrypt draws a new salt on every call.
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares password with storedHash in constant time
func (h *BcryptHasher) Verify(password, storedHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		h.logger.Warn(context.Background(), "password verification error", "error", err)
	}
	return false
}
