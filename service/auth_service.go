package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/internal/logging"
	"github.com/layer-3/portero/ports"
)

// Store health states reported by CheckStore
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	DatabaseConnected    = "connected"
	DatabaseDisconnected = "disconnected"
	DatabaseUnreachable  = "unreachable"
)

// fallbackDummyHash is a well-formed cost-12 bcrypt hash used when the hasher
// cannot produce a dummy hash of its own. Nothing verifies against it.
const fallbackDummyHash = "$2a$12$CCCCCCCCCCCCCCCCCCCCC.E5YPO9kmyuRGyh0XouQYb4YMJKvyOeW"

// DefaultHealthTimeout bounds the store probe when Options leaves it unset
const DefaultHealthTimeout = 3 * time.Second

// Options tunes AuthService behaviour
type Options struct {
	// RejectInactive refuses logins for accounts whose active flag is false
	RejectInactive bool
	HealthTimeout  time.Duration
}

// StoreHealth is the outcome of a store probe
type StoreHealth struct {
	Status   string
	Database string
	Err      error
}

// Healthy reports whether the store answered the probe
func (h StoreHealth) Healthy() bool {
	return h.Status == StatusHealthy
}

// AuthService handles authentication business logic
type AuthService struct {
	store     ports.CredentialStore
	hasher    ports.PasswordHasher
	tokenizer ports.Tokenizer
	events    ports.EventPublisher
	logger    logging.Logger
	opts      Options
	now       func() time.Time

	// dummyHash is compared against when the username is unknown so both
	// rejection paths spend a bcrypt verification.
	dummyHash string
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store ports.CredentialStore,
	hasher ports.PasswordHasher,
	tokenizer ports.Tokenizer,
	events ports.EventPublisher,
	logger logging.Logger,
	opts Options,
) *AuthService {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = DefaultHealthTimeout
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil || dummy == "" {
		logger.Error(context.Background(), "failed to prepare dummy password hash, using fallback", "error", err)
		dummy = fallbackDummyHash
	}

	return &AuthService{
		store:     store,
		hasher:    hasher,
		tokenizer: tokenizer,
		events:    events,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		dummyHash: dummy,
	}
}

// Login checks the username and password against the store and issues a
// session token for the matching user.
func (s *AuthService) Login(ctx context.Context, req core.LoginRequest) (*core.LoginResult, error) {
	log := logging.FromContext(ctx, s.logger)

	req.Normalize()
	if err := req.Validate(); err != nil {
		log.Debug(ctx, "login request rejected", "reason", err.Error())
		return nil, core.ErrMissingCredentials
	}
	log = log.With("username", req.Username)

	cred, err := s.store.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, s.storeFailure(ctx, log, "credential lookup failed", err)
	}
	if cred == nil {
		s.hasher.Verify(req.Password, s.dummyHash)
		log.Warn(ctx, "login rejected: user not found")
		return nil, core.ErrInvalidCredentials
	}

	log = log.With("user_id", cred.ID)
	if !s.hasher.Verify(req.Password, cred.PasswordHash) {
		log.Warn(ctx, "login rejected: invalid password")
		return nil, core.ErrInvalidCredentials
	}
	if s.opts.RejectInactive && !cred.Active {
		log.Warn(ctx, "login rejected: account inactive")
		return nil, core.ErrInvalidCredentials
	}

	touched, err := s.store.TouchLastLogin(ctx, cred.ID)
	switch {
	case err != nil:
		log.Warn(ctx, "failed to update last login", "error", err)
	case !touched:
		log.Warn(ctx, "last login not updated: no matching row")
	default:
		now := s.now().UTC()
		cred.LastLogin = &now
	}

	token, claims, err := s.tokenizer.Issue(core.Claims{UserID: cred.ID, Username: cred.Username})
	if err != nil {
		log.Error(ctx, "failed to issue token", "error", err)
		return nil, core.ErrInternal
	}

	log.Info(ctx, "login succeeded", "token_id", claims.TokenID)

	return &core.LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		User:      cred.Public(),
	}, nil
}

// VerifyToken returns the claims inside token. Every failure is reported as
// core.ErrTokenInvalid; the log line says whether it had expired.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*core.Claims, error) {
	if token == "" {
		return nil, core.ErrTokenMissing
	}

	claims, err := s.tokenizer.Verify(token)
	if err != nil {
		log := logging.FromContext(ctx, s.logger)
		if errors.Is(err, core.ErrTokenExpired) {
			log.Info(ctx, "token expired")
		} else {
			log.Warn(ctx, "token rejected", "error", err)
		}
		return nil, core.ErrTokenInvalid
	}

	return claims, nil
}

// Logout ends a session. Tokens are not revoked; a logout event is published
// for services that keep client-side state.
func (s *AuthService) Logout(ctx context.Context, claims *core.Claims) error {
	if claims == nil {
		return core.ErrTokenMissing
	}

	log := logging.FromContext(ctx, s.logger).With(
		"user_id", claims.UserID,
		"username", claims.Username,
		"token_id", claims.TokenID,
	)
	log.Info(ctx, "user logged out")

	if err := s.events.PublishLogout(ctx, claims); err != nil {
		log.Warn(ctx, "failed to publish logout event", "error", err)
	}
	return nil
}

// CheckStore probes the credential store within the configured timeout
func (s *AuthService) CheckStore(ctx context.Context) StoreHealth {
	ctx, cancel := context.WithTimeout(ctx, s.opts.HealthTimeout)
	defer cancel()

	err := s.store.Ping(ctx)
	switch {
	case err == nil:
		return StoreHealth{Status: StatusHealthy, Database: DatabaseConnected}
	case errors.Is(err, core.ErrStoreUnavailable):
		logging.FromContext(ctx, s.logger).Error(ctx, "store unreachable", "error", err)
		return StoreHealth{Status: StatusUnhealthy, Database: DatabaseUnreachable, Err: err}
	default:
		logging.FromContext(ctx, s.logger).Error(ctx, "store probe failed", "error", err)
		return StoreHealth{Status: StatusDegraded, Database: DatabaseDisconnected, Err: err}
	}
}

func (s *AuthService) storeFailure(ctx context.Context, log logging.Logger, msg string, err error) error {
	log.Error(ctx, msg, "error", err)
	if errors.Is(err, core.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", msg, core.ErrStoreUnavailable)
	}
	return core.ErrInternal
}
