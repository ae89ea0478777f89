package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/ports"
)

// DefaultTTL is the session token lifetime used when none is configured
const DefaultTTL = 24 * time.Hour

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithIssuer sets the iss claim and requires it on verification
func WithIssuer(issuer string) Option {
	return func(j *JWTTokenizer) { j.issuer = issuer }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// NewJWTTokenizer creates a new JWT tokenizer signing with secret
func NewJWTTokenizer(secret []byte, ttl time.Duration, opts ...Option) ports.Tokenizer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	j := &JWTTokenizer{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Issue signs claims, stamping issued-at and expiry
func (j *JWTTokenizer) Issue(claims core.Claims) (string, *core.Claims, error) {
	// NumericDate has second precision; truncate so the returned claims match the token
	now := j.now().UTC().Truncate(time.Second)
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(j.ttl)
	if claims.TokenID == "" {
		claims.TokenID = uuid.New().String()
	}

	sc := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			ID:        claims.TokenID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		UserID:   claims.UserID,
		Username: claims.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sc)

	signedToken, err := token.SignedString(j.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w: %w", core.ErrEncoding, err)
	}

	return signedToken, &claims, nil
}

// Verify parses a token, checking signature, expiry and issuer
func (j *JWTTokenizer) Verify(tokenStr string) (*core.Claims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", core.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", core.ErrTokenInvalid, err)
	}

	// Validate token
	if !token.Valid {
		return nil, core.ErrTokenInvalid
	}

	// Extract claims
	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type: %w", core.ErrTokenInvalid)
	}
	if claims.UserID == "" || claims.Username == "" {
		return nil, fmt.Errorf("missing identity claims: %w", core.ErrTokenInvalid)
	}

	session := &core.Claims{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time.UTC()
	}

	return session, nil
}
