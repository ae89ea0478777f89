package core

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Credential is a row of the hosted users table
type Credential struct {
	ID           string
	Username     string
	PasswordHash string
	Active       bool
	AccountType  string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// PublicUser is the caller-facing view of a Credential
type PublicUser struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login"`
	Active      bool       `json:"active"`
	AccountType string     `json:"account_type"`
}

// Public returns the credential without its password hash
func (c *Credential) Public() PublicUser {
	return PublicUser{
		ID:          c.ID,
		Username:    c.Username,
		CreatedAt:   c.CreatedAt,
		LastLogin:   c.LastLogin,
		Active:      c.Active,
		AccountType: c.AccountType,
	}
}

// Claims are the identity facts carried inside a session token
type Claims struct {
	TokenID   string    // JWT ID, used for log correlation
	UserID    string    // Credential.ID
	Username  string    // Credential.Username
	IssuedAt  time.Time // When the token was signed
	ExpiresAt time.Time // When the token stops being accepted
}

// LoginRequest is the input of a login attempt
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Normalize trims the username. The password is kept verbatim.
func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// Validate checks that both fields are present. A password made only of
// whitespace counts as missing.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.By(notBlank)),
	)
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// LoginResult is returned on a successful login
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      PublicUser
}
