package store

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// Schema names the users table and its columns
type Schema struct {
	Table        string
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    string
	LastLogin    string
	Active       string
	AccountType  string
}

// DefaultSchema is the layout assumed when nothing is configured
func DefaultSchema() Schema {
	return Schema{
		Table:        "users",
		ID:           "id",
		Username:     "username",
		PasswordHash: "password_hash",
		CreatedAt:    "created_at",
		LastLogin:    "last_login",
		Active:       "active",
		AccountType:  "account_type",
	}
}

// withDefaults fills empty names from DefaultSchema
func (s Schema) withDefaults() Schema {
	d := DefaultSchema()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return Schema{
		Table:        pick(s.Table, d.Table),
		ID:           pick(s.ID, d.ID),
		Username:     pick(s.Username, d.Username),
		PasswordHash: pick(s.PasswordHash, d.PasswordHash),
		CreatedAt:    pick(s.CreatedAt, d.CreatedAt),
		LastLogin:    pick(s.LastLogin, d.LastLogin),
		Active:       pick(s.Active, d.Active),
		AccountType:  pick(s.AccountType, d.AccountType),
	}
}

// quote returns a safely quoted SQL identifier. A dotted table name is
// treated as schema-qualified.
func quote(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
