package ports

import (
	"context"

	"github.com/layer-3/portero/core"
)

// CredentialStore reads and updates rows of the hosted users table
type CredentialStore interface {
	// FindByUsername returns the row whose username matches exactly, or nil when there is none
	FindByUsername(ctx context.Context, username string) (*core.Credential, error)

	// TouchLastLogin sets the last-login timestamp. It reports false, with the
	// cause, on any failure; callers treat the write as best-effort.
	TouchLastLogin(ctx context.Context, id string) (bool, error)

	// Ping checks that the store answers queries
	Ping(ctx context.Context) error
}
