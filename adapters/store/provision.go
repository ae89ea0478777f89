package store

import (
	"context"

	"github.com/layer-3/portero/core"
)

// Provisioner is implemented by stores that accept writes from this service.
// The hosted Postgres table is managed elsewhere and does not.
type Provisioner interface {
	Save(ctx context.Context, c core.Credential) error
}

var (
	_ Provisioner = (*MemoryStore)(nil)
	_ Provisioner = (*RedisStore)(nil)
)
