package ports

import (
	"context"

	"github.com/layer-3/portero/core"
)

// EventPublisher publishes session lifecycle events to other services
type EventPublisher interface {
	PublishLogout(ctx context.Context, claims *core.Claims) error
}
