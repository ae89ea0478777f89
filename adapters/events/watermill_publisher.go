package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/ports"
	"github.com/redis/go-redis/v9"
)

// EventTypeLogout is set as the event_type metadata on logout messages
const EventTypeLogout = "session.logout"

// LogoutEvent is the payload published when a session ends
type LogoutEvent struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	TokenID     string    `json:"token_id"`
	LoggedOutAt time.Time `json:"logged_out_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
	now       func() time.Time
}

// NewWatermillPublisher creates a publisher writing to topic
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
	}
}

// NewRedisStreamPublisher creates a watermill publisher backed by a Redis stream
func NewRedisStreamPublisher(client redis.UniversalClient, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}
	return pub, nil
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, claims *core.Claims) error {
	if claims == nil {
		return fmt.Errorf("publish logout: no claims")
	}

	event := LogoutEvent{
		UserID:      claims.UserID,
		Username:    claims.Username,
		TokenID:     claims.TokenID,
		LoggedOutAt: p.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", EventTypeLogout)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close releases the underlying publisher
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// NopPublisher drops every event. It is used when no event stream is configured.
type NopPublisher struct{}

// PublishLogout does nothing
func (NopPublisher) PublishLogout(context.Context, *core.Claims) error {
	return nil
}

var (
	_ ports.EventPublisher = (*WatermillPublisher)(nil)
	_ ports.EventPublisher = NopPublisher{}
)
