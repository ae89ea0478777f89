package main

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	"github.com/layer-3/portero/adapters/events"
	"github.com/layer-3/portero/adapters/store"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/internal/config"
	"github.com/layer-3/portero/internal/logging"
	"github.com/layer-3/portero/ports"
	"github.com/redis/go-redis/v9"
)

// openStore builds the credential store selected by STORE_DRIVER. Nothing
// dials the store here; the first request does.
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (ports.CredentialStore, func(), error) {
	var (
		credStore ports.CredentialStore
		closeFn   = func() {}
	)

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := store.OpenPostgres(cfg.Store.Endpoint, cfg.Store.Key)
		if err != nil {
			return nil, nil, err
		}
		credStore = store.NewPostgresStore(db, store.Schema(cfg.Store.Schema))
		closeFn = func() { _ = db.Close() }
	case config.DriverSupabase:
		s, err := store.NewSupabaseStore(cfg.Store.Endpoint, cfg.Store.Key, store.Schema(cfg.Store.Schema))
		if err != nil {
			return nil, nil, err
		}
		credStore = s
	case config.DriverRedis:
		client, err := store.NewRedisClient(cfg.Store.Endpoint, cfg.Store.Key)
		if err != nil {
			return nil, nil, err
		}
		credStore = store.NewRedisStore(client, cfg.Store.KeyPrefix)
		closeFn = func() { _ = client.Close() }
	case config.DriverMemory:
		credStore = store.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if err := seedStore(ctx, credStore, cfg.SeedUsers, logger); err != nil {
		closeFn()
		return nil, nil, err
	}
	return credStore, closeFn, nil
}

// seedStore writes the configured seed users into stores that accept writes
func seedStore(ctx context.Context, credStore ports.CredentialStore, seeds []config.SeedUser, logger logging.Logger) error {
	if len(seeds) == 0 {
		return nil
	}

	p, ok := credStore.(store.Provisioner)
	if !ok {
		logger.Warn(ctx, "seed_users ignored: store does not accept writes", "count", len(seeds))
		return nil
	}

	for _, seed := range seeds {
		c := core.Credential{
			ID:           seed.ID,
			Username:     seed.Username,
			PasswordHash: seed.PasswordHash,
			Active:       seed.Active == nil || *seed.Active,
			AccountType:  seed.AccountType,
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if err := p.Save(ctx, c); err != nil {
			return fmt.Errorf("seed user %q: %w", seed.Username, err)
		}
	}

	logger.Info(ctx, "seeded credential store", "count", len(seeds))
	return nil
}

// openEvents returns the session event publisher. Without EVENTS_REDIS_URL
// events are dropped.
func openEvents(cfg *config.Config) (ports.EventPublisher, func(), error) {
	if cfg.EventsRedisURL == "" {
		return events.NopPublisher{}, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.EventsRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse EVENTS_REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	publisher, err := events.NewRedisStreamPublisher(client, watermill.NewStdLogger(cfg.LogLevel == "debug", false))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	pub := events.NewWatermillPublisher(publisher, cfg.EventsTopic)
	return pub, func() {
		_ = pub.Close()
		_ = client.Close()
	}, nil
}
