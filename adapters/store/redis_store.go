package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/portero/core"
	"github.com/redis/go-redis/v9"
)

const (
	fieldID           = "id"
	fieldUsername     = "username"
	fieldPasswordHash = "password_hash"
	fieldCreatedAt    = "created_at"
	fieldLastLogin    = "last_login"
	fieldActive       = "active"
	fieldAccountType  = "account_type"
)

// NewRedisClient builds a client for the Redis URL at endpoint. password, when
// set, overrides any password in the URL. No connection is made until the
// first command.
func NewRedisClient(endpoint, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse store endpoint: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	return redis.NewClient(opts), nil
}

// touchScript sets a field only on a hash that already exists
var touchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// RedisStore keeps each credential in a hash at <prefix>user:<id> with a
// <prefix>username:<name> key pointing back at the id.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a credential store over client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) userKey(id string) string {
	return s.prefix + "user:" + id
}

func (s *RedisStore) usernameKey(username string) string {
	return s.prefix + "username:" + username
}

// FindByUsername resolves the username index and loads the user hash
func (s *RedisStore) FindByUsername(ctx context.Context, username string) (*core.Credential, error) {
	id, err := s.client.Get(ctx, s.usernameKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, wrapErr("find credential", err)
	}

	fields, err := s.client.HGetAll(ctx, s.userKey(id)).Result()
	if err != nil {
		return nil, wrapErr("find credential", err)
	}
	// Dangling index entry
	if len(fields) == 0 || fields[fieldUsername] != username {
		return nil, nil
	}

	return decodeCredential(id, fields)
}

// TouchLastLogin stamps the current time on an existing user hash. A missing
// hash is left alone.
func (s *RedisStore) TouchLastLogin(ctx context.Context, id string) (bool, error) {
	stamp := s.now().UTC().Format(time.RFC3339Nano)

	n, err := touchScript.Run(ctx, s.client, []string{s.userKey(id)}, fieldLastLogin, stamp).Int64()
	if err != nil {
		return false, wrapErr("touch last login", err)
	}
	return n == 1, nil
}

// Ping checks the server answers
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

// Save inserts or replaces a credential. It fails with ErrUsernameTaken when
// the username already belongs to a different id.
func (s *RedisStore) Save(ctx context.Context, c core.Credential) error {
	if c.ID == "" || c.Username == "" {
		return fmt.Errorf("save credential: id and username are required")
	}

	owner, err := s.client.Get(ctx, s.usernameKey(c.Username)).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return wrapErr("save credential", err)
	case owner != c.ID:
		return ErrUsernameTaken
	}

	previous, err := s.client.HGet(ctx, s.userKey(c.ID), fieldUsername).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return wrapErr("save credential", err)
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != "" && previous != c.Username {
			pipe.Del(ctx, s.usernameKey(previous))
		}
		pipe.Del(ctx, s.userKey(c.ID))
		pipe.HSet(ctx, s.userKey(c.ID), encodeCredential(c))
		pipe.Set(ctx, s.usernameKey(c.Username), c.ID, 0)
		return nil
	})
	if err != nil {
		return wrapErr("save credential", err)
	}
	return nil
}

func encodeCredential(c core.Credential) map[string]any {
	fields := map[string]any{
		fieldID:           c.ID,
		fieldUsername:     c.Username,
		fieldPasswordHash: c.PasswordHash,
		fieldCreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldActive:       strconv.FormatBool(c.Active),
		fieldAccountType:  c.AccountType,
	}
	if c.LastLogin != nil {
		fields[fieldLastLogin] = c.LastLogin.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func decodeCredential(id string, fields map[string]string) (*core.Credential, error) {
	c := &core.Credential{
		ID:           id,
		Username:     fields[fieldUsername],
		PasswordHash: fields[fieldPasswordHash],
		AccountType:  fields[fieldAccountType],
	}

	if v := fields[fieldActive]; v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("db error: decode %s: %w", fieldActive, err)
		}
		c.Active = active
	}

	if v := fields[fieldCreatedAt]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("db error: decode %s: %w", fieldCreatedAt, err)
		}
		c.CreatedAt = t
	}

	if v := fields[fieldLastLogin]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("db error: decode %s: %w", fieldLastLogin, err)
		}
		c.LastLogin = &t
	}

	return c, nil
}
