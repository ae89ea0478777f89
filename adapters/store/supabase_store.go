package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/portero/core"
	"github.com/supabase-community/postgrest-go"
)

const restPath = "/rest/v1"

// SupabaseStore reads credentials through the PostgREST API of a hosted
// Supabase project.
type SupabaseStore struct {
	client *postgrest.Client
	schema Schema
	table  string
	now    func() time.Time

	columns string
}

// NewSupabaseStore creates a store for the project at endpoint, the
// https://<ref>.supabase.co URL, authenticating with the project API key.
// A dotted table name selects the Postgres schema exposed by the API.
func NewSupabaseStore(endpoint, apiKey string, schema Schema) (*SupabaseStore, error) {
	return newSupabaseStore(endpoint, apiKey, schema, time.Now)
}

func newSupabaseStore(endpoint, apiKey string, schema Schema, now func() time.Time) (*SupabaseStore, error) {
	base, err := restURL(endpoint)
	if err != nil {
		return nil, err
	}

	s := schema.withDefaults()
	dbSchema, table := "", s.Table
	if i := strings.LastIndex(s.Table, "."); i >= 0 {
		dbSchema, table = s.Table[:i], s.Table[i+1:]
	}

	client := postgrest.NewClient(base, dbSchema, map[string]string{
		"apikey":        apiKey,
		"Authorization": "Bearer " + apiKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to create store client: %w", client.ClientError)
	}

	return &SupabaseStore{
		client: client,
		schema: s,
		table:  table,
		now:    now,
		columns: strings.Join([]string{
			s.ID, s.Username, s.PasswordHash, s.CreatedAt, s.LastLogin, s.Active, s.AccountType,
		}, ","),
	}, nil
}

// restURL turns a project URL into its REST endpoint
func restURL(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("failed to parse store endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("failed to parse store endpoint: %q is not an http(s) URL", endpoint)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(u.Path, restPath) {
		u.Path += restPath
	}
	return u.String(), nil
}

// FindByUsername fetches the row with exactly this username
func (s *SupabaseStore) FindByUsername(ctx context.Context, username string) (*core.Credential, error) {
	body, err := s.execute(ctx, func() ([]byte, int64, error) {
		return s.client.From(s.table).
			Select(s.columns, "", false).
			Eq(s.schema.Username, username).
			Limit(1, "").
			Execute()
	})
	if err != nil {
		return nil, wrapErr("find credential", err)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("db error: find credential: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return s.decodeRow(rows[0])
}

// TouchLastLogin stamps the current time on the row with this id
func (s *SupabaseStore) TouchLastLogin(ctx context.Context, id string) (bool, error) {
	stamp := s.now().UTC().Format(time.RFC3339Nano)

	body, err := s.execute(ctx, func() ([]byte, int64, error) {
		return s.client.From(s.table).
			Update(map[string]any{s.schema.LastLogin: stamp}, "representation", "").
			Eq(s.schema.ID, id).
			Execute()
	})
	if err != nil {
		return false, wrapErr("touch last login", err)
	}

	rows, err := decodeRows(body)
	if err != nil {
		return false, fmt.Errorf("db error: touch last login: %w", err)
	}
	return len(rows) > 0, nil
}

// Ping issues a trivial read against the users table
func (s *SupabaseStore) Ping(ctx context.Context) error {
	body, err := s.execute(ctx, func() ([]byte, int64, error) {
		return s.client.From(s.table).
			Select(s.schema.ID, "", false).
			Limit(1, "").
			Execute()
	})
	if err != nil {
		return wrapErr("ping", err)
	}
	if _, err := decodeRows(body); err != nil {
		return fmt.Errorf("db error: ping: %w", err)
	}
	return nil
}

// execute runs call and gives up when ctx ends. The client has no context
// support, so an abandoned call finishes in the background.
func (s *SupabaseStore) execute(ctx context.Context, call func() ([]byte, int64, error)) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}

	done := make(chan result, 1)
	go func() {
		body, _, err := call()
		done <- result{body: body, err: err}
	}()

	select {
	case r := <-done:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func decodeRows(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

func (s *SupabaseStore) decodeRow(row map[string]any) (*core.Credential, error) {
	c := &core.Credential{
		ID:           jsonString(row[s.schema.ID]),
		Username:     jsonString(row[s.schema.Username]),
		PasswordHash: jsonString(row[s.schema.PasswordHash]),
		AccountType:  jsonString(row[s.schema.AccountType]),
	}
	if active, ok := row[s.schema.Active].(bool); ok {
		c.Active = active
	}

	created, err := jsonTime(row[s.schema.CreatedAt])
	if err != nil {
		return nil, fmt.Errorf("db error: decode %s: %w", s.schema.CreatedAt, err)
	}
	if created != nil {
		c.CreatedAt = *created
	}

	if c.LastLogin, err = jsonTime(row[s.schema.LastLogin]); err != nil {
		return nil, fmt.Errorf("db error: decode %s: %w", s.schema.LastLogin, err)
	}
	return c, nil
}

func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// PostgREST renders timestamptz with an offset and timestamp without one
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"}

func jsonTime(v any) (*time.Time, error) {
	str, ok := v.(string)
	if !ok || str == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", str)
}
