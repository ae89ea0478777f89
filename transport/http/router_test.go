package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/portero/adapters/hasher"
	"github.com/layer-3/portero/adapters/store"
	"github.com/layer-3/portero/adapters/tokenizer"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/internal/logging"
	"github.com/layer-3/portero/ports"
	"github.com/layer-3/portero/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingPublisher struct {
	claims []*core.Claims
}

func (p *recordingPublisher) PublishLogout(_ context.Context, claims *core.Claims) error {
	p.claims = append(p.claims, claims)
	return nil
}

type downStore struct {
	err error
}

func (s downStore) FindByUsername(context.Context, string) (*core.Credential, error) {
	return nil, s.err
}

func (s downStore) TouchLastLogin(context.Context, string) (bool, error) {
	return false, s.err
}

func (s downStore) Ping(context.Context) error {
	return s.err
}

type testServer struct {
	router *gin.Engine
	events *recordingPublisher
	logs   *bytes.Buffer
}

func newTestServer(t *testing.T, credStore ports.CredentialStore, prefix string) *testServer {
	t.Helper()

	h := hasher.NewBcryptHasher(4, nil)
	if credStore == nil {
		hash, err := h.Hash("secret123")
		require.NoError(t, err)
		credStore = store.NewMemoryStore(core.Credential{
			ID:           "1",
			Username:     "alice",
			PasswordHash: hash,
			Active:       true,
			AccountType:  "admin",
			CreatedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		})
	}

	logs := &bytes.Buffer{}
	logger := logging.New(logs, "json", "debug")
	events := &recordingPublisher{}
	tk := tokenizer.NewJWTTokenizer([]byte("test-secret"), time.Hour, tokenizer.WithIssuer("portero"))
	svc := service.NewAuthService(credStore, h, tk, events, logger, service.Options{HealthTimeout: time.Second})

	router := SetupRouter(svc, RouterConfig{
		AuthPrefix:     prefix,
		AllowedOrigins: []string{"http://localhost:3000"},
		Banner:         "portero authentication gateway",
		Version:        "test",
		Logger:         logger,
	})
	return &testServer{router: router, events: events, logs: logs}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	w := s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"secret123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestLogin_Success(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"secret123"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Login successful", body["message"])
	assert.NotEmpty(t, body["token"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1", user["id"])
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, true, user["active"])
	assert.Equal(t, "admin", user["account_type"])
	assert.Equal(t, "2025-01-02T03:04:05Z", user["created_at"])
	assert.NotNil(t, user["last_login"])
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, w.Body.String(), "$2a$")
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{"empty body", "", http.StatusBadRequest, "No data provided"},
		{"not json", "username=alice", http.StatusBadRequest, "No data provided"},
		{"empty object", "{}", http.StatusBadRequest, "No data provided"},
		{"null", "null", http.StatusBadRequest, "No data provided"},
		{"missing password", `{"username":"alice"}`, http.StatusBadRequest, "Username and password are required"},
		{"blank username", `{"username":"   ","password":"secret123"}`, http.StatusBadRequest, "Username and password are required"},
		{"wrong types", `{"username":7,"password":"secret123"}`, http.StatusBadRequest, "Username and password are required"},
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized, "Invalid username or password"},
		{"unknown user", `{"username":"mallory","password":"secret123"}`, http.StatusUnauthorized, "Invalid username or password"},
		{"wrong case", `{"username":"ALICE","password":"secret123"}`, http.StatusUnauthorized, "Invalid username or password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, "")
			w := s.do(http.MethodPost, "/auth/login", tt.body, nil)

			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["message"])
			assert.NotContains(t, body, "token")
		})
	}
}

func TestLogin_PaddedUsername(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(http.MethodPost, "/auth/login", `{"username":"  alice ","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_BodyTooLarge(t *testing.T) {
	s := newTestServer(t, nil, "")

	body := `{"username":"alice","password":"` + strings.Repeat("x", DefaultMaxBodyBytes) + `"}`
	w := s.do(http.MethodPost, "/auth/login", body, nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "Request body too large", resp["message"])
}

func TestLogin_StoreDown(t *testing.T) {
	s := newTestServer(t, downStore{err: fmt.Errorf("find credential: %w: dial tcp 10.0.0.1:5432: connection refused", core.ErrStoreUnavailable)}, "")

	w := s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	body := decode(t, w)
	assert.Equal(t, "Internal server error", body["message"])
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestVerify(t *testing.T) {
	s := newTestServer(t, nil, "")
	token := s.login(t)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantMsg  string
	}{
		{"bearer", "Bearer " + token, http.StatusOK, "Token is valid"},
		{"lowercase scheme", "bearer " + token, http.StatusOK, "Token is valid"},
		{"raw token", token, http.StatusOK, "Token is valid"},
		{"padded", "  Bearer   " + token + "  ", http.StatusOK, "Token is valid"},
		{"no header", "", http.StatusUnauthorized, "Token is missing"},
		{"scheme only", "Bearer", http.StatusUnauthorized, "Token is missing"},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized, "Token is invalid or expired"},
		{"truncated", "Bearer " + token[:len(token)-4], http.StatusUnauthorized, "Token is invalid or expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := s.do(http.MethodGet, "/auth/verify", "", headers)

			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.wantMsg, body["message"])
			if tt.wantCode != http.StatusOK {
				return
			}
			user := body["user"].(map[string]any)
			assert.Equal(t, "1", user["id"])
			assert.Equal(t, "alice", user["username"])
		})
	}
}

func TestVerify_TokenFromAnotherSecret(t *testing.T) {
	s := newTestServer(t, nil, "")

	other := tokenizer.NewJWTTokenizer([]byte("someone-else"), time.Hour, tokenizer.WithIssuer("portero"))
	forged, _, err := other.Issue(core.Claims{UserID: "1", Username: "alice"})
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/auth/verify", "", map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token is invalid or expired", decode(t, w)["message"])
}

func TestLogout(t *testing.T) {
	s := newTestServer(t, nil, "")
	token := s.login(t)

	w := s.do(http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, s.events.claims)

	w = s.do(http.MethodPost, "/auth/logout", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Logout successful", body["message"])

	require.Len(t, s.events.claims, 1)
	assert.Equal(t, "alice", s.events.claims[0].Username)

	// tokens stay valid until expiry
	w = s.do(http.MethodGet, "/auth/verify", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHealth(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(http.MethodGet, "/auth/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Auth service is running", body["message"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "portero authentication gateway", body["message"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, "running", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		store        ports.CredentialStore
		wantCode     int
		wantStatus   string
		wantDatabase string
	}{
		{"healthy", nil, http.StatusOK, "healthy", "connected"},
		{
			"degraded",
			downStore{err: fmt.Errorf("db error: ping: %w", fmt.Errorf("permission denied"))},
			http.StatusServiceUnavailable, "degraded", "disconnected",
		},
		{
			"unreachable",
			downStore{err: fmt.Errorf("ping: %w", core.ErrStoreUnavailable)},
			http.StatusServiceUnavailable, "unhealthy", "unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.store, "")
			w := s.do(http.MethodGet, "/health", "", nil)

			assert.Equal(t, tt.wantCode, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, tt.wantDatabase, body["database"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, nil, "")

	for _, path := range []string{"/nope", "/auth/nope", "/api/auth/login"} {
		w := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Endpoint not found", body["message"])
	}
}

func TestCustomPrefix(t *testing.T) {
	s := newTestServer(t, nil, "/api/auth")

	w := s.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/auth/login", `{"username":"alice","password":"secret123"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecovery(t *testing.T) {
	s := newTestServer(t, nil, "")
	s.router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := s.do(http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Internal server error", body["message"])
	assert.Contains(t, s.logs.String(), "kaboom")
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(http.MethodGet, "/auth/health", "", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Contains(t, s.logs.String(), "req-123")

	w = s.do(http.MethodGet, "/auth/health", "", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil, "")

	w := s.do(http.MethodOptions, "/auth/login", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Less(t, w.Code, 300)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = s.do(http.MethodOptions, "/auth/login", "", map[string]string{
		"Origin":                        "http://evil.example.com",
		"Access-Control-Request-Method": "POST",
	})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"":               "",
		"   ":            "",
		"Bearer":         "",
		"Bearer abc":     "abc",
		"BEARER abc":     "abc",
		"abc":            "abc",
		"  abc  ":        "abc",
		"Basic dXNlcjpw": "Basic dXNlcjpw",
		"Bearer abc def": "Bearer abc def",
	}
	for in, want := range tests {
		assert.Equal(t, want, bearerToken(in), "%q", in)
	}
}

func TestClaimsFrom(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := ClaimsFrom(c)
	assert.False(t, ok)

	want := &core.Claims{UserID: "1", Username: "alice"}
	c.Set(claimsContextKey, want)
	got, ok := ClaimsFrom(c)
	require.True(t, ok)
	assert.Same(t, want, got)
}

func TestVerify_ExpiredToken(t *testing.T) {
	s := newTestServer(t, nil, "")

	past := func() time.Time { return time.Now().Add(-3 * time.Hour) }
	old := tokenizer.NewJWTTokenizer([]byte("test-secret"), time.Hour, tokenizer.WithIssuer("portero"), tokenizer.WithClock(past))
	expired, _, err := old.Issue(core.Claims{UserID: "1", Username: "alice"})
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/auth/verify", "", map[string]string{"Authorization": "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token is invalid or expired", decode(t, w)["message"])
	assert.Contains(t, s.logs.String(), "token expired")
}
