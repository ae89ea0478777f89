package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/portero/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	claims *core.Claims
	err    error
	tokens []string
}

func (v *fakeVerifier) VerifyToken(_ context.Context, token string) (*core.Claims, error) {
	v.tokens = append(v.tokens, token)
	return v.claims, v.err
}

func guardedRouter(v TokenVerifier, reached *int, seen **core.Claims) *gin.Engine {
	r := gin.New()
	r.GET("/private", RequireToken(v), func(c *gin.Context) {
		*reached++
		fromGin, _ := ClaimsFrom(c)
		fromCtx, _ := core.ClaimsFromContext(c.Request.Context())
		if fromGin == fromCtx {
			*seen = fromGin
		}
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireToken_PassesIdentityThrough(t *testing.T) {
	want := &core.Claims{TokenID: "t", UserID: "1", Username: "alice"}
	v := &fakeVerifier{claims: want}

	var reached int
	var seen *core.Claims
	r := guardedRouter(v, &reached, &seen)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, reached)
	require.NotNil(t, seen)
	assert.Same(t, want, seen)
	assert.Equal(t, []string{"abc.def.ghi"}, v.tokens)
}

func TestRequireToken_RejectsBeforeHandler(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		err      error
		wantMsg  string
		verified bool
	}{
		{"missing header", "", nil, "Token is missing", false},
		{"expired", "Bearer old", core.ErrTokenInvalid, "Token is invalid or expired", true},
		{"invalid", "junk", core.ErrTokenInvalid, "Token is invalid or expired", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{err: tt.err}
			var reached int
			var seen *core.Claims
			r := guardedRouter(v, &reached, &seen)

			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Zero(t, reached)
			assert.Equal(t, tt.verified, len(v.tokens) > 0)
			assert.JSONEq(t, `{"success":false,"message":"`+tt.wantMsg+`"}`, w.Body.String())
		})
	}
}
