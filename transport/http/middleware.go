package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/internal/logging"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

const claimsContextKey = "portero.claims"

// TokenVerifier resolves a bearer token into session claims
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*core.Claims, error)
}

// RequireToken creates middleware that rejects requests without a valid
// session token. It accepts both "Bearer <token>" and the bare token.
func RequireToken(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure(msgTokenMissing))
			return
		}

		claims, err := verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, failure(msgTokenInvalid))
			return
		}

		c.Set(claimsContextKey, claims)
		c.Request = c.Request.WithContext(core.WithClaims(c.Request.Context(), claims))

		c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireToken
func ClaimsFrom(c *gin.Context) (*core.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*core.Claims)
	return claims, ok && claims != nil
}

func bearerToken(header string) string {
	parts := strings.Fields(header)
	switch {
	case len(parts) == 0:
		return ""
	case strings.EqualFold(parts[0], "Bearer"):
		if len(parts) == 2 {
			return parts[1]
		}
		if len(parts) == 1 {
			return ""
		}
	}
	return strings.TrimSpace(header)
}

// DefaultMaxBodyBytes caps request bodies on the auth routes
const DefaultMaxBodyBytes = 16 << 10

// LimitBody caps the request body at limit bytes. Reading past the cap fails
// with *http.MaxBytesError.
func LimitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// RequestLogger writes one structured line per request and puts a
// request-scoped logger into the request context.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)

		log := logger.With("request_id", reqID)
		ctx := logging.IntoContext(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error(ctx, "request", args...)
		case status >= http.StatusBadRequest:
			log.Warn(ctx, "request", args...)
		default:
			log.Info(ctx, "request", args...)
		}
	}
}

// Recovery turns a panic into the uniform 500 response
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		ctx := c.Request.Context()
		logging.FromContext(ctx, logger).Error(ctx, "panic recovered", "panic", fmt.Sprint(recovered))
		c.AbortWithStatusJSON(http.StatusInternalServerError, failure(msgInternal))
	})
}

// CORS allows the configured browser origins with credentials
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowCredentials = true
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}
	cfg.ExposeHeaders = []string{RequestIDHeader}

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	if cfg.AllowAllOrigins {
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}

	return cors.New(cfg)
}
