package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/layer-3/portero/core"
	"github.com/layer-3/portero/service"
)

const (
	msgNoData             = "No data provided"
	msgMissingCredentials = "Username and password are required"
	msgInvalidCredentials = "Invalid username or password"
	msgInternal           = "Internal server error"
	msgTokenMissing       = "Token is missing"
	msgTokenInvalid       = "Token is invalid or expired"
	msgNotFound           = "Endpoint not found"
	msgBodyTooLarge       = "Request body too large"
)

func failure(message string) gin.H {
	return gin.H{"success": false, "message": message}
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	banner      string
	version     string
	now         func() time.Time
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, banner, version string) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		banner:      banner,
		version:     version,
		now:         time.Now,
	}
}

// Login handles the login request
func (h *AuthHandlers) Login(c *gin.Context) {
	var body map[string]any
	err := c.ShouldBindBodyWith(&body, binding.JSON)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, failure(msgBodyTooLarge))
		return
	}
	if err != nil || len(body) == 0 {
		respondError(c, core.ErrBadRequest)
		return
	}

	var req core.LoginRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		respondError(c, core.ErrMissingCredentials)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful",
		"token":   res.Token,
		"user":    res.User,
	})
}

// Verify reports the identity inside a valid token
func (h *AuthHandlers) Verify(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		respondError(c, core.ErrTokenMissing)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Token is valid",
		"user": gin.H{
			"id":       claims.UserID,
			"username": claims.Username,
		},
	})
}

// Logout handles session logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	claims, _ := ClaimsFrom(c)
	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logout successful",
	})
}

// AuthHealth answers as long as the process is up
func (h *AuthHandlers) AuthHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Auth service is running",
		"timestamp": h.now().UTC(),
	})
}

// Root describes the service
func (h *AuthHandlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   h.banner,
		"version":   h.version,
		"status":    "running",
		"timestamp": h.now().UTC(),
	})
}

// Health reports whether the credential store is reachable
func (h *AuthHandlers) Health(c *gin.Context) {
	health := h.authService.CheckStore(c.Request.Context())

	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    health.Status,
		"database":  health.Database,
		"timestamp": h.now().UTC(),
	})
}

// NotFound answers unknown routes
func (h *AuthHandlers) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, failure(msgNotFound))
}

func respondError(c *gin.Context, err error) {
	switch core.KindOf(err) {
	case core.KindValidation:
		if errors.Is(err, core.ErrBadRequest) {
			c.JSON(http.StatusBadRequest, failure(msgNoData))
			return
		}
		c.JSON(http.StatusBadRequest, failure(msgMissingCredentials))
	case core.KindAuthentication:
		switch {
		case errors.Is(err, core.ErrTokenMissing):
			c.JSON(http.StatusUnauthorized, failure(msgTokenMissing))
		case errors.Is(err, core.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, failure(msgInvalidCredentials))
		default:
			c.JSON(http.StatusUnauthorized, failure(msgTokenInvalid))
		}
	default:
		c.JSON(http.StatusInternalServerError, failure(msgInternal))
	}
}
