package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/portero/internal/logging"
	"github.com/layer-3/portero/service"
)

// RouterConfig holds the transport settings taken from the process config
type RouterConfig struct {
	AuthPrefix     string
	AllowedOrigins []string
	MaxBodyBytes   int64
	Banner         string
	Version        string
	Logger         logging.Logger
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	prefix := cfg.AuthPrefix
	if prefix == "" {
		prefix = "/auth"
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	router := gin.New()
	router.Use(RequestLogger(logger), Recovery(logger), CORS(cfg.AllowedOrigins))

	handlers := NewAuthHandlers(authService, cfg.Banner, cfg.Version)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Auth routes
	auth := router.Group(prefix)
	auth.Use(LimitBody(maxBody))
	{
		auth.POST("/login", handlers.Login)
		auth.GET("/health", handlers.AuthHealth)

		protected := auth.Group("")
		protected.Use(RequireToken(authService))
		{
			protected.GET("/verify", handlers.Verify)
			protected.POST("/logout", handlers.Logout)
		}
	}

	router.NoRoute(handlers.NotFound)

	return router
}
