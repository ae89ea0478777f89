package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/portero/adapters/hasher"
	"github.com/layer-3/portero/adapters/tokenizer"
	"github.com/layer-3/portero/internal/config"
	"github.com/layer-3/portero/internal/logging"
	"github.com/layer-3/portero/service"
	"github.com/layer-3/portero/transport/http"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "hash-password":
		err = hashPassword(args, os.Stdin, os.Stdout)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "usage: portero [serve|hash-password|version]\n")
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("portero %s: %v", cmd, err)
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	credStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	eventPub, closeEvents, err := openEvents(cfg)
	if err != nil {
		return err
	}
	defer closeEvents()

	authService := service.NewAuthService(
		credStore,
		hasher.NewBcryptHasher(cfg.BcryptCost, logger),
		tokenizer.NewJWTTokenizer([]byte(cfg.SigningSecret), cfg.TokenTTL, tokenizer.WithIssuer(cfg.TokenIssuer)),
		eventPub,
		logger,
		service.Options{
			RejectInactive: cfg.RejectInactive,
			HealthTimeout:  cfg.HealthTimeout,
		},
	)

	router := http.SetupRouter(authService, http.RouterConfig{
		AuthPrefix:     cfg.AuthRoutePrefix,
		AllowedOrigins: cfg.AllowedOrigins,
		Banner:         cfg.ServiceBanner,
		Version:        version,
		Logger:         logger,
	})

	srv := &nethttp.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "starting server",
			"addr", srv.Addr,
			"env", cfg.AppEnv,
			"store", cfg.Store.Driver,
			"auth_prefix", cfg.AuthRoutePrefix,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
