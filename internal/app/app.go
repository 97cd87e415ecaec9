package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mypov/backend/internal/config"
	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/handlers"
	"github.com/mypov/backend/internal/httpserver"
	"github.com/mypov/backend/internal/logging"
	"github.com/mypov/backend/internal/middleware"
)

// Run dispatches the mypov command named by args[0]: serve, migrate or seed.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	built, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := built.cleanup(cleanupCtx); err != nil {
			logger.Error("release dependencies", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, built.deps)

	var handler http.Handler = mux
	handler = middleware.Authenticate(built.sessions)(handler)
	handler = middleware.RequestLogger(logger)(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)

	srv := httpserver.New(httpserver.Options{Port: cfg.AppPort}, handler, logger)
	logger.Info("starting mypov api", "port", cfg.AppPort, "uploads", built.deps.Processor != nil, "search", built.deps.Search != nil)

	return srv.Run(ctx)
}
