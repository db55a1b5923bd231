// Command meetings serves the meeting metadata API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/auth"
	"github.com/example/meeting-service/internal/config"
	httptransport "github.com/example/meeting-service/internal/http"
	"github.com/example/meeting-service/internal/logging"
	"github.com/example/meeting-service/internal/metrics"
	"github.com/example/meeting-service/internal/persistence"
	"github.com/example/meeting-service/internal/persistence/appstore"
	"github.com/example/meeting-service/internal/persistence/postgres"
	"github.com/example/meeting-service/internal/persistence/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, usage io.Writer) error {
	cfg, err := config.Load(config.Options{Args: args, Usage: usage})
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log.Logging())
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logCloser.Close()

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Database.Driver, "error", err)
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	handler, err := newHandler(cfg, store, logger)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.HTTP.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTP.Addr(), err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	return serve(ctx, server, listener, cfg.HTTP.ShutdownTimeout, logger)
}

// store is what the process needs from a storage backend.
type store interface {
	persistence.UserRepository
	persistence.MeetingRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// openStore connects the configured backend and brings its schema up to date.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (store, error) {
	var (
		s   store
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		sqliteCfg := sqlite.DefaultConfig(cfg.DSN)
		if cfg.BusyTimeout > 0 {
			sqliteCfg.BusyTimeout = cfg.BusyTimeout
		}
		s, err = sqlite.Open(ctx, sqliteCfg, logger)
	case "postgres":
		s, err = postgres.Open(ctx, postgresConfig(cfg), logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate %s database: %w", cfg.Driver, err)
	}
	return s, nil
}

func postgresConfig(cfg config.DatabaseConfig) postgres.Config {
	return postgres.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}
}

// newHandler wires services, token verification, metrics and the router on top of st.
func newHandler(cfg config.Config, st store, logger *slog.Logger) (http.Handler, error) {
	repo := appstore.New(st, st)
	now := time.Now

	issuer, err := auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("configure bearer tokens: %w", err)
	}

	users := application.NewUserServiceWithLogger(repo, nil, uuid.NewString, now, logger)
	meetings := application.NewMeetingServiceWithLogger(repo, repo, uuid.NewString, now, logger)
	authService := application.NewAuthServiceWithLogger(repo, issuer, nil, now, logger)

	if cfg.Auth.NextAuthSecret != "" {
		decoder, err := auth.NewNextAuthDecoder(cfg.Auth.NextAuthSecret)
		if err != nil {
			return nil, fmt.Errorf("configure session cookies: %w", err)
		}
		authService.WithSessionVerifier(decoder)
	}

	routerCfg := httptransport.RouterConfig{
		Auth:               httptransport.NewAuthHandler(authService, users, logger),
		Users:              httptransport.NewUserHandler(users, logger),
		Meetings:           httptransport.NewMeetingHandler(meetings, logger),
		Authenticator:      authService,
		Health:             st.Ping,
		CORSAllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		Logger:             logger,
	}

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(cfg.Metrics.Runtime)
		users.WithRecorder(collector)
		meetings.WithRecorder(collector)
		authService.WithRecorder(collector)
		routerCfg.Recorder = collector
		routerCfg.MetricsHandler = collector.Handler()
	}

	gin.SetMode(gin.ReleaseMode)
	return httptransport.NewRouter(routerCfg), nil
}

// serve runs server on listener until ctx is cancelled, then drains in-flight requests for at
// most shutdownTimeout.
func serve(ctx context.Context, server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("meetings API listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})

	return group.Wait()
}
