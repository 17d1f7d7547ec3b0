package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/workdesk/accessd/pkg/api"
	"github.com/workdesk/accessd/pkg/audit"
	"github.com/workdesk/accessd/pkg/auth"
	"github.com/workdesk/accessd/pkg/authz"
	"github.com/workdesk/accessd/pkg/config"
	"github.com/workdesk/accessd/pkg/middleware"
	"github.com/workdesk/accessd/pkg/observability"
	"github.com/workdesk/accessd/pkg/revocation"
	"github.com/workdesk/accessd/pkg/storage/postgres"
)

const usage = `usage: accessd [command] [flags]

commands:
  serve        run the API server (default)
  migrate      apply schema migrations and the seed catalog, then exit
  create-user  create a login account
  assign       assign a profile to a user by code
`

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "accessd").
		WithField("version", cfg.Observability.ServiceVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "create-user":
		err = createUser(ctx, cfg, logger, args)
	case "assign":
		err = assign(ctx, cfg, logger, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.WithError(err).Error("accessd exited with error")
		os.Exit(1)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return postgres.Open(ctx, postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxOpenConns,
		MinConns:    cfg.Database.MaxIdleConns,
		Timeout:     cfg.Database.ConnectTimeout,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	return postgres.NewRedisClient(ctx, postgres.RedisConfig{
		URL:        cfg.Redis.URL,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
	})
}

func authzConfig(cfg *config.Config) authz.Config {
	return authz.Config{
		Resolver: authz.ResolverOptions{
			FieldDefault:       cfg.Authz.FieldDefault,
			SnapshotFieldMerge: cfg.Authz.SnapshotFieldMerge,
			AdminProfileCode:   cfg.Authz.AdminProfileCode,
		},
		AssignmentDeletion: cfg.Authz.AssignmentDeletion,
		RunMigrations:      cfg.Database.RunMigrations,
	}
}

func loadSeed(cfg *config.Config) (*authz.Seed, error) {
	if cfg.Authz.SeedFile == "" {
		return nil, nil
	}
	return authz.LoadSeedFile(cfg.Authz.SeedFile)
}

func serve(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if metrics != nil {
		postgres.StartStatsRoutine(ctx, db, metrics, logger, 0)
	}

	var (
		redisClient *redis.Client
		versions    revocation.Store = revocation.NopStore{}
	)
	if cfg.Redis.URL != "" {
		redisClient, err = openRedis(ctx, cfg)
		if err != nil {
			db.Close()
			return err
		}
		if cfg.Auth.RevocationEnabled {
			versions = revocation.NewRedisStore(redisClient, "")
		}
	}

	manager := authz.NewManager(db, authzConfig(cfg), versions, metrics, logger)
	seed, err := loadSeed(cfg)
	if err != nil {
		return err
	}
	if err := manager.Initialize(ctx, seed); err != nil {
		return err
	}

	auditLogger, err := newAuditLogger(ctx, cfg, db, logger)
	if err != nil {
		return err
	}

	signer, err := auth.NewJWTSigner(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	verifier := auth.NewSQLCredentialVerifier(db, cfg.Auth.BcryptCost, logger)
	service := auth.NewService(verifier, manager.Resolver(), signer, versions, auth.ServiceOptions{
		Issuer:            cfg.Auth.Issuer,
		TokenTTL:          cfg.Auth.TokenTTL,
		ScreenOperation:   cfg.Authz.ScreenOperation,
		AdminProfileCode:  cfg.Authz.AdminProfileCode,
		RevocationEnabled: cfg.Auth.RevocationEnabled,
	}, metrics, logger)
	authenticator := middleware.NewAuthenticator(signer, middleware.AuthenticatorOptions{
		RevocationEnabled: cfg.Auth.RevocationEnabled,
		Versions:          versions,
		Metrics:           metrics,
		Audit:             auditLogger,
		Logger:            logger,
	})

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	var limiter middleware.Limiter
	if cfg.Server.LoginRateLimit > 0 {
		limitCfg := middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.LoginRateLimit,
			WindowDuration:    cfg.Server.LoginRateWindow,
		}
		if redisClient != nil {
			limiter = middleware.NewRedisLimiter(redisClient, limitCfg, "")
		} else {
			memory := middleware.NewMemoryLimiter(limitCfg)
			memory.StartCleanup(ctx)
			limiter = memory
		}
	}

	server := api.NewServer(api.Dependencies{
		Manager:        manager,
		Auth:           service,
		Authenticator:  authenticator,
		Audit:          auditLogger,
		Metrics:        metrics,
		Health:         observability.NewHealthChecker(db, redisClient, cfg.Auth.RevocationEnabled, cfg.Observability.ServiceVersion),
		LoginLimiter:   limiter,
		TrustedProxies: proxies,
		Logger:         logger,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	servers := []*http.Server{apiServer}

	if registry != nil {
		metricsMux := http.NewServeMux()
		observability.RegisterMetricsEndpoint(metricsMux, registry)
		servers = append(servers, &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, servers...)
	shutdown.RegisterShutdownFunc(func(context.Context) error { return db.Close() })
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return auditLogger.Close() })

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	return g.Wait()
}

func newAuditLogger(ctx context.Context, cfg *config.Config, db *sql.DB, logger *observability.Logger) (audit.Logger, error) {
	switch cfg.Observability.AuditSink {
	case "none":
		return audit.NopLogger{}, nil
	case "db":
		dbLogger, err := audit.NewDBLogger(ctx, db)
		if err != nil {
			return nil, err
		}
		return audit.NewMultiLogger(audit.NewLogLogger(logger), dbLogger), nil
	default:
		return audit.NewLogLogger(logger), nil
	}
}

func migrate(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	engineCfg := authzConfig(cfg)
	engineCfg.RunMigrations = true
	seed, err := loadSeed(cfg)
	if err != nil {
		return err
	}
	if err := authz.NewManager(db, engineCfg, nil, nil, logger).Initialize(ctx, seed); err != nil {
		return err
	}
	logger.Info("Schema and seed are up to date")
	return nil
}

func createUser(ctx context.Context, cfg *config.Config, logger *observability.Logger, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", os.Getenv("ACCESSD_NEW_USER_PASSWORD"), "password (defaults to $ACCESSD_NEW_USER_PASSWORD)")
	displayName := fs.String("display-name", "", "display name")
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("-username and -password are required")
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := auth.NewSQLCredentialVerifier(db, cfg.Auth.BcryptCost, logger).
		CreateUser(ctx, *username, *password, *displayName, *email)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{"user_id": id, "username": *username}).Info("User created")
	return nil
}

func assign(ctx context.Context, cfg *config.Config, logger *observability.Logger, args []string) error {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	userID := fs.Int64("user", 0, "user id")
	profileCode := fs.String("profile", "", "profile code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 || *profileCode == "" {
		return fmt.Errorf("-user and -profile are required")
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// assignments made here must still revoke tokens issued by the server
	var versions authz.VersionBumper
	if cfg.Auth.RevocationEnabled {
		client, err := openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		versions = revocation.NewRedisStore(client, "")
	}

	manager := authz.NewManager(db, authzConfig(cfg), versions, nil, logger)
	profile, err := manager.Catalog().FindProfileByCode(ctx, *profileCode)
	if err != nil {
		return err
	}
	if _, err := manager.Ledger().AssignProfileToUser(ctx, *userID, profile.ID, true); err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{"user_id": *userID, "profile": profile.Code}).Info("Profile assigned")
	return nil
}
