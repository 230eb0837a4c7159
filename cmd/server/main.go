package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	identity "github.com/campuskit/go-identity"
)

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zl.Sync()

	logger := &zapLogger{s: zl.Sugar()}

	cfg := identity.LoadConfig()
	parseFlags(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := identity.NewRepositoryManager(db)
	repo.MustValidate()

	if err := seedBootstrapAdmin(ctx, cfg, repo, logger); err != nil {
		logger.Error("failed to seed bootstrap admin", "error", err)
		os.Exit(1)
	}

	provider := identity.NewUserProvider(repo.Users()).WithLogger(logger)
	auther := identity.NewAuthenticator(provider, repo, cfg).WithLogger(logger)
	guard := identity.NewAccessGuard(auther.TokenService(), provider, cfg).WithLogger(logger)
	lifecycle := identity.NewLifecycleManager(repo).WithLogger(logger)

	controller := identity.NewController(auther, lifecycle, guard,
		identity.WithControllerLogger(logger),
		identity.WithControllerDebug(cfg.Debug),
	)

	app := fiber.New(fiber.Config{
		AppName:      "campuskit identity",
		ErrorHandler: controller.ErrorHandler,
	})

	controller.RegisterRoutes(app)

	go func() {
		logger.Info("identity server listening", "addr", cfg.ListenAddr)
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseFlags(cfg *identity.AppConfig) {
	flag.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "listen address")
	flag.StringVar(&cfg.DatabaseDSN, "dsn", cfg.DatabaseDSN, "database DSN")
	flag.StringVar(&cfg.SigningKey, "signing-key", cfg.SigningKey, "token signing secret")
	flag.IntVar(&cfg.TokenExpiration, "token-ttl", cfg.TokenExpiration, "token lifetime in hours")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug output")
	flag.Parse()
}

func openDatabase(ctx context.Context, cfg *identity.AppConfig) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*identity.User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// seedBootstrapAdmin creates the first admin account when the store has
// none, so the service never starts without an admin.
func seedBootstrapAdmin(ctx context.Context, cfg *identity.AppConfig, repo identity.RepositoryManager, logger identity.Logger) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}

	admins, err := repo.Users().CountByRole(ctx, identity.RoleAdmin)
	if err != nil {
		return err
	}
	if admins > 0 {
		return nil
	}

	hash, err := identity.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}

	name := cfg.BootstrapAdminName
	if name == "" {
		name = "Administrator"
	}

	user, err := repo.Users().Create(ctx, &identity.User{
		Name:         name,
		Email:        cfg.BootstrapAdminEmail,
		Role:         identity.RoleAdmin,
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}

	logger.Info("seeded bootstrap admin", "email", user.Email, "id", user.ID.String())
	return nil
}

// zapLogger adapts zap's sugared logger to the identity.Logger interface
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
