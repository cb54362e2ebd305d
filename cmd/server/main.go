package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/logging"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/router"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	priv, pub, pubPEM, err := loadKeys(cfg.Keys)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := database.Migrate(db, database.DialectMySQL); err != nil {
		return err
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		logger.Warn("redis unreachable, using in-process rate limiting and no response cache", slog.String("addr", cfg.Redis.Address()))
	} else {
		defer func() { _ = rdb.Close() }()
	}

	var events queue.Publisher = queue.NopPublisher{}
	if cfg.AMQPURL != "" {
		p := queue.NewAMQPPublisher(cfg.AMQPURL, logger)
		defer func() { _ = p.Close() }()
		events = p
	}

	userRepo := repository.NewUserRepo(db)
	tenantRepo := repository.NewTenantRepo(db)
	tokenRepo := repository.NewTokenRepo(db)

	tokens := service.NewTokenService(service.TokenConfig{
		PrivateKey: priv,
		PublicKey:  pub,
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
	}, tokenRepo, logger)
	users := service.NewUserService(userRepo, tenantRepo, tokens, cfg.BcryptCost, logger)
	tenants := service.NewTenantService(tenantRepo, userRepo)

	if err := seedAdmin(ctx, cfg.Admin, users, logger); err != nil {
		return err
	}

	abuse := middleware.NewAbuseDetector(middleware.DefaultAbuseConfig(), events, logger)
	cache := middleware.NewResponseCache(cfg.Cache, rdb, logger)
	cookies := handler.CookieSettings{
		Secure:     cfg.SecureCookies(),
		Domain:     cfg.Cookie.Domain,
		AccessTTL:  tokens.AccessTTL(),
		RefreshTTL: tokens.RefreshTTL(),
	}

	e := router.New(router.Deps{
		Config:  cfg,
		Logger:  logger,
		Redis:   rdb,
		Tokens:  tokens,
		Abuse:   abuse,
		Cache:   cache,
		Auth:    handler.NewAuthHandler(users, tokens, cookies, events, logger),
		JWKS:    handler.NewJWKSHandler(service.NewJWKSProvider(pubPEM), logger),
		Users:   handler.NewUserHandler(users, logger),
		Tenants: handler.NewTenantHandler(tenants, cache, logger),
		Health:  &handler.HealthHandler{DB: db},
	})
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return abuse.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedAdmin creates the bootstrap administrator from ADMIN_* variables.
// loadKeys reads and parses the signing pair.  The public key must be the
// one derived from the private key.
func loadKeys(k config.KeyConfig) (*rsa.PrivateKey, *rsa.PublicKey, string, error) {
	privPEM, err := utils.LoadPEM(k.PrivateKey, k.PrivateKeyPath)
	if err != nil {
		return nil, nil, "", err
	}
	pubPEM, err := utils.LoadPEM(k.PublicKey, k.PublicKeyPath)
	if err != nil {
		return nil, nil, "", err
	}
	priv, err := utils.ParsePrivateKey(privPEM)
	if err != nil {
		return nil, nil, "", errors.Join(service.ErrKeyFormat, err)
	}
	pub, err := utils.ParsePublicKey(pubPEM)
	if err != nil {
		return nil, nil, "", errors.Join(service.ErrKeyFormat, err)
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, nil, "", fmt.Errorf("%w: public key does not match private key", service.ErrKeyFormat)
	}
	return priv, pub, pubPEM, nil
}

func seedAdmin(ctx context.Context, a config.AdminConfig, users *service.UserService, logger *slog.Logger) error {
	if a.Partial() {
		logger.Warn("admin seed skipped: ADMIN_EMAIL, ADMIN_PASSWORD, ADMIN_FIRST_NAME and ADMIN_LAST_NAME must all be set")
		return nil
	}
	if !a.Complete() {
		return nil
	}
	created, err := users.EnsureAdmin(ctx, a.FirstName, a.LastName, a.Email, a.Password)
	if err != nil {
		return err
	}
	if created {
		logger.Info("admin user created", slog.String("email", a.Email))
	}
	return nil
}
