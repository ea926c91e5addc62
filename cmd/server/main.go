package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"kudos-web/internal/auth"
	"kudos-web/internal/config"
	apphttp "kudos-web/internal/http"
	"kudos-web/internal/i18n"
	"kudos-web/internal/password"
	"kudos-web/internal/repository"
	"kudos-web/internal/repository/postgres"
	"kudos-web/internal/repository/sqlite"
	"kudos-web/internal/service"
	"kudos-web/internal/session"
	"kudos-web/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	if cfg.Production() {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, userRepo, err := buildStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	hasher, err := password.NewBcryptHasher(password.Config{Workers: cfg.Auth.HashWorkers})
	if err != nil {
		logger.Fatalf("setup password hasher: %v", err)
	}
	userService := service.NewUserService(userRepo, hasher)

	revoker, closeRedis, err := buildRevoker(ctx, cfg)
	if err != nil {
		logger.Fatalf("connect redis: %v", err)
	}
	defer closeRedis()

	sessions, err := session.NewManager(session.Options{
		Secrets: cfg.SigningSecrets(),
		Cookie: session.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Production(),
			MaxAge: cfg.Session.MaxAge,
		},
		Revoker: revoker,
	})
	if err != nil {
		logger.Fatalf("setup sessions: %v", err)
	}

	source, err := buildTranslationSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup translations: %v", err)
	}
	translator, err := i18n.Load(ctx, i18n.Config{
		Supported: cfg.I18n.Supported,
		Fallback:  cfg.I18n.Fallback,
		Namespace: cfg.I18n.Namespace,
		LoadPath:  cfg.I18n.LoadPath,
	}, source, logger)
	if err != nil {
		logger.Fatalf("load translations: %v", err)
	}

	controller := auth.NewController(userService, sessions, translator, logger, auth.Config{
		RequestTimeout: cfg.Auth.RequestTimeout,
	})
	handler, err := apphttp.NewHandler(controller, translator, logger)
	if err != nil {
		logger.Fatalf("setup handler: %v", err)
	}

	router := gin.New()
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildStore(ctx context.Context, cfg config.Config) (*sql.DB, repository.UserRepository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, postgres.NewUserRepository(db), nil
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewUserRepository(db), nil
	}
}

// buildRevoker connects to redis when an address is configured. Without it
// signing out only clears the cookie.
func buildRevoker(ctx context.Context, cfg config.Config) (session.Revoker, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Redis.Addr, err)
	}
	return session.NewRedisRevoker(client), func() { _ = client.Close() }, nil
}

// buildTranslationSource prefers a bucket, then a directory, then the
// bundles compiled into the binary.
func buildTranslationSource(ctx context.Context, cfg config.Config, logger *logrus.Logger) (i18n.Source, error) {
	switch {
	case cfg.I18n.S3Bucket != "":
		store, err := buildStorage(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return i18n.ObjectSource(store, cfg.I18n.S3Bucket, cfg.I18n.S3Prefix), nil
	case cfg.I18n.Dir != "":
		logger.Infof("loading translations from %s", cfg.I18n.Dir)
		return i18n.FSSource(os.DirFS(cfg.I18n.Dir)), nil
	default:
		return i18n.EmbeddedSource(), nil
	}
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.I18n.S3Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.I18n.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.I18n.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("loading translations from s3 bucket %s (region %s)", cfg.I18n.S3Bucket, cfg.I18n.S3Region)
	return storage.NewS3Service(client), nil
}
