package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/petermazzocco/ai-image-studio/internal/auth"
	"github.com/petermazzocco/ai-image-studio/internal/config"
	"github.com/petermazzocco/ai-image-studio/internal/gallery"
	"github.com/petermazzocco/ai-image-studio/internal/generator"
	"github.com/petermazzocco/ai-image-studio/internal/handlers"
	"github.com/petermazzocco/ai-image-studio/internal/imaging"
	"github.com/petermazzocco/ai-image-studio/internal/storage"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Session store, shared with gothic for the OAuth handshake
	store := auth.NewCookieStore(cfg.SessionSecret, cfg.SessionMaxAge, cfg.Production)
	gothic.Store = store
	if cfg.OAuthEnabled() {
		goth.UseProviders(google.New(cfg.GoogleKey, cfg.GoogleSecret, cfg.CallbackURL("google"), "email", "profile"))
	}

	// Create custom HTTP client with TLS config
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		},
	}
	httpClient := &http.Client{Transport: tr, Timeout: cfg.GenerationTimeout}

	var db *gorm.DB
	if cfg.DSN != "" {
		db, err = gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	var directory auth.Directory
	if db != nil {
		accounts, err := auth.NewAccounts(db)
		if err != nil {
			return err
		}
		directory = accounts
	} else {
		logger.Warn("no DSN configured, accounts are kept in memory")
		directory = auth.NewMemoryAccounts()
	}

	backend, err := openStorage(cfg, db, httpClient)
	if err != nil {
		return err
	}
	logger.Info("gallery storage ready", slog.String("backend", cfg.StorageBackend))

	gen := generator.NewPollinations(httpClient, generator.Options{
		BaseURL:  cfg.GeneratorURL,
		Width:    cfg.ImageWidth,
		Height:   cfg.ImageHeight,
		Verify:   cfg.VerifyGeneration,
		Interval: cfg.GenerationSpacing,
	})

	h := handlers.New(handlers.Deps{
		Directory:         directory,
		Sessions:          auth.NewSessions(store),
		Store:             gallery.New(backend, logger),
		Generator:         gen,
		Downloader:        gen,
		Converter:         imaging.Vips{},
		Logger:            logger,
		GenerationTimeout: cfg.GenerationTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Routes(cfg.RateLimit),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("starting API server", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func openStorage(cfg *config.Config, db *gorm.DB, httpClient *http.Client) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		return storage.NewPostgres(db)
	case config.BackendS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithHTTPClient(httpClient),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")),
			awsconfig.WithRegion("auto"),
		)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
		})
		return storage.NewBucket(client, cfg.BucketName, cfg.BucketPrefix), nil
	default:
		return storage.NewMemory(), nil
	}
}
