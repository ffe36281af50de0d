package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/promptwars/warsd/internal/blob/s3"
	"github.com/promptwars/warsd/internal/cache/redis"
	"github.com/promptwars/warsd/internal/config"
	"github.com/promptwars/warsd/internal/crypto"
	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/engine"
	"github.com/promptwars/warsd/internal/gateway/evm"
	"github.com/promptwars/warsd/internal/gateway/native"
	"github.com/promptwars/warsd/internal/notify"
	"github.com/promptwars/warsd/internal/service"
	"github.com/promptwars/warsd/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore domain.MarketStore
	PlayerStore domain.PlayerStore
	EventStore  domain.EventStore

	// Caches and coordination
	SnapshotCache domain.SnapshotCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Market gateway
	Gateway  domain.MarketGateway
	Registry *engine.Registry // nil for the evm variant

	// Services
	Markets *service.MarketService
	Sweeper *service.Sweeper

	// Notifications
	Notifier *notify.Notifier

	// Auth for the HTTP API. Nil when no API secret is configured.
	Auth *crypto.HMACAuth
}

// needsS3 reports whether the mode archives closed markets.
func needsS3(mode string) bool {
	switch mode {
	case "sweep", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PlayerStore = postgres.NewPlayerStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter)
	}

	// --- Market gateway ---
	switch cfg.Gateway.Variant {
	case "", "native":
		deps.Registry = engine.NewRegistry()
		deps.Gateway = native.New(deps.Registry, cfg.Operator.DAOAccountID)

	case "evm":
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Gateway.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		gw, err := evm.New(ctx, evm.Config{
			RPCURL:         cfg.Gateway.RPCURL,
			FactoryAddress: cfg.Gateway.FactoryAddress,
			GasLimit:       cfg.Gateway.GasLimit,
			ConfirmTimeout: cfg.Gateway.ConfirmTimeout.Duration,
		}, signer)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: evm gateway: %w", err)
		}
		closers = append(closers, gw.Close)
		deps.Gateway = gw

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unsupported gateway variant %q", cfg.Gateway.Variant)
	}

	// --- Services ---
	deps.Markets = service.NewMarketService(
		deps.Gateway,
		deps.Registry,
		deps.MarketStore,
		deps.PlayerStore,
		deps.EventStore,
		deps.SnapshotCache,
		deps.SignalBus,
		service.MarketDefaults{
			Price:              cfg.Market.Price,
			FeeRatio:           cfg.Market.FeeRatio,
			RevealWindow:       cfg.Market.RevealWindow.Duration,
			ResolutionWindow:   cfg.Market.ResolutionWindow.Duration,
			SelfDestructWindow: cfg.Market.SelfDestructWindow.Duration,
			BuySellThreshold:   cfg.Market.BuySellThreshold,
			CollateralTokenID:  cfg.Market.CollateralTokenID,
			CollateralDecimals: cfg.Market.CollateralDecimals,
			DAOAccountID:       cfg.Operator.DAOAccountID,
			CreatorAccountID:   cfg.Operator.CreatorAccountID,
		},
		engine.SystemClock,
		logger,
	)

	if deps.Registry != nil && cfg.Sweeper.Enabled {
		deps.Sweeper = service.NewSweeper(
			deps.Markets,
			deps.Registry,
			deps.MarketStore,
			deps.PlayerStore,
			deps.EventStore,
			deps.Archiver,
			deps.LockManager,
			cfg.Sweeper.LockTTL.Duration,
			cfg.Sweeper.Interval.Duration,
			engine.SystemClock,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- API auth ---
	if cfg.Operator.APISecret != "" {
		deps.Auth = &crypto.HMACAuth{
			Account: cfg.Operator.DAOAccountID,
			Secret:  cfg.Operator.APISecret,
		}
	}

	return deps, cleanup, nil
}
