// Package config defines the top-level configuration for the warsd daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WARSD_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Operator OperatorConfig `toml:"operator"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Mirror   MirrorConfig   `toml:"mirror"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig holds the defaults applied to newly created markets.
type MarketConfig struct {
	Price              int64    `toml:"price"`
	FeeRatio           int64    `toml:"fee_ratio"`
	RevealWindow       duration `toml:"reveal_window"`
	ResolutionWindow   duration `toml:"resolution_window"`
	SelfDestructWindow duration `toml:"self_destruct_window"`
	BuySellThreshold   int64    `toml:"buy_sell_threshold"`
	CollateralTokenID  string   `toml:"collateral_token_id"`
	CollateralDecimals int32    `toml:"collateral_decimals"`
}

// OperatorConfig holds the operator (DAO) identity and signing credentials.
type OperatorConfig struct {
	DAOAccountID     string `toml:"dao_account_id"`
	CreatorAccountID string `toml:"creator_account_id"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	APISecret        string `toml:"api_secret"`
}

// GatewayConfig selects and parameterizes the market gateway backend.
type GatewayConfig struct {
	// Variant selects the backend: "native" (in-process engine) or "evm".
	Variant        string   `toml:"variant"`
	RPCURL         string   `toml:"rpc_url"`
	ChainID        int64    `toml:"chain_id"`
	FactoryAddress string   `toml:"factory_address"`
	GasLimit       uint64   `toml:"gas_limit"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MirrorConfig holds the on-chain state mirror parameters.
type MirrorConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// SweeperConfig holds the self-destruct sweeper parameters.
type SweeperConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// Every field can still be overridden by the TOML file and WARSD_* env vars.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Price:              10_000,
			FeeRatio:           20_000_000, // 2% in parts per billion
			RevealWindow:       duration{10 * time.Minute},
			ResolutionWindow:   duration{20 * time.Minute},
			SelfDestructWindow: duration{24 * time.Hour},
			BuySellThreshold:   75,
			CollateralTokenID:  "usdt.promptwars.eth",
			CollateralDecimals: 6,
		},
		Operator: OperatorConfig{
			DAOAccountID:     "dao.promptwars.eth",
			CreatorAccountID: "creator.promptwars.eth",
		},
		Gateway: GatewayConfig{
			Variant:        "native",
			ChainID:        137,
			GasLimit:       500_000,
			ConfirmTimeout: duration{90 * time.Second},
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "warsd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "warsd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Mirror: MirrorConfig{
			Enabled:  true,
			Interval: duration{5 * time.Second},
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
			LockTTL:  duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "resolution_success", "market_closed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"mirror": true,
	"sweep":  true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validGatewayVariants enumerates the accepted values for Gateway.Variant.
var validGatewayVariants = map[string]bool{
	"native": true,
	"evm":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, mirror, sweep, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market defaults
	if c.Market.Price <= 0 {
		errs = append(errs, "market: price must be > 0")
	}
	if c.Market.FeeRatio < 0 || c.Market.FeeRatio > 1_000_000_000 {
		errs = append(errs, fmt.Sprintf("market: fee_ratio must be 0-1000000000 (parts per billion), got %d", c.Market.FeeRatio))
	}
	if c.Market.RevealWindow.Duration <= 0 {
		errs = append(errs, "market: reveal_window must be > 0")
	}
	if c.Market.ResolutionWindow.Duration < c.Market.RevealWindow.Duration {
		errs = append(errs, "market: resolution_window must not be shorter than reveal_window")
	}
	if c.Market.SelfDestructWindow.Duration <= 0 {
		errs = append(errs, "market: self_destruct_window must be > 0")
	}
	if c.Market.CollateralTokenID == "" {
		errs = append(errs, "market: collateral_token_id must not be empty")
	}

	// Operator
	if c.Operator.DAOAccountID == "" {
		errs = append(errs, "operator: dao_account_id must not be empty")
	}
	if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
		errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
	}

	// Gateway
	if !validGatewayVariants[strings.ToLower(c.Gateway.Variant)] {
		errs = append(errs, fmt.Sprintf("gateway: unknown variant %q (valid: native, evm)", c.Gateway.Variant))
	}
	if strings.ToLower(c.Gateway.Variant) == "evm" {
		if c.Gateway.RPCURL == "" {
			errs = append(errs, "gateway: rpc_url is required for the evm variant")
		}
		if c.Gateway.ChainID <= 0 {
			errs = append(errs, "gateway: chain_id must be positive")
		}
		if c.Gateway.FactoryAddress == "" {
			errs = append(errs, "gateway: factory_address is required for the evm variant")
		}
		if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
			errs = append(errs, "operator: either private_key or encrypted_key_path must be set for the evm gateway")
		}
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Mirror
	if c.Mirror.Enabled && c.Mirror.Interval.Duration <= 0 {
		errs = append(errs, "mirror: interval must be > 0 when enabled")
	}

	// Sweeper
	if c.Sweeper.Enabled {
		if c.Sweeper.Interval.Duration <= 0 {
			errs = append(errs, "sweeper: interval must be > 0 when enabled")
		}
		if c.Sweeper.LockTTL.Duration <= 0 {
			errs = append(errs, "sweeper: lock_ttl must be > 0 when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
