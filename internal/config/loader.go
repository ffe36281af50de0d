package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WARSD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WARSD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setInt64(&cfg.Market.Price, "WARSD_MARKET_PRICE")
	setInt64(&cfg.Market.FeeRatio, "WARSD_MARKET_FEE_RATIO")
	setDuration(&cfg.Market.RevealWindow, "WARSD_MARKET_REVEAL_WINDOW")
	setDuration(&cfg.Market.ResolutionWindow, "WARSD_MARKET_RESOLUTION_WINDOW")
	setDuration(&cfg.Market.SelfDestructWindow, "WARSD_MARKET_SELF_DESTRUCT_WINDOW")
	setInt64(&cfg.Market.BuySellThreshold, "WARSD_MARKET_BUY_SELL_THRESHOLD")
	setStr(&cfg.Market.CollateralTokenID, "WARSD_MARKET_COLLATERAL_TOKEN_ID")

	// ── Operator ──
	setStr(&cfg.Operator.DAOAccountID, "WARSD_OPERATOR_DAO_ACCOUNT_ID")
	setStr(&cfg.Operator.CreatorAccountID, "WARSD_OPERATOR_CREATOR_ACCOUNT_ID")
	setStr(&cfg.Operator.PrivateKey, "WARSD_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "WARSD_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "WARSD_OPERATOR_KEY_PASSWORD")
	setStr(&cfg.Operator.APISecret, "WARSD_OPERATOR_API_SECRET")

	// ── Gateway ──
	setStr(&cfg.Gateway.Variant, "WARSD_GATEWAY_VARIANT")
	setStr(&cfg.Gateway.RPCURL, "WARSD_GATEWAY_RPC_URL")
	setInt64(&cfg.Gateway.ChainID, "WARSD_GATEWAY_CHAIN_ID")
	setStr(&cfg.Gateway.FactoryAddress, "WARSD_GATEWAY_FACTORY_ADDRESS")
	setUint64(&cfg.Gateway.GasLimit, "WARSD_GATEWAY_GAS_LIMIT")
	setDuration(&cfg.Gateway.ConfirmTimeout, "WARSD_GATEWAY_CONFIRM_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "WARSD_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "WARSD_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "WARSD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "WARSD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "WARSD_DATABASE_NAME")
	setStr(&cfg.Database.User, "WARSD_DATABASE_USER")
	setStr(&cfg.Database.Password, "WARSD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "WARSD_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "WARSD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "WARSD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "WARSD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WARSD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WARSD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WARSD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WARSD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WARSD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WARSD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WARSD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WARSD_S3_REGION")
	setStr(&cfg.S3.Bucket, "WARSD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WARSD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WARSD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WARSD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WARSD_S3_FORCE_PATH_STYLE")

	// ── Mirror ──
	setBool(&cfg.Mirror.Enabled, "WARSD_MIRROR_ENABLED")
	setDuration(&cfg.Mirror.Interval, "WARSD_MIRROR_INTERVAL")

	// ── Sweeper ──
	setBool(&cfg.Sweeper.Enabled, "WARSD_SWEEPER_ENABLED")
	setDuration(&cfg.Sweeper.Interval, "WARSD_SWEEPER_INTERVAL")
	setDuration(&cfg.Sweeper.LockTTL, "WARSD_SWEEPER_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WARSD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WARSD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WARSD_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WARSD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WARSD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WARSD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WARSD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "WARSD_MODE")
	setStr(&cfg.LogLevel, "WARSD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
