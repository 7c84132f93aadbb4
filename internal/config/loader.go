package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "ATOMICNEXUS_"

// Load decodes the TOML file at path over Defaults, then applies .env and
// ATOMICNEXUS_* overrides. An empty path or a missing file leaves the
// defaults in place. Unknown TOML keys are an error. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose ATOMICNEXUS_* variable is set.
// Unparseable values are reported together rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// Chain
	e.str(&cfg.Chain.Name, "CHAIN_NAME")
	e.str(&cfg.Chain.RPCURL, "CHAIN_RPC_WS_URL")
	e.str(&cfg.Chain.PoolAddress, "CHAIN_UNI_V3_POOL")
	e.str(&cfg.Chain.PairAddress, "CHAIN_SUSHI_V2_PAIR")
	e.str(&cfg.Chain.Token0Address, "CHAIN_TOKEN0")
	e.str(&cfg.Chain.Token1Address, "CHAIN_TOKEN1")
	e.int(&cfg.Chain.Token0Decimals, "CHAIN_TOKEN0_DECIMALS")
	e.int(&cfg.Chain.Token1Decimals, "CHAIN_TOKEN1_DECIMALS")
	e.str(&cfg.Chain.Token1Symbol, "CHAIN_TOKEN1_SYMBOL")
	e.int64(&cfg.Chain.ConstantProductFeeBps, "CHAIN_SUSHI_V2_FEE_BPS")

	// Scanner
	e.duration(&cfg.Scanner.PollInterval, "SCANNER_POLL_INTERVAL")
	e.duration(&cfg.Scanner.LockTTL, "SCANNER_LOCK_TTL")
	e.int64(&cfg.Scanner.MinEdgeBps, "SCANNER_MIN_EDGE_BPS")
	e.float64(&cfg.Scanner.NotionalUSD, "SCANNER_CANDIDATE_NOTIONAL_USD")
	e.bool(&cfg.Scanner.Optimize, "SCANNER_OPTIMIZE")
	e.str(&cfg.Scanner.SearchMin, "SCANNER_SEARCH_MIN")
	e.str(&cfg.Scanner.SearchMax, "SCANNER_SEARCH_MAX")
	e.int(&cfg.Scanner.Iterations, "SCANNER_ITERATIONS")
	e.int(&cfg.Scanner.MaxSlippageBps, "SCANNER_MAX_SLIPPAGE_BPS")
	e.int64(&cfg.Scanner.TTLBlocks, "SCANNER_TTL_BLOCKS")

	// Ingest
	e.bool(&cfg.Ingest.Enabled, "INGEST_ENABLED")
	e.duration(&cfg.Ingest.CallTimeout, "INGEST_CALL_TIMEOUT")
	e.duration(&cfg.Ingest.ReconnectDelay, "INGEST_RECONNECT_DELAY")
	e.duration(&cfg.Ingest.MaxReconnectDelay, "INGEST_MAX_RECONNECT_DELAY")
	e.int(&cfg.Ingest.DedupSize, "INGEST_DEDUP_SIZE")
	e.duration(&cfg.Ingest.DedupTTL, "INGEST_DEDUP_TTL")
	e.uint32(&cfg.Ingest.BreakerMaxFailures, "INGEST_BREAKER_MAX_FAILURES")
	e.duration(&cfg.Ingest.BreakerTimeout, "INGEST_BREAKER_TIMEOUT")

	// Postgres
	e.str(&cfg.Postgres.DSN, "POSTGRES_DSN")
	e.str(&cfg.Postgres.DSN, "POSTGRES_URL")
	e.str(&cfg.Postgres.Host, "POSTGRES_HOST")
	e.int(&cfg.Postgres.Port, "POSTGRES_PORT")
	e.str(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	e.str(&cfg.Postgres.User, "POSTGRES_USER")
	e.str(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	e.str(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	e.int(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	e.int(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	e.bool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// Redis
	e.str(&cfg.Redis.Addr, "REDIS_ADDR")
	e.str(&cfg.Redis.Password, "REDIS_PASSWORD")
	e.int(&cfg.Redis.DB, "REDIS_DB")
	e.int(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	e.int(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	e.bool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// S3
	e.str(&cfg.S3.Endpoint, "S3_ENDPOINT")
	e.str(&cfg.S3.Region, "S3_REGION")
	e.str(&cfg.S3.Bucket, "S3_BUCKET")
	e.str(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	e.str(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	e.bool(&cfg.S3.UseSSL, "S3_USE_SSL")
	e.bool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// Archive
	e.bool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	e.int(&cfg.Archive.RetentionDays, "ARCHIVE_RETENTION_DAYS")
	e.str(&cfg.Archive.Cron, "ARCHIVE_CRON")
	e.int(&cfg.Archive.MaxRows, "ARCHIVE_MAX_ROWS")

	// Server
	e.bool(&cfg.Server.Enabled, "SERVER_ENABLED")
	e.int(&cfg.Server.Port, "SERVER_PORT")
	e.strings(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	e.int(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")
	e.duration(&cfg.Server.RateWindow, "SERVER_RATE_WINDOW")

	// Notify
	e.str(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	e.str(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	e.str(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	e.strings(&cfg.Notify.Events, "NOTIFY_EVENTS")

	e.str(&cfg.Mode, "MODE")
	e.str(&cfg.LogLevel, "LOG_LEVEL")

	return errors.Join(e.errs...)
}

// envReader applies ATOMICNEXUS_<key> variables that are present and
// non-empty, collecting parse failures.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	return v, v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("config: %s%s=%q: %w", envPrefix, key, v, err))
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) int(dst *int, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(dst *int64, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) uint32(dst *uint32, key string) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = uint32(n)
	}
}

func (e *envReader) float64(dst *float64, key string) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(dst *bool, key string) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(dst *duration, key string) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		dst.Duration = d
	}
}

func (e *envReader) strings(dst *[]string, key string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
