// Package config defines the top-level configuration for atomicnexus and
// provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ATOMICNEXUS_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Ingest   IngestConfig   `toml:"ingest"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig names the venues and the token pair being watched.
type ChainConfig struct {
	Name                  string `toml:"name"`
	RPCURL                string `toml:"rpc_ws_url"`
	PoolAddress           string `toml:"uni_v3_pool"`
	PairAddress           string `toml:"sushi_v2_pair"`
	Token0Address         string `toml:"token0"`
	Token1Address         string `toml:"token1"`
	Token0Decimals        int    `toml:"token0_decimals"`
	Token1Decimals        int    `toml:"token1_decimals"`
	Token1Symbol          string `toml:"token1_symbol"`
	ConstantProductFeeBps int64  `toml:"sushi_v2_fee_bps"`
}

// ScannerConfig tunes candidate detection and plan sizing.
type ScannerConfig struct {
	PollInterval duration `toml:"poll_interval"`
	LockTTL      duration `toml:"lock_ttl"`
	MinEdgeBps   int64    `toml:"min_edge_bps"`
	NotionalUSD  float64  `toml:"candidate_notional_usd"`
	Optimize     bool     `toml:"optimize"`
	// SearchMin and SearchMax bound the input size in whole token1 units,
	// e.g. "1000" for 1 000 USDC.
	SearchMin      string `toml:"search_min"`
	SearchMax      string `toml:"search_max"`
	Iterations     int    `toml:"iterations"`
	MaxSlippageBps int    `toml:"max_slippage_bps"`
	TTLBlocks      int64  `toml:"ttl_blocks"`
}

// IngestConfig holds the chain watcher's timeouts and resilience settings.
type IngestConfig struct {
	Enabled            bool     `toml:"enabled"`
	CallTimeout        duration `toml:"call_timeout"`
	ReconnectDelay     duration `toml:"reconnect_delay"`
	MaxReconnectDelay  duration `toml:"max_reconnect_delay"`
	DedupSize          int      `toml:"dedup_size"`
	DedupTTL           duration `toml:"dedup_ttl"`
	BreakerMaxFailures uint32   `toml:"breaker_max_failures"`
	BreakerTimeout     duration `toml:"breaker_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// S3Config holds the archive bucket settings.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules the cold-storage export.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
	MaxRows       int    `toml:"max_rows"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the Arbitrum WETH/USDC deployment.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			Name:                  "arb",
			RPCURL:                "wss://arb1.arbitrum.io/ws",
			PoolAddress:           "0xc31e54c7a869b9fcbecc14363cf510d1c41fa443",
			PairAddress:           "0x905dfcd5649217c42684f23958568e533c711aa3",
			Token0Address:         "0x82af49447d8a07e3bd95bd0d56f35241523fbab1",
			Token1Address:         "0xff970a61a04b1ca14834a43f5de4533ebddb5cc8",
			Token0Decimals:        18,
			Token1Decimals:        6,
			Token1Symbol:          "USDC",
			ConstantProductFeeBps: 30,
		},
		Scanner: ScannerConfig{
			PollInterval:   duration{time.Second},
			LockTTL:        duration{5 * time.Second},
			MinEdgeBps:     25,
			NotionalUSD:    10_000,
			Optimize:       true,
			SearchMin:      "1000",
			SearchMax:      "500000",
			Iterations:     80,
			MaxSlippageBps: 50,
			TTLBlocks:      3,
		},
		Ingest: IngestConfig{
			Enabled:            true,
			CallTimeout:        duration{10 * time.Second},
			ReconnectDelay:     duration{time.Second},
			MaxReconnectDelay:  duration{30 * time.Second},
			DedupSize:          4096,
			DedupTTL:           duration{10 * time.Minute},
			BreakerMaxFailures: 5,
			BreakerTimeout:     duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "atomicnexus",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Cron:          "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"plan_built"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Modes lists the accepted values for Config.Mode.
var Modes = []string{"ingest", "scan", "server", "archive", "dryrun", "full"}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// needs reports which backing services the configured mode touches.
func (c *Config) needs() (pg, redis, s3, rpc bool) {
	switch c.Mode {
	case "ingest":
		return true, true, false, true
	case "scan", "server":
		return true, true, false, false
	case "archive":
		return true, false, true, false
	case "full":
		return true, true, c.Archive.Enabled, c.Ingest.Enabled
	}
	return false, false, false, false
}

// Validate checks every section and returns one error listing all problems.
// Addresses are lowercased in place once they pass.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !slices.Contains(Modes, c.Mode) {
		add("unknown mode %q (valid: %s)", c.Mode, strings.Join(Modes, ", "))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Chain
	if c.Chain.Name == "" {
		add("chain: name must not be empty")
	}
	for _, a := range []struct {
		name string
		ptr  *string
	}{
		{"uni_v3_pool", &c.Chain.PoolAddress},
		{"sushi_v2_pair", &c.Chain.PairAddress},
		{"token0", &c.Chain.Token0Address},
		{"token1", &c.Chain.Token1Address},
	} {
		if !common.IsHexAddress(*a.ptr) {
			add("chain: %s is not a hex address: %q", a.name, *a.ptr)
			continue
		}
		*a.ptr = strings.ToLower(common.HexToAddress(*a.ptr).Hex())
	}
	if c.Chain.Token0Address != "" && strings.EqualFold(c.Chain.Token0Address, c.Chain.Token1Address) {
		add("chain: token0 and token1 must differ")
	}
	if c.Chain.Token0Decimals < 0 || c.Chain.Token0Decimals > 77 {
		add("chain: token0_decimals must be 0-77, got %d", c.Chain.Token0Decimals)
	}
	if c.Chain.Token1Decimals < 0 || c.Chain.Token1Decimals > 77 {
		add("chain: token1_decimals must be 0-77, got %d", c.Chain.Token1Decimals)
	}
	if c.Chain.ConstantProductFeeBps < 0 || c.Chain.ConstantProductFeeBps >= 10_000 {
		add("chain: sushi_v2_fee_bps must be 0-9999, got %d", c.Chain.ConstantProductFeeBps)
	}

	// Scanner
	if c.Scanner.PollInterval.Duration < 100*time.Millisecond {
		add("scanner: poll_interval must be >= 100ms, got %s", c.Scanner.PollInterval.Duration)
	}
	if c.Scanner.MinEdgeBps < 0 {
		add("scanner: min_edge_bps must be >= 0")
	}
	if c.Scanner.NotionalUSD <= 0 {
		add("scanner: candidate_notional_usd must be > 0")
	}
	if c.Scanner.Optimize {
		if _, _, err := c.Scanner.SearchBounds(c.Chain.Token1Decimals); err != nil {
			add("scanner: %v", err)
		}
		if c.Scanner.Iterations < 0 {
			add("scanner: iterations must be >= 0 (0 selects the default)")
		}
		if c.Scanner.MaxSlippageBps < 0 || c.Scanner.MaxSlippageBps > 10_000 {
			add("scanner: max_slippage_bps must be 0-10000, got %d", c.Scanner.MaxSlippageBps)
		}
		if c.Scanner.TTLBlocks <= 0 {
			add("scanner: ttl_blocks must be > 0")
		}
	}

	pg, rds, s3, rpc := c.needs()

	if rpc && !strings.HasPrefix(c.Chain.RPCURL, "ws://") && !strings.HasPrefix(c.Chain.RPCURL, "wss://") {
		add("chain: rpc_ws_url must be a ws:// or wss:// url, got %q", c.Chain.RPCURL)
	}

	if pg {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if rds {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if s3 {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			add("archive: retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			add("archive: cron must not be empty")
		}
	}

	if c.Mode == "server" || (c.Mode == "full" && c.Server.Enabled) {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit < 0 {
			add("server: rate_limit must be >= 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SearchBounds converts SearchMin and SearchMax to token1 base units.
func (s ScannerConfig) SearchBounds(token1Decimals int) (lo, hi *big.Int, err error) {
	lo, err = baseUnits(s.SearchMin, token1Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("search_min: %w", err)
	}
	hi, err = baseUnits(s.SearchMax, token1Decimals)
	if err != nil {
		return nil, nil, fmt.Errorf("search_max: %w", err)
	}
	if lo.Cmp(hi) > 0 {
		return nil, nil, fmt.Errorf("search_min %s exceeds search_max %s", s.SearchMin, s.SearchMax)
	}
	return lo, hi, nil
}

// baseUnits parses a whole-token amount and scales it by 10^decimals. The
// result must be a positive integer.
func baseUnits(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", amount, decimals)
	}
	if !scaled.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	return scaled.BigInt(), nil
}
