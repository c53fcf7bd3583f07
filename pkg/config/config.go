// Package config loads the typed configuration gatewayd needs to construct
// its retrieval tiers, peer manager, rate limiter and admission gate: an
// optional YAML file provides the base, environment variables (optionally
// loaded from a local .env file) override it field by field.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	MaxHops      uint32        `yaml:"max_hops"`
	AdminKey     string        `yaml:"admin_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CacheTierConfig configures the in-process fastcache tier.
type CacheTierConfig struct {
	Enabled      bool   `yaml:"enabled"`
	MaxBytes     int    `yaml:"max_bytes"`
	MaxObjectLen int    `yaml:"max_object_len"`
	PersistPath  string `yaml:"persist_path"`
}

// S3TierConfig configures the S3 object-store retrieval tier.
type S3TierConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"key_prefix"`
	Region    string `yaml:"region"`
}

// GatewayTierConfig configures the trusted-gateway fallback tier.
type GatewayTierConfig struct {
	Enabled bool       `yaml:"enabled"`
	Groups  [][]string `yaml:"groups"`
}

// ChunkTierConfig configures the chunk-assembly retrieval tier.
type ChunkTierConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// DataSourceConfig configures the composite's tiers. The field order is not
// the try order: gatewayd builds the tiers as cache, s3, gateway, chunks.
type DataSourceConfig struct {
	Cache   CacheTierConfig   `yaml:"cache"`
	Chunks  ChunkTierConfig   `yaml:"chunks"`
	S3      S3TierConfig      `yaml:"s3"`
	Gateway GatewayTierConfig `yaml:"gateway"`
}

// RateLimitConfig configures the dual-bucket rate limiter.
type RateLimitConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Capacity           float64  `yaml:"capacity"`
	RefillRate         float64  `yaml:"refill_rate"`
	CapacityMultiplier float64  `yaml:"capacity_multiplier"`
	MaxBuckets         int      `yaml:"max_buckets"`
	Allowlist          []string `yaml:"allowlist"`
}

// AdmissionConfig configures the admission gate.
type AdmissionConfig struct {
	NameAllowlist []string `yaml:"name_allowlist"`
	PaymentURL    string   `yaml:"payment_url"`
}

// PeerConfig configures the peer manager.
type PeerConfig struct {
	TrustedNodeURL string   `yaml:"trusted_node_url"`
	IgnoreHosts    []string `yaml:"ignore_hosts"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the unified, typed configuration for gatewayd.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DataSource DataSourceConfig `yaml:"datasource"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Admission  AdmissionConfig  `yaml:"admission"`
	Peer       PeerConfig       `yaml:"peer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns the configuration gatewayd falls back to when neither a
// YAML file nor environment overrides are present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:   ":8080",
			MaxHops:      10,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		DataSource: DataSourceConfig{
			Cache: CacheTierConfig{Enabled: true, MaxBytes: 256 << 20, MaxObjectLen: 256 << 10},
		},
		RateLimit: RateLimitConfig{
			Capacity:           1024,
			RefillRate:         64,
			CapacityMultiplier: 2,
			MaxBuckets:         100_000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds a Config by starting from Default, merging a YAML file at
// yamlPath if it exists, loading envPath via godotenv if it exists (a
// missing envPath is not an error — .env files are optional in production),
// and finally applying WEAVEGATE_-prefixed environment variable overrides.
func Load(yamlPath, envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

const envPrefix = "WEAVEGATE_"

// applyEnvOverrides mutates cfg in place for every WEAVEGATE_* variable that
// is set, so a deployment can override a handful of fields without shipping
// a full YAML file.
func applyEnvOverrides(cfg *Config) {
	str(&cfg.Server.ListenAddr, "SERVER_LISTEN_ADDR")
	u32(&cfg.Server.MaxHops, "SERVER_MAX_HOPS")
	str(&cfg.Server.AdminKey, "SERVER_ADMIN_KEY")

	boolean(&cfg.DataSource.Cache.Enabled, "CACHE_ENABLED")
	integer(&cfg.DataSource.Cache.MaxBytes, "CACHE_MAX_BYTES")
	str(&cfg.DataSource.Cache.PersistPath, "CACHE_PERSIST_PATH")

	boolean(&cfg.DataSource.S3.Enabled, "S3_ENABLED")
	str(&cfg.DataSource.S3.Bucket, "S3_BUCKET")
	str(&cfg.DataSource.S3.KeyPrefix, "S3_KEY_PREFIX")
	str(&cfg.DataSource.S3.Region, "S3_REGION")

	boolean(&cfg.DataSource.Chunks.Enabled, "CHUNKS_ENABLED")
	str(&cfg.DataSource.Chunks.DataDir, "CHUNKS_DATA_DIR")

	boolean(&cfg.DataSource.Gateway.Enabled, "GATEWAY_ENABLED")
	strList(&cfg.DataSource.Gateway.Groups, "GATEWAY_URLS")

	boolean(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	f64(&cfg.RateLimit.Capacity, "RATE_LIMIT_CAPACITY")
	f64(&cfg.RateLimit.RefillRate, "RATE_LIMIT_REFILL_RATE")
	f64(&cfg.RateLimit.CapacityMultiplier, "RATE_LIMIT_CAPACITY_MULTIPLIER")
	integer(&cfg.RateLimit.MaxBuckets, "RATE_LIMIT_MAX_BUCKETS")
	list(&cfg.RateLimit.Allowlist, "RATE_LIMIT_ALLOWLIST")

	list(&cfg.Admission.NameAllowlist, "ADMISSION_NAME_ALLOWLIST")
	str(&cfg.Admission.PaymentURL, "ADMISSION_PAYMENT_URL")

	str(&cfg.Peer.TrustedNodeURL, "PEER_TRUSTED_NODE_URL")
	list(&cfg.Peer.IgnoreHosts, "PEER_IGNORE_HOSTS")

	str(&cfg.Logging.Level, "LOG_LEVEL")
	str(&cfg.Logging.File, "LOG_FILE")
	integer(&cfg.Logging.MaxSizeMB, "LOG_MAX_SIZE_MB")
	integer(&cfg.Logging.MaxBackups, "LOG_MAX_BACKUPS")
	integer(&cfg.Logging.MaxAgeDays, "LOG_MAX_AGE_DAYS")
}

func lookup(suffix string) (string, bool) {
	return os.LookupEnv(envPrefix + suffix)
}

func str(dst *string, suffix string) {
	if v, ok := lookup(suffix); ok {
		*dst = v
	}
}

func list(dst *[]string, suffix string) {
	if v, ok := lookup(suffix); ok {
		*dst = splitNonEmpty(v)
	}
}

// strList fills a single-row [][]string (one priority group) from a
// comma-separated list, used for gateway fallback URLs.
func strList(dst *[][]string, suffix string) {
	if v, ok := lookup(suffix); ok {
		*dst = [][]string{splitNonEmpty(v)}
	}
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolean(dst *bool, suffix string) {
	if v, ok := lookup(suffix); ok {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func integer(dst *int, suffix string) {
	if v, ok := lookup(suffix); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func u32(dst *uint32, suffix string) {
	if v, ok := lookup(suffix); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func f64(dst *float64, suffix string) {
	if v, ok := lookup(suffix); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}
