// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	FileStoreDisk = "disk"
	FileStoreS3   = "s3"

	BroadcastMemory = "memory"
	BroadcastRedis  = "redis"
	BroadcastKafka  = "kafka"
)

type Config struct {
	Port            int           `yaml:"port"            envconfig:"PORT"`
	DatabaseURL     string        `yaml:"databaseUrl"     envconfig:"DATABASE_URL"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`

	JWTSecret     string `yaml:"jwtSecret"     envconfig:"JWT_SECRET"`
	AdminUsername string `yaml:"adminUsername" envconfig:"ADMIN_USERNAME"`
	AdminPassword string `yaml:"adminPassword" envconfig:"ADMIN_PASSWORD"`

	NotificationDelay     time.Duration `yaml:"notificationDelay"     envconfig:"NOTIFICATION_DELAY"`
	ResponseWindow        time.Duration `yaml:"responseWindow"        envconfig:"RESPONSE_WINDOW"`
	SchedulerPollInterval time.Duration `yaml:"schedulerPollInterval" envconfig:"SCHEDULER_POLL_INTERVAL"`

	UploadDir  string `yaml:"uploadDir"  envconfig:"UPLOAD_DIR"`
	FileStore  string `yaml:"fileStore"  envconfig:"FILE_STORE"`
	S3Bucket   string `yaml:"s3Bucket"   envconfig:"S3_BUCKET"`
	S3Prefix   string `yaml:"s3Prefix"   envconfig:"S3_PREFIX"`
	S3Region   string `yaml:"s3Region"   envconfig:"S3_REGION"`
	S3Endpoint string `yaml:"s3Endpoint" envconfig:"S3_ENDPOINT"`
	S3Access   string `yaml:"s3AccessKey" envconfig:"S3_ACCESS_KEY"`
	S3Secret   string `yaml:"s3SecretKey" envconfig:"S3_SECRET_KEY"`

	BroadcastDriver string   `yaml:"broadcastDriver" envconfig:"BROADCAST_DRIVER"`
	BroadcastPrefix string   `yaml:"broadcastPrefix" envconfig:"BROADCAST_PREFIX"`
	RedisAddr       string   `yaml:"redisAddr"       envconfig:"REDIS_ADDR"`
	KafkaBrokers    []string `yaml:"kafkaBrokers"    envconfig:"KAFKA_BROKERS"`

	RateLimitRequests  int           `yaml:"rateLimitRequests"  envconfig:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow    time.Duration `yaml:"rateLimitWindow"    envconfig:"RATE_LIMIT_WINDOW"`
	CORSAllowedOrigins []string      `yaml:"corsAllowedOrigins" envconfig:"CORS_ALLOWED_ORIGINS"`
	// Peers whose X-Forwarded-For header is believed. Empty trusts none.
	TrustedProxies []string `yaml:"trustedProxies" envconfig:"TRUSTED_PROXIES"`

	LogLevel  string `yaml:"logLevel"  envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"logFormat" envconfig:"LOG_FORMAT"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Port:                  5000,
		ShutdownTimeout:       15 * time.Second,
		AdminUsername:         "admin",
		NotificationDelay:     5 * time.Second,
		ResponseWindow:        7 * 24 * time.Hour,
		SchedulerPollInterval: 30 * time.Second,
		UploadDir:             "uploads",
		FileStore:             FileStoreDisk,
		S3Region:              "us-east-1",
		BroadcastDriver:       BroadcastMemory,
		BroadcastPrefix:       "resolveit.",
		RedisAddr:             "localhost:6379",
		RateLimitRequests:     100,
		RateLimitWindow:       15 * time.Minute,
		CORSAllowedOrigins:    []string{"*"},
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

// LoadDotEnv copies KEY=value lines from a dotenv file into the process
// environment without replacing variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads path when it is non-empty, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every setting that cannot be used.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AdminPassword == "" {
		errs = append(errs, errors.New("ADMIN_PASSWORD is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.FileStore {
	case FileStoreDisk:
	case FileStoreS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when FILE_STORE=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("FILE_STORE %q must be disk or s3", c.FileStore))
	}
	switch c.BroadcastDriver {
	case BroadcastMemory, BroadcastRedis:
	case BroadcastKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when BROADCAST_DRIVER=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("BROADCAST_DRIVER %q must be memory, redis or kafka", c.BroadcastDriver))
	}
	if c.RateLimitRequests < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must not be negative"))
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AllowsAnyOrigin reports whether CORS is open to every origin.
func (c Config) AllowsAnyOrigin() bool {
	for _, o := range c.CORSAllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// TrustedProxyPrefixes parses TrustedProxies. Bare addresses become
// single-host prefixes.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
