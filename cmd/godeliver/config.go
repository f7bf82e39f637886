package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/password"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "GODELIVER"

type serverConfig struct {
	Server      serverSection      `mapstructure:"server"`
	Log         logSection         `mapstructure:"log"`
	Database    databaseSection    `mapstructure:"database"`
	Storage     storageSection     `mapstructure:"storage"`
	Credentials credentialsSection `mapstructure:"credentials"`
	Redis       redisSection       `mapstructure:"redis"`
	Pricing     pricingSection     `mapstructure:"pricing"`
	Admin       adminSection       `mapstructure:"admin"`
	Audit       auditSection       `mapstructure:"audit"`
	Metrics     metricsSection     `mapstructure:"metrics"`
	Passwords   passwordsSection   `mapstructure:"passwords"`
}

type serverSection struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
}

type logSection struct {
	Level string `mapstructure:"level"`
}

type databaseSection struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type storageSection struct {
	FilesDir string `mapstructure:"files_dir"`
	BillsDir string `mapstructure:"bills_dir"`
}

type credentialsSection struct {
	Backend       string        `mapstructure:"backend"`
	OTPTTL        time.Duration `mapstructure:"otp_ttl"`
	OTPBytes      int           `mapstructure:"otp_bytes"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// redisSection.Addr may be "embedded" to run an in-process miniredis. That
// mode is for local development only: credentials live in process memory
// and vanish on restart.
type redisSection struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type pricingSection struct {
	TaxRate           string `mapstructure:"tax_rate"`
	TaxLabel          string `mapstructure:"tax_label"`
	Currency          string `mapstructure:"currency"`
	TrustClientPrices bool   `mapstructure:"trust_client_prices"`
}

type adminSection struct {
	Email      string        `mapstructure:"email"`
	Secret     string        `mapstructure:"secret"`
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type auditSection struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

type metricsSection struct {
	Enabled bool        `mapstructure:"enabled"`
	Latency bool        `mapstructure:"latency"`
	OTel    otelSection `mapstructure:"otel"`
}

// otelSection.Reader is "manual" (collected on demand) or "log" (periodic
// export to the structured log every Interval).
type otelSection struct {
	Enabled  bool          `mapstructure:"enabled"`
	Reader   string        `mapstructure:"reader"`
	Interval time.Duration `mapstructure:"interval"`
}

type passwordsSection struct {
	MemoryKB    uint32 `mapstructure:"memory_kb"`
	Time        uint32 `mapstructure:"time"`
	Parallelism uint8  `mapstructure:"parallelism"`
	MinLength   int    `mapstructure:"min_length"`
}

func setDefaults(v *viper.Viper) {
	d := goDeliver.DefaultConfig()
	pw := password.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_bytes", int64(64<<20))
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "godeliver.db")
	v.SetDefault("storage.files_dir", "./files")
	v.SetDefault("storage.bills_dir", "./bills")
	v.SetDefault("credentials.backend", string(d.Credentials.Backend))
	v.SetDefault("credentials.otp_ttl", d.Credentials.OTPTTL)
	v.SetDefault("credentials.otp_bytes", d.Credentials.OTPBytes)
	v.SetDefault("credentials.redis_prefix", d.Credentials.RedisPrefix)
	v.SetDefault("credentials.sweep_interval", d.Credentials.SweepInterval)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("pricing.tax_rate", d.Pricing.TaxRate.String())
	v.SetDefault("pricing.tax_label", d.Pricing.TaxLabel)
	v.SetDefault("pricing.currency", d.Pricing.Currency)
	v.SetDefault("pricing.trust_client_prices", false)
	v.SetDefault("admin.email", "admin@example.com")
	v.SetDefault("admin.secret", "")
	v.SetDefault("admin.signing_key", "")
	v.SetDefault("admin.token_ttl", time.Hour)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)
	v.SetDefault("metrics.otel.enabled", false)
	v.SetDefault("metrics.otel.reader", otelReaderManual)
	v.SetDefault("metrics.otel.interval", time.Minute)
	v.SetDefault("passwords.memory_kb", pw.MemoryKB)
	v.SetDefault("passwords.time", pw.Time)
	v.SetDefault("passwords.parallelism", pw.Parallelism)
	v.SetDefault("passwords.min_length", pw.MinLength)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads cfgFile when set and overlays GODELIVER_* variables.
func loadConfig(v *viper.Viper, cfgFile string) (serverConfig, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return serverConfig{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be > 0")
	}
	if strings.TrimSpace(c.Storage.FilesDir) == "" || strings.TrimSpace(c.Storage.BillsDir) == "" {
		return errors.New("storage.files_dir and storage.bills_dir must be set")
	}
	if c.Admin.TokenTTL <= 0 {
		return errors.New("admin.token_ttl must be > 0")
	}
	if goDeliver.CredentialBackend(c.Credentials.Backend) == goDeliver.BackendRedis && c.Redis.Addr == "" {
		return errors.New("redis.addr must be set for the redis backend")
	}
	if _, err := decimal.NewFromString(c.Pricing.TaxRate); err != nil {
		return fmt.Errorf("pricing.tax_rate: %w", err)
	}
	if c.Metrics.OTel.Enabled {
		switch c.Metrics.OTel.Reader {
		case otelReaderManual:
		case otelReaderLog:
			if c.Metrics.OTel.Interval <= 0 {
				return errors.New("metrics.otel.interval must be > 0")
			}
		default:
			return fmt.Errorf("metrics.otel.reader %q: want %q or %q", c.Metrics.OTel.Reader, otelReaderManual, otelReaderLog)
		}
	}
	if err := c.passwordConfig().Validate(); err != nil {
		return fmt.Errorf("passwords: %w", err)
	}
	return nil
}

// passwordConfig keeps the default salt and key sizes; only cost and
// policy are tunable.
func (c serverConfig) passwordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.MemoryKB = c.Passwords.MemoryKB
	cfg.Time = c.Passwords.Time
	cfg.Parallelism = c.Passwords.Parallelism
	cfg.MinLength = c.Passwords.MinLength
	return cfg
}

// engineConfig maps the server settings onto the library config. The
// library's own Validate runs at Build.
func (c serverConfig) engineConfig() goDeliver.Config {
	cfg := goDeliver.DefaultConfig()
	cfg.Credentials.Backend = goDeliver.CredentialBackend(c.Credentials.Backend)
	cfg.Credentials.OTPTTL = c.Credentials.OTPTTL
	cfg.Credentials.OTPBytes = c.Credentials.OTPBytes
	cfg.Credentials.RedisPrefix = c.Credentials.RedisPrefix
	cfg.Credentials.SweepInterval = c.Credentials.SweepInterval
	cfg.Pricing.TaxRate = decimal.RequireFromString(c.Pricing.TaxRate)
	cfg.Pricing.TaxLabel = c.Pricing.TaxLabel
	cfg.Pricing.Currency = c.Pricing.Currency
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency
	return cfg
}
