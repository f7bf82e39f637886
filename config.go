package goDeliver

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goDeliver/internal"
	"github.com/shopspring/decimal"
)

// Config defines a public type used by goDeliver APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Credentials CredentialsConfig
	Pricing     PricingConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
CREDENTIALS CONFIG
====================================
*/

// CredentialBackend selects where OTPs and download tokens are kept.
type CredentialBackend string

const (
	// BackendMemory keeps credentials in process memory. It is the default.
	BackendMemory CredentialBackend = "memory"
	// BackendRedis keeps credentials in Redis and requires [Builder.WithRedis].
	BackendRedis CredentialBackend = "redis"
)

// CredentialsConfig defines a public type used by goDeliver APIs.
//
// OTPTTL bounds how long an unredeemed OTP stays valid. Download tokens always
// live five minutes. SweepInterval enables the background reclaimer for the
// memory backend when positive.
type CredentialsConfig struct {
	Backend       CredentialBackend
	OTPTTL        time.Duration
	OTPBytes      int
	RedisPrefix   string
	SweepInterval time.Duration
}

/*
====================================
PRICING CONFIG
====================================
*/

// PricingConfig defines a public type used by goDeliver APIs.
//
// TaxRate is a fraction (0.18 for 18%). TaxLabel and Currency are passed to
// the invoice renderer verbatim.
type PricingConfig struct {
	TaxRate  decimal.Decimal
	TaxLabel string
	Currency string
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by goDeliver APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goDeliver APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Credentials: CredentialsConfig{
			Backend:       BackendMemory,
			OTPTTL:        24 * time.Hour,
			OTPBytes:      internal.MinOTPBytes,
			RedisPrefix:   "gd",
			SweepInterval: time.Minute,
		},
		Pricing: PricingConfig{
			TaxRate:  decimal.RequireFromString("0.18"),
			TaxLabel: "GST (18%)",
			Currency: "Rs.",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Credentials.RedisPrefix = strings.TrimSpace(cfg.Credentials.RedisPrefix)
	out.Pricing.TaxLabel = strings.TrimSpace(cfg.Pricing.TaxLabel)
	out.Pricing.Currency = strings.TrimSpace(cfg.Pricing.Currency)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Credentials
	switch c.Credentials.Backend {
	case BackendMemory, BackendRedis:
	default:
		return errors.New("Credentials Backend must be memory or redis")
	}
	if c.Credentials.OTPTTL <= 0 {
		return errors.New("Credentials OTPTTL must be > 0")
	}
	if c.Credentials.OTPBytes < internal.MinOTPBytes || c.Credentials.OTPBytes > internal.MaxOTPBytes {
		return errors.New("Credentials OTPBytes must be between 3 and 16")
	}
	if c.Credentials.Backend == BackendRedis && strings.TrimSpace(c.Credentials.RedisPrefix) == "" {
		return errors.New("Credentials RedisPrefix must be set for redis backend")
	}
	if c.Credentials.SweepInterval < 0 {
		return errors.New("Credentials SweepInterval must be >= 0")
	}

	// Pricing
	if c.Pricing.TaxRate.IsNegative() {
		return errors.New("Pricing TaxRate must be >= 0")
	}
	if c.Pricing.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("Pricing TaxRate must be <= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
