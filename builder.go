package goDeliver

import (
	"errors"
	"time"

	"github.com/MrEthical07/goDeliver/internal/stores"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder defines a public type used by goDeliver APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountDirectory
	files     FileRegistry
	renderer  InvoiceRenderer
	ledger    PurchaseLedger
	auditSink AuditSink
	logger    *zap.Logger
	clock     func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by [BackendRedis]. The Engine never closes it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccounts describes the withaccounts operation and its observable behavior.
//
// WithAccounts does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccounts(accounts AccountDirectory) *Builder {
	b.accounts = accounts
	return b
}

// WithFiles describes the withfiles operation and its observable behavior.
//
// WithFiles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithFiles(files FileRegistry) *Builder {
	b.files = files
	return b
}

// WithRenderer describes the withrenderer operation and its observable behavior.
//
// WithRenderer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRenderer(renderer InvoiceRenderer) *Builder {
	b.renderer = renderer
	return b
}

// WithLedger sets the optional purchase ledger appended to on every
// successful checkout.
func (b *Builder) WithLedger(ledger PurchaseLedger) *Builder {
	b.ledger = ledger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for operational messages. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every expiry decision the Engine makes.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when the configuration is invalid or a required
// collaborator is missing. A Builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account directory required")
	}
	if b.files == nil {
		return nil, errors.New("file registry required")
	}
	if b.renderer == nil {
		return nil, errors.New("invoice renderer required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- CREDENTIAL STORE --------
	opts := stores.Options{
		OTPBytes: cfg.Credentials.OTPBytes,
		Now:      clock,
	}

	var store stores.CredentialStore
	switch cfg.Credentials.Backend {
	case BackendRedis:
		if b.redis == nil {
			return nil, errors.New("redis backend requires redis client")
		}
		store = stores.NewRedisCredentialStore(b.redis, cfg.Credentials.RedisPrefix, opts)
	default:
		store = stores.NewMemoryCredentialStore(opts)
	}

	e := &Engine{
		config:   cfg,
		store:    store,
		accounts: b.accounts,
		files:    b.files,
		renderer: b.renderer,
		ledger:   b.ledger,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
		clock:    clock,
	}

	// -------- SWEEPER --------
	if cfg.Credentials.Backend == BackendMemory && cfg.Credentials.SweepInterval > 0 {
		e.sweepStop = make(chan struct{})
		e.sweepDone = make(chan struct{})
		go e.runSweeper(cfg.Credentials.SweepInterval)
	}

	b.built = true

	logger.Info("engine built",
		zap.String("backend", string(cfg.Credentials.Backend)),
		zap.Duration("otp_ttl", cfg.Credentials.OTPTTL),
		zap.Bool("audit", cfg.Audit.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	return e, nil
}
