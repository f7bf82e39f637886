package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/catalog"
	"github.com/MrEthical07/goDeliver/httpapi"
	"github.com/MrEthical07/goDeliver/invoice"
	"github.com/MrEthical07/goDeliver/jwt"
	otelexport "github.com/MrEthical07/goDeliver/metrics/export/otel"
	"github.com/MrEthical07/goDeliver/metrics/export/prometheus"
	"github.com/MrEthical07/goDeliver/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const (
	embeddedRedis = "embedded"
	meterShutdown = 5 * time.Second
)

// app owns every long-lived resource behind the HTTP handler.
type app struct {
	handler http.Handler
	engine  *goDeliver.Engine
	// otelReader is set only for metrics.otel.reader "manual".
	otelReader *sdkmetric.ManualReader
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newApp(cfg serverConfig, logger *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := catalog.Open(cfg.Database.Driver, cfg.Database.DSN, catalog.Options{
		FilesDir: cfg.Storage.FilesDir,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	renderer, err := invoice.NewPDFRenderer(invoice.Options{Dir: cfg.Storage.BillsDir}, logger)
	if err != nil {
		return nil, err
	}

	builder := goDeliver.New().
		WithConfig(cfg.engineConfig()).
		WithAccounts(store).
		WithFiles(store).
		WithRenderer(renderer).
		WithLedger(store).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(goDeliver.NewZapSink(logger))
	}

	if cfg.Redis.Addr != "" {
		client, closeRedis, err := openRedis(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeRedis)
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)

	signingKey := []byte(cfg.Admin.SigningKey)
	if len(signingKey) == 0 {
		signingKey = make([]byte, 32)
		if _, err := rand.Read(signingKey); err != nil {
			return nil, fmt.Errorf("generate admin signing key: %w", err)
		}
		logger.Warn("admin.signing_key not set; admin tokens will not survive a restart")
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Admin.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    signingKey,
		Issuer:        "godeliver",
	})
	if err != nil {
		return nil, fmt.Errorf("admin tokens: %w", err)
	}
	if cfg.Admin.Secret == "" {
		logger.Warn("admin.secret not set; admin login disabled")
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = prometheus.NewPrometheusExporter(engine).Handler()
	}
	if cfg.Metrics.OTel.Enabled {
		if err := a.startOTel(cfg.Metrics.OTel, engine, logger); err != nil {
			return nil, err
		}
	}

	passwords, err := password.New(cfg.passwordConfig())
	if err != nil {
		return nil, fmt.Errorf("passwords: %w", err)
	}

	h, err := httpapi.NewHandler(engine, store, renderer, tokens, passwords, httpapi.Options{
		AdminEmail:        cfg.Admin.Email,
		AdminSecret:       cfg.Admin.Secret,
		TrustClientPrices: cfg.Pricing.TrustClientPrices,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		Metrics:           metricsHandler,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	a.handler = httpapi.NewRouter(h)
	return a, nil
}

func (a *app) startOTel(cfg otelSection, engine *goDeliver.Engine, logger *zap.Logger) error {
	provider, reader, err := newMeterProvider(cfg, logger)
	if err != nil {
		return err
	}
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), meterShutdown)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("meter provider shutdown", zap.Error(err))
		}
	}

	exporter, err := otelexport.NewOTelExporter(provider.Meter(serviceName), engine)
	if err != nil {
		shutdown()
		return fmt.Errorf("otel exporter: %w", err)
	}
	// the provider flushes one last collection on shutdown, while the
	// exporter callback is still registered
	a.closers = append(a.closers, func() {
		shutdown()
		_ = exporter.Close()
	})
	a.otelReader = reader
	logger.Info("otel metrics enabled", zap.String("reader", cfg.Reader))
	return nil
}

func openRedis(cfg redisSection, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Addr == embeddedRedis {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Warn("using embedded redis; for development only, credentials are lost on exit",
			zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	if cfg.Addr == "" {
		return nil, nil, errors.New("redis.addr must be set")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	logger.Info("using redis", zap.String("addr", cfg.Addr))
	return client, func() { _ = client.Close() }, nil
}
