package goDeliver

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goDeliver/internal/stores"
	"go.uber.org/zap"
)

// Engine defines a public type used by goDeliver APIs.
//
// Engine owns the credential store for its whole lifetime. It is created by
// [Builder.Build] and torn down by [Engine.Close]; credentials do not survive
// a restart of the memory backend.
type Engine struct {
	config   Config
	store    stores.CredentialStore
	accounts AccountDirectory
	files    FileRegistry
	renderer InvoiceRenderer
	ledger   PurchaseLedger
	audit    *auditDispatcher
	metrics  *Metrics
	logger   *zap.Logger
	clock    func() time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// Close describes the close operation and its observable behavior.
//
// Close stops the sweeper, flushes pending audit events and releases the
// credential store. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepStop != nil {
			close(e.sweepStop)
			<-e.sweepDone
		}
		if e.audit != nil {
			e.audit.Close()
		}
		if e.store != nil {
			if err := e.store.Close(); err != nil {
				e.logger.Warn("credential store close failed", zap.Error(err))
			}
		}
	})
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// SweepExpired reclaims expired credentials once and reports how many were
// dropped. The Redis backend always reports zero.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.store.Sweep(ctx)
	if err != nil {
		e.logger.Warn("credential sweep failed", zap.Error(err))
		return 0, ErrCredentialUnavailable
	}
	if n > 0 {
		e.metrics.Add(MetricSweepReclaimed, uint64(n))
		e.emitAudit(ctx, auditEventSweep, true, "", "", nil, nil)
		e.logger.Debug("credential sweep", zap.Int("reclaimed", n))
	}
	return n, nil
}

func (e *Engine) runSweeper(interval time.Duration) {
	defer close(e.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = e.SweepExpired(context.Background())
		case <-e.sweepStop:
			return
		}
	}
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
