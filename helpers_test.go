package goDeliver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})
	return mr, rdb
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockAccounts struct {
	accounts map[string]Purchaser
	err      error
}

func (m *mockAccounts) LookupAccount(_ context.Context, id string) (Purchaser, bool, error) {
	if m.err != nil {
		return Purchaser{}, false, m.err
	}
	p, ok := m.accounts[id]
	return p, ok, nil
}

type mockFiles struct {
	paths map[string]string
}

func (m *mockFiles) ResolveFilePath(_ context.Context, item string) (string, error) {
	p, ok := m.paths[item]
	if !ok {
		return "", errors.New("item not registered")
	}
	return p, nil
}

type mockRenderer struct {
	mu     sync.Mutex
	inputs []InvoiceInput
	err    error
}

func (m *mockRenderer) RenderInvoice(_ context.Context, input InvoiceInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.inputs = append(m.inputs, input)
	return "alice_bill_" + input.InvoiceID + ".pdf", nil
}

type mockLedger struct {
	mu      sync.Mutex
	entries map[string][]PurchaseEntry
	err     error
}

func (m *mockLedger) AppendPurchase(_ context.Context, account string, entries []PurchaseEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.entries == nil {
		m.entries = make(map[string][]PurchaseEntry)
	}
	m.entries[account] = append(m.entries[account], entries...)
	return nil
}

type testFixture struct {
	engine   *Engine
	clock    *manualClock
	renderer *mockRenderer
	ledger   *mockLedger
	accounts *mockAccounts
	files    *mockFiles
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Credentials.SweepInterval = 0
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

// newTestEngine builds an engine whose file registry points at real files in
// a temp directory, so Fetch can succeed end to end.
func newTestEngine(t *testing.T, cfg Config, rdb *redis.Client) *testFixture {
	t.Helper()

	dir := t.TempDir()
	paths := map[string]string{}
	for _, item := range []string{"Physics Notes", "Chemistry Notes", "A", "B"} {
		p := filepath.Join(dir, item+".pdf")
		if err := os.WriteFile(p, []byte("%PDF-1.4 "+item), 0o600); err != nil {
			t.Fatalf("write fixture failed: %v", err)
		}
		paths[item] = p
	}

	f := &testFixture{
		clock:    newManualClock(),
		renderer: &mockRenderer{},
		ledger:   &mockLedger{},
		accounts: &mockAccounts{accounts: map[string]Purchaser{
			"alice@example.com": {ID: "alice@example.com", Name: "Alice", Email: "alice@example.com"},
		}},
		files: &mockFiles{paths: paths},
	}

	b := New().
		WithConfig(cfg).
		WithAccounts(f.accounts).
		WithFiles(f.files).
		WithRenderer(f.renderer).
		WithLedger(f.ledger).
		WithClock(f.clock.Now)
	if rdb != nil {
		b = b.WithRedis(rdb)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func lineItem(item, price string, qty int) LineItem {
	return LineItem{Item: item, UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func testBackends() map[string]func(t *testing.T) *testFixture {
	return map[string]func(t *testing.T) *testFixture{
		"memory": func(t *testing.T) *testFixture {
			return newTestEngine(t, testConfig(), nil)
		},
		"redis": func(t *testing.T) *testFixture {
			mr, rdb := newTestRedis(t)
			t.Cleanup(mr.Close)
			cfg := testConfig()
			cfg.Credentials.Backend = BackendRedis
			return newTestEngine(t, cfg, rdb)
		},
	}
}
