package main

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 0); got != 1 {
		t.Fatalf("p0: got %v", got)
	}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50: got %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100: got %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty: got %v", got)
	}
}

func TestRunPhaseVisitsEveryIndexOnce(t *testing.T) {
	const n = 1000
	var seen [n]int32
	stats := runPhase(n, 16, func(i int) error {
		atomic.AddInt32(&seen[i], 1)
		if i%10 == 0 {
			return errors.New("boom")
		}
		return nil
	})
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
	if stats.ops != n || stats.failures != n/10 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOpenStoreMemoryAndMiniredis(t *testing.T) {
	for _, backend := range []string{"memory", "redis"} {
		t.Setenv("REDIS_ADDR", "")
		s, cleanup, err := openStore(backend, "", "lt")
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		cleanup()
		if s == nil {
			t.Fatalf("%s: nil store", backend)
		}
	}
	if _, _, err := openStore("leveldb", "", "lt"); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
