package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goDeliver/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type purchase struct {
	key    stores.OTPKey
	secret string
	token  string
}

func main() {
	var (
		purchases   = flag.Int("purchases", 50000, "number of purchases to drive through issue, redeem and download")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		backend     = flag.String("backend", "redis", "credential backend: memory or redis")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gd", "credential key prefix")
	)
	flag.Parse()

	if *purchases <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "purchases and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	store, cleanup, err := openStore(*backend, *redisAddr, *prefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cleanup()

	states := make([]purchase, *purchases)
	for i := range states {
		states[i].key = stores.OTPKey{
			Account: fmt.Sprintf("buyer-%d@example.com", i%1000),
			Item:    fmt.Sprintf("item-%d", i),
		}
	}

	issueStats := runPhase(len(states), *concurrency, func(i int) error {
		secret, err := store.IssueOTP(ctx, states[i].key, 24*time.Hour)
		states[i].secret = secret
		return err
	})
	redeemStats := runPhase(len(states), *concurrency, func(i int) error {
		tok, err := store.RedeemOTP(ctx, states[i].key, states[i].secret)
		states[i].token = tok.ID
		return err
	})
	consumeStats := runPhase(len(states), *concurrency, func(i int) error {
		_, err := store.ConsumeToken(ctx, states[i].token)
		return err
	})
	// Every token is already spent, so any success here is a double download.
	replayStats := runPhase(len(states), *concurrency, func(i int) error {
		_, err := store.ConsumeToken(ctx, states[i].token)
		if errors.Is(err, stores.ErrTokenNotFound) {
			return nil
		}
		if err == nil {
			return errors.New("token accepted twice")
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("redeem", redeemStats)
	printStats("consume", consumeStats)
	printStats("replay", replayStats)
	if replayStats.failures > 0 {
		os.Exit(1)
	}
}

func openStore(backend, addr, prefix string) (stores.CredentialStore, func(), error) {
	switch backend {
	case "memory":
		fmt.Println("using in-process memory store")
		s := stores.NewMemoryCredentialStore(stores.Options{})
		return s, func() { _ = s.Close() }, nil
	case "redis":
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return stores.NewRedisCredentialStore(client, prefix, stores.Options{}), func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return stores.NewRedisCredentialStore(client, prefix, stores.Options{}), func() { _ = client.Close() }, nil
}

// runPhase calls op once for every index in [0, n) across concurrency workers.
func runPhase(n, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-8s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
