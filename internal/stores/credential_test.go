package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *testClock) CredentialStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, clock *testClock) CredentialStore {
			return NewMemoryCredentialStore(Options{Now: clock.Now})
		},
		"redis": func(t *testing.T, clock *testClock) CredentialStore {
			t.Helper()
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis.Run failed: %v", err)
			}
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() {
				_ = rdb.Close()
				mr.Close()
			})
			return NewRedisCredentialStore(rdb, "gdtest", Options{Now: clock.Now})
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store CredentialStore, clock *testClock)) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			fn(t, factory(t, clock), clock)
		})
	}
}

var alicePDF = OTPKey{Account: "alice@example.com", Item: "Physics Notes"}

func TestIssueThenRedeemSucceedsOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, clock *testClock) {
		ctx := context.Background()

		secret, err := store.IssueOTP(ctx, alicePDF, time.Hour)
		if err != nil {
			t.Fatalf("IssueOTP failed: %v", err)
		}
		if len(secret) != 6 {
			t.Fatalf("expected 6 character secret, got %q", secret)
		}

		token, err := store.RedeemOTP(ctx, alicePDF, secret)
		if err != nil {
			t.Fatalf("RedeemOTP failed: %v", err)
		}
		if len(token.ID) != 32 {
			t.Fatalf("expected 32 character token id, got %q", token.ID)
		}
		if token.Account != alicePDF.Account || token.Item != alicePDF.Item {
			t.Fatalf("unexpected token owner %+v", token)
		}
		if want := clock.Now().Add(DownloadTokenTTL); !token.ExpiresAt.Equal(want) {
			t.Fatalf("expected expiry %v, got %v", want, token.ExpiresAt)
		}

		if _, err := store.RedeemOTP(ctx, alicePDF, secret); !errors.Is(err, ErrOTPNotFound) {
			t.Fatalf("expected replayed secret to fail with ErrOTPNotFound, got %v", err)
		}
	})
}

func TestRedeemWrongSecretLeavesOTPPending(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, _ *testClock) {
		ctx := context.Background()

		secret, err := store.IssueOTP(ctx, alicePDF, time.Hour)
		if err != nil {
			t.Fatalf("IssueOTP failed: %v", err)
		}

		if _, err := store.RedeemOTP(ctx, alicePDF, "zzzzzz"); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("expected ErrOTPMismatch, got %v", err)
		}
		if _, err := store.RedeemOTP(ctx, OTPKey{Account: "bob", Item: alicePDF.Item}, secret); !errors.Is(err, ErrOTPNotFound) {
			t.Fatalf("expected other account to fail with ErrOTPNotFound, got %v", err)
		}

		pending, err := store.HasPendingOTP(ctx, alicePDF)
		if err != nil || !pending {
			t.Fatalf("expected otp still pending, pending=%v err=%v", pending, err)
		}
		if _, err := store.RedeemOTP(ctx, alicePDF, secret); err != nil {
			t.Fatalf("expected correct secret to still redeem, got %v", err)
		}
	})
}

func TestIssueOverwritesPreviousOTP(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, _ *testClock) {
		ctx := context.Background()

		first, err := store.IssueOTP(ctx, alicePDF, time.Hour)
		if err != nil {
			t.Fatalf("IssueOTP failed: %v", err)
		}
		second, err := store.IssueOTP(ctx, alicePDF, time.Hour)
		if err != nil {
			t.Fatalf("IssueOTP failed: %v", err)
		}
		if first == second {
			t.Skip("random secrets collided")
		}

		if _, err := store.RedeemOTP(ctx, alicePDF, first); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("expected superseded secret to mismatch, got %v", err)
		}
		if _, err := store.RedeemOTP(ctx, alicePDF, second); err != nil {
			t.Fatalf("expected latest secret to redeem, got %v", err)
		}
	})
}

func TestOrphanedTokenSurvivesReissue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, _ *testClock) {
		ctx := context.Background()

		secret, _ := store.IssueOTP(ctx, alicePDF, time.Hour)
		token, err := store.RedeemOTP(ctx, alicePDF, secret)
		if err != nil {
			t.Fatalf("RedeemOTP failed: %v", err)
		}

		if _, err := store.IssueOTP(ctx, alicePDF, time.Hour); err != nil {
			t.Fatalf("IssueOTP failed: %v", err)
		}

		got, err := store.ConsumeToken(ctx, token.ID)
		if err != nil {
			t.Fatalf("expected orphaned token to stay valid until expiry, got %v", err)
		}
		if got.Item != alicePDF.Item {
			t.Fatalf("unexpected item %q", got.Item)
		}
	})
}

func TestConsumeTokenExactlyOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, _ *testClock) {
		ctx := context.Background()

		secret, _ := store.IssueOTP(ctx, alicePDF, time.Hour)
		token, err := store.RedeemOTP(ctx, alicePDF, secret)
		if err != nil {
			t.Fatalf("RedeemOTP failed: %v", err)
		}

		if _, err := store.ConsumeToken(ctx, token.ID); err != nil {
			t.Fatalf("first ConsumeToken failed: %v", err)
		}
		if _, err := store.ConsumeToken(ctx, token.ID); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("expected second consume to fail with ErrTokenNotFound, got %v", err)
		}
		if _, err := store.ConsumeToken(ctx, "deadbeefdeadbeefdeadbeefdeadbeef"); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("expected unknown token to fail with ErrTokenNotFound, got %v", err)
		}
	})
}

func TestExpiredTokenDeniedAndPurged(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, clock *testClock) {
		ctx := context.Background()

		secret, _ := store.IssueOTP(ctx, alicePDF, time.Hour)
		token, err := store.RedeemOTP(ctx, alicePDF, secret)
		if err != nil {
			t.Fatalf("RedeemOTP failed: %v", err)
		}

		clock.Advance(DownloadTokenTTL + time.Second)

		if _, err := store.ConsumeToken(ctx, token.ID); !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		if _, err := store.ConsumeToken(ctx, token.ID); !errors.Is(err, ErrTokenNotFound) {
			t.Fatalf("expected expired token to be purged, got %v", err)
		}
	})
}

func TestExpiredOTPDeniedAndStatusReadOnly(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, clock *testClock) {
		ctx := context.Background()

		secret, _ := store.IssueOTP(ctx, alicePDF, time.Minute)

		for i := 0; i < 3; i++ {
			pending, err := store.HasPendingOTP(ctx, alicePDF)
			if err != nil || !pending {
				t.Fatalf("expected pending otp on check %d, pending=%v err=%v", i, pending, err)
			}
		}

		clock.Advance(2 * time.Minute)

		pending, err := store.HasPendingOTP(ctx, alicePDF)
		if err != nil || pending {
			t.Fatalf("expected expired otp to read as absent, pending=%v err=%v", pending, err)
		}
		if _, err := store.RedeemOTP(ctx, alicePDF, secret); !errors.Is(err, ErrOTPNotFound) {
			t.Fatalf("expected expired otp to fail with ErrOTPNotFound, got %v", err)
		}
	})
}

func TestConcurrentRedeemSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, _ *testClock) {
		ctx := context.Background()
		secret, _ := store.IssueOTP(ctx, alicePDF, time.Hour)

		const n = 16
		var wg sync.WaitGroup
		wg.Add(n)
		results := make(chan error, n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := store.RedeemOTP(ctx, alicePDF, secret)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		success := 0
		for err := range results {
			if err == nil {
				success++
				continue
			}
			if !errors.Is(err, ErrOTPNotFound) {
				t.Fatalf("unexpected redeem error: %v", err)
			}
		}
		if success != 1 {
			t.Fatalf("expected exactly one redeem success, got %d", success)
		}
	})
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, _ *testClock) {
		ctx := context.Background()
		secret, _ := store.IssueOTP(ctx, alicePDF, time.Hour)
		token, err := store.RedeemOTP(ctx, alicePDF, secret)
		if err != nil {
			t.Fatalf("RedeemOTP failed: %v", err)
		}

		const n = 32
		var wg sync.WaitGroup
		wg.Add(n)
		results := make(chan error, n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := store.ConsumeToken(ctx, token.ID)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		success := 0
		for err := range results {
			if err == nil {
				success++
				continue
			}
			if !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("unexpected consume error: %v", err)
			}
		}
		if success != 1 {
			t.Fatalf("expected exactly one consume success, got %d", success)
		}
	})
}

func TestKeysDoNotCollideAcrossDelimiters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store CredentialStore, _ *testClock) {
		ctx := context.Background()

		a := OTPKey{Account: "a-b", Item: "c"}
		b := OTPKey{Account: "a", Item: "b-c"}

		secretA, _ := store.IssueOTP(ctx, a, time.Hour)
		if _, err := store.IssueOTP(ctx, b, time.Hour); err != nil {
			t.Fatalf("IssueOTP failed: %v", err)
		}

		if _, err := store.RedeemOTP(ctx, a, secretA); err != nil {
			t.Fatalf("expected pair a to keep its own otp, got %v", err)
		}
		pending, _ := store.HasPendingOTP(ctx, b)
		if !pending {
			t.Fatal("expected pair b to remain pending")
		}
	})
}

func TestMemorySweepDropsOnlyExpired(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryCredentialStore(Options{Now: clock.Now})
	ctx := context.Background()

	_, _ = store.IssueOTP(ctx, OTPKey{Account: "a", Item: "short"}, time.Minute)
	_, _ = store.IssueOTP(ctx, OTPKey{Account: "a", Item: "long"}, time.Hour)
	secret, _ := store.IssueOTP(ctx, OTPKey{Account: "a", Item: "token"}, time.Hour)
	if _, err := store.RedeemOTP(ctx, OTPKey{Account: "a", Item: "token"}, secret); err != nil {
		t.Fatalf("RedeemOTP failed: %v", err)
	}

	clock.Advance(10 * time.Minute)

	reclaimed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if reclaimed != 2 {
		t.Fatalf("expected 2 reclaimed entries, got %d", reclaimed)
	}
	otps, tokens := store.Len()
	if otps != 1 || tokens != 0 {
		t.Fatalf("expected 1 otp and 0 tokens left, got %d and %d", otps, tokens)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewRedisCredentialStore(rdb, "", Options{})
	mr.Close()

	if _, err := store.IssueOTP(context.Background(), alicePDF, time.Hour); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := store.ConsumeToken(context.Background(), "x"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestTokenRecordRoundTripRejectsBadVersion(t *testing.T) {
	encoded, err := encodeTokenRecord(&tokenRecord{Account: "alice", Item: "notes", ExpiresAt: 42})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := decodeTokenRecord(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Account != "alice" || decoded.Item != "notes" || decoded.ExpiresAt != 42 {
		t.Fatalf("unexpected decoded record %+v", decoded)
	}

	encoded[0] = 99
	if _, err := decodeTokenRecord(encoded); err == nil {
		t.Fatal("expected bad version to be rejected")
	}
	if _, err := decodeOTPRecord([]byte{otpRecordVersionV1, 1}); err == nil {
		t.Fatal("expected truncated otp record to be rejected")
	}
}

func TestRedisRedeemReportsContention(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	writer := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer writer.Close()

	ctx := context.Background()
	clock := newTestClock()
	var (
		mu       sync.Mutex
		rewrite  bool
		rewrites int
		otpKey   string
	)
	// every read of the clock inside the WATCH block rewrites the watched key,
	// so each EXEC aborts
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		if rewrite {
			data, err := writer.Get(ctx, otpKey).Bytes()
			if err == nil {
				_ = writer.Set(ctx, otpKey, data, redis.KeepTTL).Err()
				rewrites++
			}
		}
		return clock.Now()
	}
	store := NewRedisCredentialStore(rdb, "gdtest", Options{Now: now})
	otpKey = store.otpKey(alicePDF)

	secret, err := store.IssueOTP(ctx, alicePDF, time.Hour)
	if err != nil {
		t.Fatalf("IssueOTP failed: %v", err)
	}
	mu.Lock()
	rewrite = true
	mu.Unlock()

	_, err = store.RedeemOTP(ctx, alicePDF, secret)
	if !errors.Is(err, ErrContention) || !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected contention wrapped in ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("contention must not read as a missing otp: %v", err)
	}
	if rewrites == 0 {
		t.Fatal("expected the watched key to be rewritten")
	}

	mu.Lock()
	rewrite = false
	mu.Unlock()
	if _, err := store.RedeemOTP(ctx, alicePDF, secret); err != nil {
		t.Fatalf("OTP must survive contention, got %v", err)
	}
}
