package stores

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goDeliver/internal"
	"github.com/redis/go-redis/v9"
)

// RedisCredentialStore keeps credentials in Redis under a key prefix. OTPs
// live at prefix:otp:<account>:<item> and tokens at prefix:dl:<id>, with the
// identifier parts base64url-encoded so that no delimiter can be smuggled in.
type RedisCredentialStore struct {
	redis  redis.UniversalClient
	prefix string
	opts   Options
}

func NewRedisCredentialStore(redisClient redis.UniversalClient, prefix string, opts Options) *RedisCredentialStore {
	if prefix == "" {
		prefix = "gd"
	}
	return &RedisCredentialStore{
		redis:  redisClient,
		prefix: prefix,
		opts:   opts.normalized(),
	}
}

func (s *RedisCredentialStore) otpKey(key OTPKey) string {
	return s.prefix + ":otp:" +
		base64.RawURLEncoding.EncodeToString([]byte(key.Account)) + ":" +
		base64.RawURLEncoding.EncodeToString([]byte(key.Item))
}

func (s *RedisCredentialStore) tokenKey(tokenID string) string {
	return s.prefix + ":dl:" + tokenID
}

func (s *RedisCredentialStore) IssueOTP(ctx context.Context, key OTPKey, ttl time.Duration) (string, error) {
	secret, err := internal.NewOTPSecret(s.opts.OTPBytes)
	if err != nil {
		return "", err
	}
	encoded := encodeOTPRecord(&otpRecord{
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  s.opts.Now().Add(ttl).UnixNano(),
	})

	if err := s.redis.Set(ctx, s.otpKey(key), encoded, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return secret, nil
}

func (s *RedisCredentialStore) RedeemOTP(ctx context.Context, key OTPKey, secret string) (Token, error) {
	const maxRetries = 4
	otpKey := s.otpKey(key)
	provided := internal.HashSecret(secret)

	tokenID, err := internal.NewTokenID()
	if err != nil {
		return Token{}, err
	}

	for i := 0; i < maxRetries; i++ {
		var minted Token

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, otpKey).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeOTPRecord(data)
			if err != nil {
				return err
			}

			now := s.opts.Now()
			if now.UnixNano() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, otpKey)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrOTPNotFound
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], provided[:]) != 1 {
				return ErrOTPMismatch
			}

			expiresAt := now.Add(DownloadTokenTTL)
			encoded, err := encodeTokenRecord(&tokenRecord{
				Account:   key.Account,
				Item:      key.Item,
				ExpiresAt: expiresAt.UnixNano(),
			})
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, otpKey)
				pipe.Set(ctx, s.tokenKey(tokenID), encoded, DownloadTokenTTL)
				return nil
			})
			if err != nil {
				return err
			}

			minted = Token{
				ID:        tokenID,
				Account:   key.Account,
				Item:      key.Item,
				ExpiresAt: expiresAt,
			}
			return nil
		}, otpKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return Token{}, ErrOTPNotFound
			case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPMismatch):
				return Token{}, err
			default:
				return Token{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
		}

		return minted, nil
	}

	return Token{}, fmt.Errorf("%w: %w after %d attempts", ErrStoreUnavailable, ErrContention, maxRetries)
}

func (s *RedisCredentialStore) ConsumeToken(ctx context.Context, tokenID string) (Token, error) {
	data, err := s.redis.GetDel(ctx, s.tokenKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Token{}, ErrTokenNotFound
		}
		return Token{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record, err := decodeTokenRecord(data)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if s.opts.Now().UnixNano() > record.ExpiresAt {
		return Token{}, ErrTokenExpired
	}

	return Token{
		ID:        tokenID,
		Account:   record.Account,
		Item:      record.Item,
		ExpiresAt: time.Unix(0, record.ExpiresAt),
	}, nil
}

func (s *RedisCredentialStore) HasPendingOTP(ctx context.Context, key OTPKey) (bool, error) {
	data, err := s.redis.Get(ctx, s.otpKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record, err := decodeOTPRecord(data)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.opts.Now().UnixNano() <= record.ExpiresAt, nil
}

// Sweep is a no-op; Redis reclaims expired keys through their TTL.
func (s *RedisCredentialStore) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Close does not close the Redis client, which is owned by the caller.
func (s *RedisCredentialStore) Close() error {
	return nil
}
