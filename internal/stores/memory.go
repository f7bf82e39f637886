package stores

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/MrEthical07/goDeliver/internal"
)

type memoryOTP struct {
	secretHash [32]byte
	expiresAt  time.Time
}

type memoryToken struct {
	account   string
	item      string
	expiresAt time.Time
}

// MemoryCredentialStore keeps credentials in process memory. State is lost on
// restart.
type MemoryCredentialStore struct {
	opts Options

	mu     sync.Mutex
	otps   map[OTPKey]memoryOTP
	tokens map[string]memoryToken
}

func NewMemoryCredentialStore(opts Options) *MemoryCredentialStore {
	return &MemoryCredentialStore{
		opts:   opts.normalized(),
		otps:   make(map[OTPKey]memoryOTP),
		tokens: make(map[string]memoryToken),
	}
}

func (s *MemoryCredentialStore) IssueOTP(_ context.Context, key OTPKey, ttl time.Duration) (string, error) {
	secret, err := internal.NewOTPSecret(s.opts.OTPBytes)
	if err != nil {
		return "", err
	}
	entry := memoryOTP{
		secretHash: internal.HashSecret(secret),
		expiresAt:  s.opts.Now().Add(ttl),
	}

	s.mu.Lock()
	s.otps[key] = entry
	s.mu.Unlock()

	return secret, nil
}

func (s *MemoryCredentialStore) RedeemOTP(_ context.Context, key OTPKey, secret string) (Token, error) {
	tokenID, err := internal.NewTokenID()
	if err != nil {
		return Token{}, err
	}
	provided := internal.HashSecret(secret)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.otps[key]
	if !ok {
		return Token{}, ErrOTPNotFound
	}
	now := s.opts.Now()
	if now.After(entry.expiresAt) {
		delete(s.otps, key)
		return Token{}, ErrOTPNotFound
	}
	if subtle.ConstantTimeCompare(entry.secretHash[:], provided[:]) != 1 {
		return Token{}, ErrOTPMismatch
	}

	delete(s.otps, key)
	expiresAt := now.Add(DownloadTokenTTL)
	s.tokens[tokenID] = memoryToken{
		account:   key.Account,
		item:      key.Item,
		expiresAt: expiresAt,
	}

	return Token{
		ID:        tokenID,
		Account:   key.Account,
		Item:      key.Item,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *MemoryCredentialStore) ConsumeToken(_ context.Context, tokenID string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tokens[tokenID]
	if !ok {
		return Token{}, ErrTokenNotFound
	}
	delete(s.tokens, tokenID)

	if s.opts.Now().After(entry.expiresAt) {
		return Token{}, ErrTokenExpired
	}

	return Token{
		ID:        tokenID,
		Account:   entry.account,
		Item:      entry.item,
		ExpiresAt: entry.expiresAt,
	}, nil
}

func (s *MemoryCredentialStore) HasPendingOTP(_ context.Context, key OTPKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.otps[key]
	if !ok {
		return false, nil
	}
	return !s.opts.Now().After(entry.expiresAt), nil
}

// Sweep removes every expired OTP and token and reports how many were dropped.
func (s *MemoryCredentialStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	reclaimed := 0
	for key, entry := range s.otps {
		if now.After(entry.expiresAt) {
			delete(s.otps, key)
			reclaimed++
		}
	}
	for id, entry := range s.tokens {
		if now.After(entry.expiresAt) {
			delete(s.tokens, id)
			reclaimed++
		}
	}
	return reclaimed, nil
}

// Len reports the number of live entries of each kind, expired or not.
func (s *MemoryCredentialStore) Len() (otps int, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.otps), len(s.tokens)
}

func (s *MemoryCredentialStore) Close() error {
	return nil
}
