package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	// MinOTPBytes keeps the shortest printable secret at six hex characters.
	MinOTPBytes = 3
	// MaxOTPBytes bounds the secret to a length that still fits on an invoice line.
	MaxOTPBytes = 16
	// TokenIDBytes is the raw size of a download token identifier.
	TokenIDBytes = 16
)

// NewOTPSecret returns a lowercase hex secret built from size random bytes.
func NewOTPSecret(size int) (string, error) {
	if size < MinOTPBytes || size > MaxOTPBytes {
		return "", errors.New("invalid otp size")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// NewTokenID returns a 32 character hex download token identifier.
func NewTokenID() (string, error) {
	var raw [TokenIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// HashSecret digests a secret for storage and constant-time comparison.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// ValidTokenID reports whether s has the shape produced by NewTokenID.
func ValidTokenID(s string) bool {
	if len(s) != TokenIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
