package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// DownloadTokenTTL is the fixed lifetime of a download token, counted from
// the moment its OTP was redeemed.
const DownloadTokenTTL = 5 * time.Minute

const (
	otpRecordVersionV1   = 1
	tokenRecordVersionV1 = 1
)

var (
	ErrOTPNotFound      = errors.New("otp not found")
	ErrOTPMismatch      = errors.New("otp secret mismatch")
	ErrTokenNotFound    = errors.New("download token not found")
	ErrTokenExpired     = errors.New("download token expired")
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrContention is wrapped with ErrStoreUnavailable when optimistic
	// redemption keeps losing to concurrent writers.
	ErrContention = errors.New("credential store contention")
)

// OTPKey identifies the pending purchase of one item by one account.
type OTPKey struct {
	Account string
	Item    string
}

// Token is a minted download token and the purchase it authorizes.
type Token struct {
	ID        string
	Account   string
	Item      string
	ExpiresAt time.Time
}

// CredentialStore is implemented by every credential backend. All methods are
// safe for concurrent use and atomic with respect to each other.
type CredentialStore interface {
	IssueOTP(ctx context.Context, key OTPKey, ttl time.Duration) (string, error)
	RedeemOTP(ctx context.Context, key OTPKey, secret string) (Token, error)
	ConsumeToken(ctx context.Context, tokenID string) (Token, error)
	HasPendingOTP(ctx context.Context, key OTPKey) (bool, error)
	Sweep(ctx context.Context) (int, error)
	Close() error
}

// Options tune random material and time for a store.
type Options struct {
	OTPBytes int
	Now      func() time.Time
}

func (o Options) normalized() Options {
	if o.OTPBytes == 0 {
		o.OTPBytes = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type otpRecord struct {
	SecretHash [32]byte
	ExpiresAt  int64 // unix nanoseconds
}

type tokenRecord struct {
	Account   string
	Item      string
	ExpiresAt int64 // unix nanoseconds
}

func encodeOTPRecord(record *otpRecord) []byte {
	var buf bytes.Buffer
	buf.Grow(1 + 8 + len(record.SecretHash))

	buf.WriteByte(otpRecordVersionV1)
	_ = binary.Write(&buf, binary.BigEndian, record.ExpiresAt)
	buf.Write(record.SecretHash[:])

	return buf.Bytes()
}

func decodeOTPRecord(data []byte) (*otpRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpRecordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	record := &otpRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}

func encodeTokenRecord(record *tokenRecord) ([]byte, error) {
	if len(record.Account) > 65535 || len(record.Item) > 65535 {
		return nil, errors.New("token record field too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 8 + 4 + len(record.Account) + len(record.Item))

	buf.WriteByte(tokenRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Account); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Item); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*tokenRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	record := &tokenRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if record.Account, err = readString(reader); err != nil {
		return nil, err
	}
	if record.Item, err = readString(reader); err != nil {
		return nil, err
	}

	return record, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
