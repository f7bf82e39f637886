package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	phcAlgorithm         = "argon2id"
)

var (
	// ErrTooShort is returned by Hash for a password below Config.MinLength.
	ErrTooShort = errors.New("password too short")
	// ErrMalformedHash is returned for a stored value that is not an argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config sets the Argon2id cost and the shortest accepted password.
type Config struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is measured in bytes of the raw password.
	MinLength int
}

// DefaultConfig follows the RFC 9106 second recommendation.
func DefaultConfig() Config {
	return Config{
		MemoryKB:    64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

// Validate reports the first parameter below its floor.
func (c Config) Validate() error {
	switch {
	case c.MemoryKB < minMemoryKB:
		return fmt.Errorf("password: memory must be >= %d KiB", minMemoryKB)
	case c.Time < 1:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length must be >= %d", minKeyLength)
	case c.MinLength < 1:
		return errors.New("password: min length must be >= 1")
	}
	return nil
}

// Hasher is safe for concurrent use.
type Hasher struct {
	cfg Config
}

func New(cfg Config) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// MinLength is the shortest password Hash accepts.
func (h *Hasher) MinLength() int {
	return h.cfg.MinLength
}

// Hash derives a fresh salted hash of pw.
func (h *Hasher) Hash(pw string) (string, error) {
	if len(pw) < h.cfg.MinLength {
		return "", fmt.Errorf("%w: must be at least %d characters", ErrTooShort, h.cfg.MinLength)
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := params{memoryKB: h.cfg.MemoryKB, time: h.cfg.Time, parallelism: h.cfg.Parallelism}
	key := p.derive(pw, salt, h.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version,
		p.memoryKB, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether pw matches encoded. A malformed encoded value is an
// error, a wrong password is not.
func (h *Hasher) Verify(pw, encoded string) (bool, error) {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := p.derive(pw, salt, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's current Config.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, _, key, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.memoryKB < h.cfg.MemoryKB ||
		p.time < h.cfg.Time ||
		p.parallelism < h.cfg.Parallelism ||
		uint32(len(key)) != h.cfg.KeyLength, nil
}

type params struct {
	memoryKB    uint32
	time        uint32
	parallelism uint8
}

func (p params) derive(pw string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(pw), salt, p.time, p.memoryKB, p.parallelism, keyLen)
}

// decode splits "$argon2id$v=19$m=..,t=..,p=..$salt$key".
func decode(encoded string) (params, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != phcAlgorithm {
		return params{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params{}, nil, nil, fmt.Errorf("%w: version", ErrMalformedHash)
	}

	var p params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memoryKB, &p.time, &p.parallelism); err != nil {
		return params{}, nil, nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}
	if p.memoryKB < minMemoryKB || p.time < 1 || p.parallelism < 1 {
		return params{}, nil, nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil || uint32(len(salt)) < minSaltLength {
		return params{}, nil, nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil || uint32(len(key)) < minKeyLength {
		return params{}, nil, nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return p, salt, key, nil
}
