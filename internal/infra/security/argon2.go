package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/novacrm/auth-service/internal/core/port"
)

// ErrInvalidHashFormat is returned when a stored hash is not a PHC-formatted argon2id string.
var ErrInvalidHashFormat = errors.New("argon2: invalid encoded hash format")

var b64 = base64.RawStdEncoding

// Argon2Config holds the argon2id cost parameters used for new hashes.
type Argon2Config struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32}
}

func (cfg Argon2Config) check() error {
	switch {
	case cfg.Memory < 8*1024:
		return errors.New("memory must be at least 8192 KiB")
	case cfg.Iterations == 0:
		return errors.New("iterations must be positive")
	case cfg.Parallelism == 0:
		return errors.New("parallelism must be positive")
	case cfg.SaltLength < 8:
		return errors.New("salt must be at least 8 bytes")
	case cfg.KeyLength < 16:
		return errors.New("key must be at least 16 bytes")
	}
	return nil
}

// Argon2Hasher hashes passwords with argon2id and stores them in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>
type Argon2Hasher struct {
	cfg Argon2Config
}

func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("argon2: %w", err)
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify recomputes the key with the parameters stored in encoded, so hashes made under
// older settings keep verifying after a cost change.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	params, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parsePHC(encoded string) (Argon2Config, []byte, []byte, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return Argon2Config{}, nil, nil, ErrInvalidHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: version %q", ErrInvalidHashFormat, fields[2])
	}

	var cfg Argon2Config
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Iterations, &cfg.Parallelism); err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: parameters %q", ErrInvalidHashFormat, fields[3])
	}

	salt, err := b64.DecodeString(fields[4])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHashFormat, err)
	}
	key, err := b64.DecodeString(fields[5])
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidHashFormat, err)
	}

	cfg.SaltLength, cfg.KeyLength = uint32(len(salt)), uint32(len(key))
	if err := cfg.check(); err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: %v", ErrInvalidHashFormat, err)
	}
	return cfg, salt, key, nil
}

var _ port.PasswordHasher = (*Argon2Hasher)(nil)
