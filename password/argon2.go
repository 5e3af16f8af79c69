package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return errors.New("argon2 memory must be at least 8192 KiB")
	case c.Time < 1:
		return errors.New("argon2 time must be at least 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be at least 1")
	case c.SaltLength < minSaltLength:
		return errors.New("argon2 salt must be at least 16 bytes")
	case c.KeyLength < minKeyLength:
		return errors.New("argon2 key must be at least 16 bytes")
	}
	return nil
}

// Argon2 produces and checks Argon2id PHC strings.
type Argon2 struct {
	cfg Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash derives a key from the raw password bytes with a fresh random salt.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	p := phc{
		version:     argon2.Version,
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        salt,
	}
	p.key = derive(password, p, a.cfg.KeyLength)
	return p.String(), nil
}

// Verify recomputes the key with the parameters stored in encoded. An empty
// encoded hash never matches.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if encoded == "" {
		return false, nil
	}
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	got := derive(password, p, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded is not Argon2id or was produced with
// weaker costs or a different key length than the current config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	if !isArgon2Hash(encoded) {
		return true, nil
	}
	p, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.parallelism < a.cfg.Parallelism ||
		uint32(len(p.key)) != a.cfg.KeyLength, nil
}

func derive(password string, p phc, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func isArgon2Hash(encoded string) bool {
	return len(encoded) > len(argon2Prefix) && encoded[:len(argon2Prefix)] == argon2Prefix
}
