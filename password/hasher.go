package password

import "errors"

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password must not be empty")

// Hasher is the one-way hashing primitive used by the engine.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Multi hashes with Argon2id and verifies both Argon2id and bcrypt hashes, so
// accounts migrated from the bcrypt-based service keep working and are upgraded
// on their next successful login.
type Multi struct {
	argon  *Argon2
	legacy *Bcrypt
}

// NewMulti builds a Multi from an Argon2 hasher and a bcrypt verifier. legacy may be nil.
func NewMulti(argon *Argon2, legacy *Bcrypt) (*Multi, error) {
	if argon == nil {
		return nil, errors.New("argon2 hasher required")
	}
	return &Multi{argon: argon, legacy: legacy}, nil
}

func (m *Multi) Hash(password string) (string, error) {
	return m.argon.Hash(password)
}

func (m *Multi) Verify(password, encodedHash string) (bool, error) {
	switch {
	case encodedHash == "":
		return false, nil
	case isArgon2Hash(encodedHash):
		return m.argon.Verify(password, encodedHash)
	case isBcryptHash(encodedHash):
		if m.legacy == nil {
			return false, errors.New("bcrypt hashes are not accepted")
		}
		return m.legacy.Verify(password, encodedHash)
	default:
		return false, errors.New("unrecognized password hash format")
	}
}

func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	return m.argon.NeedsUpgrade(encodedHash)
}
