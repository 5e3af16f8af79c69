package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// ErrMalformedHash wraps every decoding failure of a stored Argon2id hash.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// phc is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phc struct {
	version     int
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		p.version, p.memory, p.time, p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}

func decodePHC(encoded string) (phc, error) {
	var p phc

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, malformed("not an argon2id PHC string")
	}
	if _, err := fmt.Sscanf(fields[2], "v=%d", &p.version); err != nil {
		return p, malformed("version")
	}
	if p.version != argon2.Version {
		return p, malformed(fmt.Sprintf("unsupported version %d", p.version))
	}

	var parallelism uint32
	if n, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &parallelism); err != nil || n != 3 {
		return p, malformed("parameters")
	}
	if p.memory < minMemoryKB || p.time < 1 || parallelism < 1 || parallelism > 255 {
		return p, malformed("parameters out of range")
	}
	p.parallelism = uint8(parallelism)

	var err error
	if p.salt, err = decodeSegment(fields[4]); err != nil || len(p.salt) < minSaltLength {
		return p, malformed("salt")
	}
	if p.key, err = decodeSegment(fields[5]); err != nil || len(p.key) == 0 {
		return p, malformed("key")
	}
	return p, nil
}

// decodeSegment accepts both padded and unpadded base64, since hashes imported
// from other tooling use either.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
