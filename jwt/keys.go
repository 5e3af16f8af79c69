package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// keyring holds keys decoded once at construction.
type keyring struct {
	method jwt.SigningMethod
	// sign is nil for a verify-only manager.
	sign   any
	verify any
	// byKid, when non-empty, replaces verify and requires a kid header.
	byKid map[string]any
	kid   string
}

func newKeyring(cfg Config) (*keyring, error) {
	kr := &keyring{kid: strings.TrimSpace(cfg.KeyID)}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		kr.method = jwt.SigningMethodHS256
		kr.sign, kr.verify = cfg.PrivateKey, cfg.PrivateKey
		for kid, secret := range cfg.VerifyKeys {
			if err := kr.addKid(kid, secret); err != nil {
				return nil, err
			}
		}

	case MethodEd25519:
		kr.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			kr.sign, kr.verify = priv, priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			kr.verify = pub
		}
		for kid, raw := range cfg.VerifyKeys {
			pub, err := parseEdPublicKey(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			if err := kr.addKid(kid, pub); err != nil {
				return nil, err
			}
		}
		if kr.verify == nil && len(kr.byKid) == 0 {
			return nil, errors.New("ed25519 requires a private key, public key or verify key set")
		}

	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if kr.kid != "" && len(kr.byKid) > 0 {
		if _, ok := kr.byKid[kr.kid]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return kr, nil
}

func (kr *keyring) addKid(kid string, key any) error {
	if strings.TrimSpace(kid) == "" {
		return errors.New("verify key set contains an empty kid")
	}
	if kr.byKid == nil {
		kr.byKid = map[string]any{}
	}
	kr.byKid[kid] = key
	return nil
}

// lookup is the jwt.Keyfunc for tokens signed by this keyring.
func (kr *keyring) lookup(t *jwt.Token) (any, error) {
	if t.Method.Alg() != kr.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if len(kr.byKid) > 0 {
		key, ok := kr.byKid[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	}
	if kr.kid != "" && kid != kr.kid {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	if kr.verify == nil {
		return nil, errors.New("no verification key")
	}
	return kr.verify, nil
}

// Keys are accepted raw (seed+public or public bytes) or PEM encoded.
func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 private key: %w", err)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not ed25519")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key: %w", err)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ed25519")
	}
	return edKey, nil
}
