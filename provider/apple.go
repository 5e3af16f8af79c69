package provider

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/lmsauth"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	appleKeysURL = "https://appleid.apple.com/auth/keys"
	appleIssuer  = "https://appleid.apple.com"

	defaultKeysTTL = 6 * time.Hour
)

var ErrUnknownKey = errors.New("apple: signing key not found")

type AppleConfig struct {
	// ClientID is the Services ID or bundle id the id_token must be issued to.
	ClientID string
	KeysURL  string
	Issuer   string
	// KeysTTL bounds how long a fetched key set is trusted before refetching.
	KeysTTL time.Duration

	HTTPClient *http.Client
}

// Apple verifies Sign in with Apple id_tokens against Apple's published JWKS.
type Apple struct {
	clientID string
	keysURL  string
	issuer   string
	ttl      time.Duration
	client   *http.Client
	now      func() time.Time

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func NewApple(cfg AppleConfig) *Apple {
	a := &Apple{
		clientID: cfg.ClientID,
		keysURL:  cfg.KeysURL,
		issuer:   cfg.Issuer,
		ttl:      cfg.KeysTTL,
		client:   defaultClient(cfg.HTTPClient),
		now:      time.Now,
	}
	if a.keysURL == "" {
		a.keysURL = appleKeysURL
	}
	if a.issuer == "" {
		a.issuer = appleIssuer
	}
	if a.ttl <= 0 {
		a.ttl = defaultKeysTTL
	}
	return a
}

type appleClaims struct {
	jwtlib.RegisteredClaims
	Email         string   `json:"email,omitempty"`
	EmailVerified flexBool `json:"email_verified,omitempty"`
}

func (a *Apple) Verify(ctx context.Context, token string) (*lmsauth.ProviderIdentity, error) {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Alg()}),
		jwtlib.WithIssuer(a.issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(a.now),
	}
	if a.clientID != "" {
		opts = append(opts, jwtlib.WithAudience(a.clientID))
	}

	claims := &appleClaims{}
	_, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return a.key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("apple: %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return &lmsauth.ProviderIdentity{
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  bool(claims.EmailVerified),
		Profile: map[string]any{
			"sub":            claims.Subject,
			"email":          claims.Email,
			"email_verified": bool(claims.EmailVerified),
		},
	}, nil
}

// key returns the public key for kid, refetching the key set when it is stale
// or does not contain kid.
func (a *Apple) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fresh := a.keys != nil && a.now().Sub(a.fetched) < a.ttl
	if k, ok := a.keys[kid]; ok && fresh {
		return k, nil
	}

	keys, err := a.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	a.keys = keys
	a.fetched = a.now()

	k, ok := keys[kid]
	if !ok {
		return nil, ErrUnknownKey
	}
	return k, nil
}

type jwks struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (a *Apple) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var set jwks
	if err := getJSON(ctx, a.client, "apple", a.keysURL, nil, nil, &set); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("apple: key %s: %w", k.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("apple: key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	return keys, nil
}
