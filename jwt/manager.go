package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 uses PrivateKey as the shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrWrongPurpose means the type claim names a different purpose than the
	// claims struct being verified into.
	ErrWrongPurpose   = errors.New("token purpose mismatch")
	ErrMissingSubject = errors.New("token subject missing")
	ErrInvalidTTL     = errors.New("invalid token ttl")
	ErrFutureIssued   = errors.New("token issued too far in the future")
)

type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	// MaxFutureIAT bounds clock skew on iat. Zero means 10 minutes.
	MaxFutureIAT time.Duration
	KeyID        string
	// VerifyKeys enables key rotation: tokens must carry a kid from this set.
	VerifyKeys map[string][]byte
}

// Manager signs and verifies purpose-typed claims. It is safe for concurrent use.
type Manager struct {
	keys         *keyring
	parser       *jwt.Parser
	issuer       string
	audience     string
	maxFutureIAT time.Duration
	now          func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("leeway must be within [0, 2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("MaxFutureIAT must be within (0, 24h]")
	}

	keys, err := newKeyring(cfg)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{
		keys:         keys,
		parser:       jwt.NewParser(opts...),
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          time.Now,
	}, nil
}

// Sign fills the registered claims (sub, iat, exp, iss, aud, and a fresh jti
// for every purpose except access), stamps the type claim and signs.
func (m *Manager) Sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	if subject == "" {
		return "", ErrMissingSubject
	}
	if m.keys.sign == nil {
		return "", errors.New("manager is verify-only")
	}

	now := m.now()
	reg := claims.registered()
	reg.Subject = subject
	reg.IssuedAt = jwt.NewNumericDate(now)
	reg.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	reg.Issuer = m.issuer
	if m.audience != "" {
		reg.Audience = jwt.ClaimStrings{m.audience}
	}
	if reg.ID == "" && claims.purpose() != PurposeAccess {
		reg.ID = uuid.NewString()
	}
	claims.stamp()

	token := jwt.NewWithClaims(m.keys.method, claims)
	if m.keys.kid != "" {
		token.Header["kid"] = m.keys.kid
	}
	return token.SignedString(m.keys.sign)
}

// Verify parses raw into claims. Expiry failures satisfy [IsExpired]; a type
// claim for another purpose yields ErrWrongPurpose.
func (m *Manager) Verify(raw string, claims Claims) error {
	token, err := m.parser.ParseWithClaims(raw, claims, m.keys.lookup)
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	if claims.claimedType() != claims.purpose() {
		return ErrWrongPurpose
	}
	reg := claims.registered()
	if reg.Subject == "" {
		return ErrMissingSubject
	}
	if reg.IssuedAt != nil && reg.IssuedAt.After(m.now().Add(m.maxFutureIAT)) {
		return ErrFutureIssued
	}
	return nil
}

func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
