package lmsauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/lmsauth/model"
)

// Config holds every engine setting. It is copied by [Builder.Build] and never
// mutated afterwards.
type Config struct {
	JWT        JWTConfig
	Password   PasswordConfig
	Account    AccountConfig
	Federation FederationConfig
	Security   SecurityConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects signing keys and per-purpose token lifetimes.
type JWTConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	Issuer        string
	Audience      string
	Leeway        time.Duration

	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ResetTTL        time.Duration
	VerificationTTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig covers Argon2id parameters, legacy bcrypt support and the
// password policy.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	// AcceptBcrypt lets accounts carrying bcrypt hashes from the previous
	// platform log in. Such hashes are rehashed with Argon2id when
	// UpgradeOnLogin is set.
	AcceptBcrypt bool

	MinLength      int
	MaxLength      int
	RequireLower   bool
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

type AccountConfig struct {
	DefaultRole model.Role
}

/*
====================================
FEDERATION CONFIG
====================================
*/

type FederationConfig struct {
	// ProviderTimeout bounds each provider verification. No retries are made.
	ProviderTimeout time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig tunes Redis-backed throttling. It only takes effect when a Redis
// client is supplied to the Builder.
type SecurityConfig struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration

	// Request throttles. A zero budget disables the throttle.
	MaxResetRequests          int
	ResetRequestWindow        time.Duration
	MaxVerificationRequests   int
	VerificationRequestWindow time.Duration
	MaxRegistrationsPerIP     int
	RegistrationWindow        time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 30 minute access tokens,
// 7 day refresh tokens, 24 hour reset tokens, 48 hour verification tokens and a
// 10 second provider timeout.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod:   "hs256",
			Issuer:          "lmsauth",
			AccessTTL:       30 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			ResetTTL:        24 * time.Hour,
			VerificationTTL: 48 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			AcceptBcrypt:   true,
			MinLength:      8,
			MaxLength:      256,
			RequireLower:   true,
			RequireUpper:   true,
			RequireDigit:   true,
			RequireSpecial: true,
		},
		Account: AccountConfig{
			DefaultRole: model.RoleStudent,
		},
		Federation: FederationConfig{
			ProviderTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,

			MaxResetRequests:          5,
			ResetRequestWindow:        time.Hour,
			MaxVerificationRequests:   5,
			VerificationRequestWindow: time.Hour,
			MaxRegistrationsPerIP:     20,
			RegistrationWindow:        time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	if c.JWT.ResetTTL <= 0 {
		return errors.New("JWT ResetTTL must be > 0")
	}
	if c.JWT.VerificationTTL <= 0 {
		return errors.New("JWT VerificationTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Account
	if !c.Account.DefaultRole.Valid() {
		return errors.New("Account DefaultRole is not a known role")
	}

	// Federation
	if c.Federation.ProviderTimeout <= 0 || c.Federation.ProviderTimeout > time.Minute {
		return errors.New("Federation ProviderTimeout must be in (0, 1m]")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0")
		}
	}

	if c.Security.MaxResetRequests < 0 || (c.Security.MaxResetRequests > 0 && c.Security.ResetRequestWindow <= 0) {
		return errors.New("Security reset request throttle requires a positive window")
	}
	if c.Security.MaxVerificationRequests < 0 || (c.Security.MaxVerificationRequests > 0 && c.Security.VerificationRequestWindow <= 0) {
		return errors.New("Security verification request throttle requires a positive window")
	}
	if c.Security.MaxRegistrationsPerIP < 0 || (c.Security.MaxRegistrationsPerIP > 0 && c.Security.RegistrationWindow <= 0) {
		return errors.New("Security registration throttle requires a positive window")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
