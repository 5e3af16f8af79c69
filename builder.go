package lmsauth

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/internal/limiters"
	"github.com/MrEthical07/lmsauth/internal/rate"
	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config

	users      UserStore
	tokens     TokenStore
	federation FederationStore
	providers  map[Provider]ProviderVerifier

	notifier  Notifier
	redis     redis.UniversalClient
	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config:    DefaultConfig(),
		providers: map[Provider]ProviderVerifier{},
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore sets the user store. Required.
func (b *Builder) WithUserStore(s UserStore) *Builder {
	b.users = s
	return b
}

// WithTokenStore sets the token store. Required.
func (b *Builder) WithTokenStore(s TokenStore) *Builder {
	b.tokens = s
	return b
}

// WithFederationStore enables social login. Without it [Engine.Federation]
// returns nil.
func (b *Builder) WithFederationStore(s FederationStore) *Builder {
	b.federation = s
	return b
}

// WithProvider registers the verifier used for provider. Registering the same
// provider twice keeps the last verifier.
func (b *Builder) WithProvider(p Provider, v ProviderVerifier) *Builder {
	b.providers[p] = v
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithRedis enables login and refresh throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit destination. When auditing is enabled and no sink
// is given, events are written to the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every collaborator.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.tokens == nil {
		return nil, errors.New("token store required")
	}
	if len(b.providers) > 0 && b.federation == nil {
		return nil, errors.New("providers require a federation store")
	}
	for p, v := range b.providers {
		if v == nil {
			return nil, errors.New("nil verifier for provider " + string(p))
		}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		users:    b.users,
		tokens:   b.tokens,
		notifier: b.notifier,
		logger:   logger.Named("lmsauth"),
		metrics:  NewMetrics(cfg.Metrics),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}

	// -------- PASSWORDS --------
	argon, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	var legacy *password.Bcrypt
	if cfg.Password.AcceptBcrypt {
		if legacy, err = password.NewBcrypt(0); err != nil {
			return nil, err
		}
	}
	hasher, err := password.NewMulti(argon, legacy)
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher
	engine.policy = password.Policy{
		MinLength:      cfg.Password.MinLength,
		MaxLength:      cfg.Password.MaxLength,
		RequireLower:   cfg.Password.RequireLower,
		RequireUpper:   cfg.Password.RequireUpper,
		RequireDigit:   cfg.Password.RequireDigit,
		RequireSpecial: cfg.Password.RequireSpecial,
	}
	if engine.dummyHash, err = hasher.Hash(uuid.NewString()); err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		KeyID:         cfg.JWT.KeyID,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    true,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- THROTTLING / AUDIT --------
	if b.redis != nil {
		engine.redis = b.redis
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
		engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.Config{
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         cfg.Security.EnableIPThrottle,
			MaxAttempts:              cfg.Security.MaxResetRequests,
			Window:                   cfg.Security.ResetRequestWindow,
		})
		engine.verificationLimiter = limiters.NewEmailVerificationLimiter(b.redis, limiters.Config{
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         cfg.Security.EnableIPThrottle,
			MaxAttempts:              cfg.Security.MaxVerificationRequests,
			Window:                   cfg.Security.VerificationRequestWindow,
		})
		engine.accountLimiter = limiters.NewAccountCreationLimiter(b.redis, limiters.Config{
			EnableIPThrottle: true,
			MaxAttempts:      cfg.Security.MaxRegistrationsPerIP,
			Window:           cfg.Security.RegistrationWindow,
		})
	}

	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = internalaudit.NewZapSink(logger)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, sink)

	engine.initFlowDeps()

	// -------- FEDERATION --------
	if b.federation != nil {
		providers := make(map[Provider]ProviderVerifier, len(b.providers))
		for p, v := range b.providers {
			providers[p] = v
		}
		engine.federation = &FederationEngine{
			engine:    engine,
			store:     b.federation,
			providers: providers,
			timeout:   cfg.Federation.ProviderTimeout,
		}
	}

	b.built = true

	return engine, nil
}
