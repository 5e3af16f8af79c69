// Package app wires the configured stores, providers, notifier and transports
// into a runnable auth service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/config"
	"github.com/MrEthical07/lmsauth/internal/logging"
	"github.com/MrEthical07/lmsauth/metrics/export/prometheus"
	"github.com/MrEthical07/lmsauth/notify"
	"github.com/MrEthical07/lmsauth/provider"
	"github.com/MrEthical07/lmsauth/store/memstore"
	"github.com/MrEthical07/lmsauth/store/pgstore"
	"github.com/MrEthical07/lmsauth/store/redisstore"
	"github.com/MrEthical07/lmsauth/sweeper"
	"github.com/MrEthical07/lmsauth/transport/httpapi"
	"github.com/MrEthical07/lmsauth/transport/natsverify"
	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

const (
	dialTimeout     = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *lmsauth.Engine
	echo    *echo.Echo
	sweeper *sweeper.Sweeper

	db       *sqlx.DB
	redis    redis.UniversalClient
	natsConn *nats.Conn
	verifier *natsverify.Responder
	closers  []io.Closer
}

// New builds the service from cfg. Postgres, Redis and NATS are dialled with
// exponential backoff bounded by ctx.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &App{cfg: cfg, logger: logger.With(zap.String("app", cfg.AppName), zap.String("env", cfg.AppEnv))}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	b := lmsauth.New().WithLogger(a.logger)

	engineCfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	b.WithConfig(engineCfg)

	// -------- STORES --------
	switch strings.ToLower(cfg.Storage) {
	case "postgres":
		db, err := connectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		a.db = db
		if err := pgstore.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		b.WithUserStore(pgstore.NewUserStore(db)).
			WithTokenStore(pgstore.NewTokenStore(db)).
			WithFederationStore(pgstore.NewFederationStore(db))
	default:
		a.logger.Warn("using in-memory storage; data is lost on restart")
		b.WithUserStore(memstore.NewUserStore()).
			WithTokenStore(memstore.NewTokenStore()).
			WithFederationStore(memstore.NewFederationStore())
	}

	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.redis = client
		if err := retry(ctx, func() error { return client.Ping(ctx).Err() }); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		b.WithRedis(client)
		if cfg.RedisTokens {
			b.WithTokenStore(redisstore.NewTokenStore(client, cfg.AppName))
		}
	}

	// -------- PROVIDERS / NOTIFIER --------
	for p, v := range providers(cfg) {
		b.WithProvider(p, v)
	}

	notifier, err := a.notifier()
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	b.WithNotifier(notifier)

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	a.engine = engine

	// -------- TRANSPORTS --------
	proxies, err := cfg.TrustedProxyNets()
	if err != nil {
		return err
	}
	httpCfg := httpapi.Config{
		Auth:           engine,
		Metrics:        prometheus.New(engine).Handler(),
		Logger:         a.logger,
		TrustedProxies: proxies,
	}
	if fe := engine.Federation(); fe != nil {
		httpCfg.Social = fe
	}
	a.echo = httpapi.NewServer(httpCfg).Echo()

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName), nats.MaxReconnects(-1))
		if err != nil {
			// Verification over NATS is optional; HTTP keeps serving.
			a.logger.Warn("nats connect failed", zap.Error(err))
		} else {
			a.natsConn = nc
			a.verifier = natsverify.NewResponder(engine, a.logger)
			if err := a.verifier.Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName); err != nil {
				return fmt.Errorf("nats subscribe: %w", err)
			}
		}
	}

	sw, err := sweeper.New(engine, sweeper.Config{Interval: cfg.SweepInterval, Grace: cfg.SweepGrace}, a.logger)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	a.sweeper = sw
	return nil
}

// Handler exposes the HTTP router.
func (a *App) Handler() http.Handler { return a.echo }

// Run serves HTTP and sweeps expired tokens until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.echo.Start(a.cfg.HTTPAddr)
	}()
	a.logger.Info("listening", zap.String("addr", a.cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.verifier != nil {
		_ = a.verifier.Close()
	}
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.engine != nil {
		a.engine.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync()
}

func (a *App) notifier() (lmsauth.Notifier, error) {
	switch strings.ToLower(a.cfg.Notifier) {
	case "amqp":
		n, err := notify.DialAMQP(a.cfg.AMQPURL, a.cfg.AMQPQueue)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n)
		return n, nil
	case "kafka":
		n := notify.NewKafkaNotifier(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		a.closers = append(a.closers, n)
		return n, nil
	default:
		return notify.NewLogNotifier(a.logger), nil
	}
}

func engineConfig(cfg *config.Config) (lmsauth.Config, error) {
	c := lmsauth.DefaultConfig()
	switch {
	case cfg.JWTPrivateKey != "":
		c.JWT.SigningMethod = "ed25519"
		c.JWT.PrivateKey = []byte(cfg.JWTPrivateKey)
		if cfg.JWTPublicKey != "" {
			c.JWT.PublicKey = []byte(cfg.JWTPublicKey)
		}
	case cfg.JWTSecret != "":
		c.JWT.SigningMethod = "hs256"
		c.JWT.PrivateKey = []byte(cfg.JWTSecret)
	default:
		return c, errors.New("no signing key configured")
	}
	c.JWT.Issuer = cfg.JWTIssuer
	c.JWT.Audience = cfg.JWTAudience
	c.JWT.AccessTTL = cfg.AccessTTL
	c.JWT.RefreshTTL = cfg.RefreshTTL
	c.JWT.ResetTTL = cfg.ResetTTL
	c.JWT.VerificationTTL = cfg.VerifyTTL
	c.Password.MinLength = cfg.PasswordMinLength
	c.Federation.ProviderTimeout = cfg.ProviderTimeout
	return c, nil
}

func providers(cfg *config.Config) map[lmsauth.Provider]lmsauth.ProviderVerifier {
	out := map[lmsauth.Provider]lmsauth.ProviderVerifier{}
	if cfg.GoogleClientID != "" {
		out[lmsauth.ProviderGoogle] = provider.NewGoogle(provider.GoogleConfig{ClientID: cfg.GoogleClientID})
	}
	if cfg.FacebookAppID != "" && cfg.FacebookAppSecret != "" {
		out[lmsauth.ProviderFacebook] = provider.NewFacebook(provider.FacebookConfig{
			AppID:     cfg.FacebookAppID,
			AppSecret: cfg.FacebookAppSecret,
		})
	}
	if cfg.GitHubClientID != "" {
		out[lmsauth.ProviderGitHub] = provider.NewGitHub(provider.GitHubConfig{})
	}
	if cfg.AppleClientID != "" {
		out[lmsauth.ProviderApple] = provider.NewApple(provider.AppleConfig{ClientID: cfg.AppleClientID})
	}
	return out
}

func connectPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	var db *sqlx.DB
	err := retry(ctx, func() error {
		conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			return err
		}
		db = conn
		return nil
	})
	return db, err
}

func retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = dialTimeout
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
