package httpapi

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/lmsauth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Auth is the engine surface served over HTTP. *lmsauth.Engine implements it.
type Auth interface {
	Login(ctx context.Context, email, password string, device lmsauth.DeviceInfo) (*lmsauth.User, *lmsauth.TokenPair, error)
	Register(ctx context.Context, req lmsauth.RegisterRequest) (*lmsauth.User, *lmsauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*lmsauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	ResetPassword(ctx context.Context, email string) error
	ConfirmResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	RequestEmailVerification(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, userID, current, next, confirm string) error
	ValidateAccess(ctx context.Context, accessToken string) (*lmsauth.AccessClaims, error)
	CurrentUser(ctx context.Context, accessToken string) (*lmsauth.User, error)
	Health(ctx context.Context) lmsauth.HealthStatus
}

// Social is implemented by *lmsauth.FederationEngine.
type Social interface {
	SocialLogin(ctx context.Context, provider lmsauth.Provider, accessToken string, device lmsauth.DeviceInfo) (*lmsauth.User, *lmsauth.TokenPair, error)
}

type Config struct {
	Auth Auth
	// Social enables /api/oauth/login when set.
	Social Social
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
	// TrustedProxies lists the proxy ranges whose X-Forwarded-For is honoured.
	// When empty the client address is the socket peer and forwarding headers
	// are ignored.
	TrustedProxies []*net.IPNet
}

type Server struct {
	auth    Auth
	social  Social
	metrics http.Handler
	logger  *zap.Logger
	proxies []*net.IPNet
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		auth:    cfg.Auth,
		social:  cfg.Social,
		metrics: cfg.Metrics,
		logger:  logger.Named("http"),
		proxies: cfg.TrustedProxies,
	}
}

// Echo returns a configured echo instance with every route registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(s.proxies)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(s.logger))
	e.Use(clientIP)
	s.Register(e)
	return e
}

// ipExtractor feeds the per-IP throttles. Forwarding headers are only trusted
// when they were appended by a configured proxy.
func ipExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// Register mounts the routes on e. Callers embedding the routes in their own
// echo instance should set e.IPExtractor themselves.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.health)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	auth := e.Group("/api/auth")
	auth.POST("/login", s.login)
	auth.POST("/register", s.register)
	auth.POST("/refresh", s.refresh)
	auth.POST("/logout", s.logout)
	auth.POST("/logout-all", s.logoutAll, s.RequireAuth)
	auth.POST("/reset-password", s.resetPassword)
	auth.POST("/reset-password/confirm", s.confirmResetPassword)
	auth.POST("/verify-email", s.verifyEmail)
	auth.POST("/verify-email/resend", s.resendVerification)
	auth.POST("/change-password", s.changePassword, s.RequireAuth)
	auth.GET("/me", s.me, s.RequireAuth)

	if s.social != nil {
		e.POST("/api/oauth/login", s.socialLogin)
	}
}

func (s *Server) health(c echo.Context) error {
	h := s.auth.Health(c.Request().Context())
	body := map[string]any{"status": "ok"}
	if h.RedisConfigured {
		body["redis"] = map[string]any{
			"available":  h.RedisAvailable,
			"latency_ms": h.RedisLatency.Milliseconds(),
		}
		if !h.RedisAvailable {
			// Throttling fails open, so a missing Redis degrades but does not fail.
			body["status"] = "degraded"
		}
	}
	return c.JSON(http.StatusOK, body)
}
