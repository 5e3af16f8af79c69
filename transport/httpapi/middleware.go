package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	claimsKey      = "lmsauth.claims"
	accessTokenKey = "lmsauth.access_token"
)

// ClaimsFromContext returns the access claims set by [Server.RequireAuth].
func ClaimsFromContext(c echo.Context) (*lmsauth.AccessClaims, bool) {
	claims, ok := c.Get(claimsKey).(*lmsauth.AccessClaims)
	return claims, ok
}

// RequireAuth rejects requests without a valid bearer access token.
func (s *Server) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			return errorJSON(c, http.StatusUnauthorized, string(lmsauth.KindInvalidToken), "Not authenticated", nil)
		}
		claims, err := s.auth.ValidateAccess(c.Request().Context(), token)
		if err != nil {
			return renderError(c, err)
		}
		c.Set(claimsKey, claims)
		c.Set(accessTokenKey, token)
		return next(c)
	}
}

// clientIP makes the caller address available to engine throttling.
func clientIP(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		c.SetRequest(req.WithContext(lmsauth.WithClientIP(req.Context(), c.RealIP())))
		return next(c)
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency.Round(time.Microsecond)),
				zap.String("request_id", v.RequestID),
				zap.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	})
}

func bearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
