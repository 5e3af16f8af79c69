package httpapi

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/model"
	"github.com/labstack/echo/v4"
)

// loginRequest also binds OAuth2 password-grant forms, where the email is sent
// as username.
type loginRequest struct {
	Email      string             `json:"email" form:"username"`
	Password   string             `json:"password" form:"password"`
	DeviceName string             `json:"device_name" form:"device_name"`
	DeviceInfo lmsauth.DeviceInfo `json:"device_info"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	OrganizationID  string `json:"organization_id"`
	BranchID        string `json:"branch_id"`
	PhoneNumber     string `json:"phone_number"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type confirmResetRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type socialLoginRequest struct {
	Provider    string             `json:"provider"`
	AccessToken string             `json:"access_token"`
	DeviceName  string             `json:"device_name"`
	DeviceInfo  lmsauth.DeviceInfo `json:"device_info"`
}

func deviceInfo(name string, info lmsauth.DeviceInfo) lmsauth.DeviceInfo {
	if name == "" {
		return info
	}
	out := info.Clone()
	if out == nil {
		out = lmsauth.DeviceInfo{}
	}
	out["device_name"] = name
	return out
}

func (s *Server) login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	user, pair, err := s.auth.Login(c.Request().Context(), req.Email, req.Password, deviceInfo(req.DeviceName, req.DeviceInfo))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, authResponse{User: user, Token: pair})
}

func (s *Server) register(c echo.Context) error {
	req := new(registerRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	user, pair, err := s.auth.Register(c.Request().Context(), lmsauth.RegisterRequest{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Username:        req.Username,
		OrganizationID:  req.OrganizationID,
		BranchID:        req.BranchID,
		PhoneNumber:     req.PhoneNumber,
	})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusCreated, authResponse{User: user, Token: pair})
}

func (s *Server) refresh(c echo.Context) error {
	req := new(refreshRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	pair, err := s.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

func (s *Server) logout(c echo.Context) error {
	req := new(refreshRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := s.auth.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) logoutAll(c echo.Context) error {
	claims, _ := ClaimsFromContext(c)
	n, err := s.auth.LogoutAll(c.Request().Context(), claims.Subject)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"revoked": n})
}

func (s *Server) resetPassword(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := s.auth.ResetPassword(c.Request().Context(), req.Email); err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusAccepted, statusResponse{
		Status:  "success",
		Message: "If the email exists, a password reset link has been sent",
	})
}

func (s *Server) confirmResetPassword(c echo.Context) error {
	req := new(confirmResetRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := s.auth.ConfirmResetPassword(c.Request().Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		return renderError(c, err)
	}
	return ok(c, "Password has been reset successfully")
}

func (s *Server) verifyEmail(c echo.Context) error {
	req := new(tokenRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := s.auth.VerifyEmail(c.Request().Context(), req.Token); err != nil {
		return renderError(c, err)
	}
	return ok(c, "Email has been verified successfully")
}

func (s *Server) resendVerification(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := s.auth.RequestEmailVerification(c.Request().Context(), req.Email); err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusAccepted, statusResponse{
		Status:  "success",
		Message: "If the account needs verification, a new link has been sent",
	})
}

func (s *Server) changePassword(c echo.Context) error {
	req := new(changePasswordRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	claims, _ := ClaimsFromContext(c)
	err := s.auth.ChangePassword(c.Request().Context(), claims.Subject, req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		return renderError(c, err)
	}
	return ok(c, "Password has been changed successfully")
}

func (s *Server) me(c echo.Context) error {
	token, _ := c.Get(accessTokenKey).(string)
	user, err := s.auth.CurrentUser(c.Request().Context(), token)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) socialLogin(c echo.Context) error {
	req := new(socialLoginRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c, "invalid payload")
	}
	provider, known := model.ParseProvider(req.Provider)
	if !known {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "unknown provider "+strings.TrimSpace(req.Provider), nil)
	}
	user, pair, err := s.social.SocialLogin(c.Request().Context(), provider, req.AccessToken, deviceInfo(req.DeviceName, req.DeviceInfo))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, authResponse{User: user, Token: pair})
}
