package httpapi

import (
	"net/http"

	"github.com/MrEthical07/lmsauth"
	"github.com/labstack/echo/v4"
)

type apiError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type authResponse struct {
	User  *lmsauth.User      `json:"user"`
	Token *lmsauth.TokenPair `json:"token"`
}

func errorJSON(c echo.Context, status int, code, message string, details map[string]any) error {
	return c.JSON(status, errorResponse{Error: apiError{Code: code, Message: message, Details: details}})
}

func badRequest(c echo.Context, message string) error {
	return errorJSON(c, http.StatusBadRequest, "bad_request", message, nil)
}

// renderError writes err as an AuthError. Causes are logged by the engine and
// never sent to clients.
func renderError(c echo.Context, err error) error {
	ae := lmsauth.AsAuthError(err)
	if ae.Status == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	}
	return errorJSON(c, ae.Status, string(ae.Kind), ae.Message, ae.Details)
}

func ok(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: message})
}
