package gotrue

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/edudashpro/sessionctl"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         user   `json:"user"`
}

type user struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type signUpRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Data     map[string]string `json:"data,omitempty"`
}

// apiError covers the error shapes GoTrue has used across versions.
type apiError struct {
	Code             int    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error, e.ErrorCode} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// statusError maps a non-2xx response. Client-side rejections become
// ErrInvalidCredentials with the server's message; anything else is the
// server being unavailable.
func statusError(status int, body []byte) error {
	var apiErr apiError
	msg := ""
	if err := json.Unmarshal(body, &apiErr); err == nil {
		msg = apiErr.text()
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", sessionctl.ErrInvalidCredentials, msg)
	default:
		return fmt.Errorf("%w: http %d: %s", sessionctl.ErrProviderUnavailable, status, msg)
	}
}
