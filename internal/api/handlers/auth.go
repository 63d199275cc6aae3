package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zime-ai/nucleus/internal/api/middleware"
	domainauth "github.com/zime-ai/nucleus/internal/domain/auth"
)

// User-facing sign-in messages.
const (
	msgSignInFailed = "Failed to sign in. Please try again."
	msgAccessDenied = "Access denied."
)

// AuthHandler handles sign-in, sign-out and the session probe.
type AuthHandler struct {
	gate   *domainauth.Gate
	logger *zap.Logger
}

func NewAuthHandler(gate *domainauth.Gate, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{gate: gate, logger: logger}
}

// SignInRequest is the request body for POST /auth/sign-in.
// provider "token" needs idToken; provider "password" needs email and password.
type SignInRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"idToken,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// SignInResponse is returned after a successful sign-in.
type SignInResponse struct {
	State     domainauth.SessionState `json:"state"`
	Token     string                  `json:"token"`
	Email     string                  `json:"email"`
	Provider  string                  `json:"provider"`
	ExpiresAt time.Time               `json:"expiresAt"`
}

// SessionResponse is returned by GET /auth/session.
type SessionResponse struct {
	State         domainauth.SessionState `json:"state"`
	Email         string                  `json:"email,omitempty"`
	AllowedDomain string                  `json:"allowedDomain"`
}

// SignIn handles POST /auth/sign-in.
//
// Response codes:
//   - 200 OK: signed in
//   - 400 Bad Request: invalid JSON, missing or unsupported provider
//   - 401 Unauthorized: the identity provider rejected the credentials
//   - 403 Forbidden: email outside the allowed domain (session revoked)
//   - 500 Internal Server Error: unexpected failure
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" {
		req.Provider = domainauth.ProviderToken
	}

	sess, err := h.gate.SignIn(r.Context(), domainauth.Credentials{
		Provider: req.Provider,
		IDToken:  req.IDToken,
		Email:    req.Email,
		Password: req.Password,
	})
	switch {
	case err == nil:
	case errors.Is(err, domainauth.ErrAccessDenied):
		writeError(w, http.StatusForbidden, msgAccessDenied)
		return
	case errors.Is(err, domainauth.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "unsupported provider")
		return
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		h.logger.Info("sign-in rejected", zap.String("provider", req.Provider), zap.Error(err))
		writeError(w, http.StatusUnauthorized, msgSignInFailed)
		return
	default:
		h.logger.Error("sign-in failed", zap.String("provider", req.Provider), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgSignInFailed)
		return
	}

	writeJSON(w, http.StatusOK, SignInResponse{
		State:     domainauth.StateAuthenticated,
		Token:     sess.Token,
		Email:     sess.Email,
		Provider:  sess.Provider,
		ExpiresAt: sess.ExpiresAt,
	})
}

// SignOut handles POST /auth/sign-out. It runs behind the auth middleware.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}
	if err := h.gate.SignOut(r.Context(), p); err != nil {
		h.logger.Error("sign-out failed", zap.String("session_id", p.SessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to sign out. Please try again.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session. It always answers 200 with the state.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	state, p := h.gate.State(r.Context(), middleware.ExtractBearerToken(r))
	resp := SessionResponse{State: state, AllowedDomain: h.gate.AllowedDomain()}
	if p != nil {
		resp.Email = p.Email
	}
	writeJSON(w, http.StatusOK, resp)
}
