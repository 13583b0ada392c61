package authlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
)

// SessionCookieName is the default cookie carrying the opaque session key.
const SessionCookieName = "session"

// Handler binds an Auth to HTTP routes:
//
//	GET  /auth/signin/{provider}                 start OAuth2 sign-in
//	GET  /auth/connect/{provider}                start OAuth2 account linking
//	POST /auth/magiclink/{provider}              send a magic link email
//	POST /auth/apikey/{provider}                 link an api-key account
//	GET  /auth/{method}/{provider}               OAuth2 provider callback
//	GET  /auth/logout                            clear the session cookie
//	GET  /auth/session                           resolve the current session
//	POST /auth/token                             mint an API token (if configured)
type Handler struct {
	Auth *Auth

	// Tokens enables POST /auth/token. Optional.
	Tokens *APITokenIssuer

	// CookieName overrides SessionCookieName.
	CookieName string

	// CookieSecure marks the session cookie Secure. Leave false only for
	// local development over plain HTTP.
	CookieSecure bool

	// ErrorURL receives callback-failure redirects with an error query
	// parameter appended. Defaults to the Auth's AuthURL root.
	ErrorURL string

	router *mux.Router
}

// NewHandler builds a Handler with default cookie settings.
func NewHandler(auth *Auth) *Handler {
	h := &Handler{Auth: auth}
	return h.EnsureDefaults()
}

// EnsureDefaults fills unset fields and builds the route table.
func (h *Handler) EnsureDefaults() *Handler {
	if h.CookieName == "" {
		h.CookieName = SessionCookieName
	}
	if h.ErrorURL == "" {
		h.ErrorURL = h.Auth.AuthURL + "/"
	}
	if h.router == nil {
		r := mux.NewRouter()
		r.HandleFunc("/auth/signin/{provider}", h.onSignIn).Methods(http.MethodGet)
		r.HandleFunc("/auth/connect/{provider}", h.onConnect).Methods(http.MethodGet)
		r.HandleFunc("/auth/magiclink/{provider}", h.onMagicLink).Methods(http.MethodPost)
		r.HandleFunc("/auth/apikey/{provider}", h.onAPIKey).Methods(http.MethodPost)
		r.HandleFunc("/auth/logout", h.onLogout).Methods(http.MethodGet)
		r.HandleFunc("/auth/session", h.onSession).Methods(http.MethodGet)
		r.HandleFunc("/auth/token", h.onToken).Methods(http.MethodPost)
		// The emailed magic-link URL lands here; completion is dispatched
		// through the same path as the OAuth2 callbacks below.
		r.HandleFunc("/auth/"+FlowAuthentication+"/magiclink/{provider}", h.onMagicLinkLanding).Methods(http.MethodGet)
		r.HandleFunc("/auth/{method}/{provider}", h.onCallback).Methods(http.MethodGet)
		h.router = r
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	h.router.ServeHTTP(w, r)
}

func (h *Handler) onSignIn(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	callbackURL := r.URL.Query().Get("callbackURL")
	if callbackURL == "" {
		callbackURL = "/"
	}

	redirect, err := h.Auth.SignIn(r.Context(), provider, callbackURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) onConnect(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	provider := mux.Vars(r)["provider"]
	callbackURL := r.URL.Query().Get("callbackURL")
	if callbackURL == "" {
		callbackURL = "/"
	}

	redirect, err := h.Auth.ConnectAuthorizationAccount(r.Context(), provider, callbackURL, session.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) onMagicLink(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	email := r.FormValue("email")
	if email == "" {
		h.writeJSON(w, http.StatusBadRequest, NewAuthError(ErrCodeMissingParameter, "email is required", "email"))
		return
	}

	if err := h.Auth.SendMagicLink(r.Context(), provider, email); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) onAPIKey(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	provider := mux.Vars(r)["provider"]
	apiKey := r.FormValue("api_key")
	if apiKey == "" {
		h.writeJSON(w, http.StatusBadRequest, NewAuthError(ErrCodeMissingParameter, "api_key is required", "api_key"))
		return
	}

	account, err := h.Auth.ConnectAPIKeyAccount(r.Context(), provider, session.UserID, apiKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ResolvedAccount{Kind: KindAPIKey, Provider: account.Provider, AccountID: account.AccountID})
}

func (h *Handler) onCallback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	method, provider := vars["method"], vars["provider"]
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	completion, err := h.Auth.Complete(r.Context(), method, provider, code, state)
	if err != nil {
		if errors.Is(err, ErrMissingParameter) {
			h.writeJSON(w, http.StatusBadRequest, NewAuthError(ErrCodeMissingParameter, err.Error(), ""))
			return
		}
		slog.Error("Callback completion failed", "method", method, "provider", provider, "error", err)
		h.redirectError(w, r, err)
		return
	}

	if completion.Session != nil {
		h.setSessionCookie(w, completion.Session)
	}
	http.Redirect(w, r, completion.CallbackURL, http.StatusFound)
}

func (h *Handler) onMagicLinkLanding(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	// No redemption path exists yet, so the landing reports the flow as
	// unsupported rather than pretending the token was honored.
	h.redirectError(w, r, fmt.Errorf("%w: magic link landing for %q", ErrUnsupportedFlow, provider))
}

func (h *Handler) onLogout(w http.ResponseWriter, r *http.Request) {
	// Only the client credential is cleared. The session record stays in
	// storage and dies by expiry.
	h.clearSessionCookie(w)
	to := r.URL.Query().Get("to")
	if to == "" {
		fmt.Fprint(w, "Logged Out")
		return
	}
	http.Redirect(w, r, to, http.StatusFound)
}

func (h *Handler) onSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) onToken(w http.ResponseWriter, r *http.Request) {
	if h.Tokens == nil {
		h.writeJSON(w, http.StatusNotFound, NewAuthError(ErrCodeServerError, "token issuance not configured", ""))
		return
	}
	session, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	token, expiresIn, err := h.Tokens.IssueToken(session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

// requireSession resolves the session cookie, answering 401 when there is no
// live session. An expired session additionally clears the cookie.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*ResolvedSession, bool) {
	session, err := h.Auth.ResolveSession(r.Context(), h.sessionKey(r))
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			h.clearSessionCookie(w)
			h.writeJSON(w, http.StatusUnauthorized, NewAuthError(ErrCodeServerError, "session expired", ""))
			return nil, false
		}
		h.writeError(w, err)
		return nil, false
	}
	if session == nil {
		h.writeJSON(w, http.StatusUnauthorized, NewAuthError(ErrCodeServerError, "not signed in", ""))
		return nil, false
	}
	return session, true
}

func (h *Handler) sessionKey(r *http.Request) string {
	cookie, err := r.Cookie(h.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    session.Key,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Now(),
		HttpOnly: true,
		Secure:   h.CookieSecure,
	})
}

// redirectError lands the user-agent on the error page with a coarse code.
// Internal detail stays in the logs.
func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, err error) {
	u, parseErr := url.Parse(h.ErrorURL)
	if parseErr != nil {
		h.writeError(w, err)
		return
	}
	q := u.Query()
	q.Set("error", ErrorCode(err))
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case ErrCodeProviderNotConfigured, ErrCodeRequestNotFound, ErrCodeAccountNotFound:
		status = http.StatusNotFound
	case ErrCodeMissingParameter:
		status = http.StatusBadRequest
	case ErrCodeAccountExists:
		status = http.StatusConflict
	case ErrCodeRequestExpired, ErrCodeRefreshRejected:
		status = http.StatusUnauthorized
	case ErrCodeUnsupportedFlow:
		status = http.StatusMethodNotAllowed
	case ErrCodeUpstreamError:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
		h.writeJSON(w, status, NewAuthError(ErrCodeServerError, "internal error", ""))
		return
	}
	h.writeJSON(w, status, NewAuthError(code, err.Error(), ""))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
