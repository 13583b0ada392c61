package authlink_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sgowda/authlink"
)

func newTestHandler(t *testing.T) *authlink.Handler {
	t.Helper()
	store := newTestStore(t)
	auth := authlink.New(authlink.Config{
		Database: store,
		AuthURL:  "https://app.example",
		OAuth2Authentication: map[string]authlink.OAuth2AuthenticationProvider{
			"acme": fakeOAuth2("web@example.com", "acct-w"),
		},
	})
	handler := authlink.NewHandler(auth)
	handler.Tokens = &authlink.APITokenIssuer{SecretKey: "test-secret", Issuer: "test"}
	return handler
}

// signInCookie walks the full sign-in round trip and returns the session
// cookie the callback set.
func signInCookie(t *testing.T, handler *authlink.Handler) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/signin/acme?callbackURL=/next", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("Sign-in status = %d, body: %s", rec.Code, rec.Body.String())
	}
	state := stateFromURL(t, rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/authentication/acme?code=c&state="+url.QueryEscape(state), nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("Callback status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/next" {
		t.Errorf("Callback redirect = %q, want /next", loc)
	}

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == authlink.SessionCookieName {
			if !cookie.HttpOnly {
				t.Error("Session cookie must be HttpOnly")
			}
			if cookie.Value == "" {
				t.Error("Session cookie is empty")
			}
			return cookie
		}
	}
	t.Fatal("Callback did not set a session cookie")
	return nil
}

func TestHandlerSignInAndCallback(t *testing.T) {
	handler := newTestHandler(t)
	cookie := signInCookie(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Session status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var session authlink.ResolvedSession
	if err := json.NewDecoder(rec.Body).Decode(&session); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if session.UserID == "" {
		t.Error("Resolved session has no user")
	}
	if len(session.Accounts) != 1 || session.Accounts[0].Provider != "acme" {
		t.Errorf("Accounts = %+v", session.Accounts)
	}
}

func TestHandlerSessionUnauthenticated(t *testing.T) {
	handler := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", rec.Code)
	}
}

func TestHandlerCallbackMissingParams(t *testing.T) {
	handler := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/authentication/acme?code=only-code", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	var authErr authlink.AuthError
	if err := json.NewDecoder(rec.Body).Decode(&authErr); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if authErr.Code != authlink.ErrCodeMissingParameter {
		t.Errorf("Error code = %q", authErr.Code)
	}
}

func TestHandlerCallbackErrorRedirect(t *testing.T) {
	handler := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/authentication/acme?code=c&state=never-issued", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("Status = %d, want 302", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Bad redirect location: %v", err)
	}
	if got := loc.Query().Get("error"); got != authlink.ErrCodeRequestNotFound {
		t.Errorf("error query = %q, want %q", got, authlink.ErrCodeRequestNotFound)
	}
}

func TestHandlerLogout(t *testing.T) {
	handler := newTestHandler(t)
	cookie := signInCookie(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/auth/logout?to=/bye", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("Status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/bye" {
		t.Errorf("Redirect = %q", loc)
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == authlink.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("Logout did not clear the session cookie")
	}
}

func TestHandlerToken(t *testing.T) {
	handler := newTestHandler(t)
	cookie := signInCookie(t, handler)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode token response: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		t.Errorf("Unexpected token response: %+v", resp)
	}
	if !strings.HasPrefix(resp.AccessToken, "eyJ") {
		t.Errorf("Access token does not look like a JWT: %q", resp.AccessToken)
	}

	userID, _, err := handler.Tokens.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("Minted token failed validation: %v", err)
	}
	if userID == "" {
		t.Error("Token has no subject")
	}
}
