package authlink_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sgowda/authlink"
)

func testSession() *authlink.ResolvedSession {
	return &authlink.ResolvedSession{
		Key:       "sess-key",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
		Accounts: []authlink.ResolvedAccount{
			{Kind: authlink.KindAuthentication, Provider: "google", AccountID: "g1"},
			{Kind: authlink.KindAPIKey, Provider: "vercel", AccountID: "v1"},
		},
	}
}

func TestIssueAndValidateToken(t *testing.T) {
	issuer := &authlink.APITokenIssuer{SecretKey: "secret", Issuer: "myapp", Audience: "api"}

	token, expiresIn, err := issuer.IssueToken(testSession())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if expiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("expiresIn = %d", expiresIn)
	}

	userID, providers, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q", userID)
	}
	if len(providers) != 2 || providers[0] != "authentication:google" || providers[1] != "apikey:vercel" {
		t.Errorf("providers = %v", providers)
	}
}

func TestValidateTokenRejections(t *testing.T) {
	issuer := &authlink.APITokenIssuer{SecretKey: "secret", Issuer: "myapp"}
	token, _, err := issuer.IssueToken(testSession())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, _, err := (&authlink.APITokenIssuer{SecretKey: "other", Issuer: "myapp"}).ValidateToken(token); err == nil {
		t.Error("Token signed with another key should fail")
	}
	if _, _, err := (&authlink.APITokenIssuer{SecretKey: "secret", Issuer: "elsewhere"}).ValidateToken(token); err == nil {
		t.Error("Token with wrong issuer should fail")
	}
	if _, _, err := issuer.ValidateToken("not-a-token"); err == nil {
		t.Error("Garbage should fail")
	}
}

func TestRequireToken(t *testing.T) {
	issuer := &authlink.APITokenIssuer{SecretKey: "secret", Issuer: "myapp"}
	token, _, err := issuer.IssueToken(testSession())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	var seen *authlink.TokenInfo
	handler := issuer.RequireToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = authlink.TokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d", rec.Code)
	}
	if seen == nil || seen.UserID != "user-1" || len(seen.Providers) != 2 {
		t.Errorf("TokenInfo = %+v", seen)
	}

	for name, header := range map[string]string{
		"missing header": "",
		"not bearer":     "Basic dXNlcjpwdw==",
		"garbage token":  "Bearer nope",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := &authlink.APITokenIssuer{SecretKey: "secret", TokenExpiry: time.Millisecond}
	token, _, err := issuer.IssueToken(testSession())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, _, err := issuer.ValidateToken(token); err == nil {
		t.Error("Expired token should fail validation")
	}
}
