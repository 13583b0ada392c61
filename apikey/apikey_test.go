package apikey_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/sgowda/authlink"
	"github.com/sgowda/authlink/apikey"
)

// rewriteTransport sends every request to the test server regardless of the
// host baked into the provider's endpoint constants.
type rewriteTransport struct {
	server *httptest.Server
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, _ := url.Parse(t.server.URL)
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	return t.server.Client().Transport.RoundTrip(req)
}

func testClient(server *httptest.Server) *http.Client {
	return &http.Client{Transport: &rewriteTransport{server: server}}
}

func TestVercelFetchUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer vercel-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user": {"id": "v-user-1"}}`))
	}))
	defer server.Close()

	provider := apikey.NewVercel(apikey.VercelConfig{HTTPClient: testClient(server)})
	if !strings.HasPrefix(provider.APIKeyURL(), "https://vercel.com/") {
		t.Errorf("APIKeyURL = %q", provider.APIKeyURL())
	}

	user, err := provider.FetchUser(context.Background(), "vercel-token")
	if err != nil {
		t.Fatalf("FetchUser failed: %v", err)
	}
	if user.AccountID != "v-user-1" {
		t.Errorf("AccountID = %q", user.AccountID)
	}
}

func TestBrexFetchUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "b-user-1", "email": "b@example.com"}`))
	}))
	defer server.Close()

	provider := apikey.NewBrex(apikey.BrexConfig{HTTPClient: testClient(server)})
	user, err := provider.FetchUser(context.Background(), "brex-token")
	if err != nil {
		t.Fatalf("FetchUser failed: %v", err)
	}
	if user.AccountID != "b-user-1" {
		t.Errorf("AccountID = %q", user.AccountID)
	}
}

func TestInvalidKeyHidesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "forbidden", "owner": "someone@example.com"}`, http.StatusForbidden)
	}))
	defer server.Close()

	provider := apikey.NewVercel(apikey.VercelConfig{HTTPClient: testClient(server)})
	_, err := provider.FetchUser(context.Background(), "bad-token")

	var upstream *authlink.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusForbidden {
		t.Errorf("Status = %d", upstream.Status)
	}
	if strings.Contains(upstream.Body, "someone@example.com") {
		t.Errorf("Upstream body leaked: %q", upstream.Body)
	}
}
