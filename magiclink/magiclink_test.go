package magiclink_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sgowda/authlink"
	"github.com/sgowda/authlink/magiclink"
)

// captureTransport records the outgoing request body and answers with a
// canned status.
type captureTransport struct {
	status int
	body   []byte
	header http.Header
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.body, _ = io.ReadAll(req.Body)
	t.header = req.Header.Clone()
	return &http.Response{
		StatusCode: t.status,
		Body:       io.NopCloser(strings.NewReader("{}")),
		Header:     http.Header{},
	}, nil
}

func TestResendSendEmail(t *testing.T) {
	transport := &captureTransport{status: http.StatusOK}
	provider := magiclink.NewResend(magiclink.ResendConfig{
		APIKey:     "re-key",
		From:       "MyApp <auth@myapp.com>",
		Subject:    "Sign in to MyApp",
		HTTPClient: &http.Client{Transport: transport},
	})

	link := "https://app.example/auth/authentication/magiclink/resend?token=abc"
	if err := provider.SendEmail(context.Background(), "user@example.com", link); err != nil {
		t.Fatalf("SendEmail failed: %v", err)
	}

	if got := transport.header.Get("Authorization"); got != "Bearer re-key" {
		t.Errorf("Authorization = %q", got)
	}

	var payload struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
		Text    string   `json:"text"`
	}
	if err := json.Unmarshal(transport.body, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if payload.From != "MyApp <auth@myapp.com>" || payload.Subject != "Sign in to MyApp" {
		t.Errorf("Payload = %+v", payload)
	}
	if len(payload.To) != 1 || payload.To[0] != "user@example.com" {
		t.Errorf("To = %v", payload.To)
	}
	if !strings.Contains(payload.HTML, link) || !strings.Contains(payload.Text, link) {
		t.Errorf("Link missing from body: html=%q text=%q", payload.HTML, payload.Text)
	}
}

func TestResendUpstreamFailure(t *testing.T) {
	provider := magiclink.NewResend(magiclink.ResendConfig{
		APIKey:     "re-key",
		From:       "auth@myapp.com",
		HTTPClient: &http.Client{Transport: &captureTransport{status: http.StatusUnprocessableEntity}},
	})

	err := provider.SendEmail(context.Background(), "user@example.com", "https://app.example/x")
	var upstream *authlink.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Provider != "resend" || upstream.Status != http.StatusUnprocessableEntity {
		t.Errorf("UpstreamError = %+v", upstream)
	}
}

func TestResendCustomRender(t *testing.T) {
	transport := &captureTransport{status: http.StatusOK}
	provider := magiclink.NewResend(magiclink.ResendConfig{
		APIKey: "re-key",
		From:   "auth@myapp.com",
		Render: func(url string) (string, string) {
			return "<b>" + url + "</b>", "plain " + url
		},
		HTTPClient: &http.Client{Transport: transport},
	})

	if err := provider.SendEmail(context.Background(), "user@example.com", "https://l"); err != nil {
		t.Fatalf("SendEmail failed: %v", err)
	}

	var payload struct {
		HTML string `json:"html"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(transport.body, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if payload.HTML != "<b>https://l</b>" || payload.Text != "plain https://l" {
		t.Errorf("Rendered bodies = %+v", payload)
	}
}
