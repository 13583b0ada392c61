// Demo host application showing how to wire authlink into a web app:
// Google/GitHub sign-in, Google account linking, Vercel and Brex api-key
// linking and console magic links, all persisted in a local JSON file.
//
// Configuration comes from the environment (a .env file is honored):
//
//	AUTH_URL                    externally reachable base URL
//	GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET
//	GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET
//	JWT_SECRET_KEY              enables POST /auth/token
//	STORE_PATH                  JSON store location (default authlink.json)
//	PORT                        listen port (default 8080)
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/sgowda/authlink"
	"github.com/sgowda/authlink/apikey"
	"github.com/sgowda/authlink/magiclink"
	"github.com/sgowda/authlink/oauth2"
	"github.com/sgowda/authlink/stores/fs"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using process environment")
	}

	store, err := fs.New(env("STORE_PATH", "authlink.json"))
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}

	authURL := env("AUTH_URL", "http://localhost:8080")

	oauthAuthn := map[string]authlink.OAuth2AuthenticationProvider{}
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		oauthAuthn["google"] = oauth2.NewGoogleAuthentication(oauth2.GoogleConfig{
			ClientID:     id,
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		})
	}
	if id := os.Getenv("GITHUB_CLIENT_ID"); id != "" {
		oauthAuthn["github"] = oauth2.NewGitHubAuthentication(oauth2.GitHubConfig{
			ClientID:     id,
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		})
	}

	oauthAuthz := map[string]authlink.OAuth2AuthorizationProvider{}
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		oauthAuthz["google"] = oauth2.NewGoogleAuthorization(oauth2.GoogleConfig{
			ClientID:     id,
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
		})
	}

	auth := authlink.New(authlink.Config{
		Database:             store,
		AuthURL:              authURL,
		OAuth2Authentication: oauthAuthn,
		OAuth2Authorization:  oauthAuthz,
		MagicLink: map[string]authlink.MagicLinkProvider{
			"console": magiclink.NewConsole(),
		},
		APIKey: map[string]authlink.APIKeyProvider{
			"vercel": apikey.NewVercel(apikey.VercelConfig{}),
			"brex":   apikey.NewBrex(apikey.BrexConfig{}),
		},
	})

	handler := authlink.NewHandler(auth)
	if secret := os.Getenv("JWT_SECRET_KEY"); secret != "" {
		handler.Tokens = &authlink.APITokenIssuer{
			SecretKey: secret,
			Issuer:    "demo-hostapp",
			Audience:  "api",
		}
	}

	middleware := &authlink.Middleware{
		Resolver: &authlink.SessionResolver{Database: store, Refresher: auth.Refresher()},
		GetRedirURL: func(r *http.Request) string {
			return "/auth/signin/google"
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/auth/", handler)
	mux.Handle("/me", middleware.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := authlink.SessionFromContext(r.Context())
		fmt.Fprintf(w, "Signed in as %s with %d linked accounts\n", session.UserID, len(session.Accounts))
	})))
	mux.Handle("/", middleware.ExtractSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if session := authlink.SessionFromContext(r.Context()); session != nil {
			fmt.Fprintf(w, "Welcome back, %s\n", session.UserID)
			return
		}
		fmt.Fprintln(w, "Sign in at /auth/signin/google")
	})))

	addr := ":" + env("PORT", "8080")
	slog.Info("Starting demo host app", "addr", addr, "authURL", authURL)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
