// Package authlink is a pluggable authentication and account-linking
// orchestration layer for Go applications.
//
// AuthLink drives the full lifecycle of proving user identity against
// external providers: OAuth2 sign-in, OAuth2 account linking, magic-link
// email, and API-key linking. It owns the protocol state machine (pending
// requests, anti-forgery state tokens, code exchange, session issuance,
// lazy token refresh) while everything provider- and storage-specific is
// plugged in from the outside.
//
// # Architecture
//
// Provider: an external identity or authorization service. Providers come in
// four capability variants, each tagged with a method discriminant: OAuth2
// authentication (sign-in), OAuth2 authorization (linking), magic-link
// email, and API key.
//
// DatabaseProvider: the persistence contract for users, sessions, linked
// accounts and pending requests. AuthLink ships file-system, GORM and Cloud
// Datastore adapters; applications may implement their own.
//
// Auth: the orchestrator. It initiates flows (persisting a pending request
// and handing back a redirect target) and completes them on provider
// callback (validating state, exchanging the code, resolving the user,
// linking the account, issuing a session).
//
// # Basic Usage
//
// Configure providers and a database, then mount the HTTP handler:
//
//	db, _ := fs.New("/var/lib/authlink/authlink.json")
//	auth := authlink.New(authlink.Config{
//	    Database: db,
//	    AuthURL:  "https://yourapp.com",
//	    OAuth2Authentication: map[string]authlink.OAuth2AuthenticationProvider{
//	        "google": oauth2.NewGoogleAuthentication(oauth2.GoogleConfig{
//	            ClientID:     clientID,
//	            ClientSecret: clientSecret,
//	        }),
//	    },
//	    MagicLink: map[string]authlink.MagicLinkProvider{
//	        "resend": magiclink.NewResend(magiclink.ResendConfig{
//	            APIKey: resendKey,
//	            From:   "login@yourapp.com",
//	        }),
//	    },
//	})
//
//	handler := authlink.NewHandler(auth)
//	mux.Handle("/auth/", handler)
//
// A signed-in client holds an opaque session key in an HTTP-only cookie.
// Each access resolves the session through Auth.ResolveSession, which lazily
// refreshes any linked OAuth2 account whose access token has expired and
// revokes accounts whose refresh grant the provider has rejected.
//
// # Security
//
// State tokens and magic-link tokens are cryptographically secure 32-byte
// values, hex-encoded to 64 characters, persisted as single-use pending
// requests that expire after 24 hours. Sessions are opaque storage-generated
// keys valid for 30 days. Provider credentials never leave the storage layer
// through session resolution; resolved sessions expose only provider names
// and account IDs.
package authlink
