package authlink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type sessionContextKey string

const contextKeySession sessionContextKey = "resolvedSession"

// Middleware resolves the session cookie on incoming requests and makes the
// ResolvedSession available to downstream handlers via the request context.
type Middleware struct {
	Resolver *SessionResolver

	// CookieName the session key is read from. Defaults to SessionCookieName.
	CookieName string

	// GetRedirURL, when set, turns RequireSession failures into a redirect
	// to a login page instead of a 401. The original path is appended under
	// CallbackURLParam.
	GetRedirURL      func(r *http.Request) string
	CallbackURLParam string
}

func (m *Middleware) ensureReasonableDefaults() {
	if m.CookieName == "" {
		m.CookieName = SessionCookieName
	}
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "callbackURL"
	}
}

// SessionFromContext returns the session placed by ExtractSession or
// RequireSession, or nil when the request carried no live session.
func SessionFromContext(ctx context.Context) *ResolvedSession {
	if v := ctx.Value(contextKeySession); v != nil {
		if session, ok := v.(*ResolvedSession); ok {
			return session
		}
	}
	return nil
}

// ExtractSession resolves the session if present and continues either way.
// Handlers that merely personalize for signed-in users want this one.
func (m *Middleware) ExtractSession(next http.Handler) http.Handler {
	m.ensureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, _ := m.resolve(r)
		if session != nil {
			r = r.WithContext(context.WithValue(r.Context(), contextKeySession, session))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession resolves the session and rejects requests without one,
// either with a login redirect (when GetRedirURL is set) or a 401.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	m.ensureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.resolve(r)
		if session == nil {
			if m.GetRedirURL != nil {
				if redirURL := m.GetRedirURL(r); redirURL != "" {
					encoded := strings.Replace(url.QueryEscape(r.URL.Path), "+", "%20", -1)
					http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirURL, m.CallbackURLParam, encoded), http.StatusFound)
					return
				}
			}
			msg := "Login Required"
			if err != nil {
				msg = "Session Expired"
			}
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), contextKeySession, session))
		next.ServeHTTP(w, r)
	})
}

// resolve returns the live session for the request's cookie, or nil. The
// error distinguishes an expired session from a missing one.
func (m *Middleware) resolve(r *http.Request) (*ResolvedSession, error) {
	cookie, err := r.Cookie(m.CookieName)
	if err != nil {
		return nil, nil
	}
	return m.Resolver.ResolveSession(r.Context(), cookie.Value)
}
