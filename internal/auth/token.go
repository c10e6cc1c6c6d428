package auth

import (
	"net/http"
	"strings"
)

const (
	accessTokenCookie = "access_token"
	cartSessionCookie = "cart_session"
	cartSessionHeader = "X-Cart-Session"
)

// ExtractAccessToken reads the caller's token, preferring the cookie set by
// the storefront over the Authorization header.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	return ""
}

// ExtractCartSession returns the anonymous cart id, header first.
func ExtractCartSession(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get(cartSessionHeader)); s != "" {
		return s
	}
	if cookie, err := r.Cookie(cartSessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
