package auth

import (
	"net/http"
	"strings"
)

// CookieName is the cookie carrying the session token for browser clients.
const CookieName = "portal.session_token"

// TokenFromHeaders extracts a session token from a bearer Authorization header or, failing
// that, from the session cookie. It returns "" when neither is present.
func TokenFromHeaders(h http.Header) string {
	if authz := strings.TrimSpace(h.Get("Authorization")); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}

	req := http.Request{Header: h}
	if c, err := req.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// ClientInfo describes the device a session was created from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ClientInfoFromHeaders reads the caller address and agent, honouring proxy headers.
func ClientInfoFromHeaders(h http.Header) ClientInfo {
	info := ClientInfo{UserAgent: h.Get("User-Agent")}
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		info.IPAddress = strings.TrimSpace(first)
	} else {
		info.IPAddress = strings.TrimSpace(h.Get("X-Real-IP"))
	}
	return info
}
