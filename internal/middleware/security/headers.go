// Package security provides response hardening headers, client IP
// extraction behind trusted proxies and suspicious request detection.
package security

import (
	"fmt"
	"net/http"
	"strings"
)

// HeadersConfig describes the hardening headers of the admin UI.
type HeadersConfig struct {
	// ScriptOrigins are allowed in script-src besides 'self'.
	ScriptOrigins []string

	// HSTSMaxAge in seconds; sent only on TLS requests. Zero disables HSTS.
	HSTSMaxAge int

	// NoStore marks pages as uncacheable so record data does not linger in
	// browser or proxy caches. Handlers that set Cache-Control keep theirs.
	NoStore bool

	// Fixed headers copied verbatim to every response.
	Fixed map[string]string
}

// DefaultHeadersConfig allows htmx from unpkg and forbids framing.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		ScriptOrigins: []string{"https://unpkg.com"},
		HSTSMaxAge:    31536000,
		NoStore:       true,
		Fixed: map[string]string{
			"X-Content-Type-Options":       "nosniff",
			"X-Frame-Options":              "DENY",
			"Referrer-Policy":              "same-origin",
			"Permissions-Policy":           "geolocation=(), microphone=(), camera=(), payment=()",
			"Cross-Origin-Opener-Policy":   "same-origin",
			"Cross-Origin-Resource-Policy": "same-origin",
		},
	}
}

// ContentSecurityPolicy renders the CSP for the configured script origins.
// Inline styles stay allowed for the category bars and htmx indicators.
func (c HeadersConfig) ContentSecurityPolicy() string {
	script := append([]string{"'self'"}, c.ScriptOrigins...)
	return strings.Join([]string{
		"default-src 'self'",
		"script-src " + strings.Join(script, " "),
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data:",
		"connect-src 'self'",
		"object-src 'none'",
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}, "; ")
}

// HeadersMiddleware applies HeadersConfig to every response.
type HeadersMiddleware struct {
	config HeadersConfig
	csp    string
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	return &HeadersMiddleware{config: config, csp: config.ContentSecurityPolicy()}
}

func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for name, value := range h.config.Fixed {
			headers.Set(name, value)
		}
		headers.Set("Content-Security-Policy", h.csp)
		if h.config.NoStore {
			headers.Set("Cache-Control", "no-store")
		}
		if r.TLS != nil && h.config.HSTSMaxAge > 0 {
			headers.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", h.config.HSTSMaxAge))
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware lets browsers cache embedded assets for maxAge
// seconds, overriding the no-store default.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}
