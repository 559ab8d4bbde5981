package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityConfig controls the headers that depend on deployment.
type SecurityConfig struct {
	// HSTS adds Strict-Transport-Security. Leave it off when serving plain
	// HTTP in development.
	HSTS bool
}

var staticSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	// Share URLs carry the token; keep it out of Referer.
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	{"Cache-Control", "no-store"},
	{"X-Robots-Tag", "noindex, nofollow"},
}

// SecurityHeaders sets response headers for a JSON API that serves
// prescription data to link holders.
func SecurityHeaders(cfg SecurityConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range staticSecurityHeaders {
				h.Set(kv[0], kv[1])
			}
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}
