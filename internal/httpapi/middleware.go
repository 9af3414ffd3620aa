package httpapi

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://challenges.cloudflare.com; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data:; " +
	"frame-src https://challenges.cloudflare.com; " +
	"connect-src 'self'; " +
	"object-src 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'; " +
	"frame-ancestors 'none'"

// securityHeadersMiddleware adds the strict response headers from spec §6
// ("Security response headers and a strict CSP are applied to all HTTP
// responses") to every response, matching the original's
// SecurityHeadersMiddleware.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", contentSecurityPolicy)
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")
		c.Next()
	}
}

var userAgentExemptPaths = map[string]bool{
	"/api/health":    true,
	"/api/dev/trace": true,
}

// userAgentFilterMiddleware returns 404 for non-browser clients hitting
// any /api/* route other than health, dev/trace, and admin (spec §6: "the
// non-browser UA filter returns 404 for /api/* except health and admin").
func userAgentFilterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/api/") || userAgentExemptPaths[path] || strings.HasPrefix(path, "/api/admin/") {
			c.Next()
			return
		}

		ua := c.GetHeader("User-Agent")
		ok, reason := validateUserAgent(ua)
		if !ok {
			slog.Warn("UA blocked", "reason", reason, "path", path)
			c.AbortWithStatusJSON(404, gin.H{"error": "Not found"})
			return
		}
		c.Next()
	}
}
