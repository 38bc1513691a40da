package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// The API is consumed by first-party dashboards, so the method and header
// grants are fixed; only the origin allowlist and preflight cache age vary
// per deployment.
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int // seconds a preflight result may be cached
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxAge:         3600,
	}
}

const (
	corsMethods = "GET,POST,OPTIONS"
	corsHeaders = "Origin,Content-Type,Accept"
	corsExposed = "Content-Length"
)

// CORS admits the configured dashboard origins. Exposed headers ride on the
// actual responses; preflights carry the grants and cache age.
func CORS(config ...CORSConfig) fiber.Handler {
	cfg := DefaultCORSConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[strings.ToLower(origin)] = struct{}{}
	}
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")
		if _, ok := allowed[strings.ToLower(origin)]; !ok {
			if c.Method() == fiber.MethodOptions {
				return c.SendStatus(fiber.StatusNoContent)
			}
			return c.Next()
		}

		c.Set("Access-Control-Allow-Origin", origin)
		c.Set("Access-Control-Allow-Credentials", "true")
		c.Vary("Origin")

		if c.Method() == fiber.MethodOptions {
			c.Set("Access-Control-Allow-Methods", corsMethods)
			c.Set("Access-Control-Allow-Headers", corsHeaders)
			c.Set("Access-Control-Max-Age", maxAge)
			return c.SendStatus(fiber.StatusNoContent)
		}

		c.Set("Access-Control-Expose-Headers", corsExposed)
		return c.Next()
	}
}
