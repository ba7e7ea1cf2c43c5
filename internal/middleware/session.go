package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionContextKey = "nav_session"

// SessionConfig configures the navigation session cookie.
type SessionConfig struct {
	CookieName string
	TTL        time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// Session returns a gin middleware that identifies the browser session
// navigating the page routes. A missing or malformed cookie is replaced by
// a new random UUID. The cookie is scoped to "/" so the JSON API sees the
// same session as the pages. It is refreshed on every request so the
// session expires TTL after the last navigation.
func Session(cfg SessionConfig) gin.HandlerFunc {
	if cfg.CookieName == "" {
		cfg.CookieName = "nav_session"
	}

	return func(c *gin.Context) {
		id := ""
		if raw, err := c.Cookie(cfg.CookieName); err == nil {
			if parsed, err := uuid.Parse(raw); err == nil && parsed.Version() == 4 {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Set(sessionContextKey, id)
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     cfg.CookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   int(cfg.TTL / time.Second),
			Secure:   cfg.Secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		c.Next()
	}
}

// GetSessionID returns the session ID set by Session, or "".
func GetSessionID(c *gin.Context) string {
	return c.GetString(sessionContextKey)
}
