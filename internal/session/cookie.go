package session

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionKeyID = "sid"
	// ContextKey is the gin context key holding the session ID
	ContextKey = "session_id"
)

// CookieConfig holds session cookie settings
type CookieConfig struct {
	Name   string
	Secret string
	MaxAge time.Duration
	Secure bool
}

// Middleware returns the cookie session middleware followed by Identify
func Middleware(cfg CookieConfig) []gin.HandlerFunc {
	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return []gin.HandlerFunc{sessions.Sessions(cfg.Name, store), Identify()}
}

// Identify assigns a UUID session ID on first contact and exposes it under
// ContextKey
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)

		id, _ := s.Get(sessionKeyID).(string)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			s.Set(sessionKeyID, id)
			if err := s.Save(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "failed to save session",
					"code":  "SESSION_SAVE_FAILED",
				})
				return
			}
		}

		c.Set(ContextKey, id)
		c.Next()
	}
}

// ID returns the session ID set by Identify
func ID(c *gin.Context) string {
	return c.GetString(ContextKey)
}
