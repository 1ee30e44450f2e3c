package account

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieOptions describes the session cookie.
type CookieOptions struct {
	Name string
	// Secure is set in production so the cookie only travels over HTTPS.
	Secure bool
	MaxAge time.Duration
}

func (o CookieOptions) set(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     o.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(o.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o CookieOptions) clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
