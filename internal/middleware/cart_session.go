package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CtxCartSessionKey = "cart_session" // string
	CartSessionCookie = "cart_session"
)

// CartSession makes sure every request carries an anonymous cart session id,
// issuing a cookie when the browser has none or sends a malformed one.
func CartSession(ttl time.Duration, secure bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if ck, err := c.Cookie(CartSessionCookie); err == nil {
				if id, err := uuid.Parse(ck.Value); err == nil {
					c.Set(CtxCartSessionKey, id.String())
					return next(c)
				}
			}

			id := uuid.NewString()
			c.SetCookie(&http.Cookie{
				Name:     CartSessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(ttl.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			c.Set(CtxCartSessionKey, id)
			return next(c)
		}
	}
}
