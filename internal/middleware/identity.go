package middleware

// identity.go holds the helper that resolves the caller's identity from
// the Echo context for keying purposes.  JWTAuth stores the subject
// claim under "user_id"; unauthenticated callers key as "anon".

import (
    "github.com/labstack/echo/v4"
)

// currentUserID returns the authenticated user's id as a string, or
// "anon" when the request carries no identity.
func currentUserID(c echo.Context) string {
    if v := c.Get("user_id"); v != nil {
        if s, ok := v.(string); ok && s != "" {
            return s
        }
    }
    if v := c.Get("userID"); v != nil {
        if s, ok := v.(string); ok && s != "" {
            return s
        }
    }
    return "anon"
}
