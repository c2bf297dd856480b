package handler

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// authedUserID extracts the authenticated user's id from the context.
// JWTAuth stores the subject claim as a string; zero means no valid
// identity, which should not happen behind the middleware.
func authedUserID(c echo.Context) uint64 {
    switch v := c.Get("user_id").(type) {
    case string:
        if id, err := strconv.ParseUint(v, 10, 64); err == nil {
            return id
        }
    case float64:
        return uint64(v)
    }
    return 0
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
    return strconv.ParseUint(c.Param(name), 10, 64)
}
