package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated subject stored by JWTAuth, or "" when
// the request is anonymous.
func UserID(c echo.Context) string {
    if s, ok := c.Get("user_id").(string); ok {
        return s
    }
    return ""
}

// userKey is UserID with a placeholder for anonymous requests, for use in
// rate-limit keys.
func userKey(c echo.Context) string {
    if uid := UserID(c); uid != "" {
        return uid
    }
    return "anon"
}
