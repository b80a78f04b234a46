package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// RequireRole rejects requests whose token carries none of the given
// roles.  It reads the "role" value stored by JWTAuth.  With no roles
// configured it lets every authenticated request through, so deployments
// whose identity provider emits no role claim can leave it unset.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        if r != "" {
            allowed[r] = true
        }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if len(allowed) == 0 {
                return next(c)
            }
            role, ok := c.Get("role").(string)
            if !ok || !allowed[role] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
