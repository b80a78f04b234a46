package middleware // middleware contains reusable HTTP middleware functions

import (
    "crypto/rsa"
    "fmt"
    "net/http"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// JWTConfig describes how identity tokens are verified.  Tokens are issued
// by an external identity provider; this service only verifies them.
// Either Secret (HS256) or PublicKeyPEM (RS256) must be set.  Issuer and
// Audience are checked when non-empty.
type JWTConfig struct {
    Secret       string
    PublicKeyPEM string
    Issuer       string
    Audience     string
}

// JWTAuth returns an Echo middleware that validates a Bearer token and
// stores its subject under "user_id" (and its role claim, if any, under
// "role").  Tokens without a subject are rejected.  An error is returned
// when the configuration holds neither a secret nor a usable public key.
func JWTAuth(cfg JWTConfig) (echo.MiddlewareFunc, error) {
    var rsaKey *rsa.PublicKey
    if cfg.PublicKeyPEM != "" {
        k, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
        if err != nil {
            return nil, fmt.Errorf("parse jwt public key: %w", err)
        }
        rsaKey = k
    }
    if rsaKey == nil && cfg.Secret == "" {
        return nil, fmt.Errorf("jwt: neither secret nor public key configured")
    }

    keyFunc := func(t *jwt.Token) (interface{}, error) {
        switch t.Method.(type) {
        case *jwt.SigningMethodHMAC:
            if cfg.Secret == "" {
                return nil, echo.ErrUnauthorized
            }
            return []byte(cfg.Secret), nil
        case *jwt.SigningMethodRSA:
            if rsaKey == nil {
                return nil, echo.ErrUnauthorized
            }
            return rsaKey, nil
        }
        return nil, echo.ErrUnauthorized
    }

    opts := []jwt.ParserOption{
        jwt.WithValidMethods([]string{"HS256", "RS256"}),
        jwt.WithExpirationRequired(),
    }
    if cfg.Issuer != "" {
        opts = append(opts, jwt.WithIssuer(cfg.Issuer))
    }
    if cfg.Audience != "" {
        opts = append(opts, jwt.WithAudience(cfg.Audience))
    }
    parser := jwt.NewParser(opts...)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            claims := jwt.MapClaims{}
            tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            sub, err := claims.GetSubject()
            if err != nil || sub == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }

            c.Set("user_id", sub)
            if role, ok := claims["role"].(string); ok {
                c.Set("role", role)
            }
            return next(c)
        }
    }, nil
}
