// Package utils holds small helpers shared by the command line tools and
// tests.
package utils

import (
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed identity token with its expiry.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// TokenOptions are optional claims of a development token.
type TokenOptions struct {
    Issuer   string
    Audience string
    Role     string
}

// NewAccessToken signs an HS256 token for subject, valid for ttl.  The
// booking service only verifies tokens; this exists for local
// development (cmd/devtoken) and for tests.
func NewAccessToken(secret, subject string, ttl time.Duration, opts TokenOptions) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "sub": subject,
        "exp": exp.Unix(),
        "iat": now.Unix(),
    }
    if opts.Issuer != "" {
        claims["iss"] = opts.Issuer
    }
    if opts.Audience != "" {
        claims["aud"] = opts.Audience
    }
    if opts.Role != "" {
        claims["role"] = opts.Role
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
