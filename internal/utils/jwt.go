package utils // package utils provides helper functions for token creation and hashing

import (
    "errors" // sentinel errors for token validation
    "time"   // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// Token validation failures.  Both map to 401 at the HTTP layer but carry
// different messages.
var (
    ErrTokenExpired   = errors.New("token expired")
    ErrTokenMalformed = errors.New("token malformed")
)

// AccessToken represents a signed JWT bearer token along with its expiry.
// Tokens are stateless: nothing is persisted server-side, so a token stays
// valid until Exp even after the client logs out.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Claims are the registered claims carried by every bearer token.  The
// subject holds the user id.
type Claims struct {
    jwt.RegisteredClaims
}

// IssueToken builds and signs an HS256 JWT for a user.  The token carries
// the user id as subject together with issued-at and expiry.
func IssueToken(secret, userID string, ttl time.Duration) (AccessToken, error) {
    if userID == "" {
        return AccessToken{}, errors.New("empty user id")
    }
    now := time.Now().UTC()
    exp := now.Add(ttl)
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   userID,
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    })
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseToken verifies signature and expiry of raw and returns the user id
// it was issued for.  Only HMAC signing methods are accepted.
func ParseToken(secret, raw string) (string, error) {
    claims := &Claims{}
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrTokenMalformed
        }
        return []byte(secret), nil
    }, jwt.WithExpirationRequired())
    if err != nil {
        if errors.Is(err, jwt.ErrTokenExpired) {
            return "", ErrTokenExpired
        }
        return "", ErrTokenMalformed
    }
    if !tok.Valid || claims.Subject == "" {
        return "", ErrTokenMalformed
    }
    return claims.Subject, nil
}
